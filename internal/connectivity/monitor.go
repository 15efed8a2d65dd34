// Package connectivity tracks whether the system of record is reachable.
// The monitor does no probing of its own: the transport layer pushes the
// outcome of every request into it, and interested parties subscribe to
// transitions.
package connectivity

import (
	"log/slog"
	"sync"
)

type Monitor struct {
	mu          sync.RWMutex
	online      bool
	subscribers map[chan bool]struct{}
}

// NewMonitor starts optimistic: the agent assumes it is online until a
// request proves otherwise.
func NewMonitor() *Monitor {
	return &Monitor{
		online:      true,
		subscribers: make(map[chan bool]struct{}),
	}
}

func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// SetOnline records a reachability observation. Only transitions are fanned
// out to subscribers; repeated observations of the same state are silent.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]chan bool, 0, len(m.subscribers))
	for ch := range m.subscribers {
		subs = append(subs, ch)
	}
	m.mu.Unlock()

	slog.Info("connectivity changed", "online", online)

	for _, ch := range subs {
		// Drop rather than block: a slow subscriber only misses an
		// intermediate transition, and can read the current state.
		select {
		case ch <- online:
		default:
		}
	}
}

// Subscribe returns a channel receiving online/offline transitions. The
// channel is buffered; callers must Unsubscribe when done.
func (m *Monitor) Subscribe() chan bool {
	ch := make(chan bool, 1)
	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()
	return ch
}

func (m *Monitor) Unsubscribe(ch chan bool) {
	m.mu.Lock()
	delete(m.subscribers, ch)
	m.mu.Unlock()
}
