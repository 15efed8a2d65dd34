package syncer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"scan-gate/internal/connectivity"
)

// Scheduler owns every reconciliation trigger: the periodic tick, the
// reconnect edge, and manual requests. A single in-flight guard serializes
// them; a trigger arriving while one run is in flight is dropped, not
// queued, since the next tick will retry anyway.
type Scheduler struct {
	reconciler *Reconciler
	monitor    *connectivity.Monitor
	interval   time.Duration
	settle     time.Duration

	inFlight atomic.Bool
	manualCh chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewScheduler(reconciler *Reconciler, monitor *connectivity.Monitor, interval, settle time.Duration) *Scheduler {
	return &Scheduler{
		reconciler: reconciler,
		monitor:    monitor,
		interval:   interval,
		settle:     settle,
		manualCh:   make(chan struct{}),
		stopCh:     make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.loop()
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// TriggerSync requests an immediate reconciliation. Non-blocking: if a run
// is already in flight or being dispatched, the request is dropped.
func (s *Scheduler) TriggerSync() bool {
	select {
	case s.manualCh <- struct{}{}:
		return true
	default:
		return false
	}
}

// InFlight reports whether a reconciliation is currently running.
func (s *Scheduler) InFlight() bool {
	return s.inFlight.Load()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	transitions := s.monitor.Subscribe()
	defer s.monitor.Unsubscribe(transitions)

	for {
		select {
		case <-s.stopCh:
			return

		case <-ticker.C:
			if !s.monitor.Online() {
				continue
			}
			counts, err := s.reconciler.store.PendingCounts(context.Background())
			if err != nil || counts.Total == 0 {
				continue
			}
			s.run("tick", false)

		case online := <-transitions:
			if !online {
				continue
			}
			// Let the transition settle before racing it with a batch.
			select {
			case <-time.After(s.settle):
			case <-s.stopCh:
				return
			}
			s.run("reconnect", true)

		case <-s.manualCh:
			s.run("manual", true)
		}
	}
}

func (s *Scheduler) run(reason string, refresh bool) {
	if !s.inFlight.CompareAndSwap(false, true) {
		slog.Debug("reconciliation already in flight, dropping trigger", "reason", reason)
		return
	}
	defer s.inFlight.Store(false)

	if !s.monitor.Online() {
		slog.Info("skipping reconciliation while offline", "reason", reason)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, err := s.reconciler.Reconcile(ctx); err != nil {
		slog.Error("reconciliation failed", "reason", reason, "error", err)
		return
	}

	if refresh {
		if err := s.reconciler.RefreshCache(ctx); err != nil {
			slog.Warn("cache refresh failed", "reason", reason, "error", err)
		}
	}
}
