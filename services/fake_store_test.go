package services

import (
	"context"
	"sort"
	"time"

	"scan-gate/internal/status"
	"scan-gate/models"
)

// fakeStore is an in-memory RecordStore for service tests.
type fakeStore struct {
	tickets  map[string]models.Ticket
	scanLogs map[string]models.ScanLog

	failCreateScanLog bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tickets:  make(map[string]models.Ticket),
		scanLogs: make(map[string]models.ScanLog),
	}
}

func (f *fakeStore) seedTicket(t models.Ticket) {
	f.tickets[t.ID] = t
}

func (f *fakeStore) FindTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	t, ok := f.tickets[id]
	if !ok {
		return nil, status.ErrTicketNotFound
	}
	copied := t
	return &copied, nil
}

func (f *fakeStore) FindTicketByQRCode(ctx context.Context, qrCode string) (*models.Ticket, error) {
	for _, t := range f.tickets {
		if t.QRCode == qrCode {
			copied := t
			return &copied, nil
		}
	}
	return nil, status.ErrTicketNotFound
}

func (f *fakeStore) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	f.tickets[ticket.ID] = *ticket
	return nil
}

func (f *fakeStore) SetTicketUsed(ctx context.Context, id string, usedAt time.Time) error {
	t, ok := f.tickets[id]
	if !ok {
		return status.ErrTicketNotFound
	}
	t.Status = models.TicketStatusUsed
	t.UsedAt = &usedAt
	t.UpdatedAt = usedAt
	f.tickets[id] = t
	return nil
}

func (f *fakeStore) FindScanLogByID(ctx context.Context, id string) (*models.ScanLog, error) {
	l, ok := f.scanLogs[id]
	if !ok {
		return nil, status.ErrScanLogNotFound
	}
	copied := l
	return &copied, nil
}

func (f *fakeStore) CreateScanLog(ctx context.Context, scanLog *models.ScanLog) error {
	if f.failCreateScanLog {
		return status.ErrStoreUnavailable
	}
	f.scanLogs[scanLog.ID] = *scanLog
	return nil
}

func (f *fakeStore) ListScanLogs(ctx context.Context, ticketID string, limit int) ([]models.ScanLog, error) {
	var out []models.ScanLog
	for _, l := range f.scanLogs {
		if l.TicketID == ticketID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScannedAt.After(out[j].ScannedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) ListTickets(ctx context.Context, query models.TicketQuery) ([]models.Ticket, error) {
	var out []models.Ticket
	for _, t := range f.tickets {
		if query.Status != "" && t.Status != query.Status {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

func (f *fakeStore) RunInTransaction(ctx context.Context, fn func(tx RecordStore) error) error {
	return fn(f)
}

func (f *fakeStore) scanLogCountFor(ticketID string) int {
	n := 0
	for _, l := range f.scanLogs {
		if l.TicketID == ticketID {
			n++
		}
	}
	return n
}
