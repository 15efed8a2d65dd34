package services

import (
	"context"
	"strings"
	"time"

	"scan-gate/internal/status"
	"scan-gate/models"
	"scan-gate/utils"
)

// recentLogsLimit bounds the scan logs embedded per ticket in the bulk
// refresh listing.
const recentLogsLimit = 5

// TicketService covers issuance and the bulk listing the device caches are
// refreshed from.
type TicketService struct {
	store RecordStore
}

func NewTicketService(store RecordStore) *TicketService {
	return &TicketService{store: store}
}

// Issue creates a new ticket. The id and qr code are assigned here, once,
// and never change afterwards.
func (s *TicketService) Issue(ctx context.Context, ticket models.Ticket) (*models.Ticket, error) {
	if ticket.EventName == "" {
		return nil, status.NewScanError(status.CodeValidation, "event_name is required")
	}
	if ticket.Price.IsNegative() {
		return nil, status.NewScanError(status.CodeValidation, "price must not be negative")
	}
	if email := ticket.HolderEmail; email != "" && !strings.Contains(email, "@") {
		return nil, status.NewScanError(status.CodeValidation, "holder_email is malformed")
	}

	if ticket.ID == "" {
		id, err := utils.GenerateRecordID()
		if err != nil {
			return nil, err
		}
		ticket.ID = id
	}
	if ticket.QRCode == "" {
		ticket.QRCode = ticket.ID
	}
	now := time.Now().UTC()
	ticket.Status = models.TicketStatusActive
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	ticket.UsedAt = nil

	if err := s.store.CreateTicket(ctx, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// List returns tickets for the bulk cache refresh, optionally embedding
// each ticket's most recent scan logs.
func (s *TicketService) List(ctx context.Context, query models.TicketQuery) ([]models.TicketWithLogs, error) {
	if query.Limit <= 0 || query.Limit > 1000 {
		query.Limit = 1000
	}

	tickets, err := s.store.ListTickets(ctx, query)
	if err != nil {
		return nil, err
	}

	out := make([]models.TicketWithLogs, 0, len(tickets))
	for _, ticket := range tickets {
		entry := models.TicketWithLogs{Ticket: ticket}
		if query.IncludeLogs {
			logs, err := s.store.ListScanLogs(ctx, ticket.ID, recentLogsLimit)
			if err != nil {
				return nil, err
			}
			entry.ScanLogs = logs
		}
		out = append(out, entry)
	}
	return out, nil
}
