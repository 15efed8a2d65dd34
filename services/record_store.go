package services

import (
	"context"
	"time"

	"scan-gate/models"
)

// RecordStore is the persistence seam over the system of record: find,
// create, and update by key, plus a transaction boundary. The production
// implementation wraps the embedded database; tests substitute an in-memory
// fake.
type RecordStore interface {
	FindTicketByID(ctx context.Context, id string) (*models.Ticket, error)
	FindTicketByQRCode(ctx context.Context, qrCode string) (*models.Ticket, error)
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	// SetTicketUsed flips active -> used and stamps usedAt.
	SetTicketUsed(ctx context.Context, id string, usedAt time.Time) error

	FindScanLogByID(ctx context.Context, id string) (*models.ScanLog, error)
	CreateScanLog(ctx context.Context, scanLog *models.ScanLog) error
	ListScanLogs(ctx context.Context, ticketID string, limit int) ([]models.ScanLog, error)

	ListTickets(ctx context.Context, query models.TicketQuery) ([]models.Ticket, error)

	// RunInTransaction executes fn atomically. The store passed to fn sees
	// uncommitted writes and must provide an isolation level under which
	// two concurrent validations cannot both read a ticket as active.
	RunInTransaction(ctx context.Context, fn func(tx RecordStore) error) error
}
