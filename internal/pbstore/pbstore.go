// Package pbstore implements the services.RecordStore seam on top of the
// embedded PocketBase database. Transactions map onto RunInTransaction,
// whose sqlite write transactions give the single-writer isolation the
// authoritative scan path depends on.
package pbstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"scan-gate/internal/status"
	"scan-gate/models"
	"scan-gate/services"
)

const (
	ticketsCollection  = "tickets"
	scanLogsCollection = "scan_logs"
)

type Store struct {
	app core.App
}

func New(app core.App) *Store {
	return &Store{app: app}
}

func (s *Store) FindTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	record, err := s.app.FindRecordById(ticketsCollection, id)
	if err != nil {
		return nil, mapNotFound(err, status.ErrTicketNotFound)
	}
	return recordToTicket(record), nil
}

func (s *Store) FindTicketByQRCode(ctx context.Context, qrCode string) (*models.Ticket, error) {
	record, err := s.app.FindFirstRecordByFilter(ticketsCollection,
		"qr_code = {:qr}", dbx.Params{"qr": qrCode})
	if err != nil {
		return nil, mapNotFound(err, status.ErrTicketNotFound)
	}
	return recordToTicket(record), nil
}

func (s *Store) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	collection, err := s.app.FindCollectionByNameOrId(ticketsCollection)
	if err != nil {
		return err
	}

	record := core.NewRecord(collection)
	record.Set("id", ticket.ID)
	record.Set("qr_code", ticket.QRCode)
	record.Set("event_name", ticket.EventName)
	record.Set("ticket_type", ticket.TicketType)
	record.Set("price", ticket.Price.InexactFloat64())
	record.Set("holder_name", ticket.HolderName)
	record.Set("holder_email", ticket.HolderEmail)
	record.Set("status", ticket.Status)
	if ticket.UsedAt != nil {
		record.Set("used_at", *ticket.UsedAt)
	}

	return s.app.Save(record)
}

func (s *Store) SetTicketUsed(ctx context.Context, id string, usedAt time.Time) error {
	record, err := s.app.FindRecordById(ticketsCollection, id)
	if err != nil {
		return mapNotFound(err, status.ErrTicketNotFound)
	}

	record.Set("status", models.TicketStatusUsed)
	record.Set("used_at", usedAt)

	return s.app.Save(record)
}

func (s *Store) FindScanLogByID(ctx context.Context, id string) (*models.ScanLog, error) {
	record, err := s.app.FindRecordById(scanLogsCollection, id)
	if err != nil {
		return nil, mapNotFound(err, status.ErrScanLogNotFound)
	}
	return recordToScanLog(record), nil
}

func (s *Store) CreateScanLog(ctx context.Context, scanLog *models.ScanLog) error {
	collection, err := s.app.FindCollectionByNameOrId(scanLogsCollection)
	if err != nil {
		return err
	}

	record := core.NewRecord(collection)
	record.Set("id", scanLog.ID)
	record.Set("ticket_id", scanLog.TicketID)
	record.Set("scanned_at", scanLog.ScannedAt)
	record.Set("scanned_by", scanLog.ScannedBy)
	record.Set("location", scanLog.Location)
	record.Set("device_info", scanLog.DeviceInfo)

	return s.app.Save(record)
}

func (s *Store) ListScanLogs(ctx context.Context, ticketID string, limit int) ([]models.ScanLog, error) {
	records, err := s.app.FindRecordsByFilter(scanLogsCollection,
		"ticket_id = {:tid}", "-scanned_at", limit, 0, dbx.Params{"tid": ticketID})
	if err != nil {
		return nil, err
	}

	out := make([]models.ScanLog, 0, len(records))
	for _, record := range records {
		out = append(out, *recordToScanLog(record))
	}
	return out, nil
}

func (s *Store) ListTickets(ctx context.Context, query models.TicketQuery) ([]models.Ticket, error) {
	filter := "id != ''"
	params := dbx.Params{}
	if query.Status != "" {
		filter = "status = {:status}"
		params["status"] = query.Status
	}

	records, err := s.app.FindRecordsByFilter(ticketsCollection,
		filter, "-created", query.Limit, query.Offset, params)
	if err != nil {
		return nil, err
	}

	out := make([]models.Ticket, 0, len(records))
	for _, record := range records {
		out = append(out, *recordToTicket(record))
	}
	return out, nil
}

func (s *Store) RunInTransaction(ctx context.Context, fn func(tx services.RecordStore) error) error {
	return s.app.RunInTransaction(func(txApp core.App) error {
		return fn(New(txApp))
	})
}

func mapNotFound(err, sentinel error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel
	}
	return fmt.Errorf("record lookup: %w", err)
}

func recordToTicket(record *core.Record) *models.Ticket {
	ticket := &models.Ticket{
		ID:          record.Id,
		QRCode:      record.GetString("qr_code"),
		EventName:   record.GetString("event_name"),
		TicketType:  record.GetString("ticket_type"),
		Price:       decimal.NewFromFloat(record.GetFloat("price")),
		HolderName:  record.GetString("holder_name"),
		HolderEmail: record.GetString("holder_email"),
		Status:      record.GetString("status"),
		CreatedAt:   record.GetDateTime("created").Time(),
		UpdatedAt:   record.GetDateTime("updated").Time(),
	}

	if usedAt := record.GetDateTime("used_at"); !usedAt.IsZero() {
		t := usedAt.Time()
		ticket.UsedAt = &t
	}

	return ticket
}

func recordToScanLog(record *core.Record) *models.ScanLog {
	return &models.ScanLog{
		ID:         record.Id,
		TicketID:   record.GetString("ticket_id"),
		ScannedAt:  record.GetDateTime("scanned_at").Time(),
		ScannedBy:  record.GetString("scanned_by"),
		Location:   record.GetString("location"),
		DeviceInfo: record.GetString("device_info"),
	}
}
