package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ticket statuses. active -> used is the only transition the scan path is
// allowed to make; cancelled and invalid are terminal administrative states.
const (
	TicketStatusActive    = "active"
	TicketStatusUsed      = "used"
	TicketStatusCancelled = "cancelled"
	TicketStatusInvalid   = "invalid"
)

type Ticket struct {
	ID          string          `json:"id" db:"id"`
	QRCode      string          `json:"qr_code" db:"qr_code"`
	EventName   string          `json:"event_name" db:"event_name"`
	TicketType  string          `json:"ticket_type" db:"ticket_type"`
	Price       decimal.Decimal `json:"price" db:"price"`
	HolderName  string          `json:"holder_name,omitempty" db:"holder_name"`
	HolderEmail string          `json:"holder_email,omitempty" db:"holder_email"`
	Status      string          `json:"status" db:"status"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
	UsedAt      *time.Time      `json:"used_at,omitempty" db:"used_at"`
}

// IsTerminal reports whether no further scan may change the ticket's status.
func (t *Ticket) IsTerminal() bool {
	return t.Status != TicketStatusActive
}

// ScanLog records one accepted admission. Created atomically with the
// ticket's active -> used flip and immutable afterwards.
type ScanLog struct {
	ID         string    `json:"id" db:"id"`
	TicketID   string    `json:"ticket_id" db:"ticket_id"`
	ScannedAt  time.Time `json:"scanned_at" db:"scanned_at"`
	ScannedBy  string    `json:"scanned_by,omitempty" db:"scanned_by"`
	Location   string    `json:"location,omitempty" db:"location"`
	DeviceInfo string    `json:"device_info,omitempty" db:"device_info"`
}

// TicketWithLogs is the bulk cache-refresh shape: a ticket plus its most
// recent scan logs.
type TicketWithLogs struct {
	Ticket
	ScanLogs []ScanLog `json:"scan_logs,omitempty"`
}

// TicketQuery filters the bulk refresh listing.
type TicketQuery struct {
	Status      string `json:"status,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	Offset      int    `json:"offset,omitempty"`
	IncludeLogs bool   `json:"include_logs,omitempty"`
}
