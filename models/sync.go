package models

import "time"

// Pending write kinds for the local durable queue.
const (
	PendingKindTicket  = "ticket"
	PendingKindScanLog = "scan_log"
)

// PendingTicket is a locally issued ticket awaiting upload. Its ID is final:
// the system of record stores it verbatim, which is what makes resubmission
// idempotent.
type PendingTicket struct {
	Ticket   Ticket    `json:"ticket"`
	Synced   bool      `json:"synced"`
	QueuedAt time.Time `json:"queued_at"`
}

// PendingScanLog is an offline-accepted scan awaiting upload.
type PendingScanLog struct {
	ScanLog  ScanLog   `json:"scan_log"`
	Synced   bool      `json:"synced"`
	QueuedAt time.Time `json:"queued_at"`
}

// CachedTicket is a possibly-stale replica of a server ticket. Never
// authoritative; superseded wholesale by every bulk refresh.
type CachedTicket struct {
	Ticket   Ticket    `json:"ticket"`
	LastSync time.Time `json:"last_sync"`
}

type PendingCounts struct {
	Tickets  int `json:"tickets"`
	ScanLogs int `json:"scan_logs"`
	Total    int `json:"total"`
}

// SyncBatchRequest carries every unsynced pending write in one submission.
// Tickets are processed before scan logs so a locally issued ticket exists
// by the time its own scan log is verified.
type SyncBatchRequest struct {
	Tickets  []Ticket  `json:"tickets"`
	ScanLogs []ScanLog `json:"scan_logs"`
}

func (r *SyncBatchRequest) Empty() bool {
	return len(r.Tickets) == 0 && len(r.ScanLogs) == 0
}

type SyncedIDs struct {
	Tickets  []string `json:"tickets"`
	ScanLogs []string `json:"scan_logs"`
}

type SyncItemError struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Error string `json:"error"`
}

type SyncSummary struct {
	TicketsProcessed int `json:"tickets_processed"`
	TicketsCreated   int `json:"tickets_created"`
	TicketsSkipped   int `json:"tickets_skipped"`
	ScanLogsSynced   int `json:"scan_logs_synced"`
	ScanLogsSkipped  int `json:"scan_logs_skipped"`
	StatusFlips      int `json:"status_flips"`
	// Conflicts counts scan logs recorded against a ticket that was no
	// longer active: accepted for the audit trail, no status change.
	Conflicts int `json:"conflicts"`
}

// SyncBatchResponse is the merge report: ids in Synced are safe to prune
// locally, ids in Errors stay pending and are retried on the next pass.
type SyncBatchResponse struct {
	Success bool            `json:"success"`
	Synced  SyncedIDs       `json:"synced"`
	Errors  []SyncItemError `json:"errors,omitempty"`
	Summary SyncSummary     `json:"summary"`
}
