package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	pubnub "github.com/pubnub/go"

	"scan-gate/internal/status"
	"scan-gate/models"
)

// MergeService is the server side of reconciliation: it folds a batch of
// client-queued writes into the system of record with per-item idempotent
// upsert semantics. One transaction per batch; per-item failures are
// reported, never fatal to their siblings.
type MergeService struct {
	store  RecordStore
	pubnub *pubnub.PubNub
}

func NewMergeService(store RecordStore, pn *pubnub.PubNub) *MergeService {
	return &MergeService{
		store:  store,
		pubnub: pn,
	}
}

// ProcessBatch merges pending tickets, then pending scan logs.
//
// Tickets: an id that already exists is a no-op and still counts as synced,
// so resubmitting a batch after a lost response cannot duplicate anything.
//
// Scan logs: an existing id is likewise a synced no-op. A new scan log must
// reference an existing ticket (otherwise ORPHAN_SCAN_LOG, left pending on
// the client). If the referenced ticket is still active it flips to used
// with usedAt taken from the scan log's own timestamp, not from now: the
// admission happened when the gate accepted it, not when the device got
// back online. If the ticket is no longer active the log is still recorded
// for the audit trail and the status is left alone; first writer wins and
// the collision is surfaced in the summary as a conflict.
func (s *MergeService) ProcessBatch(ctx context.Context, req models.SyncBatchRequest) (*models.SyncBatchResponse, error) {
	report := &models.SyncBatchResponse{
		Synced: models.SyncedIDs{
			Tickets:  []string{},
			ScanLogs: []string{},
		},
		Errors: []models.SyncItemError{},
	}

	err := s.store.RunInTransaction(ctx, func(tx RecordStore) error {
		for i := range req.Tickets {
			s.mergeTicket(ctx, tx, &req.Tickets[i], report)
		}
		for i := range req.ScanLogs {
			s.mergeScanLog(ctx, tx, &req.ScanLogs[i], report)
		}
		return nil
	})
	if err != nil {
		slog.Error("merge batch failed", "error", err)
		return nil, err
	}

	report.Success = len(report.Errors) == 0

	slog.Info("merge batch processed",
		"tickets_processed", report.Summary.TicketsProcessed,
		"scan_logs_synced", report.Summary.ScanLogsSynced,
		"status_flips", report.Summary.StatusFlips,
		"conflicts", report.Summary.Conflicts,
		"errors", len(report.Errors),
	)

	s.publishSummary(report)

	return report, nil
}

func (s *MergeService) mergeTicket(ctx context.Context, tx RecordStore, ticket *models.Ticket, report *models.SyncBatchResponse) {
	report.Summary.TicketsProcessed++

	_, err := tx.FindTicketByID(ctx, ticket.ID)
	switch {
	case err == nil:
		// Already known: idempotent skip, still confirmed to the client.
		report.Summary.TicketsSkipped++
		report.Synced.Tickets = append(report.Synced.Tickets, ticket.ID)
		return
	case !errors.Is(err, status.ErrTicketNotFound):
		report.Errors = append(report.Errors, models.SyncItemError{
			Type: models.PendingKindTicket, ID: ticket.ID, Error: err.Error(),
		})
		return
	}

	if err := tx.CreateTicket(ctx, ticket); err != nil {
		report.Errors = append(report.Errors, models.SyncItemError{
			Type: models.PendingKindTicket, ID: ticket.ID, Error: err.Error(),
		})
		return
	}

	report.Summary.TicketsCreated++
	report.Synced.Tickets = append(report.Synced.Tickets, ticket.ID)
}

func (s *MergeService) mergeScanLog(ctx context.Context, tx RecordStore, scanLog *models.ScanLog, report *models.SyncBatchResponse) {
	_, err := tx.FindScanLogByID(ctx, scanLog.ID)
	switch {
	case err == nil:
		report.Summary.ScanLogsSkipped++
		report.Synced.ScanLogs = append(report.Synced.ScanLogs, scanLog.ID)
		return
	case !errors.Is(err, status.ErrScanLogNotFound):
		report.Errors = append(report.Errors, models.SyncItemError{
			Type: models.PendingKindScanLog, ID: scanLog.ID, Error: err.Error(),
		})
		return
	}

	ticket, err := tx.FindTicketByID(ctx, scanLog.TicketID)
	if errors.Is(err, status.ErrTicketNotFound) {
		report.Errors = append(report.Errors, models.SyncItemError{
			Type: models.PendingKindScanLog, ID: scanLog.ID, Error: status.CodeOrphanScanLog,
		})
		return
	}
	if err != nil {
		report.Errors = append(report.Errors, models.SyncItemError{
			Type: models.PendingKindScanLog, ID: scanLog.ID, Error: err.Error(),
		})
		return
	}

	if err := tx.CreateScanLog(ctx, scanLog); err != nil {
		report.Errors = append(report.Errors, models.SyncItemError{
			Type: models.PendingKindScanLog, ID: scanLog.ID, Error: err.Error(),
		})
		return
	}

	if ticket.Status == models.TicketStatusActive {
		if err := tx.SetTicketUsed(ctx, ticket.ID, scanLog.ScannedAt); err != nil {
			report.Errors = append(report.Errors, models.SyncItemError{
				Type: models.PendingKindScanLog, ID: scanLog.ID, Error: err.Error(),
			})
			return
		}
		report.Summary.StatusFlips++
	} else {
		report.Summary.Conflicts++
	}

	report.Summary.ScanLogsSynced++
	report.Synced.ScanLogs = append(report.Synced.ScanLogs, scanLog.ID)
}

func (s *MergeService) publishSummary(report *models.SyncBatchResponse) {
	if s.pubnub == nil {
		return
	}

	s.pubnub.Publish().
		Channel("sync-feed").
		Message(map[string]any{
			"type":             "sync_completed",
			"tickets_created":  report.Summary.TicketsCreated,
			"scan_logs_synced": report.Summary.ScanLogsSynced,
			"status_flips":     report.Summary.StatusFlips,
			"conflicts":        report.Summary.Conflicts,
			"errors":           len(report.Errors),
			"completed_at":     time.Now().Format(time.RFC3339),
		}).
		Execute()
}
