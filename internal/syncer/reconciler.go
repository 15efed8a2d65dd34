// Package syncer drains the agent's pending write queue into the system of
// record and keeps the local ticket replica fresh.
package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"scan-gate/internal/store"
	"scan-gate/models"
	"scan-gate/monitoring"
)

// BatchClient is the slice of the server API the reconciler needs.
type BatchClient interface {
	SubmitBatch(ctx context.Context, req models.SyncBatchRequest) (*models.SyncBatchResponse, error)
	FetchTickets(ctx context.Context, query models.TicketQuery) ([]models.TicketWithLogs, error)
}

type Reconciler struct {
	store        *store.Store
	api          BatchClient
	cacheMaxAge  time.Duration
	refreshLimit int

	mu         sync.Mutex
	lastSync   time.Time
	lastReport *models.SyncBatchResponse
}

func NewReconciler(st *store.Store, api BatchClient, cacheMaxAge time.Duration, refreshLimit int) *Reconciler {
	return &Reconciler{
		store:        st,
		api:          api,
		cacheMaxAge:  cacheMaxAge,
		refreshLimit: refreshLimit,
	}
}

// Reconcile submits every unsynced pending write as one batch and prunes
// whatever the merge report confirms. A transport failure leaves every item
// pending; per-item errors leave only those items pending, to be retried on
// the next pass.
func (r *Reconciler) Reconcile(ctx context.Context) (*models.SyncBatchResponse, error) {
	started := time.Now()

	pendingTickets, err := r.store.ListUnsyncedTickets(ctx)
	if err != nil {
		return nil, err
	}
	pendingScanLogs, err := r.store.ListUnsyncedScanLogs(ctx)
	if err != nil {
		return nil, err
	}

	req := models.SyncBatchRequest{
		Tickets:  make([]models.Ticket, 0, len(pendingTickets)),
		ScanLogs: make([]models.ScanLog, 0, len(pendingScanLogs)),
	}
	for _, p := range pendingTickets {
		req.Tickets = append(req.Tickets, p.Ticket)
	}
	for _, p := range pendingScanLogs {
		req.ScanLogs = append(req.ScanLogs, p.ScanLog)
	}

	if req.Empty() {
		return &models.SyncBatchResponse{Success: true}, nil
	}

	report, err := r.api.SubmitBatch(ctx, req)
	if err != nil {
		monitoring.TrackReconcile("transport_error", time.Since(started))
		return nil, err
	}

	// Mark first, prune second: if marking is interrupted the leftovers are
	// resubmitted and the server's idempotent upsert absorbs them.
	if err := r.store.MarkTicketsSynced(ctx, report.Synced.Tickets); err != nil {
		return report, err
	}
	if err := r.store.MarkScanLogsSynced(ctx, report.Synced.ScanLogs); err != nil {
		return report, err
	}
	if err := r.store.PruneSyncedTickets(ctx); err != nil {
		return report, err
	}
	if err := r.store.PruneSyncedScanLogs(ctx); err != nil {
		return report, err
	}

	monitoring.TrackReconcile("success", time.Since(started))
	monitoring.TrackReconcileItems(models.PendingKindTicket, "synced", len(report.Synced.Tickets))
	monitoring.TrackReconcileItems(models.PendingKindScanLog, "synced", len(report.Synced.ScanLogs))
	monitoring.TrackReconcileItems("item", "error", len(report.Errors))

	slog.Info("reconciliation complete",
		"tickets_synced", len(report.Synced.Tickets),
		"scan_logs_synced", len(report.Synced.ScanLogs),
		"errors", len(report.Errors),
		"conflicts", report.Summary.Conflicts,
	)
	for _, itemErr := range report.Errors {
		slog.Warn("reconciliation item failed, will retry",
			"type", itemErr.Type, "id", itemErr.ID, "error", itemErr.Error)
	}

	r.mu.Lock()
	r.lastSync = time.Now()
	r.lastReport = report
	r.mu.Unlock()

	return report, nil
}

// RefreshCache replaces the local replica with the server's current ticket
// listing and evicts entries past the staleness horizon.
func (r *Reconciler) RefreshCache(ctx context.Context) error {
	tickets, err := r.api.FetchTickets(ctx, models.TicketQuery{Limit: r.refreshLimit})
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	flat := make([]models.Ticket, 0, len(tickets))
	for _, t := range tickets {
		flat = append(flat, t.Ticket)
	}

	if err := r.store.BulkUpsertCachedTickets(ctx, flat, now); err != nil {
		return err
	}

	evicted, err := r.store.EvictCachedOlderThan(ctx, now.Add(-r.cacheMaxAge))
	if err != nil {
		return err
	}
	if evicted > 0 {
		slog.Info("evicted stale cache entries", "count", evicted)
	}

	r.mu.Lock()
	r.lastSync = now
	r.mu.Unlock()

	return nil
}

// LastSync returns when the last successful reconcile or refresh finished.
func (r *Reconciler) LastSync() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSync
}

// LastReport returns the most recent merge report, if any.
func (r *Reconciler) LastReport() *models.SyncBatchResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastReport
}
