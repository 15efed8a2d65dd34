// Package store implements the agent's local durable store: the pending
// write queue and the cached read replica that let a gate device keep
// scanning while the system of record is unreachable.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pocketbase/dbx"
	_ "modernc.org/sqlite"

	"scan-gate/internal/status"
	"scan-gate/models"
)

// timeLayout is RFC3339 with fixed-width nanoseconds: zero-padded fractions
// keep lexicographic order equal to chronological order, which the eviction
// query's string comparison on last_sync relies on.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS pending_tickets (
	id        TEXT PRIMARY KEY,
	qr_code   TEXT NOT NULL,
	payload   TEXT NOT NULL,
	synced    INTEGER NOT NULL DEFAULT 0,
	queued_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pending_tickets_synced ON pending_tickets (synced);

CREATE TABLE IF NOT EXISTS pending_scan_logs (
	id        TEXT PRIMARY KEY,
	ticket_id TEXT NOT NULL,
	payload   TEXT NOT NULL,
	synced    INTEGER NOT NULL DEFAULT 0,
	queued_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pending_scan_logs_synced ON pending_scan_logs (synced);

CREATE TABLE IF NOT EXISTS cached_tickets (
	id        TEXT PRIMARY KEY,
	qr_code   TEXT NOT NULL,
	payload   TEXT NOT NULL,
	last_sync TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_cached_tickets_qr ON cached_tickets (qr_code);
`

// Store owns the three local collections. A Store that failed to open stays
// usable: every operation returns status.ErrStoreUnavailable, which callers
// treat as "offline with an empty cache", never as a fatal error.
type Store struct {
	db *dbx.DB
}

// Open opens (or creates) the sqlite file under dataDir and ensures the
// schema exists. Open never fails hard; see Store.
func Open(dataDir string) *Store {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		slog.Error("store: cannot create data dir", "dir", dataDir, "error", err)
		return &Store{}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(2000)&_pragma=foreign_keys(1)",
		filepath.Join(dataDir, "gate.db"))

	db, err := dbx.Open("sqlite", dsn)
	if err != nil {
		slog.Error("store: cannot open local database", "error", err)
		return &Store{}
	}

	if _, err := db.NewQuery(schema).Execute(); err != nil {
		slog.Error("store: cannot create schema", "error", err)
		db.Close()
		return &Store{}
	}

	return &Store{db: db}
}

// Available reports whether the underlying database could be opened.
func (s *Store) Available() bool {
	return s.db != nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

type pendingTicketRow struct {
	ID       string `db:"id"`
	QRCode   string `db:"qr_code"`
	Payload  string `db:"payload"`
	Synced   int    `db:"synced"`
	QueuedAt string `db:"queued_at"`
}

type pendingScanLogRow struct {
	ID       string `db:"id"`
	TicketID string `db:"ticket_id"`
	Payload  string `db:"payload"`
	Synced   int    `db:"synced"`
	QueuedAt string `db:"queued_at"`
}

type cachedTicketRow struct {
	ID       string `db:"id"`
	QRCode   string `db:"qr_code"`
	Payload  string `db:"payload"`
	LastSync string `db:"last_sync"`
}

// EnqueuePendingTicket queues a locally issued ticket for upload.
func (s *Store) EnqueuePendingTicket(ctx context.Context, ticket models.Ticket) error {
	if s.db == nil {
		return status.ErrStoreUnavailable
	}

	payload, err := json.Marshal(ticket)
	if err != nil {
		return err
	}

	_, err = s.db.Insert("pending_tickets", dbx.Params{
		"id":        ticket.ID,
		"qr_code":   ticket.QRCode,
		"payload":   string(payload),
		"synced":    0,
		"queued_at": time.Now().UTC().Format(timeLayout),
	}).WithContext(ctx).Execute()
	return err
}

// EnqueuePendingScanLog queues an offline-accepted scan for upload.
func (s *Store) EnqueuePendingScanLog(ctx context.Context, scanLog models.ScanLog) error {
	if s.db == nil {
		return status.ErrStoreUnavailable
	}

	payload, err := json.Marshal(scanLog)
	if err != nil {
		return err
	}

	_, err = s.db.Insert("pending_scan_logs", dbx.Params{
		"id":        scanLog.ID,
		"ticket_id": scanLog.TicketID,
		"payload":   string(payload),
		"synced":    0,
		"queued_at": time.Now().UTC().Format(timeLayout),
	}).WithContext(ctx).Execute()
	return err
}

func (s *Store) ListUnsyncedTickets(ctx context.Context) ([]models.PendingTicket, error) {
	if s.db == nil {
		return nil, status.ErrStoreUnavailable
	}

	var rows []pendingTicketRow
	err := s.db.NewQuery("SELECT * FROM pending_tickets WHERE synced = 0").
		WithContext(ctx).All(&rows)
	if err != nil {
		return nil, err
	}

	out := make([]models.PendingTicket, 0, len(rows))
	for _, row := range rows {
		var ticket models.Ticket
		if err := json.Unmarshal([]byte(row.Payload), &ticket); err != nil {
			return nil, fmt.Errorf("corrupt pending ticket %s: %w", row.ID, err)
		}
		out = append(out, models.PendingTicket{
			Ticket:   ticket,
			Synced:   row.Synced != 0,
			QueuedAt: parseTime(row.QueuedAt),
		})
	}
	return out, nil
}

func (s *Store) ListUnsyncedScanLogs(ctx context.Context) ([]models.PendingScanLog, error) {
	if s.db == nil {
		return nil, status.ErrStoreUnavailable
	}

	var rows []pendingScanLogRow
	err := s.db.NewQuery("SELECT * FROM pending_scan_logs WHERE synced = 0").
		WithContext(ctx).All(&rows)
	if err != nil {
		return nil, err
	}

	out := make([]models.PendingScanLog, 0, len(rows))
	for _, row := range rows {
		var scanLog models.ScanLog
		if err := json.Unmarshal([]byte(row.Payload), &scanLog); err != nil {
			return nil, fmt.Errorf("corrupt pending scan log %s: %w", row.ID, err)
		}
		out = append(out, models.PendingScanLog{
			ScanLog:  scanLog,
			Synced:   row.Synced != 0,
			QueuedAt: parseTime(row.QueuedAt),
		})
	}
	return out, nil
}

// MarkTicketsSynced flags confirmed ticket uploads; PruneSyncedTickets
// removes them afterwards. The reconciler marks, then prunes.
func (s *Store) MarkTicketsSynced(ctx context.Context, ids []string) error {
	return s.markSynced(ctx, "pending_tickets", ids)
}

func (s *Store) MarkScanLogsSynced(ctx context.Context, ids []string) error {
	return s.markSynced(ctx, "pending_scan_logs", ids)
}

func (s *Store) markSynced(ctx context.Context, table string, ids []string) error {
	if s.db == nil {
		return status.ErrStoreUnavailable
	}
	if len(ids) == 0 {
		return nil
	}

	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}

	_, err := s.db.Update(table, dbx.Params{"synced": 1}, dbx.In("id", values...)).
		WithContext(ctx).Execute()
	return err
}

func (s *Store) PruneSyncedTickets(ctx context.Context) error {
	return s.pruneSynced(ctx, "pending_tickets")
}

func (s *Store) PruneSyncedScanLogs(ctx context.Context) error {
	return s.pruneSynced(ctx, "pending_scan_logs")
}

func (s *Store) pruneSynced(ctx context.Context, table string) error {
	if s.db == nil {
		return status.ErrStoreUnavailable
	}
	_, err := s.db.Delete(table, dbx.HashExp{"synced": 1}).WithContext(ctx).Execute()
	return err
}

// UpsertCachedTicket replaces the replica entry for one ticket wholesale.
func (s *Store) UpsertCachedTicket(ctx context.Context, ticket models.Ticket, lastSync time.Time) error {
	if s.db == nil {
		return status.ErrStoreUnavailable
	}
	return s.upsertCached(ctx, s.db, ticket, lastSync)
}

// BulkUpsertCachedTickets applies one refresh result atomically.
func (s *Store) BulkUpsertCachedTickets(ctx context.Context, tickets []models.Ticket, lastSync time.Time) error {
	if s.db == nil {
		return status.ErrStoreUnavailable
	}

	return s.db.Transactional(func(tx *dbx.Tx) error {
		for _, ticket := range tickets {
			if err := s.upsertCached(ctx, tx, ticket, lastSync); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) upsertCached(ctx context.Context, b dbx.Builder, ticket models.Ticket, lastSync time.Time) error {
	payload, err := json.Marshal(ticket)
	if err != nil {
		return err
	}

	_, err = b.NewQuery(`
		INSERT INTO cached_tickets (id, qr_code, payload, last_sync)
		VALUES ({:id}, {:qr}, {:payload}, {:lastSync})
		ON CONFLICT(id) DO UPDATE SET
			qr_code = excluded.qr_code,
			payload = excluded.payload,
			last_sync = excluded.last_sync
	`).Bind(dbx.Params{
		"id":       ticket.ID,
		"qr":       ticket.QRCode,
		"payload":  string(payload),
		"lastSync": lastSync.UTC().Format(timeLayout),
	}).WithContext(ctx).Execute()
	return err
}

func (s *Store) GetCachedTicketByID(ctx context.Context, id string) (*models.CachedTicket, error) {
	return s.getCached(ctx, "id = {:v}", id)
}

func (s *Store) GetCachedTicketByQRCode(ctx context.Context, qrCode string) (*models.CachedTicket, error) {
	return s.getCached(ctx, "qr_code = {:v}", qrCode)
}

func (s *Store) getCached(ctx context.Context, cond, value string) (*models.CachedTicket, error) {
	if s.db == nil {
		return nil, status.ErrStoreUnavailable
	}

	var row cachedTicketRow
	err := s.db.NewQuery("SELECT * FROM cached_tickets WHERE "+cond).
		Bind(dbx.Params{"v": value}).
		WithContext(ctx).One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return rowToCached(row)
}

func (s *Store) ListCachedTickets(ctx context.Context) ([]models.CachedTicket, error) {
	if s.db == nil {
		return nil, status.ErrStoreUnavailable
	}

	var rows []cachedTicketRow
	err := s.db.NewQuery("SELECT * FROM cached_tickets ORDER BY qr_code").
		WithContext(ctx).All(&rows)
	if err != nil {
		return nil, err
	}

	out := make([]models.CachedTicket, 0, len(rows))
	for _, row := range rows {
		entry, err := rowToCached(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *entry)
	}
	return out, nil
}

// UpdateCachedStatus applies an offline-accepted status change to the
// replica so repeat scans on this device see the ticket as used.
func (s *Store) UpdateCachedStatus(ctx context.Context, id, ticketStatus string, usedAt *time.Time) error {
	if s.db == nil {
		return status.ErrStoreUnavailable
	}

	return s.db.Transactional(func(tx *dbx.Tx) error {
		var row cachedTicketRow
		err := tx.NewQuery("SELECT * FROM cached_tickets WHERE id = {:id}").
			Bind(dbx.Params{"id": id}).
			WithContext(ctx).One(&row)
		if errors.Is(err, sql.ErrNoRows) {
			return status.ErrTicketNotFound
		}
		if err != nil {
			return err
		}

		var ticket models.Ticket
		if err := json.Unmarshal([]byte(row.Payload), &ticket); err != nil {
			return fmt.Errorf("corrupt cached ticket %s: %w", id, err)
		}

		ticket.Status = ticketStatus
		ticket.UsedAt = usedAt
		ticket.UpdatedAt = time.Now().UTC()

		payload, err := json.Marshal(ticket)
		if err != nil {
			return err
		}

		_, err = tx.Update("cached_tickets", dbx.Params{"payload": string(payload)},
			dbx.HashExp{"id": id}).WithContext(ctx).Execute()
		return err
	})
}

// EvictCachedOlderThan drops replica entries whose last refresh is older
// than the cutoff. Returns the number of evicted entries.
func (s *Store) EvictCachedOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if s.db == nil {
		return 0, status.ErrStoreUnavailable
	}

	res, err := s.db.Delete("cached_tickets", dbx.NewExp("last_sync < {:cutoff}",
		dbx.Params{"cutoff": cutoff.UTC().Format(timeLayout)})).
		WithContext(ctx).Execute()
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Store) PendingCounts(ctx context.Context) (models.PendingCounts, error) {
	var counts models.PendingCounts
	if s.db == nil {
		return counts, status.ErrStoreUnavailable
	}

	err := s.db.NewQuery("SELECT COUNT(*) FROM pending_tickets WHERE synced = 0").
		WithContext(ctx).Row(&counts.Tickets)
	if err != nil {
		return counts, err
	}

	err = s.db.NewQuery("SELECT COUNT(*) FROM pending_scan_logs WHERE synced = 0").
		WithContext(ctx).Row(&counts.ScanLogs)
	if err != nil {
		return counts, err
	}

	counts.Total = counts.Tickets + counts.ScanLogs
	return counts, nil
}

func rowToCached(row cachedTicketRow) (*models.CachedTicket, error) {
	var ticket models.Ticket
	if err := json.Unmarshal([]byte(row.Payload), &ticket); err != nil {
		return nil, fmt.Errorf("corrupt cached ticket %s: %w", row.ID, err)
	}
	return &models.CachedTicket{
		Ticket:   ticket,
		LastSync: parseTime(row.LastSync),
	}, nil
}

func parseTime(value string) time.Time {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
