// Package scanner is the agent-side front of the scan validation engine. It
// debounces duplicate presentations, prefers the authoritative server path,
// and falls back to optimistic validation against the local replica when the
// server cannot be reached.
package scanner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"scan-gate/internal/connectivity"
	"scan-gate/internal/status"
	"scan-gate/internal/store"
	"scan-gate/models"
	"scan-gate/monitoring"
	"scan-gate/utils"
)

// PayloadDecoder is the camera/image collaborator: it yields one decoded
// text payload per scan attempt. The engine treats the text as an opaque
// qr code candidate and does no format validation of its own.
type PayloadDecoder interface {
	DecodePayload(ctx context.Context) (string, error)
}

// AuthorityClient performs authoritative validation against the system of
// record.
type AuthorityClient interface {
	Scan(ctx context.Context, req models.ScanRequest) (*models.ScanResponse, error)
}

type Engine struct {
	store      *store.Store
	api        AuthorityClient
	monitor    *connectivity.Monitor
	deviceInfo string

	// mu serializes scans: one device processes one presentation at a
	// time, which is what makes the duplicate guard meaningful.
	mu           sync.Mutex
	lastAccepted string
}

func NewEngine(st *store.Store, api AuthorityClient, monitor *connectivity.Monitor, deviceInfo string) *Engine {
	return &Engine{
		store:      st,
		api:        api,
		monitor:    monitor,
		deviceInfo: deviceInfo,
	}
}

// ScanFrom runs one decode attempt through Process.
func (e *Engine) ScanFrom(ctx context.Context, decoder PayloadDecoder, req models.ScanRequest) *models.ScanResponse {
	payload, err := decoder.DecodePayload(ctx)
	if err != nil {
		return models.ScanRejected(e.mode(), status.CodeValidation, "could not decode scan payload")
	}
	req.QRCode = payload
	return e.Process(ctx, req)
}

// Process validates one presented payload. Authoritative when online; on a
// transport failure the attempt is retried once through the optimistic path
// before anything is surfaced to the operator.
func (e *Engine) Process(ctx context.Context, req models.ScanRequest) *models.ScanResponse {
	e.mu.Lock()
	defer e.mu.Unlock()

	started := time.Now()

	if req.QRCode == "" {
		return models.ScanRejected(e.mode(), status.CodeValidation, "empty scan payload")
	}

	// Debounce: the same payload presented twice in a row is the scanner
	// re-reading one badge, not a second admission attempt.
	if req.QRCode == e.lastAccepted {
		return models.ScanRejected(e.mode(), status.CodeDuplicateScan, "payload identical to the previous accepted scan")
	}

	if req.DeviceInfo == "" {
		req.DeviceInfo = e.deviceInfo
	}

	var resp *models.ScanResponse
	if e.monitor.Online() {
		r, err := e.api.Scan(ctx, req)
		if err != nil {
			slog.Warn("authoritative scan failed, falling back to offline validation",
				"qr_code", req.QRCode, "error", err)
			resp = e.validateOffline(ctx, req)
		} else {
			resp = r
			if resp.Source == "" {
				resp.Source = models.ScanSourceAuthoritative
			}
		}
	} else {
		resp = e.validateOffline(ctx, req)
	}

	if resp.Success {
		e.lastAccepted = req.QRCode
	} else {
		// A different payload intervened; forget the previous one.
		e.lastAccepted = ""
	}

	result := resp.Error
	if resp.Success {
		result = "accepted"
	}
	monitoring.TrackScan(resp.Source, result, time.Since(started))

	return resp
}

// validateOffline is the optimistic path: decide from the local replica,
// queue the scan log for reconciliation, and update the replica so this
// device won't accept the same ticket twice.
func (e *Engine) validateOffline(ctx context.Context, req models.ScanRequest) *models.ScanResponse {
	entry, err := e.store.GetCachedTicketByQRCode(ctx, req.QRCode)
	switch {
	case errors.Is(err, status.ErrTicketNotFound):
		// Unlike the online not-found this does not mean the ticket
		// doesn't exist, only that this device has never seen it.
		return models.ScanRejected(models.ScanSourceOffline, status.CodeNotFoundOffline,
			"ticket unknown to this device; verify online or at another gate")
	case errors.Is(err, status.ErrStoreUnavailable):
		return models.ScanRejected(models.ScanSourceOffline, status.CodeStoreUnavail,
			"local store unavailable")
	case err != nil:
		slog.Error("offline lookup failed", "qr_code", req.QRCode, "error", err)
		return models.ScanRejected(models.ScanSourceOffline, status.CodeStoreUnavail,
			"local store unavailable")
	}

	ticket := entry.Ticket
	if ticket.IsTerminal() {
		scanErr := status.ForTicketStatus(ticket.Status)
		return models.ScanRejected(models.ScanSourceOffline, scanErr.Code, scanErr.Message)
	}

	id, err := utils.GenerateRecordID()
	if err != nil {
		return models.ScanRejected(models.ScanSourceOffline, status.CodeInternal,
			"could not generate scan log id")
	}

	now := time.Now().UTC()
	scanLog := models.ScanLog{
		ID:         id,
		TicketID:   ticket.ID,
		ScannedAt:  now,
		ScannedBy:  req.ScannedBy,
		Location:   req.Location,
		DeviceInfo: req.DeviceInfo,
	}

	if err := e.store.EnqueuePendingScanLog(ctx, scanLog); err != nil {
		slog.Error("cannot queue offline scan", "ticket_id", ticket.ID, "error", err)
		return models.ScanRejected(models.ScanSourceOffline, status.CodeStoreUnavail,
			"local store unavailable")
	}

	if err := e.store.UpdateCachedStatus(ctx, ticket.ID, models.TicketStatusUsed, &now); err != nil {
		// The scan log is already durable; the stale replica only risks a
		// repeat optimistic acceptance, which reconciliation reports.
		slog.Warn("cached status update failed after offline scan", "ticket_id", ticket.ID, "error", err)
	}

	ticket.Status = models.TicketStatusUsed
	ticket.UsedAt = &now
	ticket.UpdatedAt = now

	return models.ScanAccepted(models.ScanSourceOffline, &ticket, &scanLog)
}

// IssueTicket creates a ticket locally and queues it for upload. Used when
// the gate sells or reissues on the spot, with or without connectivity.
func (e *Engine) IssueTicket(ctx context.Context, ticket models.Ticket) (*models.Ticket, error) {
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
	if ticket.Status == "" {
		ticket.Status = models.TicketStatusActive
	}

	now := time.Now().UTC()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now

	if err := e.store.EnqueuePendingTicket(ctx, ticket); err != nil {
		return nil, err
	}

	// Make the fresh ticket scannable at this gate immediately.
	if err := e.store.UpsertCachedTicket(ctx, ticket, now); err != nil {
		slog.Warn("cannot cache locally issued ticket", "ticket_id", ticket.ID, "error", err)
	}

	return &ticket, nil
}

func (e *Engine) mode() string {
	if e.monitor.Online() {
		return models.ScanSourceAuthoritative
	}
	return models.ScanSourceOffline
}
