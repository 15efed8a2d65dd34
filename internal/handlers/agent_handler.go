// Package handlers exposes the agent's local HTTP API, consumed by the
// scanner UI running at the gate.
package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"scan-gate/internal/connectivity"
	"scan-gate/internal/scanner"
	"scan-gate/internal/status"
	"scan-gate/internal/store"
	"scan-gate/internal/syncer"
	"scan-gate/models"
)

type AgentHandler struct {
	engine     *scanner.Engine
	store      *store.Store
	monitor    *connectivity.Monitor
	reconciler *syncer.Reconciler
	scheduler  *syncer.Scheduler
}

func NewAgentHandler(engine *scanner.Engine, st *store.Store, monitor *connectivity.Monitor,
	reconciler *syncer.Reconciler, scheduler *syncer.Scheduler,
) *AgentHandler {
	return &AgentHandler{
		engine:     engine,
		store:      st,
		monitor:    monitor,
		reconciler: reconciler,
		scheduler:  scheduler,
	}
}

func (h *AgentHandler) Register(e *echo.Echo) {
	e.POST("/scan", h.Scan)
	e.POST("/tickets", h.IssueTicket)
	e.POST("/sync", h.TriggerSync)
	e.GET("/status", h.Status)
	e.GET("/pending", h.Pending)
	e.GET("/health", h.Health)
}

// Scan runs one decoded payload through the dual-mode validation engine.
func (h *AgentHandler) Scan(c echo.Context) error {
	var req models.ScanRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid scan request",
		})
	}

	resp := h.engine.Process(c.Request().Context(), req)
	if !resp.Success {
		return c.JSON(status.HTTPStatus(resp.Error), resp)
	}
	return c.JSON(http.StatusOK, resp)
}

// IssueTicket creates a ticket locally; it reaches the system of record on
// the next reconciliation.
func (h *AgentHandler) IssueTicket(c echo.Context) error {
	var ticket models.Ticket
	if err := c.Bind(&ticket); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid ticket",
		})
	}

	created, err := h.engine.IssueTicket(c.Request().Context(), ticket)
	if err != nil {
		return c.JSON(status.HTTPStatus(status.CodeStoreUnavail), map[string]string{
			"error": err.Error(),
		})
	}

	return c.JSON(http.StatusCreated, created)
}

// TriggerSync requests an immediate reconciliation pass.
func (h *AgentHandler) TriggerSync(c echo.Context) error {
	if !h.monitor.Online() {
		return c.JSON(http.StatusConflict, map[string]any{
			"triggered": false,
			"reason":    "offline",
		})
	}

	triggered := h.scheduler.TriggerSync()
	reason := ""
	if !triggered {
		reason = "sync already in flight"
	}
	return c.JSON(http.StatusAccepted, map[string]any{
		"triggered": triggered,
		"reason":    reason,
	})
}

func (h *AgentHandler) Status(c echo.Context) error {
	counts, err := h.store.PendingCounts(c.Request().Context())
	if err != nil {
		counts = models.PendingCounts{}
	}

	var lastSync string
	if t := h.reconciler.LastSync(); !t.IsZero() {
		lastSync = t.Format(time.RFC3339)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"online":          h.monitor.Online(),
		"store_available": h.store.Available(),
		"sync_in_flight":  h.scheduler.InFlight(),
		"pending":         counts,
		"last_sync":       lastSync,
	})
}

// Pending lists the queued writes awaiting reconciliation.
func (h *AgentHandler) Pending(c echo.Context) error {
	ctx := c.Request().Context()

	tickets, err := h.store.ListUnsyncedTickets(ctx)
	if err != nil {
		return c.JSON(status.HTTPStatus(status.CodeStoreUnavail), map[string]string{
			"error": err.Error(),
		})
	}
	scanLogs, err := h.store.ListUnsyncedScanLogs(ctx)
	if err != nil {
		return c.JSON(status.HTTPStatus(status.CodeStoreUnavail), map[string]string{
			"error": err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"tickets":   tickets,
		"scan_logs": scanLogs,
	})
}

func (h *AgentHandler) Health(c echo.Context) error {
	if !h.store.Available() {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  "local store unavailable",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}
