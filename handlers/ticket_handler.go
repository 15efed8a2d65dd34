package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"scan-gate/internal/status"
	"scan-gate/models"
	"scan-gate/services"
)

type TicketHandler struct {
	app           *pocketbase.PocketBase
	ticketService *services.TicketService
}

func NewTicketHandler(app *pocketbase.PocketBase, ticketService *services.TicketService) *TicketHandler {
	return &TicketHandler{
		app:           app,
		ticketService: ticketService,
	}
}

// List is the bulk cache-refresh surface the agents pull their replica
// from.
func (h *TicketHandler) List(e *core.RequestEvent) error {
	query := models.TicketQuery{
		Status:      e.Request.URL.Query().Get("status"),
		IncludeLogs: e.Request.URL.Query().Get("include_logs") == "true",
	}
	if v, err := strconv.Atoi(e.Request.URL.Query().Get("limit")); err == nil {
		query.Limit = v
	}
	if v, err := strconv.Atoi(e.Request.URL.Query().Get("offset")); err == nil {
		query.Offset = v
	}

	tickets, err := h.ticketService.List(e.Request.Context(), query)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to list tickets", err)
	}

	return e.JSON(http.StatusOK, tickets)
}

// Issue creates a ticket directly on the system of record.
func (h *TicketHandler) Issue(e *core.RequestEvent) error {
	var ticket models.Ticket
	if err := e.BindBody(&ticket); err != nil {
		return apis.NewBadRequestError("Invalid ticket", err)
	}

	created, err := h.ticketService.Issue(e.Request.Context(), ticket)
	if err != nil {
		var scanErr *status.ScanError
		if errors.As(err, &scanErr) {
			return apis.NewBadRequestError(scanErr.Message, nil)
		}
		return apis.NewApiError(http.StatusInternalServerError, "Failed to issue ticket", err)
	}

	return e.JSON(http.StatusCreated, created)
}
