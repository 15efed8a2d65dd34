package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"scan-gate/internal/status"
	"scan-gate/models"
	"scan-gate/security"
	"scan-gate/services"
)

type ScanHandler struct {
	app         *pocketbase.PocketBase
	scanService *services.ScanService
	limiter     *security.RateLimiter
}

func NewScanHandler(app *pocketbase.PocketBase, scanService *services.ScanService, limiter *security.RateLimiter) *ScanHandler {
	return &ScanHandler{
		app:         app,
		scanService: scanService,
		limiter:     limiter,
	}
}

// Scan validates a presented qr code against the system of record.
// Rejections come back with the matching conflict/not-found status code and
// a machine-readable error in the body.
func (h *ScanHandler) Scan(e *core.RequestEvent) error {
	var req models.ScanRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	if err := h.limiter.AllowScan(e.Request.Context(), req.DeviceInfo, e.Request.RemoteAddr); err != nil {
		return e.JSON(http.StatusTooManyRequests, models.ScanRejected(
			models.ScanSourceAuthoritative, status.CodeRateLimited,
			"too many scan attempts from this device"))
	}

	resp, err := h.scanService.Validate(e.Request.Context(), req)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Scan validation failed", err)
	}

	if !resp.Success {
		return e.JSON(status.HTTPStatus(resp.Error), resp)
	}
	return e.JSON(http.StatusOK, resp)
}
