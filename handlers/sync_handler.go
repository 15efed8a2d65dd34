package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"scan-gate/models"
	"scan-gate/services"
)

type SyncHandler struct {
	app          *pocketbase.PocketBase
	mergeService *services.MergeService
}

func NewSyncHandler(app *pocketbase.PocketBase, mergeService *services.MergeService) *SyncHandler {
	return &SyncHandler{
		app:          app,
		mergeService: mergeService,
	}
}

// MergeBatch accepts a device's pending writes and returns the merge
// report. Per-item failures are inside the report; only a storage fault
// fails the request as a whole, in which case nothing was pruned anywhere.
func (h *SyncHandler) MergeBatch(e *core.RequestEvent) error {
	var req models.SyncBatchRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid batch", err)
	}

	report, err := h.mergeService.ProcessBatch(e.Request.Context(), req)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Merge failed", err)
	}

	return e.JSON(http.StatusOK, report)
}
