package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/trails-backend-go/internal/service"
	"github.com/jengzang/trails-backend-go/pkg/response"
)

// SyncHandler exposes the offline reconciler
type SyncHandler struct {
	syncService *service.SyncService
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(syncService *service.SyncService) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
	}
}

// RunSync handles POST /api/v1/sync
func (h *SyncHandler) RunSync(c *gin.Context) {
	report, err := h.syncService.RunOnce(c.Request.Context())
	if err != nil {
		response.ErrorWithData(c, http.StatusServiceUnavailable, err.Error(), report)
		return
	}

	response.Success(c, report)
}

// GetStatus handles GET /api/v1/sync/status
func (h *SyncHandler) GetStatus(c *gin.Context) {
	response.Success(c, h.syncService.Status())
}
