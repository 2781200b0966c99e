package handler

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/trails-backend-go/internal/gpx"
	"github.com/jengzang/trails-backend-go/internal/middleware"
	"github.com/jengzang/trails-backend-go/internal/models"
	"github.com/jengzang/trails-backend-go/internal/service"
	"github.com/jengzang/trails-backend-go/pkg/response"
)

// TrailHandler handles HTTP requests for stored trails
type TrailHandler struct {
	trailService *service.TrailService
	gpxEpsilon   float64
}

// NewTrailHandler creates a new trail handler. gpxEpsilon is the export
// simplification tolerance in meters.
func NewTrailHandler(trailService *service.TrailService, gpxEpsilon float64) *TrailHandler {
	return &TrailHandler{
		trailService: trailService,
		gpxEpsilon:   gpxEpsilon,
	}
}

// ImportResult is returned by POST /trails/import
type ImportResult struct {
	Trail  *models.Trail `json:"trail"`
	Source string        `json:"source"`
}

// GetTrails handles GET /api/v1/trails
func (h *TrailHandler) GetTrails(c *gin.Context) {
	var filter models.TrailFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, "Invalid query parameters")
		return
	}

	result, err := h.trailService.ListTrails(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, result)
}

// GetTrailByID handles GET /api/v1/trails/:id
func (h *TrailHandler) GetTrailByID(c *gin.Context) {
	trail, err := h.trailService.GetTrailByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if trail == nil {
		response.NotFound(c, "Trail not found")
		return
	}

	response.Success(c, trail)
}

// UpdateTrail handles PUT /api/v1/trails/:id
func (h *TrailHandler) UpdateTrail(c *gin.Context) {
	var update models.TrailUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	trail, err := h.trailService.UpdateTrail(c.Request.Context(), c.Param("id"), update)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, trail)
}

// DeleteTrail handles DELETE /api/v1/trails/:id
func (h *TrailHandler) DeleteTrail(c *gin.Context) {
	if err := h.trailService.DeleteTrail(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, nil)
}

// ClearTrails handles DELETE /api/v1/trails
func (h *TrailHandler) ClearTrails(c *gin.Context) {
	if err := h.trailService.ClearAllTrails(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, nil)
}

// ExportGPX handles GET /api/v1/trails/:id/gpx
func (h *TrailHandler) ExportGPX(c *gin.Context) {
	trail, err := h.trailService.GetTrailByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if trail == nil {
		response.NotFound(c, "Trail not found")
		return
	}

	data, err := gpx.Export(trail, h.gpxEpsilon)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.gpx"`, trail.ID))
	c.Data(http.StatusOK, "application/gpx+xml", data)
}

// ImportGPX handles POST /api/v1/trails/import. The document is read from
// the multipart "file" field, or from the raw body otherwise.
func (h *TrailHandler) ImportGPX(c *gin.Context) {
	var r io.Reader = c.Request.Body
	if file, err := c.FormFile("file"); err == nil {
		f, err := file.Open()
		if err != nil {
			response.BadRequest(c, "Failed to open uploaded file")
			return
		}
		defer f.Close()
		r = f
	}

	trail, err := gpx.Import(r)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	trail.UserID = middleware.OwnerID(c)

	saved, outcome, err := h.trailService.Save(c.Request.Context(), trail)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, ImportResult{Trail: saved, Source: string(outcome.Source)})
}
