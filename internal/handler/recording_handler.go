package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/trails-backend-go/internal/middleware"
	"github.com/jengzang/trails-backend-go/internal/models"
	"github.com/jengzang/trails-backend-go/internal/service"
	"github.com/jengzang/trails-backend-go/pkg/response"
)

// RecordingHandler handles HTTP requests for the recording lifecycle
type RecordingHandler struct {
	recordingService *service.RecordingService
}

// NewRecordingHandler creates a new recording handler
func NewRecordingHandler(recordingService *service.RecordingService) *RecordingHandler {
	return &RecordingHandler{
		recordingService: recordingService,
	}
}

// StartRequest is the body of POST /recording/start
type StartRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// PointsResult reports how many posted samples were recorded
type PointsResult struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

// Start handles POST /api/v1/recording/start
func (h *RecordingHandler) Start(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, "Invalid request body")
		return
	}

	opts := []service.StartOption{service.WithDescription(req.Description)}
	if owner := middleware.OwnerID(c); owner != "" {
		opts = append(opts, service.WithOwner(owner))
	}
	if len(req.Tags) > 0 {
		opts = append(opts, service.WithTags(req.Tags...))
	}

	started, err := h.recordingService.StartRecording(c.Request.Context(), req.Name, opts...)
	if err != nil {
		respondError(c, err)
		return
	}
	if !started {
		response.Conflict(c, "A recording is already in progress")
		return
	}

	response.Success(c, h.recordingService.GetRecordingState())
}

// AddPoints handles POST /api/v1/recording/points. The body is either a
// single sample or an array of samples in time order.
func (h *RecordingHandler) AddPoints(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	var points []models.LocationPoint
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &points)
	} else {
		var p models.LocationPoint
		err = json.Unmarshal(trimmed, &p)
		points = []models.LocationPoint{p}
	}
	if err != nil {
		response.BadRequest(c, "Invalid location point")
		return
	}

	var result PointsResult
	for _, p := range points {
		if h.recordingService.AddLocationPoint(p) {
			result.Accepted++
		} else {
			result.Rejected++
		}
	}

	response.Success(c, result)
}

// Pause handles POST /api/v1/recording/pause
func (h *RecordingHandler) Pause(c *gin.Context) {
	if !h.recordingService.PauseRecording() {
		response.Conflict(c, "No recording to pause")
		return
	}
	response.Success(c, h.recordingService.GetRecordingState())
}

// Resume handles POST /api/v1/recording/resume
func (h *RecordingHandler) Resume(c *gin.Context) {
	resumed, err := h.recordingService.ResumeRecording(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if !resumed {
		response.Conflict(c, "No paused recording to resume")
		return
	}
	response.Success(c, h.recordingService.GetRecordingState())
}

// Stop handles POST /api/v1/recording/stop
func (h *RecordingHandler) Stop(c *gin.Context) {
	trail, err := h.recordingService.StopRecording(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if trail == nil {
		response.Conflict(c, "No active recording")
		return
	}
	response.Success(c, trail)
}

// State handles GET /api/v1/recording/state
func (h *RecordingHandler) State(c *gin.Context) {
	response.Success(c, h.recordingService.GetRecordingState())
}
