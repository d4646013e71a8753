package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// LivenessProvider reports whether the capture loop is running
type LivenessProvider interface {
	Running() bool
}

type HealthHandler struct {
	WorkerID string
	Version  string
	loop     LivenessProvider
}

func NewHealthHandler(workerID, version string, loop LivenessProvider) *HealthHandler {
	return &HealthHandler{WorkerID: workerID, Version: version, loop: loop}
}

type HealthResponse struct {
	Status   string `json:"status" example:"healthy"`
	WorkerID string `json:"worker_id" example:"capture-1"`
	Running  bool   `json:"running"`
}

type WorkerInfoResponse struct {
	WorkerID     string   `json:"worker_id" example:"capture-1"`
	Status       string   `json:"status" example:"recording"`
	Version      string   `json:"version" example:"1.0.0"`
	Capabilities []string `json:"capabilities"`
}

// @Summary Health check
// @Description Check if the worker is healthy and the capture loop is running
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	running := h.loop != nil && h.loop.Running()
	if !running {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{
			Status:   "stopped",
			WorkerID: h.WorkerID,
		})
		return
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:   "healthy",
		WorkerID: h.WorkerID,
		Running:  true,
	})
}

// @Summary Worker information
// @Description Get basic worker information and capabilities
// @Tags health
// @Produce json
// @Success 200 {object} WorkerInfoResponse
// @Router / [get]
func (h *HealthHandler) WorkerInfo(c *gin.Context) {
	status := "stopped"
	if h.loop != nil && h.loop.Running() {
		status = "recording"
	}

	c.JSON(http.StatusOK, WorkerInfoResponse{
		WorkerID: h.WorkerID,
		Status:   status,
		Version:  h.Version,
		Capabilities: []string{
			"crop_capture",
			"track_lifecycle",
			"full_frame_capture",
			"health_logging",
		},
	})
}
