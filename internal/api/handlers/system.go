package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"capture-worker-go/internal/models"
)

// HealthSampler reads host and accelerator health
type HealthSampler interface {
	Sample(ctx context.Context) models.HealthSample
}

// SystemHandler handles system-related endpoints
type SystemHandler struct {
	WorkerID  string
	sampler   HealthSampler
	startTime time.Time
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(workerID string, sampler HealthSampler) *SystemHandler {
	return &SystemHandler{
		WorkerID:  workerID,
		sampler:   sampler,
		startTime: time.Now(),
	}
}

// @Summary Get system stats
// @Description Get process statistics together with a host health sample
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /system/stats [get]
func (h *SystemHandler) GetStats(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := gin.H{
		"worker_id":  h.WorkerID,
		"uptime_sec": int64(time.Since(h.startTime).Seconds()),
		"memory_mb":  m.Alloc / 1024 / 1024,
		"cpu_cores":  runtime.NumCPU(),
		"goroutines": runtime.NumGoroutine(),
		"go_version": runtime.Version(),
	}
	if h.sampler != nil {
		stats["health"] = h.sampler.Sample(c.Request.Context())
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"stats":     stats,
		"timestamp": time.Now().Unix(),
	})
}
