package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/contentsync-go/internal/domain"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// SchedulerState reports whether background checks are running
type SchedulerState interface {
	IsRunning() bool
}

// StatusProvider returns the current engine status
type StatusProvider interface {
	Status() domain.ContentStatus
}

// HealthHandler handles health check requests
type HealthHandler struct {
	status    StatusProvider
	scheduler SchedulerState // nil when scheduling is disabled
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(status StatusProvider, scheduler SchedulerState) *HealthHandler {
	return &HealthHandler{
		status:    status,
		scheduler: scheduler,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Scheduler struct {
		Enabled bool `json:"enabled"`
		Running bool `json:"running"`
	} `json:"scheduler"`
	Content struct {
		State       domain.SessionState `json:"state"`
		Busy        bool                `json:"busy"`
		CachePurged bool                `json:"cache_purged"`
	} `json:"content"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:  "ok",
		Version: Version,
	}
	if h.scheduler != nil {
		response.Scheduler.Enabled = true
		response.Scheduler.Running = h.scheduler.IsRunning()
	}

	status := h.status.Status()
	response.Content.State = status.State
	response.Content.Busy = status.Busy
	response.Content.CachePurged = status.CachePurged

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.scheduler != nil && !h.scheduler.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "update scheduler not running",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
