package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/contentsync-go/internal/domain"
)

// ContentService is the update engine exposed over HTTP
type ContentService interface {
	CheckForUpdates(ctx context.Context) (domain.CheckResult, error)
	DownloadUpdates(ctx context.Context) (domain.Result, error)
	InstallUpdates(ctx context.Context) (domain.Result, error)
	RunUpdateCycle(ctx context.Context, autoInstall bool) (*domain.CycleReport, error)
	Status() domain.ContentStatus
	GetSession(id string) (*domain.UpdateSession, error)
	ListSessions(limit int) ([]*domain.UpdateSession, error)
	GetStats() (*domain.SessionStats, error)
}

// ContentHandler handles content update requests
type ContentHandler struct {
	service ContentService
	baseCtx context.Context
	logger  *zap.Logger
}

// NewContentHandler creates a new content handler. Background downloads run
// under baseCtx so they outlive the request but stop on shutdown.
func NewContentHandler(baseCtx context.Context, service ContentService, logger *zap.Logger) *ContentHandler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &ContentHandler{
		service: service,
		baseCtx: baseCtx,
		logger:  logger,
	}
}

// CheckResponse is returned by POST /api/v1/content/check
type CheckResponse struct {
	Result          domain.CheckResult   `json:"result"`
	UpdateAvailable bool                 `json:"update_available"`
	Blocking        bool                 `json:"blocking"`
	Status          domain.ContentStatus `json:"status"`
}

// StepResponse is returned by the download and install endpoints
type StepResponse struct {
	Result domain.Result        `json:"result"`
	Status domain.ContentStatus `json:"status"`
}

// Check handles POST /api/v1/content/check
func (h *ContentHandler) Check(c *gin.Context) {
	result, err := h.service.CheckForUpdates(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, CheckResponse{
		Result:          result,
		UpdateAvailable: result.UpdateAvailable(),
		Blocking:        result.IsBlocking(),
		Status:          h.service.Status(),
	})
}

// Download handles POST /api/v1/content/download. Without wait=true the
// download runs in the background and 202 is returned immediately.
func (h *ContentHandler) Download(c *gin.Context) {
	if c.Query("wait") == "true" {
		result, err := h.service.DownloadUpdates(c.Request.Context())
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, StepResponse{Result: result, Status: h.service.Status()})
		return
	}

	if h.service.Status().Busy {
		h.respondError(c, domain.ErrSessionBusy)
		return
	}

	go func() {
		result, err := h.service.DownloadUpdates(h.baseCtx)
		if err != nil {
			h.logger.Warn("Background download not started", zap.Error(err))
			return
		}
		h.logger.Info("Background download finished", zap.String("result", string(result)))
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message": "download started",
		"status":  h.service.Status(),
	})
}

// Install handles POST /api/v1/content/install
func (h *ContentHandler) Install(c *gin.Context) {
	result, err := h.service.InstallUpdates(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, StepResponse{Result: result, Status: h.service.Status()})
}

// Update handles POST /api/v1/content/update
func (h *ContentHandler) Update(c *gin.Context) {
	autoInstall := c.DefaultQuery("install", "true") != "false"

	report, err := h.service.RunUpdateCycle(c.Request.Context(), autoInstall)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"report": report,
		"status": h.service.Status(),
	})
}

// Status handles GET /api/v1/content/status
func (h *ContentHandler) Status(c *gin.Context) {
	status := h.service.Status()
	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"progress": status.Progress(),
	})
}

// ListSessions handles GET /api/v1/content/sessions
func (h *ContentHandler) ListSessions(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	if limit > 500 {
		limit = 500
	}

	sessions, err := h.service.ListSessions(limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	stats, err := h.service.GetStats()
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":    len(sessions),
		"sessions": sessions,
		"stats":    stats,
	})
}

// GetSession handles GET /api/v1/content/sessions/:id
func (h *ContentHandler) GetSession(c *gin.Context) {
	session, err := h.service.GetSession(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *ContentHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
