package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yourusername/contentsync-go/internal/domain"
)

const pingInterval = 30 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// ProgressMessage is pushed to websocket clients whenever the status changes
type ProgressMessage struct {
	Status   domain.ContentStatus `json:"status"`
	Progress float64              `json:"progress"`
}

// ProgressWebSocketHandler streams engine status to websocket clients
type ProgressWebSocketHandler struct {
	status   StatusProvider
	interval time.Duration
	logger   *zap.Logger
}

// NewProgressWebSocketHandler creates a handler polling status every interval
func NewProgressWebSocketHandler(status StatusProvider, interval time.Duration, log *zap.Logger) *ProgressWebSocketHandler {
	if interval <= 0 {
		interval = time.Second
	}
	return &ProgressWebSocketHandler{
		status:   status,
		interval: interval,
		logger:   log,
	}
}

// HandleWebSocket handles GET /api/v1/content/progress/ws
func (h *ProgressWebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Debug("Progress client connected", zap.String("remote_addr", c.Request.RemoteAddr))

	// Client messages are ignored, reading only detects the close
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var last []byte
	push := func() error {
		status := h.status.Status()
		data, err := json.Marshal(ProgressMessage{Status: status, Progress: status.Progress()})
		if err != nil {
			return err
		}
		if bytes.Equal(data, last) {
			return nil
		}
		last = data
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	if err := push(); err != nil {
		h.logger.Debug("Failed to send initial status", zap.Error(err))
		return
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := push(); err != nil {
				h.logger.Debug("Failed to send status", zap.Error(err))
				return
			}

		case <-pingTicker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}
