package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/contentsync-go/api/handlers"
	"github.com/yourusername/contentsync-go/api/middleware"
	"github.com/yourusername/contentsync-go/pkg/logger"
)

// progressInterval is how often websocket clients are polled for changes
const progressInterval = 500 * time.Millisecond

// RouterDeps are the services the HTTP API is built on
type RouterDeps struct {
	// Ctx bounds background work started by requests
	Ctx         context.Context
	Content     handlers.ContentService
	Scheduler   handlers.SchedulerState // nil when scheduling is disabled
	Logger      *zap.Logger
	MultiLogger *logger.MultiLogger
	LogsDir     string
}

// SetupRouter sets up the HTTP router
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log, deps.MultiLogger))
	router.Use(middleware.Recovery(log, deps.MultiLogger))

	healthHandler := handlers.NewHealthHandler(deps.Content, deps.Scheduler)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/api/v1")
	{
		contentHandler := handlers.NewContentHandler(deps.Ctx, deps.Content, log)
		progressHandler := handlers.NewProgressWebSocketHandler(deps.Content, progressInterval, log)
		content := v1.Group("/content")
		{
			content.POST("/check", contentHandler.Check)
			content.POST("/download", contentHandler.Download)
			content.POST("/install", contentHandler.Install)
			content.POST("/update", contentHandler.Update)
			content.GET("/status", contentHandler.Status)
			content.GET("/sessions", contentHandler.ListSessions)
			content.GET("/sessions/:id", contentHandler.GetSession)
			content.GET("/progress/ws", progressHandler.HandleWebSocket)
		}

		if deps.LogsDir != "" {
			logHandler := handlers.NewLogHandler(deps.LogsDir)
			logs := v1.Group("/logs")
			{
				logs.GET("/categories", logHandler.GetCategories)
				logs.GET("/:category", logHandler.GetLogs)
				logs.GET("/:category/export", logHandler.ExportLogs)
			}
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"error": "not found"})
	})

	return router
}
