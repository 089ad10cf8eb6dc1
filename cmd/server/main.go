package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/contentsync-go/api"
	"github.com/yourusername/contentsync-go/api/handlers"
	"github.com/yourusername/contentsync-go/internal/app"
	"github.com/yourusername/contentsync-go/internal/content"
	"github.com/yourusername/contentsync-go/internal/domain"
	"github.com/yourusername/contentsync-go/internal/infrastructure"
	"github.com/yourusername/contentsync-go/pkg/logger"
)

var configPath = flag.String("config", "", "Path to config file (default: search ./configs, ~/.contentsync, /etc/contentsync)")

func main() {
	flag.Parse()

	config, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Session and error events go to per-day files served by the logs API
	multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Logging.LogsDir,
	})
	if err != nil {
		log.Fatal("Failed to initialize session logs", zap.Error(err))
	}
	defer multiLog.Close()

	log.Info("Starting content sync server",
		zap.String("version", handlers.Version),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.String("content_dir", config.Content.ContentDir),
		zap.String("manifest_url", config.Downloader.ManifestURL),
		zap.Bool("schedule", config.Schedule.Enabled))

	if err := createDirectories(config); err != nil {
		log.Fatal("Failed to create directories", zap.Error(err))
	}

	store, err := infrastructure.NewSQLiteStore(config.Store.DatabasePath)
	if err != nil {
		log.Fatal("Failed to initialize store", zap.Error(err))
	}
	defer store.Close()

	notifier := infrastructure.NewNotificationService(&config.Notification, log.Named("notify"))
	downloader := infrastructure.NewHTTPContentDownloader(&config.Downloader, log.Named("http"))
	storage := content.NewOsStorage(config.Content.ContentDir, config.Content.BundleDir)

	manager := app.NewContentManager(
		storage,
		content.NewLayout(config.Content),
		downloader,
		store,
		store,
		notifier,
		log.Named("content"),
		multiLog,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var scheduler *app.UpdateScheduler
	var schedulerState handlers.SchedulerState
	if config.Schedule.Enabled {
		scheduler = app.NewUpdateScheduler(manager, &config.Schedule, log.Named("scheduler"), multiLog)
		if err := scheduler.Start(ctx); err != nil {
			log.Fatal("Failed to start update scheduler", zap.Error(err))
		}
		schedulerState = scheduler
	}

	router := api.SetupRouter(api.RouterDeps{
		Ctx:         ctx,
		Content:     manager,
		Scheduler:   schedulerState,
		Logger:      log.Named("http"),
		MultiLogger: multiLog,
		LogsDir:     config.Logging.LogsDir,
	})

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if scheduler != nil {
		if err := scheduler.Stop(); err != nil {
			log.Error("Error stopping update scheduler", zap.Error(err))
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	// Cancels background downloads started through the API
	cancel()

	log.Info("Server exited")
}

func createDirectories(config *domain.Config) error {
	dirs := []string{
		config.Content.ContentDir,
		config.Logging.LogsDir,
		filepath.Dir(config.Store.DatabasePath),
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
