package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/contentsync-go/internal/domain"
	"github.com/yourusername/contentsync-go/pkg/logger"
)

// UpdateRunner is the part of ContentManager the scheduler drives
type UpdateRunner interface {
	CheckForUpdates(ctx context.Context) (domain.CheckResult, error)
	RunUpdateCycle(ctx context.Context, autoInstall bool) (*domain.CycleReport, error)
}

// UpdateScheduler periodically checks for content updates in the background
type UpdateScheduler struct {
	runner      UpdateRunner
	config      *domain.ScheduleConfig
	logger      *zap.Logger
	multiLogger *logger.MultiLogger
	mu          sync.RWMutex
	running     bool
	stopChan    chan struct{}
	workerWg    sync.WaitGroup
	lastRun     time.Time
	lastReport  *domain.CycleReport
}

// NewUpdateScheduler creates a new update scheduler
func NewUpdateScheduler(
	runner UpdateRunner,
	config *domain.ScheduleConfig,
	log *zap.Logger,
	multiLogger *logger.MultiLogger,
) *UpdateScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &UpdateScheduler{
		runner:      runner,
		config:      config,
		logger:      log,
		multiLogger: multiLogger,
	}
}

// Start runs one cycle immediately and then one per check interval
func (s *UpdateScheduler) Start(ctx context.Context) error {
	if s.config.CheckInterval <= 0 {
		return fmt.Errorf("invalid check interval: %s", s.config.CheckInterval)
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("update scheduler already running")
	}
	s.running = true
	s.stopChan = make(chan struct{})
	stop := s.stopChan
	s.mu.Unlock()

	s.logEvent("scheduler_started", zap.Duration("interval", s.config.CheckInterval))

	s.workerWg.Add(1)
	go s.loop(ctx, stop)

	return nil
}

// Stop stops the scheduler and waits for a running cycle to finish
func (s *UpdateScheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("update scheduler not running")
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.workerWg.Wait()
	s.logEvent("scheduler_stopped")

	return nil
}

// IsRunning returns whether the scheduler is running
func (s *UpdateScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// LastRun returns when the last cycle finished and what it did
func (s *UpdateScheduler) LastRun() (time.Time, *domain.CycleReport) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun, s.lastReport
}

func (s *UpdateScheduler) loop(ctx context.Context, stop <-chan struct{}) {
	defer s.workerWg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce performs a single scheduled cycle
func (s *UpdateScheduler) runOnce(ctx context.Context) {
	report, err := s.cycle(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrSessionBusy) {
			s.logger.Info("Skipping scheduled update, another session is running")
			return
		}
		s.logger.Error("Scheduled update failed", zap.Error(err))
		if s.multiLogger != nil {
			s.multiLogger.LogAppError("Scheduled update failed", zap.Error(err))
		}
		return
	}

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastReport = report
	s.mu.Unlock()

	s.logEvent("scheduled_cycle_completed",
		zap.String("session_id", report.SessionID),
		zap.String("check", string(report.Check)),
		zap.String("download", string(report.Download)),
		zap.String("install", string(report.Install)))
}

func (s *UpdateScheduler) cycle(ctx context.Context) (*domain.CycleReport, error) {
	if !s.config.AutoDownload {
		result, err := s.runner.CheckForUpdates(ctx)
		if err != nil {
			return nil, err
		}
		return &domain.CycleReport{Check: result}, nil
	}
	return s.runner.RunUpdateCycle(ctx, s.config.AutoInstall)
}

func (s *UpdateScheduler) logEvent(event string, fields ...zap.Field) {
	s.logger.Info("Scheduler event", append(fields, zap.String("event", event))...)
	if s.multiLogger != nil {
		s.multiLogger.LogSessionEvent(event, fields...)
	}
}
