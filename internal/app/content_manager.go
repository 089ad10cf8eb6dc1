package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/yourusername/contentsync-go/internal/content"
	"github.com/yourusername/contentsync-go/internal/domain"
	"github.com/yourusername/contentsync-go/pkg/logger"
)

// ContentManager runs the check -> download -> install cycle for downloadable
// content. Only one operation runs at a time; overlapping calls are rejected
// with domain.ErrSessionBusy.
type ContentManager struct {
	storage     *content.Storage
	layout      content.Layout
	downloader  domain.ContentDownloader
	planner     *content.Planner
	pipeline    *content.Pipeline
	installer   *content.Installer
	store       domain.KeyValueStore
	sessions    domain.SessionRepository
	notifier    domain.Notifier
	logger      *zap.Logger
	multiLogger *logger.MultiLogger

	busy atomic.Bool

	mu             sync.RWMutex
	session        *domain.UpdateSession
	serverManifest *domain.Manifest
	plan           domain.Plan
	cachePurged    bool
	lastError      string
	installedAt    string
}

// NewContentManager creates a new content manager. notifier and multiLogger may be nil.
func NewContentManager(
	storage *content.Storage,
	layout content.Layout,
	downloader domain.ContentDownloader,
	store domain.KeyValueStore,
	sessions domain.SessionRepository,
	notifier domain.Notifier,
	log *zap.Logger,
	multiLogger *logger.MultiLogger,
) *ContentManager {
	if log == nil {
		log = zap.NewNop()
	}

	planner := content.NewPlanner(content.NewStorageChecker(storage), log.Named("planner"))
	planner.SetReserved(layout.Reserved()...)

	m := &ContentManager{
		storage:     storage,
		layout:      layout,
		downloader:  downloader,
		planner:     planner,
		pipeline:    content.NewPipeline(downloader, storage, layout, log.Named("pipeline")),
		installer:   content.NewInstaller(storage, layout, store, log.Named("installer")),
		store:       store,
		sessions:    sessions,
		notifier:    notifier,
		logger:      log,
		multiLogger: multiLogger,
	}
	m.installedAt = m.lastInstallTime()
	return m
}

// CheckForUpdates fetches the server manifest and plans an update against the
// local one. Any plan left by an earlier check is discarded.
func (m *ContentManager) CheckForUpdates(ctx context.Context) (domain.CheckResult, error) {
	if !m.busy.CompareAndSwap(false, true) {
		return "", domain.ErrSessionBusy
	}
	defer m.busy.Store(false)

	return m.check(ctx), nil
}

// DownloadUpdates fetches every package planned by the last check
func (m *ContentManager) DownloadUpdates(ctx context.Context) (domain.Result, error) {
	if !m.busy.CompareAndSwap(false, true) {
		return "", domain.ErrSessionBusy
	}
	defer m.busy.Store(false)

	return m.download(ctx), nil
}

// InstallUpdates commits the downloaded packages and the server manifest.
// Session state is cleared whatever the outcome.
func (m *ContentManager) InstallUpdates(ctx context.Context) (domain.Result, error) {
	if !m.busy.CompareAndSwap(false, true) {
		return "", domain.ErrSessionBusy
	}
	defer m.busy.Store(false)

	return m.install(ctx), nil
}

// RunUpdateCycle checks for updates and, when one is available, downloads and
// installs it without releasing the session in between.
func (m *ContentManager) RunUpdateCycle(ctx context.Context, autoInstall bool) (*domain.CycleReport, error) {
	if !m.busy.CompareAndSwap(false, true) {
		return nil, domain.ErrSessionBusy
	}
	defer m.busy.Store(false)

	report := &domain.CycleReport{Check: m.check(ctx)}
	report.SessionID = m.sessionID()
	if !report.Check.UpdateAvailable() {
		return report, nil
	}

	report.Download = m.download(ctx)
	if report.Download != domain.ResultSucceeded || !autoInstall {
		return report, nil
	}

	report.Install = m.install(ctx)
	return report, nil
}

// Status returns a snapshot of the engine state
func (m *ContentManager) Status() domain.ContentStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := domain.ContentStatus{
		State:           domain.StateIdle,
		Busy:            m.busy.Load(),
		CachePurged:     m.cachePurged,
		PendingPackages: make([]string, 0, len(m.plan.ToDownload)),
		PendingRemovals: append([]string{}, m.plan.ToRemove...),
		BytesToDownload: m.plan.BytesToDownload,
		LastError:       m.lastError,
		InstalledAt:     m.installedAt,
	}
	for _, pkg := range m.plan.ToDownload {
		status.PendingPackages = append(status.PendingPackages, pkg.ID)
	}

	if s := m.session; s != nil {
		status.State = s.State
		status.SessionID = s.ID
		status.LastCheck = s.CheckResult
		status.LastDownload = s.DownloadResult
		status.LastInstall = s.InstallResult
		status.BytesDownloaded = s.BytesDownloaded
		status.UpdatedAt = s.UpdatedAt
		if s.State == domain.StateDownloading {
			status.BytesDownloaded = m.pipeline.Progress()
		}
	}

	return status
}

// GetSession retrieves a recorded session by ID
func (m *ContentManager) GetSession(id string) (*domain.UpdateSession, error) {
	return m.sessions.FindByID(id)
}

// ListSessions returns the most recent sessions
func (m *ContentManager) ListSessions(limit int) ([]*domain.UpdateSession, error) {
	return m.sessions.FindRecent(limit)
}

// GetStats returns session statistics
func (m *ContentManager) GetStats() (*domain.SessionStats, error) {
	return m.sessions.GetStats()
}

func (m *ContentManager) check(ctx context.Context) domain.CheckResult {
	session := domain.NewUpdateSession()

	m.mu.Lock()
	m.session = session
	m.serverManifest = nil
	m.plan = domain.Plan{}
	m.lastError = ""
	m.mu.Unlock()
	m.pipeline.Reset()

	if err := m.sessions.Create(session); err != nil {
		m.logger.Warn("Failed to record session", zap.String("session_id", session.ID), zap.Error(err))
	}
	m.logSessionEvent("check_started", session)

	local := m.loadLocalManifest()
	cachePurged := local == nil && m.hasCachedContent()

	m.mu.Lock()
	m.cachePurged = cachePurged
	m.mu.Unlock()

	data, err := m.fetchManifest(ctx)
	if err != nil {
		result := domain.CheckFailed
		if cachePurged {
			result = domain.CheckFailedBlocking
		}
		m.logger.Error("Failed to download content manifest",
			zap.String("session_id", session.ID),
			zap.Bool("cache_purged", cachePurged),
			zap.Error(err))
		m.logAppError("manifest download failed", session, err)
		m.finishCheck(result, domain.Plan{}, nil, err)
		m.notifyFailed("check", err)
		return result
	}

	manifest, err := content.ParseManifest(data)
	if err != nil {
		m.logger.Error("Server manifest could not be parsed",
			zap.String("session_id", session.ID),
			zap.Int("bytes", len(data)),
			zap.Error(err))
		m.logAppError("manifest parse failed", session, err)
		m.finishCheck(domain.CheckNotAvailable, domain.Plan{}, nil, err)
		return domain.CheckNotAvailable
	}

	if !manifest.DLCEnabled {
		m.logger.Info("Downloadable content is disabled by the server", zap.String("session_id", session.ID))
		m.finishCheck(domain.CheckNotAvailable, domain.Plan{}, nil, nil)
		return domain.CheckNotAvailable
	}

	plan := m.planner.BuildPlan(manifest, local)
	result := content.Classify(plan, cachePurged)

	m.logger.Info("Update check completed",
		zap.String("session_id", session.ID),
		zap.String("result", string(result)),
		zap.Int("to_download", len(plan.ToDownload)),
		zap.Int("to_remove", len(plan.ToRemove)),
		zap.Uint64("bytes", plan.BytesToDownload))

	if !result.UpdateAvailable() {
		m.finishCheck(result, plan, nil, nil)
		return result
	}

	m.finishCheck(result, plan, manifest, nil)
	if m.notifier != nil {
		m.notifier.NotifyUpdateAvailable(len(plan.ToDownload), plan.BytesToDownload, result.IsBlocking())
	}
	return result
}

// finishCheck stores the plan of an available update and records the outcome
func (m *ContentManager) finishCheck(result domain.CheckResult, plan domain.Plan, manifest *domain.Manifest, err error) {
	m.transition(func(s *domain.UpdateSession) {
		if manifest != nil {
			m.plan = plan
			m.serverManifest = manifest
		}
		s.MarkChecked(result, plan)
		if err != nil {
			s.MarkFailed(err)
			m.lastError = err.Error()
		}
	})
	m.logSessionEvent("check_completed", m.currentSession(), zap.String("result", string(result)))
}

func (m *ContentManager) download(ctx context.Context) domain.Result {
	m.mu.RLock()
	packages := m.plan.ToDownload
	active := m.session != nil && !m.session.IsTerminal()
	m.mu.RUnlock()

	if len(packages) == 0 {
		m.logger.Debug("No packages to download")
		if active {
			m.transition(func(s *domain.UpdateSession) {
				s.MarkDownloaded(domain.ResultSucceeded, 0, nil)
			})
		}
		return domain.ResultSucceeded
	}

	m.transition(func(s *domain.UpdateSession) {
		s.MarkDownloading()
	})
	m.logSessionEvent("download_started", m.currentSession(), zap.Int("packages", len(packages)))

	m.pipeline.Reset()
	err := m.pipeline.Run(ctx, packages)

	result := domain.ResultSucceeded
	if err != nil {
		result = domain.ResultFailed
		m.logAppError("download failed", m.currentSession(), err)
		m.notifyFailed("download", err)
	}

	m.transition(func(s *domain.UpdateSession) {
		s.MarkDownloaded(result, m.pipeline.Downloaded(), err)
		if err != nil {
			m.lastError = err.Error()
		}
	})
	m.logSessionEvent("download_completed", m.currentSession(),
		zap.String("result", string(result)),
		zap.Uint64("bytes", m.pipeline.Downloaded()))

	return result
}

func (m *ContentManager) install(ctx context.Context) domain.Result {
	m.mu.RLock()
	plan := m.plan
	manifest := m.serverManifest
	downloaded := m.session != nil && m.session.DownloadResult == domain.ResultSucceeded
	m.mu.RUnlock()

	var err error
	switch {
	case ctx.Err() != nil:
		err = ctx.Err()
	case manifest == nil:
		err = domain.ErrNothingToInstall
	case len(plan.ToDownload) > 0 && !downloaded:
		err = domain.ErrDownloadIncomplete
	}

	if err == nil {
		m.transition(func(s *domain.UpdateSession) {
			s.MarkInstalling()
		})
		m.logSessionEvent("install_started", m.currentSession())
		err = m.installer.Install(plan.ToDownload, plan.ToRemove, manifest)
	}

	result := domain.ResultSucceeded
	if err != nil {
		result = domain.ResultFailed
		m.logger.Error("Content install failed", zap.Error(err))
		m.logAppError("install failed", m.currentSession(), err)
		m.notifyFailed("install", err)
	} else if m.notifier != nil {
		m.notifier.NotifyUpdateInstalled(len(plan.ToDownload), len(plan.ToRemove))
	}

	installedAt := ""
	if err == nil {
		installedAt = m.lastInstallTime()
	}

	m.transition(func(s *domain.UpdateSession) {
		s.MarkInstalled(result, err)
		m.plan = domain.Plan{}
		m.serverManifest = nil
		if err != nil {
			m.lastError = err.Error()
		} else {
			m.cachePurged = false
			m.installedAt = installedAt
		}
	})
	m.logSessionEvent("install_completed", m.currentSession(), zap.String("result", string(result)))

	return result
}

// transition applies fn to the current session under the lock and persists it.
// Without a session fn still runs against a throwaway one.
func (m *ContentManager) transition(fn func(s *domain.UpdateSession)) {
	m.mu.Lock()
	session := m.session
	if session == nil {
		session = domain.NewUpdateSession()
		m.session = session
	}
	fn(session)
	snapshot := *session
	m.mu.Unlock()

	if err := m.sessions.Update(&snapshot); err != nil {
		m.logger.Warn("Failed to persist session",
			zap.String("session_id", snapshot.ID),
			zap.String("state", string(snapshot.State)),
			zap.Error(err))
	}
}

func (m *ContentManager) currentSession() *domain.UpdateSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil
	}
	snapshot := *m.session
	return &snapshot
}

func (m *ContentManager) sessionID() string {
	if s := m.currentSession(); s != nil {
		return s.ID
	}
	return ""
}

// loadLocalManifest returns the committed manifest, or nil when there is none
// or it cannot be used
func (m *ContentManager) loadLocalManifest() *domain.Manifest {
	data, err := m.storage.ReadFile(content.LocationContent, m.layout.ManifestFile)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("Failed to read local manifest", zap.Error(err))
		}
		return nil
	}

	manifest, err := content.ParseManifest(data)
	if err != nil {
		m.logger.Warn("Local manifest is unusable", zap.Error(err))
		return nil
	}
	return manifest
}

func (m *ContentManager) hasCachedContent() bool {
	if m.store == nil {
		return false
	}
	ok, err := m.store.Contains(content.HasCachedContentKey)
	if err != nil {
		m.logger.Warn("Failed to read cached content flag", zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	cached, err := m.store.GetBool(content.HasCachedContentKey, false)
	if err != nil {
		m.logger.Warn("Failed to read cached content flag", zap.Error(err))
		return false
	}
	return cached
}

// lastInstallTime returns the recorded time of the last committed install
func (m *ContentManager) lastInstallTime() string {
	if m.store == nil {
		return ""
	}
	at, err := m.store.GetString(content.InstalledAtKey, "")
	if err != nil {
		m.logger.Warn("Failed to read install time", zap.Error(err))
		return ""
	}
	return at
}

// fetchManifest collects the manifest stream into one document
func (m *ContentManager) fetchManifest(ctx context.Context) ([]byte, error) {
	events, err := m.downloader.DownloadManifest(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDownloadStartFailed, err)
	}

	var buf bytes.Buffer
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil, errors.New("manifest stream closed before completion")
			}
			switch ev.Result {
			case domain.EventFlushed:
				buf.Write(ev.Data)
			case domain.EventSucceeded:
				buf.Write(ev.Data)
				return buf.Bytes(), nil
			default:
				if ev.Err != nil {
					return nil, ev.Err
				}
				return nil, errors.New("manifest download failed")
			}
		}
	}
}

func (m *ContentManager) notifyFailed(stage string, err error) {
	if m.notifier != nil {
		m.notifier.NotifyUpdateFailed(stage, err)
	}
}

func (m *ContentManager) logSessionEvent(event string, session *domain.UpdateSession, fields ...zap.Field) {
	if m.multiLogger == nil || session == nil {
		return
	}
	fields = append(fields,
		zap.String("session_id", session.ID),
		zap.String("state", string(session.State)))
	m.multiLogger.LogSessionEvent(event, fields...)
}

func (m *ContentManager) logAppError(msg string, session *domain.UpdateSession, err error) {
	if m.multiLogger == nil {
		return
	}
	fields := []zap.Field{zap.Error(err)}
	if session != nil {
		fields = append(fields, zap.String("session_id", session.ID))
	}
	m.multiLogger.LogAppError(msg, fields...)
}
