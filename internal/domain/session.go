package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionState represents where an update session is in the
// check -> download -> install cycle
type SessionState string

const (
	StateIdle              SessionState = "idle"
	StateChecking          SessionState = "checking"
	StateUpdateAvailable   SessionState = "update_available"
	StateNoUpdate          SessionState = "no_update"
	StateCheckFailed       SessionState = "check_failed"
	StateDownloading       SessionState = "downloading"
	StateDownloadSucceeded SessionState = "download_succeeded"
	StateDownloadFailed    SessionState = "download_failed"
	StateInstalling        SessionState = "installing"
	StateInstallSucceeded  SessionState = "install_succeeded"
	StateInstallFailed     SessionState = "install_failed"
)

// UpdateSession records one check/download/install cycle
type UpdateSession struct {
	ID               string       `json:"id" gorm:"primaryKey"`
	State            SessionState `json:"state" gorm:"not null;index"`
	CheckResult      CheckResult  `json:"check_result,omitempty"`
	DownloadResult   Result       `json:"download_result,omitempty"`
	InstallResult    Result       `json:"install_result,omitempty"`
	PackagesToFetch  int          `json:"packages_to_fetch"`
	PackagesToRemove int          `json:"packages_to_remove"`
	BytesToDownload  uint64       `json:"bytes_to_download"`
	BytesDownloaded  uint64       `json:"bytes_downloaded"`
	ErrorMessage     string       `json:"error_message,omitempty"`
	CreatedAt        time.Time    `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time    `json:"updated_at" gorm:"autoUpdateTime"`
	CompletedAt      *time.Time   `json:"completed_at,omitempty"`
}

// TableName specifies the table name for GORM
func (UpdateSession) TableName() string {
	return "update_sessions"
}

// NewUpdateSession creates a session in the checking state
func NewUpdateSession() *UpdateSession {
	now := time.Now()
	return &UpdateSession{
		ID:        uuid.New().String(),
		State:     StateChecking,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkChecked records the outcome of the manifest comparison
func (s *UpdateSession) MarkChecked(result CheckResult, plan Plan) {
	s.CheckResult = result
	s.PackagesToFetch = len(plan.ToDownload)
	s.PackagesToRemove = len(plan.ToRemove)
	s.BytesToDownload = plan.BytesToDownload
	switch {
	case result.UpdateAvailable():
		s.State = StateUpdateAvailable
	case result == CheckNotAvailable:
		s.State = StateNoUpdate
		s.complete()
	default:
		s.State = StateCheckFailed
		s.complete()
	}
	s.UpdatedAt = time.Now()
}

// MarkDownloading marks the session as fetching packages
func (s *UpdateSession) MarkDownloading() {
	s.State = StateDownloading
	s.UpdatedAt = time.Now()
}

// MarkDownloaded records the outcome of the package downloads
func (s *UpdateSession) MarkDownloaded(result Result, bytesDownloaded uint64, err error) {
	s.DownloadResult = result
	s.BytesDownloaded = bytesDownloaded
	if result == ResultSucceeded {
		s.State = StateDownloadSucceeded
	} else {
		s.State = StateDownloadFailed
		s.setError(err)
		s.complete()
	}
	s.UpdatedAt = time.Now()
}

// MarkInstalling marks the session as committing content
func (s *UpdateSession) MarkInstalling() {
	s.State = StateInstalling
	s.UpdatedAt = time.Now()
}

// MarkInstalled records the outcome of the install step
func (s *UpdateSession) MarkInstalled(result Result, err error) {
	s.InstallResult = result
	if result == ResultSucceeded {
		s.State = StateInstallSucceeded
	} else {
		s.State = StateInstallFailed
		s.setError(err)
	}
	s.complete()
	s.UpdatedAt = time.Now()
}

// MarkFailed records an error without changing the state
func (s *UpdateSession) MarkFailed(err error) {
	s.setError(err)
	s.UpdatedAt = time.Now()
}

// IsTerminal checks if the session can make no further progress
func (s *UpdateSession) IsTerminal() bool {
	switch s.State {
	case StateNoUpdate, StateCheckFailed, StateDownloadFailed, StateInstallSucceeded, StateInstallFailed:
		return true
	}
	return false
}

func (s *UpdateSession) setError(err error) {
	if err != nil {
		s.ErrorMessage = err.Error()
	}
}

func (s *UpdateSession) complete() {
	now := time.Now()
	s.CompletedAt = &now
}
