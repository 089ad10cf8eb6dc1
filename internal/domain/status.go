package domain

import "time"

// ContentStatus is a point-in-time view of the update engine
type ContentStatus struct {
	State           SessionState `json:"state"`
	SessionID       string       `json:"session_id,omitempty"`
	Busy            bool         `json:"busy"`
	CachePurged     bool         `json:"cache_purged"`
	PendingPackages []string     `json:"pending_packages"`
	PendingRemovals []string     `json:"pending_removals"`
	BytesToDownload uint64       `json:"bytes_to_download"`
	BytesDownloaded uint64       `json:"bytes_downloaded"`
	LastCheck       CheckResult  `json:"last_check,omitempty"`
	LastDownload    Result       `json:"last_download,omitempty"`
	LastInstall     Result       `json:"last_install,omitempty"`
	LastError       string       `json:"last_error,omitempty"`
	InstalledAt     string       `json:"installed_at,omitempty"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Progress returns the download completion ratio in [0, 1]
func (s ContentStatus) Progress() float64 {
	if s.BytesToDownload == 0 {
		return 0
	}
	p := float64(s.BytesDownloaded) / float64(s.BytesToDownload)
	if p > 1 {
		return 1
	}
	return p
}

// CycleReport summarizes a check, download and install run
type CycleReport struct {
	SessionID string      `json:"session_id"`
	Check     CheckResult `json:"check"`
	Download  Result      `json:"download,omitempty"`
	Install   Result      `json:"install,omitempty"`
}
