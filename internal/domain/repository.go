package domain

// SessionRepository defines the interface for update session persistence
type SessionRepository interface {
	// Create creates a new session
	Create(session *UpdateSession) error

	// Update updates an existing session
	Update(session *UpdateSession) error

	// FindByID finds a session by ID
	FindByID(id string) (*UpdateSession, error)

	// FindRecent returns the most recent sessions, newest first
	FindRecent(limit int) ([]*UpdateSession, error)

	// GetStats returns session statistics
	GetStats() (*SessionStats, error)
}

// KeyValueStore persists small flags that must survive restarts
type KeyValueStore interface {
	// Contains reports whether the key has been set
	Contains(key string) (bool, error)

	// GetBool returns the stored flag, or def when the key is absent
	GetBool(key string, def bool) (bool, error)

	// SetBool stores a flag
	SetBool(key string, value bool) error

	// GetString returns the stored value, or def when the key is absent
	GetString(key, def string) (string, error)

	// SetString stores a value
	SetString(key, value string) error
}

// SessionStats represents update session statistics
type SessionStats struct {
	Total          int64 `json:"total"`
	Installed      int64 `json:"installed"`
	NoUpdate       int64 `json:"no_update"`
	CheckFailed    int64 `json:"check_failed"`
	DownloadFailed int64 `json:"download_failed"`
	InstallFailed  int64 `json:"install_failed"`
	Available      int64 `json:"available"`
	Downloaded     int64 `json:"downloaded"`
	InProgress     int64 `json:"in_progress"`
}
