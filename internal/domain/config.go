package domain

import (
	"path/filepath"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Content      ContentConfig      `mapstructure:"content"`
	Downloader   DownloaderConfig   `mapstructure:"downloader"`
	Schedule     ScheduleConfig     `mapstructure:"schedule"`
	Store        StoreConfig        `mapstructure:"store"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// ContentConfig describes the on-disk layout of installed content
type ContentConfig struct {
	ContentDir   string `mapstructure:"content_dir"`   // writable content area
	BundleDir    string `mapstructure:"bundle_dir"`    // read-only assets shipped with the app, optional
	ManifestFile string `mapstructure:"manifest_file"` // relative to content_dir
	TempDir      string `mapstructure:"temp_dir"`      // relative to content_dir
	ArchiveExt   string `mapstructure:"archive_ext"`
}

// ManifestPath returns the absolute path of the committed manifest
func (c ContentConfig) ManifestPath() string {
	return filepath.Join(c.ContentDir, c.ManifestFile)
}

// DownloaderConfig contains HTTP content downloader configuration
type DownloaderConfig struct {
	ManifestURL string            `mapstructure:"manifest_url"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	ChunkSize   int               `mapstructure:"chunk_size"`
	MaxRetries  int               `mapstructure:"max_retries"`
	RetryDelay  time.Duration     `mapstructure:"retry_delay"`
	UserAgent   string            `mapstructure:"user_agent"`
	Headers     map[string]string `mapstructure:"headers"`
}

// ScheduleConfig controls the background update checker
type ScheduleConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
	AutoDownload  bool          `mapstructure:"auto_download"`
	AutoInstall   bool          `mapstructure:"auto_install"`
}

// StoreConfig contains persistence configuration
type StoreConfig struct {
	DatabasePath string `mapstructure:"database_path"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Sound   bool   `mapstructure:"sound"`
	Method  string `mapstructure:"method"` // osascript, notify-send
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
	LogsDir    string `mapstructure:"logs_dir"`    // per-category session logs
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8090,
		},
		Content: ContentConfig{
			ContentDir:   "$HOME/.contentsync/content",
			BundleDir:    "",
			ManifestFile: "ContentManifest.moman",
			TempDir:      "Temp",
			ArchiveExt:   ".packzip",
		},
		Downloader: DownloaderConfig{
			ManifestURL: "",
			Timeout:     5 * time.Minute,
			ChunkSize:   256 * 1024,
			MaxRetries:  3,
			RetryDelay:  2 * time.Second,
			UserAgent:   "contentsync/1.0",
			Headers:     map[string]string{},
		},
		Schedule: ScheduleConfig{
			Enabled:       false,
			CheckInterval: 6 * time.Hour,
			AutoDownload:  true,
			AutoInstall:   true,
		},
		Store: StoreConfig{
			DatabasePath: "$HOME/.contentsync/contentsync.db",
		},
		Notification: NotificationConfig{
			Enabled: false,
			Sound:   false,
			Method:  "notify-send",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
			LogsDir:    "$HOME/.contentsync/logs",
		},
	}
}
