package app

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/yourusername/contentsync-go/internal/domain"
)

// EnvPrefix prefixes environment overrides, e.g. CONTENTSYNC_DOWNLOADER_MANIFEST_URL
const EnvPrefix = "CONTENTSYNC"

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	registerDefaults(v, config)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.contentsync")
		v.AddConfigPath("/etc/contentsync")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// registerDefaults makes every key known to viper so AutomaticEnv can
// override values that are absent from the config file.
func registerDefaults(v *viper.Viper, config *domain.Config) {
	visitSettings(config, v.SetDefault)
}

// visitSettings calls set for every configuration key
func visitSettings(config *domain.Config, set func(key string, value interface{})) {
	set("server.host", config.Server.Host)
	set("server.port", config.Server.Port)

	set("content.content_dir", config.Content.ContentDir)
	set("content.bundle_dir", config.Content.BundleDir)
	set("content.manifest_file", config.Content.ManifestFile)
	set("content.temp_dir", config.Content.TempDir)
	set("content.archive_ext", config.Content.ArchiveExt)

	set("downloader.manifest_url", config.Downloader.ManifestURL)
	set("downloader.timeout", config.Downloader.Timeout)
	set("downloader.chunk_size", config.Downloader.ChunkSize)
	set("downloader.max_retries", config.Downloader.MaxRetries)
	set("downloader.retry_delay", config.Downloader.RetryDelay)
	set("downloader.user_agent", config.Downloader.UserAgent)
	set("downloader.headers", config.Downloader.Headers)

	set("schedule.enabled", config.Schedule.Enabled)
	set("schedule.check_interval", config.Schedule.CheckInterval)
	set("schedule.auto_download", config.Schedule.AutoDownload)
	set("schedule.auto_install", config.Schedule.AutoInstall)

	set("store.database_path", config.Store.DatabasePath)

	set("notification.enabled", config.Notification.Enabled)
	set("notification.sound", config.Notification.Sound)
	set("notification.method", config.Notification.Method)

	set("logging.level", config.Logging.Level)
	set("logging.format", config.Logging.Format)
	set("logging.output_path", config.Logging.OutputPath)
	set("logging.logs_dir", config.Logging.LogsDir)
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Content.ContentDir = expandPath(config.Content.ContentDir)
	config.Content.BundleDir = expandPath(config.Content.BundleDir)
	config.Store.DatabasePath = expandPath(config.Store.DatabasePath)
	config.Logging.LogsDir = expandPath(config.Logging.LogsDir)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Content.ContentDir == "" {
		return fmt.Errorf("content directory not configured")
	}

	if config.Content.ManifestFile == "" || strings.ContainsAny(config.Content.ManifestFile, `/\`) {
		return fmt.Errorf("manifest file must be a plain file name: %q", config.Content.ManifestFile)
	}

	if config.Content.TempDir == "" || filepath.IsAbs(config.Content.TempDir) {
		return fmt.Errorf("temp dir must be relative to the content directory: %q", config.Content.TempDir)
	}

	if config.Downloader.ManifestURL != "" {
		u, err := url.Parse(config.Downloader.ManifestURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("invalid manifest url: %q", config.Downloader.ManifestURL)
		}
	}

	if config.Downloader.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	if config.Downloader.ChunkSize < 0 {
		return fmt.Errorf("chunk size cannot be negative")
	}

	if config.Schedule.Enabled && config.Schedule.CheckInterval <= 0 {
		return fmt.Errorf("schedule check interval must be positive")
	}

	if config.Store.DatabasePath == "" {
		return fmt.Errorf("store database path not configured")
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *domain.Config, path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	visitSettings(config, func(key string, value interface{}) {
		if d, ok := value.(time.Duration); ok {
			value = d.String()
		}
		v.Set(key, value)
	})

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
