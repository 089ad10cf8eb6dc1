package infrastructure

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/yourusername/contentsync-go/internal/domain"
)

// KVEntry is a persisted key/value pair
type KVEntry struct {
	Key       string    `gorm:"primaryKey;column:entry_key"`
	Value     string    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (KVEntry) TableName() string {
	return "kv_entries"
}

// SQLiteStore implements SessionRepository and KeyValueStore using SQLite
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (and migrates) the database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&domain.UpdateSession{}, &KVEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Create creates a new session
func (s *SQLiteStore) Create(session *domain.UpdateSession) error {
	return s.db.Create(session).Error
}

// Update updates an existing session
func (s *SQLiteStore) Update(session *domain.UpdateSession) error {
	return s.db.Save(session).Error
}

// FindByID finds a session by ID
func (s *SQLiteStore) FindByID(id string) (*domain.UpdateSession, error) {
	var session domain.UpdateSession
	err := s.db.First(&session, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

// FindRecent returns the latest sessions, newest first
func (s *SQLiteStore) FindRecent(limit int) ([]*domain.UpdateSession, error) {
	var sessions []*domain.UpdateSession
	query := s.db.Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&sessions).Error
	return sessions, err
}

// GetStats returns session statistics
func (s *SQLiteStore) GetStats() (*domain.SessionStats, error) {
	stats := &domain.SessionStats{}

	if err := s.db.Model(&domain.UpdateSession{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	stateCounts := []struct {
		State domain.SessionState
		Count int64
	}{}

	if err := s.db.Model(&domain.UpdateSession{}).
		Select("state, count(*) as count").
		Group("state").
		Scan(&stateCounts).Error; err != nil {
		return nil, err
	}

	for _, sc := range stateCounts {
		switch sc.State {
		case domain.StateInstallSucceeded:
			stats.Installed = sc.Count
		case domain.StateNoUpdate:
			stats.NoUpdate = sc.Count
		case domain.StateCheckFailed:
			stats.CheckFailed = sc.Count
		case domain.StateDownloadFailed:
			stats.DownloadFailed = sc.Count
		case domain.StateInstallFailed:
			stats.InstallFailed = sc.Count
		case domain.StateUpdateAvailable:
			stats.Available = sc.Count
		case domain.StateDownloadSucceeded:
			stats.Downloaded = sc.Count
		default:
			stats.InProgress += sc.Count
		}
	}

	return stats, nil
}

// Contains reports whether key has been stored
func (s *SQLiteStore) Contains(key string) (bool, error) {
	var count int64
	err := s.db.Model(&KVEntry{}).Where("entry_key = ?", key).Count(&count).Error
	return count > 0, err
}

// GetString returns the value stored under key, or def when absent
func (s *SQLiteStore) GetString(key, def string) (string, error) {
	var entry KVEntry
	err := s.db.First(&entry, "entry_key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return def, nil
		}
		return def, err
	}
	return entry.Value, nil
}

// SetString stores value under key
func (s *SQLiteStore) SetString(key, value string) error {
	entry := KVEntry{Key: key, Value: value, UpdatedAt: time.Now()}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}

// GetBool returns the flag stored under key, or def when absent
func (s *SQLiteStore) GetBool(key string, def bool) (bool, error) {
	raw, err := s.GetString(key, "")
	if err != nil || raw == "" {
		return def, err
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return def, fmt.Errorf("stored value for %s is not a bool: %w", key, err)
	}
	return value, nil
}

// SetBool stores a flag under key
func (s *SQLiteStore) SetBool(key string, value bool) error {
	return s.SetString(key, strconv.FormatBool(value))
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
