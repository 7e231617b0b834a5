package storage

import (
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// kvEntry is one row of the kv_entries table
type kvEntry struct {
	Key       string `gorm:"column:kv_key;primaryKey;size:128"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// TableName pins the table name independent of gorm's naming strategy
func (kvEntry) TableName() string { return "kv_entries" }

// SQLiteStore persists state in a single-table SQLite database.
// Useful when the agent shares a data directory with other Tabla tooling.
type SQLiteStore struct {
	watchers
	db     *gorm.DB
	mu     sync.Mutex
	closed bool
}

// NewSQLiteStore opens (or creates) the database at path. Use ":memory:" for tests.
func NewSQLiteStore(path string, log logger.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = GetLogger()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log.Module("sqlite"), slowQueryThreshold),
	})
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open SQLite database: %w", err)).
			Component("storage").
			Category(errors.CategoryStorage).
			Context("operation", "open_sqlite_store").
			Build()
	}

	// a single connection keeps :memory: databases alive and serializes writers
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&kvEntry{}); err != nil {
		return nil, errors.New(fmt.Errorf("failed to migrate kv_entries: %w", err)).
			Component("storage").
			Category(errors.CategoryStorage).
			Context("operation", "migrate_sqlite_store").
			Build()
	}

	return &SQLiteStore{db: db}, nil
}

// Get returns the value for key. Read errors are logged and reported as missing.
func (s *SQLiteStore) Get(key string) (string, bool) {
	var entry kvEntry
	err := s.db.Where("kv_key = ?", key).Take(&entry).Error
	switch {
	case err == nil:
		return entry.Value, true
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "", false
	default:
		GetLogger().Warn("kv read failed", logger.String("key", key), logger.Error(err))
		return "", false
	}
}

// Set upserts value under key
func (s *SQLiteStore) Set(key, value string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	old, existed := s.Get(key)
	if existed && old == value {
		s.mu.Unlock()
		return nil
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kv_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&kvEntry{Key: key, Value: value}).Error
	s.mu.Unlock()

	if err != nil {
		return errors.New(fmt.Errorf("failed to store %s: %w", key, err)).
			Component("storage").
			Category(errors.CategoryStorage).
			Context("operation", "sqlite_set").
			Build()
	}

	s.notify(Change{Key: key, OldValue: old, Value: value})
	return nil
}

// Delete removes key
func (s *SQLiteStore) Delete(key string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	old, existed := s.Get(key)
	if !existed {
		s.mu.Unlock()
		return nil
	}

	err := s.db.Where("kv_key = ?", key).Delete(&kvEntry{}).Error
	s.mu.Unlock()

	if err != nil {
		return errors.New(fmt.Errorf("failed to delete %s: %w", key, err)).
			Component("storage").
			Category(errors.CategoryStorage).
			Context("operation", "sqlite_delete").
			Build()
	}

	s.notify(Change{Key: key, OldValue: old, Deleted: true})
	return nil
}

// Watch registers fn for changes
func (s *SQLiteStore) Watch(fn func(Change)) func() {
	return s.add(fn)
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
