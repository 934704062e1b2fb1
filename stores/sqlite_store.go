package stores

import (
	"fmt"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SQLiteStore implements ConversationStore for SQLite databases
type SQLiteStore struct {
	gormStore
	path   string
	config *StoreConfig
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(config *StoreConfig) (*SQLiteStore, error) {
	if config.Type != "sqlite" {
		return nil, fmt.Errorf("invalid store type for SQLite store: %s", config.Type)
	}

	store := &SQLiteStore{
		path:   config.Connection,
		config: config,
	}
	store.open = func() (gorm.Dialector, error) {
		return sqlite.Open(store.dsn()), nil
	}

	if err := store.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite database: %w", err)
	}

	return store, nil
}

// NewSQLiteStoreSimple creates a new SQLite store with just a file path
func NewSQLiteStoreSimple(dbPath string) (*SQLiteStore, error) {
	config := NewStoreConfig("sqlite", dbPath)
	return NewSQLiteStore(config)
}

// Connect establishes a connection to the SQLite database
func (s *SQLiteStore) Connect() error {
	if err := s.connect(gormConfig(s.config)); err != nil {
		return fmt.Errorf("failed to connect to SQLite database: %w", err)
	}

	// A single writer avoids "database is locked" when the relay persists
	// an assistant reply while a request handler writes the next turn.
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(1)
	return nil
}

// dsn adds a busy timeout unless the path already carries query parameters.
func (s *SQLiteStore) dsn() string {
	if s.path == ":memory:" || strings.Contains(s.path, "?") {
		return s.path
	}
	return s.path + "?_busy_timeout=5000"
}
