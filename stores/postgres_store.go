package stores

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// PostgresStore implements ConversationStore for PostgreSQL databases
type PostgresStore struct {
	gormStore
	dsn    string
	config *StoreConfig
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(config *StoreConfig) (*PostgresStore, error) {
	if config.Type != "postgres" {
		return nil, fmt.Errorf("invalid store type for PostgreSQL store: %s", config.Type)
	}

	store := &PostgresStore{
		dsn:    config.Connection,
		config: config,
	}
	store.open = func() (gorm.Dialector, error) {
		if store.dsn == "" {
			return nil, fmt.Errorf("postgres DSN is empty")
		}
		return postgres.Open(store.dsn), nil
	}

	if err := store.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	return store, nil
}

// Connect establishes a connection to the PostgreSQL database
func (s *PostgresStore) Connect() error {
	if err := s.connect(gormConfig(s.config)); err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}
	return nil
}
