// Package postgres provides the postgres mart driver, connecting through
// pgx with read-only sessions.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/lendscope-labs/lendscope/internal/store"
)

// Store implements store.Store for postgres.
type Store struct {
	store.BaseStore
}

// New creates a postgres store. A nil logger uses a discard logger.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{BaseStore: store.BaseStore{Logger: logger}}
}

// Connect opens the database. Accepts both URL and key=value DSNs. Every
// session runs with default_transaction_read_only=on, independent of the
// role's grants.
func (s *Store) Connect(ctx context.Context, dsn string) error {
	cfg, err := readOnlyConfig(dsn)
	if err != nil {
		return err
	}

	s.Logger.Debug("connecting to postgres mart",
		"host", cfg.Host, "database", cfg.Database)

	db := stdlib.OpenDB(*cfg)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}

	s.DB = db
	return nil
}

// Placeholder reports the postgres positional parameter syntax.
func (s *Store) Placeholder() store.PlaceholderStyle {
	return store.Dollar
}

// DriverName returns the registry name.
func (s *Store) DriverName() string {
	return "postgres"
}

// readOnlyConfig parses a DSN and forces read-only sessions.
func readOnlyConfig(dsn string) (*pgx.ConnConfig, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn not specified")
	}
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.RuntimeParams["default_transaction_read_only"] = "on"
	return cfg, nil
}
