// Package duckdb provides the duckdb mart driver.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lendscope-labs/lendscope/internal/store"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// Store implements store.Store for duckdb files.
type Store struct {
	store.BaseStore
}

// New creates a duckdb store. A nil logger uses a discard logger.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{BaseStore: store.BaseStore{Logger: logger}}
}

// Connect opens the database with read-only access. In-memory databases
// open as-is.
func (s *Store) Connect(ctx context.Context, dsn string) error {
	if dsn == "" {
		return fmt.Errorf("duckdb dsn not specified")
	}

	s.Logger.Debug("connecting to duckdb mart", "dsn", dsn)

	db, err := sql.Open("duckdb", readOnlyDSN(dsn))
	if err != nil {
		return fmt.Errorf("open duckdb connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping duckdb: %w", err)
	}

	s.DB = db
	return nil
}

// Placeholder reports the duckdb positional parameter syntax.
func (s *Store) Placeholder() store.PlaceholderStyle {
	return store.Question
}

// DriverName returns the registry name.
func (s *Store) DriverName() string {
	return "duckdb"
}

// readOnlyDSN appends access_mode=read_only to a file path, leaving
// in-memory and already-parameterized DSNs alone.
func readOnlyDSN(dsn string) string {
	if dsn == "" || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "access_mode=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&access_mode=read_only"
	}
	return dsn + "?access_mode=read_only"
}
