// Package sqlite provides the sqlite mart driver, backed by the pure-Go
// modernc.org/sqlite implementation.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lendscope-labs/lendscope/internal/store"

	_ "modernc.org/sqlite" // sqlite driver
)

// Store implements store.Store for sqlite files.
type Store struct {
	store.BaseStore
}

// New creates a sqlite store. A nil logger uses a discard logger.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{BaseStore: store.BaseStore{Logger: logger}}
}

// Connect opens the database read-only. In-memory databases open as-is
// since a read-only empty database would be useless.
func (s *Store) Connect(ctx context.Context, dsn string) error {
	if dsn == "" {
		return fmt.Errorf("sqlite dsn not specified")
	}

	s.Logger.Debug("connecting to sqlite mart", "dsn", dsn)

	db, err := sql.Open("sqlite", readOnlyDSN(dsn))
	if err != nil {
		return fmt.Errorf("open sqlite connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping sqlite: %w", err)
	}

	s.DB = db
	return nil
}

// Placeholder reports the sqlite positional parameter syntax.
func (s *Store) Placeholder() store.PlaceholderStyle {
	return store.Question
}

// DriverName returns the registry name.
func (s *Store) DriverName() string {
	return "sqlite"
}

// readOnlyDSN appends mode=ro to a file path, leaving in-memory and
// already-parameterized DSNs alone.
func readOnlyDSN(dsn string) string {
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=") {
		return dsn
	}
	if strings.HasPrefix(dsn, "file:") {
		if strings.Contains(dsn, "?") {
			return dsn + "&mode=ro"
		}
		return dsn + "?mode=ro"
	}
	return "file:" + dsn + "?mode=ro"
}
