// Package store provides read-only access to the analytics mart through a
// driver registry. Concrete drivers live in subdirectories and register
// themselves on import.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// PlaceholderStyle is the positional parameter syntax of a driver.
type PlaceholderStyle int

const (
	// Question uses ? placeholders (sqlite, duckdb).
	Question PlaceholderStyle = iota
	// Dollar uses $1..$N placeholders (postgres).
	Dollar
)

// Store is a read-only connection to the mart.
type Store interface {
	// Connect opens the connection. The driver enforces read-only access
	// at the connection level.
	Connect(ctx context.Context, dsn string) error

	// Close releases the connection.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error

	// Query runs a read query with driver-style positional args.
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)

	// Placeholder reports the driver's positional parameter syntax.
	Placeholder() PlaceholderStyle

	// DriverName returns the registry name of the driver.
	DriverName() string
}

// BaseStore provides the shared database/sql plumbing for drivers. Embed
// it in concrete store implementations.
type BaseStore struct {
	DB     *sql.DB
	Logger *slog.Logger
}

// Close closes the database connection.
func (b *BaseStore) Close() error {
	if b.DB == nil {
		return nil
	}
	if b.Logger != nil {
		b.Logger.Debug("closing mart connection")
	}
	return b.DB.Close()
}

// Ping verifies the connection.
func (b *BaseStore) Ping(ctx context.Context) error {
	if b.DB == nil {
		return fmt.Errorf("mart connection not established")
	}
	return b.DB.PingContext(ctx)
}

// Query runs a read query.
func (b *BaseStore) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("mart connection not established")
	}
	//nolint:rowserrcheck // rows.Err() is checked by the caller after iteration
	rows, err := b.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query mart: %w", err)
	}
	return rows, nil
}

// Connected reports whether the connection is established.
func (b *BaseStore) Connected() bool {
	return b.DB != nil
}
