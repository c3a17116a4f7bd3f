// Package allowlist provides the per-dimension segment values the
// validator accepts in filters. The live source snapshots distinct values
// from the mart and refreshes lazily; a static source serves fixed values
// for offline use and tests.
package allowlist

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lendscope-labs/lendscope/internal/catalog"
)

// DefaultTTL is how long a dimension snapshot stays fresh.
const DefaultTTL = 15 * time.Minute

// Source provides the currently allowed values for a segment dimension.
type Source interface {
	Values(ctx context.Context, dimension string) ([]string, error)
}

// Static is a fixed in-memory source.
type Static struct {
	values map[string][]string
}

var _ Source = (*Static)(nil)

// NewStatic creates a source over a fixed dimension→values map.
func NewStatic(values map[string][]string) *Static {
	copied := make(map[string][]string, len(values))
	for dim, vals := range values {
		copied[dim] = append([]string(nil), vals...)
	}
	return &Static{values: copied}
}

// NewSeedSource creates a static source over the bootstrap allow-lists.
func NewSeedSource() *Static {
	return NewStatic(catalog.SeedAllowLists())
}

// Values returns the fixed values for a dimension.
func (s *Static) Values(_ context.Context, dimension string) ([]string, error) {
	vals, ok := s.values[dimension]
	if !ok {
		return nil, fmt.Errorf("unknown dimension %q", dimension)
	}
	return append([]string(nil), vals...), nil
}

// Querier is the slice of database/sql needed to observe distinct values.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Config holds the settings for a store-backed source.
type Config struct {
	DB Querier

	// Table is the table distinct values are read from. Defaults to the
	// acquisition events table.
	Table string

	// TTL is the snapshot freshness horizon. Zero means DefaultTTL.
	TTL time.Duration

	Logger *slog.Logger
}

// StoreSource serves distinct values observed in the mart. Snapshots
// refresh lazily on access once stale; there is no background refresh, so
// values can lag the mart by up to one TTL. A failed refresh serves the
// previous snapshot, or the bootstrap seed when none exists yet.
type StoreSource struct {
	db     Querier
	table  string
	ttl    time.Duration
	logger *slog.Logger

	mu        sync.Mutex
	snapshots map[string]snapshot
}

var _ Source = (*StoreSource)(nil)

type snapshot struct {
	values    []string
	refreshed time.Time
}

// NewStoreSource creates a store-backed source, applying defaults for zero
// config values.
func NewStoreSource(cfg Config) *StoreSource {
	if cfg.Table == "" {
		cfg.Table = catalog.TableEvents
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &StoreSource{
		db:        cfg.DB,
		table:     cfg.Table,
		ttl:       cfg.TTL,
		logger:    cfg.Logger,
		snapshots: make(map[string]snapshot),
	}
}

// Values returns the allowed values for a dimension, refreshing the
// snapshot when stale.
func (s *StoreSource) Values(ctx context.Context, dimension string) ([]string, error) {
	if !catalog.KnownDimension(dimension) {
		return nil, fmt.Errorf("unknown dimension %q", dimension)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.snapshots[dimension]
	if ok && time.Since(snap.refreshed) < s.ttl {
		return append([]string(nil), snap.values...), nil
	}

	vals, err := s.queryDistinct(ctx, dimension)
	if err != nil {
		s.logger.Warn("allow-list refresh failed, serving previous values",
			"dimension", dimension, "error", err)
		if ok {
			return append([]string(nil), snap.values...), nil
		}
		return catalog.SeedAllowList(dimension), nil
	}

	s.snapshots[dimension] = snapshot{values: vals, refreshed: time.Now()}
	return append([]string(nil), vals...), nil
}

// queryDistinct reads the current distinct values for one dimension. The
// dimension is vocabulary-checked by the caller before it reaches the
// query text.
func (s *StoreSource) queryDistinct(ctx context.Context, dimension string) ([]string, error) {
	query := fmt.Sprintf(
		"SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL ORDER BY %s",
		dimension, s.table, dimension, dimension,
	)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query distinct %s: %w", dimension, err)
	}
	defer func() { _ = rows.Close() }()

	var vals []string
	for rows.Next() {
		var raw any
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan distinct %s: %w", dimension, err)
		}
		switch v := raw.(type) {
		case []byte:
			vals = append(vals, string(v))
		default:
			vals = append(vals, fmt.Sprint(v))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate distinct %s: %w", dimension, err)
	}
	return vals, nil
}
