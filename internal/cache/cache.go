// Package cache keeps recently computed result triples keyed by plan
// fingerprint. Entries age out after a TTL and the least recently used
// entry is evicted at capacity. A nil *Cache is a valid always-miss cache.
package cache

import (
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lendscope-labs/lendscope/internal/analytics"
	"github.com/lendscope-labs/lendscope/internal/chart"
	"github.com/lendscope-labs/lendscope/internal/dataset"
)

// Defaults applied by New for zero config values.
const (
	DefaultCapacity = 100
	DefaultTTL      = 600 * time.Second
)

// Entry is one cached result triple.
type Entry struct {
	Dataset   *dataset.Dataset
	Chart     chart.Spec
	Insight   analytics.Insight
	CreatedAt time.Time
}

// Config holds the cache settings.
type Config struct {
	Capacity int
	TTL      time.Duration
	Logger   *slog.Logger
	// Clock overrides time.Now for expiry checks.
	Clock func() time.Time
}

// Cache is a TTL-bounded LRU of result triples. Safe for concurrent use.
type Cache struct {
	entries *lru.Cache[string, Entry]
	ttl     time.Duration
	clock   func() time.Time
	logger  *slog.Logger
}

// New creates a cache from config, applying defaults for zero values.
func New(cfg Config) (*Cache, error) {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	entries, err := lru.New[string, Entry](cfg.Capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{
		entries: entries,
		ttl:     cfg.TTL,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
	}, nil
}

// Get returns the live entry for a fingerprint. Expired entries are
// removed on access and report a miss.
func (c *Cache) Get(fingerprint string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	e, ok := c.entries.Get(fingerprint)
	if !ok {
		return Entry{}, false
	}
	if c.clock().Sub(e.CreatedAt) > c.ttl {
		c.entries.Remove(fingerprint)
		c.logger.Debug("cache entry expired", "fingerprint", fingerprint)
		return Entry{}, false
	}
	return e, true
}

// Put stores an entry, stamping CreatedAt when unset.
func (c *Cache) Put(fingerprint string, e Entry) {
	if c == nil {
		return
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = c.clock()
	}
	c.entries.Add(fingerprint, e)
}

// Len returns the number of entries, expired ones included.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

// Purge drops every entry.
func (c *Cache) Purge() {
	if c == nil {
		return
	}
	c.entries.Purge()
}
