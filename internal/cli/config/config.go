// Package config loads the layered CLI configuration: built-in defaults,
// then lendscope.yaml, then LENDSCOPE_* environment variables, then flags.
package config

import (
	"fmt"
	"time"
)

// Built-in defaults for settings without a package-level constant.
const (
	DefaultDriver    = "sqlite"
	DefaultDSN       = "lendscope.db"
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Config is the full CLI configuration.
type Config struct {
	Store  StoreConfig  `koanf:"store"`
	Cache  CacheConfig  `koanf:"cache"`
	Server ServerConfig `koanf:"server"`
	Query  QueryConfig  `koanf:"query"`
	Log    LogConfig    `koanf:"log"`
}

// StoreConfig selects the mart connection.
type StoreConfig struct {
	// Driver is the registered store driver name (sqlite, duckdb, postgres).
	Driver string `koanf:"driver"`
	// DSN is the driver-specific connection string. Read-only enforcement
	// is applied by the driver on connect.
	DSN string `koanf:"dsn"`
}

// CacheConfig tunes the result cache.
type CacheConfig struct {
	Capacity int           `koanf:"capacity"`
	TTL      time.Duration `koanf:"ttl"`
	// Coalesce merges concurrent identical-plan misses into one execution.
	Coalesce bool `koanf:"coalesce"`
}

// ServerConfig tunes the API server.
type ServerConfig struct {
	Addr           string        `koanf:"addr"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// QueryConfig tunes plan compilation and execution.
type QueryConfig struct {
	RowCap          int           `koanf:"row_cap"`
	WindowLimitDays int           `koanf:"window_limit_days"`
	Timeout         time.Duration `koanf:"timeout"`
	Retries         int           `koanf:"retries"`
}

// LogConfig selects the log output.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`
	// Format is text or json.
	Format string `koanf:"format"`
}

// Validate checks the structural validity of the loaded configuration.
// Driver existence is checked later, on connect, where the registry can
// name the available drivers.
func (c *Config) Validate() error {
	if c.Store.Driver == "" {
		return fmt.Errorf("store.driver must not be empty")
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("store.dsn must not be empty")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q is not one of text, json", c.Log.Format)
	}
	if c.Cache.Capacity < 0 {
		return fmt.Errorf("cache.capacity must not be negative")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}
	if c.Query.RowCap <= 0 {
		return fmt.Errorf("query.row_cap must be positive")
	}
	if c.Query.WindowLimitDays <= 0 {
		return fmt.Errorf("query.window_limit_days must be positive")
	}
	if c.Query.Timeout <= 0 {
		return fmt.Errorf("query.timeout must be positive")
	}
	if c.Query.Retries < 0 {
		return fmt.Errorf("query.retries must not be negative")
	}
	return nil
}
