// Package commands implements the lendscope subcommands.
package commands

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lendscope-labs/lendscope/internal/allowlist"
	"github.com/lendscope-labs/lendscope/internal/audit"
	"github.com/lendscope-labs/lendscope/internal/cache"
	"github.com/lendscope-labs/lendscope/internal/catalog"
	"github.com/lendscope-labs/lendscope/internal/cli/config"
	"github.com/lendscope-labs/lendscope/internal/compile"
	"github.com/lendscope-labs/lendscope/internal/pipeline"
	"github.com/lendscope-labs/lendscope/internal/store"
	"github.com/lendscope-labs/lendscope/internal/validate"

	// Mart drivers register themselves on import.
	_ "github.com/lendscope-labs/lendscope/internal/store/duckdb"
	_ "github.com/lendscope-labs/lendscope/internal/store/postgres"
	_ "github.com/lendscope-labs/lendscope/internal/store/sqlite"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Catalog  *catalog.Catalog
	Store    store.Store
	Source   allowlist.Source
	Pipeline *pipeline.Pipeline
}

// NewCommandContext wires the full query pipeline against the configured
// mart. Returns the context and a cleanup function that must be called
// (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cmdCtx, err := NewCommandContextWithoutStore(cmd)
	if err != nil {
		return nil, nil, err
	}
	cfg, logger := cmdCtx.Cfg, cmdCtx.Logger

	st, err := store.New(cfg.Store.Driver, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := st.Connect(cmd.Context(), cfg.Store.DSN); err != nil {
		return nil, nil, fmt.Errorf("connect %s mart: %w", cfg.Store.Driver, err)
	}
	cleanup := func() { _ = st.Close() }

	sink := audit.New(logger)

	resultCache, err := cache.New(cache.Config{
		Capacity: cfg.Cache.Capacity,
		TTL:      cfg.Cache.TTL,
		Logger:   logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	source := allowlist.NewStoreSource(allowlist.Config{
		DB:     storeQuerier{st},
		Logger: logger,
	})

	pl, err := pipeline.New(pipeline.Config{
		Catalog: cmdCtx.Catalog,
		Store:   st,
		Compiler: compile.New(compile.Config{
			WindowLimitDays: cfg.Query.WindowLimitDays,
			RowCap:          cfg.Query.RowCap,
			Logger:          logger,
		}),
		Validator: validate.New(validate.Config{
			Source:          source,
			WindowLimitDays: cfg.Query.WindowLimitDays,
			Audit:           sink,
			Logger:          logger,
		}),
		Cache:        resultCache,
		Audit:        sink,
		Logger:       logger,
		QueryTimeout: cfg.Query.Timeout,
		Retries:      pipelineRetries(cfg.Query.Retries),
		Coalesce:     cfg.Cache.Coalesce,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	cmdCtx.Store = st
	cmdCtx.Source = source
	cmdCtx.Pipeline = pl
	return cmdCtx, cleanup, nil
}

// NewCommandContextWithoutStore creates a CommandContext without a mart
// connection. Useful for commands that only read the catalog.
func NewCommandContextWithoutStore(cmd *cobra.Command) (*CommandContext, error) {
	cfg := currentConfig()
	logger := config.GetLogger(cmd.Context())

	cat, err := catalog.New(logger)
	if err != nil {
		return nil, err
	}

	return &CommandContext{Cfg: cfg, Logger: logger, Catalog: cat}, nil
}

// currentConfig returns the configuration loaded by the root command, or
// the built-in defaults when a command runs standalone (tests).
func currentConfig() *config.Config {
	if cfg := config.Current(); cfg != nil {
		return cfg
	}
	return config.Default()
}

// pipelineRetries maps the config retry count onto the pipeline's
// convention, where zero selects the default and a negative value
// disables retries.
func pipelineRetries(n int) int {
	if n == 0 {
		return -1
	}
	return n
}

// storeQuerier adapts a store.Store to the allow-list source's Querier.
type storeQuerier struct {
	st store.Store
}

func (q storeQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.st.Query(ctx, query, args...)
}
