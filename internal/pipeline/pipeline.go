// Package pipeline runs a validated plan end to end: template lookup,
// compilation, validation, mart execution with bounded retries, then chart
// and insight derivation fanned out over the immutable dataset. Results are
// cached by plan fingerprint and can be exported while the entry lives.
package pipeline

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/lendscope-labs/lendscope/internal/analytics"
	"github.com/lendscope-labs/lendscope/internal/audit"
	"github.com/lendscope-labs/lendscope/internal/cache"
	"github.com/lendscope-labs/lendscope/internal/catalog"
	"github.com/lendscope-labs/lendscope/internal/chart"
	"github.com/lendscope-labs/lendscope/internal/compile"
	"github.com/lendscope-labs/lendscope/internal/dataset"
	"github.com/lendscope-labs/lendscope/internal/plan"
	"github.com/lendscope-labs/lendscope/internal/store"
	"github.com/lendscope-labs/lendscope/internal/validate"
)

// Default execution knobs.
const (
	DefaultQueryTimeout = 30 * time.Second
	DefaultRetries      = 2
)

// Export formats accepted by Export.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Diagnostics describes how a result was produced.
type Diagnostics struct {
	PlanHash  string `json:"plan_hash"`
	RowCount  int    `json:"row_count"`
	LatencyMS int64  `json:"latency_ms"`
	CacheHit  bool   `json:"cache_hit"`
	Truncated bool   `json:"truncated"`
}

// Result is the full answer for one plan.
type Result struct {
	Dataset     *dataset.Dataset  `json:"dataset"`
	Chart       chart.Spec        `json:"chart"`
	Insight     analytics.Insight `json:"insight"`
	Diagnostics Diagnostics       `json:"diagnostics"`
}

// Config assembles a pipeline. Catalog and Store are required; every other
// field has a working default.
type Config struct {
	Catalog   *catalog.Catalog
	Store     store.Store
	Compiler  *compile.Compiler
	Validator *validate.Validator
	Analytics *analytics.Engine
	Charts    *chart.Builder
	Cache     *cache.Cache
	Audit     *audit.Sink
	Logger    *slog.Logger

	// QueryTimeout bounds one mart round trip, detached from the caller's
	// deadline. Zero means DefaultQueryTimeout.
	QueryTimeout time.Duration

	// Retries is the number of re-attempts after a failed execution.
	// Zero means DefaultRetries; negative disables retries.
	Retries int

	// Coalesce merges concurrent identical-plan misses into one execution.
	Coalesce bool

	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

// Pipeline is safe for concurrent use.
type Pipeline struct {
	catalog   *catalog.Catalog
	store     store.Store
	compiler  *compile.Compiler
	validator *validate.Validator
	analytics *analytics.Engine
	charts    *chart.Builder
	cache     *cache.Cache
	audit     *audit.Sink
	logger    *slog.Logger

	queryTimeout time.Duration
	retries      int
	coalesce     bool
	group        singleflight.Group
	clock        func() time.Time
}

// New wires a pipeline from the config.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("pipeline requires a catalog")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("pipeline requires a store")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Compiler == nil {
		cfg.Compiler = compile.New(compile.Config{Logger: cfg.Logger})
	}
	if cfg.Validator == nil {
		cfg.Validator = validate.New(validate.Config{
			WindowLimitDays: cfg.Compiler.WindowLimitDays(),
			Audit:           cfg.Audit,
			Logger:          cfg.Logger,
		})
	}
	if cfg.Analytics == nil {
		cfg.Analytics = analytics.New(analytics.Config{Logger: cfg.Logger})
	}
	if cfg.Charts == nil {
		cfg.Charts = chart.New(chart.Config{Logger: cfg.Logger})
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	if cfg.Retries == 0 {
		cfg.Retries = DefaultRetries
	} else if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Pipeline{
		catalog:      cfg.Catalog,
		store:        cfg.Store,
		compiler:     cfg.Compiler,
		validator:    cfg.Validator,
		analytics:    cfg.Analytics,
		charts:       cfg.Charts,
		cache:        cfg.Cache,
		audit:        cfg.Audit,
		logger:       cfg.Logger,
		queryTimeout: cfg.QueryTimeout,
		retries:      cfg.Retries,
		coalesce:     cfg.Coalesce,
		clock:        cfg.Clock,
	}, nil
}

// Get serves one plan: from cache when the fingerprint has a live entry,
// otherwise by compiling, validating and executing it. Identical plans
// yield byte-identical results while the cache entry lives.
func (pl *Pipeline) Get(ctx context.Context, p plan.Plan) (Result, error) {
	p = pl.catalog.NormalizePlan(p)

	hash, err := p.Fingerprint()
	if err != nil {
		return Result{}, &PlanError{Err: err}
	}

	if entry, ok := pl.cache.Get(hash); ok {
		pl.audit.QueryExecuted(ctx, hash, p.Summary(), entry.Dataset.RowCount(), 0, true, entry.Dataset.Truncated())
		return Result{
			Dataset: entry.Dataset,
			Chart:   entry.Chart,
			Insight: entry.Insight,
			Diagnostics: Diagnostics{
				PlanHash:  hash,
				RowCount:  entry.Dataset.RowCount(),
				CacheHit:  true,
				Truncated: entry.Dataset.Truncated(),
			},
		}, nil
	}

	if !pl.coalesce {
		return pl.compute(ctx, p, hash)
	}

	v, err, _ := pl.group.Do(hash, func() (any, error) {
		res, err := pl.compute(ctx, p, hash)
		if err != nil {
			return Result{}, err
		}
		return res, nil
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

// compute runs the miss path. The caller's cancellation is deliberately
// detached: an abandoned request still finishes and warms the cache, bounded
// by the pipeline's own query timeout.
func (pl *Pipeline) compute(ctx context.Context, p plan.Plan, hash string) (Result, error) {
	start := pl.clock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pl.queryTimeout)
	defer cancel()

	tpl, err := pl.catalog.Lookup(p.Intent)
	if err != nil {
		pl.audit.PlanRejected(ctx, p.Intent, "unknown_intent")
		return Result{}, &PlanError{Err: err}
	}

	cq, err := pl.compiler.Compile(p, tpl, pl.clock())
	if err != nil {
		var wErr *compile.WindowTooLargeError
		if errors.As(err, &wErr) {
			pl.audit.PlanRejected(ctx, p.Intent, "window_too_large")
			return Result{}, err
		}
		pl.audit.PlanRejected(ctx, p.Intent, "invalid_plan")
		return Result{}, &PlanError{Err: err}
	}

	token, err := pl.validator.Validate(ctx, p, cq)
	if err != nil {
		return Result{}, err
	}
	if !token.Admitted() {
		return Result{}, &PlanError{Err: fmt.Errorf("plan was not admitted")}
	}

	ds, err := pl.execute(ctx, cq)
	if err != nil {
		return Result{}, err
	}

	var (
		spec    chart.Spec
		insight analytics.Insight
		eg      errgroup.Group
	)
	eg.Go(func() error {
		spec = pl.charts.Build(p, ds)
		return nil
	})
	eg.Go(func() error {
		insight = pl.analytics.Narrate(p, ds)
		return nil
	})
	_ = eg.Wait()

	pl.cache.Put(hash, cache.Entry{
		Dataset:   ds,
		Chart:     spec,
		Insight:   insight,
		CreatedAt: pl.clock(),
	})

	latency := pl.clock().Sub(start).Milliseconds()
	pl.audit.QueryExecuted(ctx, hash, p.Summary(), ds.RowCount(), latency, false, ds.Truncated())

	return Result{
		Dataset: ds,
		Chart:   spec,
		Insight: insight,
		Diagnostics: Diagnostics{
			PlanHash:  hash,
			RowCount:  ds.RowCount(),
			LatencyMS: latency,
			Truncated: ds.Truncated(),
		},
	}, nil
}

// execute runs the compiled query with bounded retries. Context expiry stops
// the retry loop immediately.
func (pl *Pipeline) execute(ctx context.Context, cq compile.CompiledQuery) (*dataset.Dataset, error) {
	sqlText, args, err := store.Rebind(cq.SQL, cq.Params, pl.store.Placeholder())
	if err != nil {
		return nil, &PlanError{Err: err}
	}

	attempts := 1 + pl.retries
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		rows, err := pl.store.Query(ctx, sqlText, args...)
		if err == nil {
			ds, err := dataset.FromSQLRows(rows, cq.RowCap)
			_ = rows.Close()
			if err == nil {
				return ds, nil
			}
			lastErr = err
		} else {
			lastErr = err
		}

		pl.logger.Warn("mart query attempt failed",
			"attempt", attempt, "attempts", attempts, "error", lastErr)

		if ctx.Err() != nil || attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	return nil, &ExecutionFailedError{Attempts: attempts, Err: lastErr}
}

// Export renders the cached dataset for a plan hash as csv or json bytes
// plus a content type. Entries that expired or were evicted return
// ErrNotFound; recompute by calling Get again.
func (pl *Pipeline) Export(ctx context.Context, hash, format string) ([]byte, string, error) {
	var contentType string
	switch format {
	case FormatCSV:
		contentType = "text/csv"
	case FormatJSON:
		contentType = "application/json"
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	entry, ok := pl.cache.Get(hash)
	if !ok {
		return nil, "", ErrNotFound
	}

	var payload []byte
	var err error
	switch format {
	case FormatCSV:
		payload, err = renderCSV(entry.Dataset)
	case FormatJSON:
		payload, err = json.MarshalIndent(entry.Dataset.AsRecords(), "", "  ")
	}
	if err != nil {
		return nil, "", fmt.Errorf("render %s export: %w", format, err)
	}

	pl.audit.ExportServed(ctx, hash, format, len(payload))
	return payload, contentType, nil
}

func renderCSV(ds *dataset.Dataset) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	cols := ds.Columns()
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.Name
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	record := make([]string, len(cols))
	for r := 0; r < ds.RowCount(); r++ {
		for c := range cols {
			record[c] = ds.String(r, c)
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
