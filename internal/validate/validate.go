// Package validate enforces the safety and scope invariants on a plan and
// its compiled query before anything executes: no mutating SQL, no filter
// values outside the allow-lists, no oversized windows.
package validate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/lendscope-labs/lendscope/internal/allowlist"
	"github.com/lendscope-labs/lendscope/internal/audit"
	"github.com/lendscope-labs/lendscope/internal/catalog"
	"github.com/lendscope-labs/lendscope/internal/compile"
	"github.com/lendscope-labs/lendscope/internal/plan"
)

// UnsafeQueryError is fatal: the compiled text contained a mutating keyword
// or a statement separator. The message stays generic; specifics go to the
// security log only.
type UnsafeQueryError struct {
	Keyword   string
	Separator bool
}

func (e *UnsafeQueryError) Error() string {
	return "query rejected"
}

// InvalidSegmentValueError reports a filter value outside its dimension's
// allow-list, carrying the nearest allowed values when any are close.
type InvalidSegmentValueError struct {
	Dimension string
	Value     string
	Nearest   []string
	Reason    string
}

func (e *InvalidSegmentValueError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid value for dimension %q: %s", e.Dimension, e.Reason)
	}
	msg := fmt.Sprintf("invalid value %q for dimension %q", e.Value, e.Dimension)
	if len(e.Nearest) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(e.Nearest, ", "))
	}
	return msg
}

// Token is the opaque admission proof a plan needs before execution. Only
// the validator issues non-zero tokens.
type Token struct {
	fingerprint string
	issuedAt    time.Time
}

// Admitted reports whether the token was actually issued by a validator.
func (t Token) Admitted() bool {
	return t.fingerprint != ""
}

// unsafeKeywords matches mutating statements on word boundaries, so column
// names like app_create_d never trip it.
var unsafeKeywords = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|ALTER|CREATE|TRUNCATE|REPLACE|MERGE)\b`)

// Config holds the validator settings.
type Config struct {
	// Source answers allow-list membership. Defaults to the bootstrap
	// seed source.
	Source allowlist.Source

	// WindowLimitDays caps non-explicit windows. Zero means the compile
	// package default.
	WindowLimitDays int

	Audit  *audit.Sink
	Logger *slog.Logger
}

// Validator runs the pre-execution checks in declared order; the first
// failure wins and is audit-logged.
type Validator struct {
	source    allowlist.Source
	limitDays int
	audit     *audit.Sink
	logger    *slog.Logger
}

// New creates a validator from config, applying defaults for zero values.
func New(cfg Config) *Validator {
	if cfg.Source == nil {
		cfg.Source = allowlist.NewSeedSource()
	}
	if cfg.WindowLimitDays <= 0 {
		cfg.WindowLimitDays = compile.DefaultWindowLimitDays
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Validator{
		source:    cfg.Source,
		limitDays: cfg.WindowLimitDays,
		audit:     cfg.Audit,
		logger:    cfg.Logger,
	}
}

// Validate admits a plan/query pair or returns the first typed rejection.
// Check order: compiled-text safety, filter allow-lists, window policy.
func (v *Validator) Validate(ctx context.Context, p plan.Plan, cq compile.CompiledQuery) (Token, error) {
	if err := v.checkUnsafe(ctx, p, cq.SQL); err != nil {
		return Token{}, err
	}
	if err := v.checkFilters(ctx, p); err != nil {
		return Token{}, err
	}
	if err := v.checkWindow(ctx, p, cq); err != nil {
		return Token{}, err
	}

	fp, err := p.Fingerprint()
	if err != nil {
		return Token{}, fmt.Errorf("fingerprint plan: %w", err)
	}
	return Token{fingerprint: fp, issuedAt: time.Now()}, nil
}

func (v *Validator) checkUnsafe(ctx context.Context, p plan.Plan, sql string) error {
	if i := strings.IndexByte(sql, ';'); i >= 0 {
		v.logger.Error("compiled query contained a statement separator",
			"intent", string(p.Intent), "offset", i)
		v.audit.PlanRejected(ctx, p.Intent, "unsafe_query")
		return &UnsafeQueryError{Separator: true}
	}
	if m := unsafeKeywords.FindString(sql); m != "" {
		v.logger.Error("compiled query contained a mutating keyword",
			"intent", string(p.Intent), "keyword", strings.ToUpper(m))
		v.audit.PlanRejected(ctx, p.Intent, "unsafe_query")
		return &UnsafeQueryError{Keyword: strings.ToUpper(m)}
	}
	return nil
}

func (v *Validator) checkFilters(ctx context.Context, p plan.Plan) error {
	if p.GroupBy != "" && !catalog.KnownDimension(p.GroupBy) {
		v.audit.PlanRejected(ctx, p.Intent, "invalid_segment")
		return &InvalidSegmentValueError{
			Dimension: p.GroupBy,
			Reason:    "unknown group-by dimension",
		}
	}

	for _, dim := range p.FilterDimensions() {
		val := p.Filters[dim]

		if strings.EqualFold(val, "ALL") {
			v.audit.PlanRejected(ctx, p.Intent, "invalid_segment")
			return &InvalidSegmentValueError{
				Dimension: dim,
				Value:     val,
				Reason:    `the "ALL" sentinel is retired; request a group_by dimension instead`,
			}
		}

		allowed, err := v.source.Values(ctx, dim)
		if err != nil {
			v.audit.PlanRejected(ctx, p.Intent, "invalid_segment")
			return &InvalidSegmentValueError{
				Dimension: dim,
				Value:     val,
				Reason:    "unknown dimension",
			}
		}

		if !member(allowed, val) {
			v.audit.PlanRejected(ctx, p.Intent, "invalid_segment")
			return &InvalidSegmentValueError{
				Dimension: dim,
				Value:     val,
				Nearest:   nearest(val, allowed, 3),
			}
		}
	}
	return nil
}

func (v *Validator) checkWindow(ctx context.Context, p plan.Plan, cq compile.CompiledQuery) error {
	if err := compile.CheckSpan(cq.Range, p.Explicit, v.limitDays); err != nil {
		v.audit.PlanRejected(ctx, p.Intent, "window_too_large")
		return err
	}
	return nil
}

func member(values []string, v string) bool {
	for _, val := range values {
		if val == v {
			return true
		}
	}
	return false
}
