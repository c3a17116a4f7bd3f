// Package audit emits the structured event stream: every validation
// rejection, every execution, every export. Events go through slog so the
// sink inherits whatever handler the process configured.
package audit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/lendscope-labs/lendscope/internal/plan"
)

// Event types.
const (
	EventPlanRejected  = "plan_rejected"
	EventQueryExecuted = "query_executed"
	EventExportServed  = "export_served"
)

// Sink writes audit events. A nil *Sink is valid and drops everything, so
// callers never need to guard.
type Sink struct {
	logger *slog.Logger
}

// New creates a sink writing through the given logger.
func New(logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Sink{logger: logger}
}

// PlanRejected records a validation rejection. Only the intent and the
// reason class are logged; filter payloads are never echoed back into the
// log stream.
func (s *Sink) PlanRejected(ctx context.Context, intent plan.Intent, reason string) {
	if s == nil {
		return
	}
	s.logger.WarnContext(ctx, "plan rejected",
		"event_type", EventPlanRejected,
		"event_id", uuid.NewString(),
		"intent", string(intent),
		"reason", reason,
	)
}

// QueryExecuted records one served query, cache hits included.
func (s *Sink) QueryExecuted(ctx context.Context, hash, summary string, rows int, latencyMS int64, cacheHit, truncated bool) {
	if s == nil {
		return
	}
	s.logger.InfoContext(ctx, "query executed",
		"event_type", EventQueryExecuted,
		"event_id", uuid.NewString(),
		"plan_hash", hash,
		"plan", summary,
		"row_count", rows,
		"latency_ms", latencyMS,
		"cache_hit", cacheHit,
		"truncated", truncated,
	)
}

// ExportServed records one export of a cached dataset.
func (s *Sink) ExportServed(ctx context.Context, hash, format string, bytes int) {
	if s == nil {
		return
	}
	s.logger.InfoContext(ctx, "export served",
		"event_type", EventExportServed,
		"event_id", uuid.NewString(),
		"plan_hash", hash,
		"format", format,
		"bytes", bytes,
	)
}
