// Package plan defines the structured analytical request that drives the
// query pipeline, together with its canonical encoding and fingerprint.
package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Intent identifies one analytical question shape. The set is closed; every
// intent is bound to exactly one query template in the catalog.
type Intent string

const (
	IntentTrend            Intent = "trend"
	IntentVariance         Intent = "variance"
	IntentForecastVsActual Intent = "forecast_vs_actual"
	IntentForecastGap      Intent = "forecast_gap_analysis"
	IntentFunnel           Intent = "funnel"
	IntentDistribution     Intent = "distribution"
	IntentRelationship     Intent = "relationship"
	IntentMultiMetric      Intent = "multi_metric"
)

// Intents returns all known intents in a stable order.
func Intents() []Intent {
	return []Intent{
		IntentTrend,
		IntentVariance,
		IntentForecastVsActual,
		IntentForecastGap,
		IntentFunnel,
		IntentDistribution,
		IntentRelationship,
		IntentMultiMetric,
	}
}

// Valid reports whether the intent is a member of the closed set.
func (i Intent) Valid() bool {
	switch i {
	case IntentTrend, IntentVariance, IntentForecastVsActual, IntentForecastGap,
		IntentFunnel, IntentDistribution, IntentRelationship, IntentMultiMetric:
		return true
	}
	return false
}

// Modifier selects the amount or count flavour of a flow metric.
type Modifier string

const (
	ModifierAmount Modifier = "amount"
	ModifierCount  Modifier = "count"
)

// Granularity is the period bucketing of a time-series query.
type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
	GranularityMonthly Granularity = "monthly"
)

// Valid reports whether the granularity is one of the known buckets.
func (g Granularity) Valid() bool {
	switch g {
	case GranularityDaily, GranularityWeekly, GranularityMonthly:
		return true
	}
	return false
}

// Theme selects a presentation palette for the chart spec. It never affects
// data selection.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Plan is one structured analytical request. Filters carry concrete
// dimension values only; requesting a group-by axis goes through the
// separate GroupBy field, so a single plan can never ask to group by two
// dimensions at once.
type Plan struct {
	Intent      Intent            `json:"intent"`
	Table       string            `json:"table,omitempty"`
	Metric      string            `json:"metric,omitempty"`
	Modifier    Modifier          `json:"modifier,omitempty"`
	Metrics     []string          `json:"metrics,omitempty"`
	Secondary   string            `json:"secondary_metric,omitempty"`
	DateColumn  string            `json:"date_column,omitempty"`
	Window      string            `json:"window,omitempty"`
	Start       string            `json:"start,omitempty"`
	End         string            `json:"end,omitempty"`
	Explicit    bool              `json:"explicit_window,omitempty"`
	Granularity Granularity       `json:"granularity,omitempty"`
	Filters     map[string]string `json:"filters,omitempty"`
	GroupBy     string            `json:"group_by,omitempty"`
	ChartHint   string            `json:"chart_hint,omitempty"`
	Theme       Theme             `json:"theme,omitempty"`
}

// Canonical returns the canonical byte encoding of the plan: JSON with
// sorted object keys and empty fields omitted. Two structurally equal plans
// produce identical bytes regardless of the field order they arrived in.
func (p Plan) Canonical() ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode plan: %w", err)
	}
	// Round-trip through a map so keys (including nested filter keys)
	// serialize in sorted order.
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("normalize plan: %w", err)
	}
	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode canonical plan: %w", err)
	}
	return out, nil
}

// Fingerprint returns the SHA-256 hex digest of the canonical encoding.
// It is the cache key for the plan's result triple.
func (p Plan) Fingerprint() (string, error) {
	b, err := p.Canonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// FilterDimensions returns the filtered dimension names in sorted order.
func (p Plan) FilterDimensions() []string {
	dims := make([]string, 0, len(p.Filters))
	for d := range p.Filters {
		dims = append(dims, d)
	}
	sort.Strings(dims)
	return dims
}

// HasExplicitRange reports whether the plan carries a start/end range
// instead of a named window.
func (p Plan) HasExplicitRange() bool {
	return p.Start != "" || p.End != ""
}

// Summary renders a compact one-line description for logs and audit events.
func (p Plan) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "intent=%s", p.Intent)
	if p.Metric != "" {
		fmt.Fprintf(&b, " metric=%s", p.Metric)
	}
	if len(p.Metrics) > 0 {
		fmt.Fprintf(&b, " metrics=%s", strings.Join(p.Metrics, ","))
	}
	if p.Window != "" {
		fmt.Fprintf(&b, " window=%s", p.Window)
	} else if p.HasExplicitRange() {
		fmt.Fprintf(&b, " range=%s..%s", p.Start, p.End)
	}
	if p.GroupBy != "" {
		fmt.Fprintf(&b, " group_by=%s", p.GroupBy)
	}
	for _, d := range p.FilterDimensions() {
		fmt.Fprintf(&b, " %s=%s", d, p.Filters[d])
	}
	return b.String()
}
