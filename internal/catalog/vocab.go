package catalog

import (
	"fmt"
	"sort"

	"github.com/lendscope-labs/lendscope/internal/plan"
)

// Table names of the read-only mart. The column layout is a versioned
// external contract; templates bind against it and nothing else.
const (
	TableEvents   = "cps_tb"
	TableForecast = "forecast_df"
)

// Date columns per table.
const (
	EventsDateColumn   = "app_submit_d"
	ForecastDateColumn = "date"
)

// MetricKind classifies how a logical metric resolves to SQL.
type MetricKind int

const (
	// MetricFlow has separate amount and count expressions.
	MetricFlow MetricKind = iota
	// MetricRatio is a null-safe percentage.
	MetricRatio
	// MetricAverage is a rounded mean over a numeric column.
	MetricAverage
)

// MetricDef binds a logical metric name to concrete SQL expressions.
type MetricDef struct {
	Name       string
	Kind       MetricKind
	AmountExpr string
	CountExpr  string
	Expr       string
}

// metricDefs is the closed metric vocabulary. Ratio metrics divide through
// NULLIF so a zero or null denominator yields NULL, never an error.
var metricDefs = map[string]MetricDef{
	"app_submissions": {
		Name:       "app_submissions",
		Kind:       MetricFlow,
		AmountExpr: "SUM(app_submit_amnt)",
		CountExpr:  "COUNT(app_submit_d)",
	},
	"apps_approved": {
		Name:       "apps_approved",
		Kind:       MetricFlow,
		AmountExpr: "SUM(CASE WHEN cr_appr_flag = 1 THEN apps_approved_amnt ELSE 0 END)",
		CountExpr:  "SUM(cr_appr_flag)",
	},
	"issuance": {
		Name:       "issuance",
		Kind:       MetricFlow,
		AmountExpr: "SUM(CASE WHEN issued_flag = 1 THEN issued_amnt ELSE 0 END)",
		CountExpr:  "SUM(issued_flag)",
	},
	"approval_rate": {
		Name: "approval_rate",
		Kind: MetricRatio,
		Expr: "ROUND(CAST(SUM(cr_appr_flag) AS REAL) / NULLIF(SUM(offered_flag), 0) * 100, 2)",
	},
	"funding_rate": {
		Name: "funding_rate",
		Kind: MetricRatio,
		Expr: "ROUND(CAST(SUM(issued_flag) AS REAL) / NULLIF(COUNT(app_submit_d), 0) * 100, 2)",
	},
	"avg_apr": {
		Name: "avg_apr",
		Kind: MetricAverage,
		Expr: "ROUND(AVG(offer_apr), 2)",
	},
	"avg_fico": {
		Name: "avg_fico",
		Kind: MetricAverage,
		Expr: "ROUND(AVG(cr_fico), 2)",
	},
	"avg_dti": {
		Name: "avg_dti",
		Kind: MetricAverage,
		Expr: "ROUND(AVG(cr_dti), 2)",
	},
	"avg_income": {
		Name: "avg_income",
		Kind: MetricAverage,
		Expr: "ROUND(AVG(a_income), 2)",
	},
}

// ForecastCols names the forecast/outlook/actual columns for one metric.
type ForecastCols struct {
	Forecast string
	Outlook  string
	Actual   string
}

var forecastCols = map[string]ForecastCols{
	"app_submissions": {
		Forecast: "forecast_app_submits",
		Outlook:  "outlook_app_submits",
		Actual:   "actual_app_submits",
	},
	"apps_approved": {
		Forecast: "forecast_apps_approved",
		Outlook:  "outlook_apps_approved",
		Actual:   "actual_apps_approved",
	},
	"issuance": {
		Forecast: "forecast_issuance",
		Outlook:  "outlook_issuance",
		Actual:   "actual_issuance",
	},
}

// dimensions is the closed set of filterable/groupable segment columns,
// shared by both tables.
var dimensions = []string{
	"channel",
	"grade",
	"prod_type",
	"repeat_type",
	"term",
	"cr_fico_band",
	"purpose",
}

// seedAllowLists are the bootstrap allow-list values per dimension. The
// live values come from the allow-list source; these seed offline use and
// tests.
var seedAllowLists = map[string][]string{
	"channel":      {"OMB", "Email", "Search", "D2LC", "DM", "LT", "Experian", "Karma", "Small Partners"},
	"grade":        {"P1", "P2", "P3", "P4", "P5", "P6"},
	"prod_type":    {"Prime", "NP", "D2P"},
	"repeat_type":  {"Repeat", "New"},
	"term":         {"36", "48", "60", "72", "84"},
	"cr_fico_band": {"<640", "640-699", "700-759", "760+"},
	"purpose":      {"debt_consolidation", "home_improvement", "major_purchase", "medical", "car", "other"},
}

// windows is the closed set of named time windows.
var windows = []string{
	"last_7d",
	"last_full_week",
	"last_30d",
	"last_full_month",
	"last_3_full_months",
	"last_full_quarter",
	"last_full_year",
	"qtd",
	"mtd",
	"ytd",
}

// FicoBandOrder is the fixed ordinal rank of the credit band dimension.
// Band axes always sort by this rank, never lexicographically.
var FicoBandOrder = []string{"<640", "640-699", "700-759", "760+"}

// metadataColumns are display helpers that never become plotted series.
var metadataColumns = map[string]bool{
	"week_start":    true,
	"month_start":   true,
	"quarter_start": true,
	"year_start":    true,
	"record_count":  true,
	"stage_order":   true,
}

// FunnelStages lists the funnel stage labels in declared order.
var FunnelStages = []string{"Submissions", "Approvals", "Issuances"}

// MetricExpression resolves a logical metric plus modifier to its SQL
// expression. Flow metrics default to the amount flavour; count applies
// only when explicitly requested. Ratio and average metrics ignore the
// modifier.
func MetricExpression(name string, mod plan.Modifier) (string, error) {
	def, ok := metricDefs[name]
	if !ok {
		return "", fmt.Errorf("unknown metric %q", name)
	}
	switch def.Kind {
	case MetricFlow:
		if mod == plan.ModifierCount {
			return def.CountExpr, nil
		}
		return def.AmountExpr, nil
	default:
		return def.Expr, nil
	}
}

// MetricKindOf returns the kind of a known metric.
func MetricKindOf(name string) (MetricKind, error) {
	def, ok := metricDefs[name]
	if !ok {
		return 0, fmt.Errorf("unknown metric %q", name)
	}
	return def.Kind, nil
}

// KnownMetric reports membership in the metric vocabulary.
func KnownMetric(name string) bool {
	_, ok := metricDefs[name]
	return ok
}

// MetricNames returns all metric names sorted.
func MetricNames() []string {
	names := make([]string, 0, len(metricDefs))
	for n := range metricDefs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ForecastColumns resolves the forecast-table column triple for a metric.
func ForecastColumns(name string) (ForecastCols, error) {
	cols, ok := forecastCols[name]
	if !ok {
		return ForecastCols{}, fmt.Errorf("metric %q has no forecast columns", name)
	}
	return cols, nil
}

// Dimensions returns the segment dimension names in declared order.
func Dimensions() []string {
	return append([]string(nil), dimensions...)
}

// KnownDimension reports membership in the dimension vocabulary.
func KnownDimension(name string) bool {
	for _, d := range dimensions {
		if d == name {
			return true
		}
	}
	return false
}

// SeedAllowList returns the bootstrap allowed values for a dimension.
func SeedAllowList(dim string) []string {
	return append([]string(nil), seedAllowLists[dim]...)
}

// SeedAllowLists returns a copy of the full bootstrap allow-list map.
func SeedAllowLists() map[string][]string {
	out := make(map[string][]string, len(seedAllowLists))
	for d, vals := range seedAllowLists {
		out[d] = append([]string(nil), vals...)
	}
	return out
}

// Windows returns the named window identifiers in declared order.
func Windows() []string {
	return append([]string(nil), windows...)
}

// KnownWindow reports membership in the window vocabulary.
func KnownWindow(id string) bool {
	for _, w := range windows {
		if w == id {
			return true
		}
	}
	return false
}

// FicoBandRank returns the ordinal rank of a credit band, or -1.
func FicoBandRank(band string) int {
	for i, b := range FicoBandOrder {
		if b == band {
			return i
		}
	}
	return -1
}

// FicoBandCase renders the fixed rank ordering as a SQL CASE expression
// over the given column.
func FicoBandCase(col string) string {
	s := "CASE " + col
	for i, b := range FicoBandOrder {
		s += fmt.Sprintf(" WHEN '%s' THEN %d", b, i)
	}
	s += fmt.Sprintf(" ELSE %d END", len(FicoBandOrder))
	return s
}

// IsMetadataColumn reports whether a column is a display helper excluded
// from plotted series.
func IsMetadataColumn(name string) bool {
	return metadataColumns[name]
}
