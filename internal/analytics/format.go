package analytics

import (
	"math"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/lendscope-labs/lendscope/internal/plan"
)

var titleCaser = cases.Title(language.English)

// currencyHints and percentageHints classify metric names for display
// formatting. A name matching neither renders as a plain grouped number.
var (
	currencyHints   = []string{"amt", "amnt", "amount", "apr", "income", "issuance"}
	percentageHints = []string{"rate", "pct", "percent", "accuracy"}
)

// metricStyle reports whether a metric renders as currency or as a
// percentage. A count modifier always renders plain.
func metricStyle(metric string, modifier plan.Modifier) (currency, percentage bool) {
	name := strings.ToLower(metric)
	for _, hint := range percentageHints {
		if strings.Contains(name, hint) {
			return false, true
		}
	}
	if modifier == plan.ModifierCount {
		return false, false
	}
	for _, hint := range currencyHints {
		if strings.Contains(name, hint) {
			return true, false
		}
	}
	return false, false
}

// formatNumber renders a value the way the dashboard does: percentages
// signed to one decimal, currency and large magnitudes abbreviated to
// $1.2M / $450.3K, and everything else comma-grouped.
func (e *Engine) formatNumber(v float64, currency, percentage bool) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "N/A"
	}
	if percentage {
		return e.printer.Sprintf("%+.1f%%", v)
	}
	prefix := ""
	if currency {
		prefix = "$"
	}
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	switch {
	case v >= 1_000_000:
		return e.printer.Sprintf("%s%s%.1fM", sign, prefix, v/1_000_000)
	case v >= 1_000:
		return e.printer.Sprintf("%s%s%.1fK", sign, prefix, v/1_000)
	default:
		return e.printer.Sprintf("%s%s%.0f", sign, prefix, v)
	}
}

// metricLabel renders a metric name for prose: underscores become spaces
// and each word is title-cased.
func metricLabel(metric string) string {
	if metric == "" {
		return "Metric"
	}
	return titleCaser.String(strings.ReplaceAll(metric, "_", " "))
}

// titleFor maps an intent to its insight headline.
func titleFor(intent plan.Intent) string {
	switch intent {
	case plan.IntentTrend:
		return "Trend Analysis"
	case plan.IntentVariance:
		return "Period-over-Period Variance"
	case plan.IntentForecastVsActual:
		return "Forecast vs Actual"
	case plan.IntentForecastGap:
		return "Forecast Gap Analysis"
	case plan.IntentFunnel:
		return "Conversion Funnel"
	case plan.IntentDistribution:
		return "Distribution Analysis"
	case plan.IntentRelationship:
		return "Relationship Analysis"
	case plan.IntentMultiMetric:
		return "Metric Comparison"
	default:
		return "Analysis"
	}
}

// joinLabels joins metric labels for prose: "A", "A and B", "A, B and C".
func joinLabels(labels []string) string {
	switch len(labels) {
	case 0:
		return ""
	case 1:
		return labels[0]
	case 2:
		return labels[0] + " and " + labels[1]
	default:
		return strings.Join(labels[:len(labels)-1], ", ") + " and " + labels[len(labels)-1]
	}
}
