package compile

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendscope-labs/lendscope/internal/catalog"
	"github.com/lendscope-labs/lendscope/internal/plan"
)

// evalAt is a Wednesday, chosen so complete-period windows are easy to
// verify by hand.
var evalAt = time.Date(2024, 6, 12, 15, 30, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func mustCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(nil)
	require.NoError(t, err)
	return c
}

func mustTemplate(t *testing.T, c *catalog.Catalog, in plan.Intent) catalog.Template {
	t.Helper()
	tpl, err := c.Lookup(in)
	require.NoError(t, err)
	return tpl
}

func TestResolveWindowCalendar(t *testing.T) {
	tests := []struct {
		window string
		now    time.Time
		start  time.Time
		end    time.Time
	}{
		{"last_7d", evalAt, day(2024, 6, 5), day(2024, 6, 12)},
		{"last_30d", evalAt, day(2024, 5, 13), day(2024, 6, 12)},
		{"last_full_week", evalAt, day(2024, 6, 3), day(2024, 6, 10)},
		// Monday-Sunday strictly before the current week, from any weekday.
		{"last_full_week", day(2024, 6, 10), day(2024, 6, 3), day(2024, 6, 10)},
		{"last_full_week", day(2024, 6, 9), day(2024, 5, 27), day(2024, 6, 3)},
		{"last_full_month", evalAt, day(2024, 5, 1), day(2024, 6, 1)},
		// Trailing complete months exclude the current partial one.
		{"last_3_full_months", evalAt, day(2024, 3, 1), day(2024, 6, 1)},
		{"last_full_quarter", evalAt, day(2024, 1, 1), day(2024, 4, 1)},
		{"last_full_year", evalAt, day(2023, 1, 1), day(2024, 1, 1)},
		{"mtd", evalAt, day(2024, 6, 1), day(2024, 6, 13)},
		{"qtd", evalAt, day(2024, 4, 1), day(2024, 6, 13)},
		{"ytd", evalAt, day(2024, 1, 1), day(2024, 6, 13)},
	}

	for _, tt := range tests {
		t.Run(tt.window+"@"+tt.now.Format("2006-01-02"), func(t *testing.T) {
			r, err := ResolveWindow(tt.window, tt.now)
			require.NoError(t, err)
			assert.Equal(t, tt.start, r.Start, "start")
			assert.Equal(t, tt.end, r.End, "end")
		})
	}
}

func TestResolveWindowUnknownIdentifier(t *testing.T) {
	_, err := ResolveWindow("last_eon", evalAt)
	var wErr *WindowTooLargeError
	require.ErrorAs(t, err, &wErr)
	assert.Equal(t, "last_eon", wErr.Window)
}

func TestParseRangeRejectsInverted(t *testing.T) {
	_, err := ParseRange("2024-05-10", "2024-05-01")
	var wErr *WindowTooLargeError
	require.ErrorAs(t, err, &wErr)
	assert.Contains(t, wErr.Error(), "not before")
}

func TestInferGranularity(t *testing.T) {
	weekly := Range{Start: day(2024, 5, 1), End: day(2024, 6, 1)}
	assert.Equal(t, plan.GranularityWeekly, InferGranularity(weekly))

	monthly := Range{Start: day(2023, 1, 1), End: day(2024, 1, 1)}
	assert.Equal(t, plan.GranularityMonthly, InferGranularity(monthly))

	// Thirteen weeks exactly still buckets weekly.
	edge := Range{Start: day(2024, 1, 1), End: day(2024, 1, 1).AddDate(0, 0, 91)}
	assert.Equal(t, plan.GranularityWeekly, InferGranularity(edge))
}

func TestCompileTrendScenario(t *testing.T) {
	cat := mustCatalog(t)
	c := New(Config{})

	p := cat.NormalizePlan(plan.Plan{
		Intent:      plan.IntentTrend,
		Metric:      "issuance",
		Window:      "last_full_month",
		Granularity: plan.GranularityWeekly,
		Filters:     map[string]string{"channel": "Email"},
	})

	cq, err := c.Compile(p, mustTemplate(t, cat, plan.IntentTrend), evalAt)
	require.NoError(t, err)

	assert.Contains(t, cq.SQL, "strftime('%Y-W%W', app_submit_d) AS period")
	assert.Contains(t, cq.SQL, "SUM(CASE WHEN issued_flag = 1 THEN issued_amnt ELSE 0 END) AS metric_value")
	assert.Contains(t, cq.SQL, "AND channel = :filter_channel")
	assert.Contains(t, cq.SQL, "LIMIT :row_cap")
	assert.NotContains(t, cq.SQL, "Email", "filter values bind, never inline")

	assert.Equal(t, "2024-05-01", cq.Params["start_date"])
	assert.Equal(t, "2024-06-01", cq.Params["end_date"])
	assert.Equal(t, "Email", cq.Params["filter_channel"])
	assert.Equal(t, DefaultRowCap, cq.Params["row_cap"])
	assert.Equal(t, plan.GranularityWeekly, cq.Granularity)
}

func TestCompileDeterminism(t *testing.T) {
	cat := mustCatalog(t)
	c := New(Config{})

	p := cat.NormalizePlan(plan.Plan{
		Intent:  plan.IntentTrend,
		Metric:  "app_submissions",
		Window:  "last_3_full_months",
		GroupBy: "grade",
		Filters: map[string]string{"prod_type": "Prime", "repeat_type": "New"},
	})
	tpl := mustTemplate(t, cat, plan.IntentTrend)

	first, err := c.Compile(p, tpl, evalAt)
	require.NoError(t, err)
	second, err := c.Compile(p, tpl, evalAt)
	require.NoError(t, err)

	assert.Equal(t, first.SQL, second.SQL)
	assert.Equal(t, first.Params, second.Params)
}

func TestCompileGroupedTrend(t *testing.T) {
	cat := mustCatalog(t)
	c := New(Config{})
	tpl := mustTemplate(t, cat, plan.IntentTrend)

	t.Run("plain dimension sorts by label", func(t *testing.T) {
		p := plan.Plan{Intent: plan.IntentTrend, Metric: "issuance", Window: "mtd", GroupBy: "channel"}
		cq, err := c.Compile(cat.NormalizePlan(p), tpl, evalAt)
		require.NoError(t, err)

		assert.Contains(t, cq.SQL, ", channel AS segment_value")
		assert.Contains(t, cq.SQL, "GROUP BY period, segment_value")
		assert.Contains(t, cq.SQL, "ORDER BY period, segment_value")
	})

	t.Run("credit bands sort by fixed rank", func(t *testing.T) {
		p := plan.Plan{Intent: plan.IntentTrend, Metric: "issuance", Window: "mtd", GroupBy: "cr_fico_band"}
		cq, err := c.Compile(cat.NormalizePlan(p), tpl, evalAt)
		require.NoError(t, err)

		assert.Contains(t, cq.SQL, "CASE segment_value WHEN '<640' THEN 0")
		assert.NotContains(t, cq.SQL, "ORDER BY period, segment_value\n")
	})

	t.Run("no group leaves single series", func(t *testing.T) {
		p := plan.Plan{Intent: plan.IntentTrend, Metric: "issuance", Window: "mtd"}
		cq, err := c.Compile(cat.NormalizePlan(p), tpl, evalAt)
		require.NoError(t, err)

		assert.NotContains(t, cq.SQL, "segment_value")
		assert.Contains(t, cq.SQL, "GROUP BY period\n")
	})
}

func TestCompileCustomRangeClamped(t *testing.T) {
	cat := mustCatalog(t)
	c := New(Config{})
	tpl := mustTemplate(t, cat, plan.IntentTrend)

	p := cat.NormalizePlan(plan.Plan{
		Intent: plan.IntentTrend,
		Metric: "issuance",
		Start:  "2022-01-01",
		End:    "2024-01-01",
	})

	cq, err := c.Compile(p, tpl, evalAt)
	require.NoError(t, err)
	assert.True(t, cq.Clamped)
	assert.Equal(t, DefaultWindowLimitDays, cq.Range.Days())
	assert.Equal(t, "2024-01-01", cq.Params["end_date"], "clamping keeps the most recent days")
}

func TestCompileExplicitWideRangeAllowed(t *testing.T) {
	cat := mustCatalog(t)
	c := New(Config{})
	tpl := mustTemplate(t, cat, plan.IntentTrend)

	p := cat.NormalizePlan(plan.Plan{
		Intent:   plan.IntentTrend,
		Metric:   "issuance",
		Start:    "2022-01-01",
		End:      "2024-01-01",
		Explicit: true,
	})

	cq, err := c.Compile(p, tpl, evalAt)
	require.NoError(t, err)
	assert.False(t, cq.Clamped)
	assert.Equal(t, 730, cq.Range.Days())
	assert.Equal(t, plan.GranularityMonthly, cq.Granularity)
}

func TestCompileFunnelRepeatsFilterPerStage(t *testing.T) {
	cat := mustCatalog(t)
	c := New(Config{})

	p := cat.NormalizePlan(plan.Plan{
		Intent:  plan.IntentFunnel,
		Window:  "last_full_month",
		Filters: map[string]string{"channel": "Search"},
	})

	cq, err := c.Compile(p, mustTemplate(t, cat, plan.IntentFunnel), evalAt)
	require.NoError(t, err)

	assert.Equal(t, 3, strings.Count(cq.SQL, "AND channel = :filter_channel"))
	assert.Equal(t, "Search", cq.Params["filter_channel"])
}

func TestCompileMultiMetric(t *testing.T) {
	cat := mustCatalog(t)
	c := New(Config{})

	p := cat.NormalizePlan(plan.Plan{
		Intent:   plan.IntentMultiMetric,
		Metrics:  []string{"app_submissions", "issuance"},
		Modifier: plan.ModifierCount,
		Window:   "last_full_quarter",
	})

	cq, err := c.Compile(p, mustTemplate(t, cat, plan.IntentMultiMetric), evalAt)
	require.NoError(t, err)

	assert.Contains(t, cq.SQL, "COUNT(app_submit_d) AS app_submissions")
	assert.Contains(t, cq.SQL, "SUM(issued_flag) AS issuance")
}

func TestCompileForecastColumns(t *testing.T) {
	cat := mustCatalog(t)
	c := New(Config{})

	p := cat.NormalizePlan(plan.Plan{
		Intent: plan.IntentForecastVsActual,
		Metric: "issuance",
		Window: "last_3_full_months",
	})

	cq, err := c.Compile(p, mustTemplate(t, cat, plan.IntentForecastVsActual), evalAt)
	require.NoError(t, err)

	assert.Contains(t, cq.SQL, "SUM(forecast_issuance) AS forecast_value")
	assert.Contains(t, cq.SQL, "SUM(outlook_issuance) AS outlook_value")
	assert.Contains(t, cq.SQL, "SUM(actual_issuance) AS actual_value")
	assert.Contains(t, cq.SQL, "FROM forecast_df")
	assert.Contains(t, cq.SQL, "date >= :start_date")
}

func TestCompileDefaultGroupBy(t *testing.T) {
	cat := mustCatalog(t)
	c := New(Config{})

	p := cat.NormalizePlan(plan.Plan{
		Intent: plan.IntentForecastGap,
		Metric: "issuance",
		Window: "last_full_month",
	})

	cq, err := c.Compile(p, mustTemplate(t, cat, plan.IntentForecastGap), evalAt)
	require.NoError(t, err)
	assert.Contains(t, cq.SQL, "channel AS segment_value", "falls back to the template default dimension")
}

func TestCompileErrors(t *testing.T) {
	cat := mustCatalog(t)
	c := New(Config{})

	tests := []struct {
		name    string
		p       plan.Plan
		errPart string
	}{
		{
			"unknown window",
			plan.Plan{Intent: plan.IntentTrend, Metric: "issuance", Window: "last_eon"},
			"unknown window",
		},
		{
			"inverted explicit range",
			plan.Plan{Intent: plan.IntentTrend, Metric: "issuance", Start: "2024-06-01", End: "2024-05-01", Explicit: true},
			"not before",
		},
		{
			"missing metric",
			plan.Plan{Intent: plan.IntentTrend, Window: "mtd"},
			"needs a metric",
		},
		{
			"unknown metric",
			plan.Plan{Intent: plan.IntentTrend, Metric: "churn", Window: "mtd"},
			"unknown metric",
		},
		{
			"missing secondary metric",
			plan.Plan{Intent: plan.IntentRelationship, Metric: "avg_fico", Window: "mtd"},
			"secondary metric",
		},
		{
			"forecast dimension on events intent",
			plan.Plan{Intent: plan.IntentForecastVsActual, Metric: "issuance", Window: "mtd", Filters: map[string]string{"purpose": "car"}},
			"does not accept dimension",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := cat.NormalizePlan(tt.p)
			tpl := mustTemplate(t, cat, p.Intent)
			_, err := c.Compile(p, tpl, evalAt)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errPart)
		})
	}
}

func TestCheckSpanPolicy(t *testing.T) {
	wide := Range{Start: day(2022, 1, 1), End: day(2024, 1, 1)}

	require.NoError(t, CheckSpan(wide, true, DefaultWindowLimitDays))

	err := CheckSpan(wide, false, DefaultWindowLimitDays)
	var wErr *WindowTooLargeError
	require.ErrorAs(t, err, &wErr)
	assert.Equal(t, 730, wErr.Days)
	assert.Equal(t, DefaultWindowLimitDays, wErr.Limit)

	inverted := Range{Start: day(2024, 1, 2), End: day(2024, 1, 1)}
	require.Error(t, CheckSpan(inverted, true, DefaultWindowLimitDays))
}

func TestWindowErrorUnwrapsAsTyped(t *testing.T) {
	cat := mustCatalog(t)
	c := New(Config{})

	p := cat.NormalizePlan(plan.Plan{Intent: plan.IntentTrend, Metric: "issuance", Window: "bogus"})
	_, err := c.Compile(p, mustTemplate(t, cat, plan.IntentTrend), evalAt)

	var wErr *WindowTooLargeError
	require.True(t, errors.As(err, &wErr))
}
