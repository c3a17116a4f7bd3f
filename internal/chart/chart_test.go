package chart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendscope-labs/lendscope/internal/dataset"
	"github.com/lendscope-labs/lendscope/internal/plan"
)

func mustDataset(t *testing.T, cols []dataset.Column, rows [][]any) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.New(cols, rows, false)
	require.NoError(t, err)
	return ds
}

func trendDataset(t *testing.T) *dataset.Dataset {
	return mustDataset(t, []dataset.Column{
		{Name: "period", Type: dataset.Categorical},
		{Name: "metric_value", Type: dataset.Numeric},
	}, [][]any{
		{"2024-W18", 100},
		{"2024-W19", 120},
		{"2024-W20", 90},
		{"2024-W21", 130},
	})
}

func TestBuildTrendSingleSeries(t *testing.T) {
	b := New(Config{})
	spec := b.Build(plan.Plan{
		Intent:   plan.IntentTrend,
		Metric:   "issuance",
		Modifier: plan.ModifierAmount,
		Window:   "last_full_month",
	}, trendDataset(t))

	assert.Equal(t, KindLine, spec.Kind)
	assert.Equal(t, "Issuance Trend (Last Full Month)", spec.Title)
	require.NotNil(t, spec.Line)
	require.Len(t, spec.Line.Series, 1)

	s := spec.Line.Series[0]
	assert.Equal(t, "Issuance", s.Name)
	assert.Equal(t, []string{"2024-W18", "2024-W19", "2024-W20", "2024-W21"}, s.X)
	require.Len(t, s.Y, 4)
	assert.Equal(t, 130.0, *s.Y[3])
	assert.Empty(t, spec.Note)
}

func TestBuildTrendNullGaps(t *testing.T) {
	ds := mustDataset(t, []dataset.Column{
		{Name: "period", Type: dataset.Categorical},
		{Name: "metric_value", Type: dataset.Numeric},
	}, [][]any{
		{"2024-W18", 100},
		{"2024-W19", nil},
		{"2024-W20", 90},
	})

	b := New(Config{})
	spec := b.Build(plan.Plan{Intent: plan.IntentTrend, Metric: "issuance"}, ds)

	require.Len(t, spec.Line.Series, 1)
	y := spec.Line.Series[0].Y
	require.Len(t, y, 3)
	assert.NotNil(t, y[0])
	assert.Nil(t, y[1])
	assert.NotNil(t, y[2])
}

func TestBuildTrendAreaHint(t *testing.T) {
	b := New(Config{})
	spec := b.Build(plan.Plan{
		Intent:    plan.IntentTrend,
		Metric:    "issuance",
		ChartHint: "area",
	}, trendDataset(t))

	require.Len(t, spec.Line.Series, 1)
	assert.True(t, spec.Line.Series[0].Fill)
}

func TestBuildTrendGrouped(t *testing.T) {
	ds := mustDataset(t, []dataset.Column{
		{Name: "period", Type: dataset.Categorical},
		{Name: "segment_value", Type: dataset.Categorical},
		{Name: "metric_value", Type: dataset.Numeric},
	}, [][]any{
		{"2024-W18", "Paid", 200},
		{"2024-W18", "Email", 100},
		{"2024-W19", "Paid", 180},
		{"2024-W19", "Email", 150},
	})

	b := New(Config{})
	spec := b.Build(plan.Plan{
		Intent:  plan.IntentTrend,
		Metric:  "issuance",
		GroupBy: "channel",
	}, ds)

	require.Len(t, spec.Line.Series, 2)
	assert.Equal(t, "Email", spec.Line.Series[0].Name)
	assert.Equal(t, "Paid", spec.Line.Series[1].Name)
	assert.Equal(t, []string{"2024-W18", "2024-W19"}, spec.Line.Series[0].X)
	assert.Equal(t, 150.0, *spec.Line.Series[0].Y[1])
	assert.NotEqual(t, spec.Line.Series[0].Color, spec.Line.Series[1].Color)
}

func TestBuildTrendFicoBandOrder(t *testing.T) {
	ds := mustDataset(t, []dataset.Column{
		{Name: "period", Type: dataset.Categorical},
		{Name: "segment_value", Type: dataset.Categorical},
		{Name: "metric_value", Type: dataset.Numeric},
	}, [][]any{
		{"2024-W18", "760+", 50},
		{"2024-W18", "<640", 10},
		{"2024-W18", "700-759", 40},
		{"2024-W18", "640-699", 20},
	})

	b := New(Config{})
	spec := b.Build(plan.Plan{
		Intent:  plan.IntentTrend,
		Metric:  "issuance",
		GroupBy: "cr_fico_band",
	}, ds)

	require.Len(t, spec.Line.Series, 4)
	var names []string
	for _, s := range spec.Line.Series {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"<640", "640-699", "700-759", "760+"}, names)
	assert.Equal(t, []string{"<640", "640-699", "700-759", "760+"}, spec.Layout.CategoryOrder)
}

func TestBuildVariance(t *testing.T) {
	ds := mustDataset(t, []dataset.Column{
		{Name: "period", Type: dataset.Categorical},
		{Name: "current_value", Type: dataset.Numeric},
		{Name: "prior_value", Type: dataset.Numeric},
		{Name: "delta", Type: dataset.Numeric},
		{Name: "delta_pct", Type: dataset.Numeric},
	}, [][]any{
		{"2024-04", 1300.0, 1250.0, 50.0, 4.0},
		{"2024-05", 1200.0, 1300.0, -100.0, -7.7},
	})

	b := New(Config{})
	spec := b.Build(plan.Plan{Intent: plan.IntentVariance, Metric: "issuance"}, ds)

	assert.Equal(t, KindLine, spec.Kind)
	require.Len(t, spec.Line.Series, 2)
	assert.Equal(t, "Current", spec.Line.Series[0].Name)
	assert.Equal(t, "Prior", spec.Line.Series[1].Name)
}

func TestBuildForecastBars(t *testing.T) {
	ds := mustDataset(t, []dataset.Column{
		{Name: "period", Type: dataset.Categorical},
		{Name: "forecast_value", Type: dataset.Numeric},
		{Name: "outlook_value", Type: dataset.Numeric},
		{Name: "actual_value", Type: dataset.Numeric},
	}, [][]any{
		{"2024-04", 1200.0, 1150.0, 1100.0},
		{"2024-05", 1250.0, 1300.0, 1000.0},
	})

	b := New(Config{})
	spec := b.Build(plan.Plan{
		Intent: plan.IntentForecastVsActual,
		Metric: "issuance",
		Window: "last_full_quarter",
	}, ds)

	assert.Equal(t, KindBars, spec.Kind)
	assert.Equal(t, "Issuance: Forecast vs Actual (Last Full Quarter)", spec.Title)
	require.NotNil(t, spec.Bars)
	require.Len(t, spec.Bars.Series, 3)
	assert.Equal(t, "Forecast", spec.Bars.Series[0].Name)
	assert.Equal(t, "Outlook", spec.Bars.Series[1].Name)
	assert.Equal(t, "Actual", spec.Bars.Series[2].Name)
}

func TestBuildFunnelDeclaredOrder(t *testing.T) {
	// Rows arrive in data order; the chart must render declared stage order.
	ds := mustDataset(t, []dataset.Column{
		{Name: "stage", Type: dataset.Categorical},
		{Name: "stage_order", Type: dataset.Numeric},
		{Name: "value_amt", Type: dataset.Numeric},
		{Name: "value_count", Type: dataset.Numeric},
	}, [][]any{
		{"Issuances", 3, 1200000.0, 100},
		{"Submissions", 1, 9800000.0, 800},
		{"Approvals", 2, 2600000.0, 200},
	})

	b := New(Config{})
	spec := b.Build(plan.Plan{Intent: plan.IntentFunnel}, ds)

	assert.Equal(t, KindFunnel, spec.Kind)
	require.NotNil(t, spec.Funnel)
	assert.Equal(t, []string{"Submissions", "Approvals", "Issuances"}, spec.Funnel.Stages)
	assert.Equal(t, []float64{9800000, 2600000, 1200000}, spec.Funnel.Amounts)
	assert.Equal(t, []float64{800, 200, 100}, spec.Funnel.Counts)
}

func TestBuildDistributionPie(t *testing.T) {
	ds := mustDataset(t, []dataset.Column{
		{Name: "segment_value", Type: dataset.Categorical},
		{Name: "metric_value", Type: dataset.Numeric},
		{Name: "record_count", Type: dataset.Numeric},
	}, [][]any{
		{"Email", 400.0, 120},
		{"Paid", 350.0, 90},
		{"Organic", nil, 60},
	})

	b := New(Config{})
	spec := b.Build(plan.Plan{
		Intent:  plan.IntentDistribution,
		Metric:  "issuance",
		GroupBy: "channel",
	}, ds)

	assert.Equal(t, KindPie, spec.Kind)
	require.NotNil(t, spec.Pie)
	// The null slice drops out.
	assert.Equal(t, []string{"Email", "Paid"}, spec.Pie.Labels)
	assert.Equal(t, []float64{400, 350}, spec.Pie.Values)
	assert.Len(t, spec.Pie.Colors, 2)
}

func TestBuildDistributionHistogramFallback(t *testing.T) {
	cols := []dataset.Column{
		{Name: "segment_value", Type: dataset.Categorical},
		{Name: "metric_value", Type: dataset.Numeric},
	}
	rows := make([][]any, 9)
	for i := range rows {
		rows[i] = []any{string(rune('A' + i)), float64(100 - i)}
	}
	ds := mustDataset(t, cols, rows)

	b := New(Config{})
	spec := b.Build(plan.Plan{
		Intent:  plan.IntentDistribution,
		Metric:  "issuance",
		GroupBy: "purpose",
	}, ds)

	assert.Equal(t, KindHistogram, spec.Kind)
	assert.Nil(t, spec.Pie)
	require.NotNil(t, spec.Histogram)
	assert.Len(t, spec.Histogram.Labels, 9)
}

func TestBuildScatter(t *testing.T) {
	ds := mustDataset(t, []dataset.Column{
		{Name: "segment_value", Type: dataset.Categorical},
		{Name: "x_value", Type: dataset.Numeric},
		{Name: "y_value", Type: dataset.Numeric},
		{Name: "record_count", Type: dataset.Numeric},
	}, [][]any{
		{"P1", 712.0, 12.2, 40},
		{"P4", nil, 19.8, 55},
		{"P6", 641.0, 28.4, 35},
	})

	b := New(Config{})
	spec := b.Build(plan.Plan{
		Intent:    plan.IntentRelationship,
		Metric:    "avg_fico",
		Secondary: "avg_apr",
		GroupBy:   "grade",
	}, ds)

	assert.Equal(t, KindScatter, spec.Kind)
	require.NotNil(t, spec.Scatter)
	// The point with a null coordinate drops out.
	require.Len(t, spec.Scatter.Points, 2)
	assert.Equal(t, "P1", spec.Scatter.Points[0].Label)
	assert.Equal(t, 712.0, *spec.Scatter.Points[0].X)
	assert.Equal(t, 40.0, spec.Scatter.Points[0].Size)
	assert.Equal(t, "Avg Fico", spec.Scatter.XTitle)
	assert.Equal(t, "Avg Apr", spec.Scatter.YTitle)
}

func TestBuildWaterfall(t *testing.T) {
	ds := mustDataset(t, []dataset.Column{
		{Name: "segment_value", Type: dataset.Categorical},
		{Name: "forecast_value", Type: dataset.Numeric},
		{Name: "actual_value", Type: dataset.Numeric},
		{Name: "delta", Type: dataset.Numeric},
		{Name: "delta_pct", Type: dataset.Numeric},
	}, [][]any{
		{"Email", 500.0, 560.0, 60.0, 12.0},
		{"Paid", 400.0, 310.0, -90.0, -22.5},
		{"Organic", 300.0, 305.0, 5.0, 1.7},
	})

	b := New(Config{})
	spec := b.Build(plan.Plan{
		Intent:  plan.IntentForecastGap,
		Metric:  "issuance",
		GroupBy: "channel",
	}, ds)

	assert.Equal(t, KindWaterfall, spec.Kind)
	w := spec.Waterfall
	require.NotNil(t, w)

	require.Len(t, w.Labels, 5)
	assert.Equal(t, "Forecast", w.Labels[0])
	assert.Equal(t, "Actual", w.Labels[4])

	assert.Equal(t, MeasureAbsolute, w.Measures[0])
	assert.Equal(t, MeasureRelative, w.Measures[1])
	assert.Equal(t, MeasureRelative, w.Measures[2])
	assert.Equal(t, MeasureRelative, w.Measures[3])
	assert.Equal(t, MeasureTotal, w.Measures[4])

	assert.Equal(t, 0.0, w.Values[0])
	assert.Equal(t, 100.0, w.Values[4])

	// Relative contributions sum to 100 within rounding.
	var sum float64
	for i := 1; i < 4; i++ {
		sum += w.Values[i]
	}
	assert.InDelta(t, 100.0, sum, 0.0001)

	// Contribution percentage first, raw magnitude second.
	assert.Contains(t, w.Texts[1], "%")
	assert.Contains(t, w.Texts[1], "(+60)")
}

func TestBuildWaterfallZeroTotal(t *testing.T) {
	ds := mustDataset(t, []dataset.Column{
		{Name: "segment_value", Type: dataset.Categorical},
		{Name: "delta", Type: dataset.Numeric},
	}, [][]any{
		{"Email", 50.0},
		{"Paid", -50.0},
	})

	b := New(Config{})
	spec := b.Build(plan.Plan{
		Intent:  plan.IntentForecastGap,
		Metric:  "issuance",
		GroupBy: "channel",
	}, ds)

	assert.Equal(t, KindWaterfall, spec.Kind)
	assert.Nil(t, spec.Waterfall)
	assert.Equal(t, "No variance to display", spec.Note)
}

func TestBuildEmptyDataset(t *testing.T) {
	empty := mustDataset(t, []dataset.Column{
		{Name: "period", Type: dataset.Categorical},
		{Name: "metric_value", Type: dataset.Numeric},
	}, nil)

	b := New(Config{})
	for _, intent := range plan.Intents() {
		spec := b.Build(plan.Plan{Intent: intent, Metric: "issuance"}, empty)
		assert.Equal(t, "No data available", spec.Title, string(intent))
		assert.Equal(t, "No data to display", spec.Note, string(intent))
		assert.NotEmpty(t, spec.Kind, string(intent))
		assert.NotEmpty(t, spec.Layout.Background, string(intent))
	}
}

func TestBuildNilDataset(t *testing.T) {
	b := New(Config{})
	spec := b.Build(plan.Plan{Intent: plan.IntentTrend, Metric: "issuance"}, nil)
	assert.Equal(t, "No data to display", spec.Note)
}

func TestThemePalettes(t *testing.T) {
	b := New(Config{})

	light := b.Build(plan.Plan{Intent: plan.IntentTrend, Metric: "issuance"}, trendDataset(t))
	assert.Equal(t, plan.ThemeLight, light.Layout.Theme)
	assert.Equal(t, "#ffffff", light.Layout.Background)
	assert.Equal(t, "#2563eb", light.Line.Series[0].Color)

	dark := b.Build(plan.Plan{Intent: plan.IntentTrend, Metric: "issuance", Theme: plan.ThemeDark}, trendDataset(t))
	assert.Equal(t, plan.ThemeDark, dark.Layout.Theme)
	assert.Equal(t, "#111827", dark.Layout.Background)
	assert.Equal(t, "#60a5fa", dark.Line.Series[0].Color)
}

func TestThemeNeverAffectsData(t *testing.T) {
	b := New(Config{})
	p := plan.Plan{Intent: plan.IntentTrend, Metric: "issuance"}

	light := b.Build(p, trendDataset(t))
	p.Theme = plan.ThemeDark
	dark := b.Build(p, trendDataset(t))

	assert.Equal(t, light.Line.Series[0].X, dark.Line.Series[0].X)
	require.Len(t, dark.Line.Series[0].Y, len(light.Line.Series[0].Y))
	for i := range light.Line.Series[0].Y {
		assert.Equal(t, *light.Line.Series[0].Y[i], *dark.Line.Series[0].Y[i])
	}
}

func TestWindowTitles(t *testing.T) {
	assert.Equal(t, "Last 30 Days", windowTitle(plan.Plan{Window: "last_30d"}))
	assert.Equal(t, "Quarter to Date", windowTitle(plan.Plan{Window: "qtd"}))
	assert.Equal(t, "2024-01-01 to 2024-03-31", windowTitle(plan.Plan{Start: "2024-01-01", End: "2024-03-31"}))
	// Unset window falls back to the default window's label.
	assert.Equal(t, "Last 30 Days", windowTitle(plan.Plan{}))
}
