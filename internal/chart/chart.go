// Package chart derives a declarative visualization spec from a result
// dataset. The spec is a tagged variant: one kind per analytical intent,
// each arm carrying only the fields that kind needs. Rendering is the
// consumer's concern; nothing here draws.
package chart

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/lendscope-labs/lendscope/internal/catalog"
	"github.com/lendscope-labs/lendscope/internal/dataset"
	"github.com/lendscope-labs/lendscope/internal/plan"
)

// Kind tags the chart family of a spec.
type Kind string

const (
	KindLine      Kind = "line"
	KindBars      Kind = "bars"
	KindFunnel    Kind = "funnel"
	KindPie       Kind = "pie"
	KindHistogram Kind = "histogram"
	KindScatter   Kind = "scatter"
	KindWaterfall Kind = "waterfall"
)

// pieCategoryLimit is the slice count beyond which a distribution falls
// back from pie to histogram.
const pieCategoryLimit = 8

// Waterfall step measures.
const (
	MeasureAbsolute = "absolute"
	MeasureRelative = "relative"
	MeasureTotal    = "total"
)

// Series is one plotted trace: a shared categorical X axis and a
// null-safe Y column. Nil Y entries are gaps, never zeros.
type Series struct {
	Name  string     `json:"name"`
	X     []string   `json:"x"`
	Y     []*float64 `json:"y"`
	Color string     `json:"color,omitempty"`
	Fill  bool       `json:"fill,omitempty"`
}

// Line is the time-series arm shared by trend, variance and multi-metric
// charts.
type Line struct {
	Series []Series `json:"series"`
}

// Bars is the grouped-bar arm for forecast-vs-actual comparisons.
type Bars struct {
	Series []Series `json:"series"`
}

// Funnel is the staged-conversion arm. Stages render in declared order,
// never data order.
type Funnel struct {
	Stages  []string  `json:"stages"`
	Amounts []float64 `json:"amounts"`
	Counts  []float64 `json:"counts"`
	Colors  []string  `json:"colors,omitempty"`
}

// Pie is the share-of-total arm for small category sets.
type Pie struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
	Colors []string  `json:"colors,omitempty"`
}

// Histogram is the categorical-bar fallback for wide distributions.
type Histogram struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
	Color  string    `json:"color,omitempty"`
}

// Point is one scatter marker. Nil coordinates drop the point.
type Point struct {
	Label string   `json:"label"`
	X     *float64 `json:"x"`
	Y     *float64 `json:"y"`
	Size  float64  `json:"size,omitempty"`
}

// Scatter is the relationship arm.
type Scatter struct {
	Points []Point `json:"points"`
	XTitle string  `json:"x_title,omitempty"`
	YTitle string  `json:"y_title,omitempty"`
}

// Waterfall is the variance-decomposition arm: an absolute zero baseline,
// one relative percentage step per segment, and an absolute total of 100.
type Waterfall struct {
	Labels   []string  `json:"labels"`
	Measures []string  `json:"measures"`
	Values   []float64 `json:"values"`
	Texts    []string  `json:"texts"`
}

// Layout carries presentation metadata shared by every kind.
type Layout struct {
	Theme         plan.Theme `json:"theme"`
	Background    string     `json:"background"`
	Paper         string     `json:"paper"`
	Text          string     `json:"text"`
	Grid          string     `json:"grid"`
	CategoryOrder []string   `json:"category_order,omitempty"`
}

// Spec is the tagged chart variant. Exactly one arm matching Kind is
// populated; Note carries the placeholder text of an empty chart.
type Spec struct {
	Kind      Kind       `json:"kind"`
	Title     string     `json:"title"`
	Line      *Line      `json:"line,omitempty"`
	Bars      *Bars      `json:"bars,omitempty"`
	Funnel    *Funnel    `json:"funnel,omitempty"`
	Pie       *Pie       `json:"pie,omitempty"`
	Histogram *Histogram `json:"histogram,omitempty"`
	Scatter   *Scatter   `json:"scatter,omitempty"`
	Waterfall *Waterfall `json:"waterfall,omitempty"`
	Layout    Layout     `json:"layout"`
	Note      string     `json:"note,omitempty"`
}

// Config holds the builder settings.
type Config struct {
	Logger *slog.Logger
}

// Builder derives chart specs. It is stateless and safe for concurrent use.
type Builder struct {
	logger *slog.Logger
}

// New creates a builder from config.
func New(cfg Config) *Builder {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{logger: cfg.Logger}
}

// Build derives the chart spec for a plan's dataset. It never fails: an
// empty dataset or internal fault yields a well-typed spec with a
// placeholder note.
func (b *Builder) Build(p plan.Plan, ds *dataset.Dataset) (out Spec) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("chart build failed",
				"intent", string(p.Intent), "panic", fmt.Sprint(r))
			out = b.emptySpec(p)
		}
	}()

	if ds == nil || ds.Empty() {
		return b.emptySpec(p)
	}

	pal := paletteFor(p.Theme)
	spec := Spec{
		Kind:   kindFor(p),
		Title:  titleFor(p),
		Layout: layoutFor(p, pal),
	}

	switch spec.Kind {
	case KindLine:
		spec.Line = b.buildLine(p, ds, pal)
	case KindBars:
		spec.Bars = b.buildBars(p, ds, pal)
	case KindFunnel:
		spec.Funnel = b.buildFunnel(ds, pal)
	case KindPie, KindHistogram:
		labels, values := sliceColumns(ds)
		if len(labels) > pieCategoryLimit {
			spec.Kind = KindHistogram
			spec.Histogram = &Histogram{Labels: labels, Values: values, Color: pal.Primary}
		} else {
			spec.Kind = KindPie
			colors := make([]string, len(labels))
			for i := range labels {
				colors[i] = pal.seriesColor(i)
			}
			spec.Pie = &Pie{Labels: labels, Values: values, Colors: colors}
		}
	case KindScatter:
		spec.Scatter = b.buildScatter(p, ds)
	case KindWaterfall:
		w, ok := b.buildWaterfall(ds)
		if !ok {
			spec.Note = "No variance to display"
			break
		}
		spec.Waterfall = w
	}

	return spec
}

// emptySpec is the placeholder for zero-row datasets and build faults.
func (b *Builder) emptySpec(p plan.Plan) Spec {
	return Spec{
		Kind:   kindFor(p),
		Title:  "No data available",
		Layout: layoutFor(p, paletteFor(p.Theme)),
		Note:   "No data to display",
	}
}

// kindFor maps an intent to its chart family.
func kindFor(p plan.Plan) Kind {
	switch p.Intent {
	case plan.IntentForecastVsActual:
		return KindBars
	case plan.IntentFunnel:
		return KindFunnel
	case plan.IntentDistribution:
		return KindPie
	case plan.IntentRelationship:
		return KindScatter
	case plan.IntentForecastGap:
		return KindWaterfall
	default:
		return KindLine
	}
}

// layoutFor builds the theme layout, pinning the credit-band axis to its
// fixed rank order when that dimension is the grouping axis.
func layoutFor(p plan.Plan, pal Palette) Layout {
	l := Layout{
		Theme:      p.Theme,
		Background: pal.Background,
		Paper:      pal.Paper,
		Text:       pal.Text,
		Grid:       pal.Grid,
	}
	if l.Theme == "" {
		l.Theme = plan.ThemeLight
	}
	if p.GroupBy == "cr_fico_band" {
		l.CategoryOrder = append([]string(nil), catalog.FicoBandOrder...)
	}
	return l
}

func (b *Builder) buildLine(p plan.Plan, ds *dataset.Dataset, pal Palette) *Line {
	periodIdx := ds.ColumnIndex("period")
	if periodIdx < 0 {
		periodIdx = 0
	}

	if segIdx := ds.ColumnIndex("segment_value"); segIdx >= 0 {
		valueIdx := firstSeriesColumn(ds, map[int]bool{periodIdx: true, segIdx: true})
		if valueIdx < 0 {
			return &Line{}
		}
		return &Line{Series: segmentSeries(ds, periodIdx, segIdx, valueIdx, p.GroupBy, pal)}
	}

	x := axisLabels(ds, periodIdx)

	// A period-over-period dataset plots the current/prior pair; its
	// derived delta columns stay off the chart.
	if curIdx := ds.ColumnIndex("current_value"); curIdx >= 0 {
		series := []Series{{Name: "Current", X: x, Y: columnValues(ds, curIdx), Color: pal.Primary}}
		if priorIdx := ds.ColumnIndex("prior_value"); priorIdx >= 0 {
			series = append(series, Series{Name: "Prior", X: x, Y: columnValues(ds, priorIdx), Color: pal.Secondary})
		}
		return &Line{Series: series}
	}

	cols := seriesColumns(ds, map[int]bool{periodIdx: true})
	series := make([]Series, 0, len(cols))
	for i, col := range cols {
		s := Series{
			Name:  displayLabel(ds.Columns()[col].Name),
			X:     x,
			Y:     columnValues(ds, col),
			Color: pal.seriesColor(i),
		}
		if col == ds.ColumnIndex("metric_value") && p.Metric != "" {
			s.Name = displayLabel(p.Metric)
		}
		series = append(series, s)
	}
	// A single-series line may render as an area on request.
	if len(series) == 1 && strings.EqualFold(p.ChartHint, "area") {
		series[0].Fill = true
	}
	return &Line{Series: series}
}

func (b *Builder) buildBars(p plan.Plan, ds *dataset.Dataset, pal Palette) *Bars {
	periodIdx := ds.ColumnIndex("period")
	if periodIdx < 0 {
		periodIdx = 0
	}
	x := axisLabels(ds, periodIdx)

	groups := []struct {
		col   string
		name  string
		color string
	}{
		{"forecast_value", "Forecast", pal.Secondary},
		{"outlook_value", "Outlook", pal.Warning},
		{"actual_value", "Actual", pal.Primary},
	}
	var series []Series
	for _, g := range groups {
		idx := ds.ColumnIndex(g.col)
		if idx < 0 {
			continue
		}
		series = append(series, Series{Name: g.name, X: x, Y: columnValues(ds, idx), Color: g.color})
	}
	if len(series) == 0 {
		cols := seriesColumns(ds, map[int]bool{periodIdx: true})
		for i, col := range cols {
			series = append(series, Series{
				Name:  displayLabel(ds.Columns()[col].Name),
				X:     x,
				Y:     columnValues(ds, col),
				Color: pal.seriesColor(i),
			})
		}
	}
	return &Bars{Series: series}
}

func (b *Builder) buildFunnel(ds *dataset.Dataset, pal Palette) *Funnel {
	stageIdx := ds.ColumnIndex("stage")
	amtIdx := ds.ColumnIndex("value_amt")
	cntIdx := ds.ColumnIndex("value_count")

	amounts := make(map[string]float64)
	counts := make(map[string]float64)
	for i := 0; i < ds.RowCount(); i++ {
		if stageIdx < 0 {
			break
		}
		stage := ds.String(i, stageIdx)
		if amtIdx >= 0 {
			if v, ok := ds.Float(i, amtIdx); ok {
				amounts[stage] = v
			}
		}
		if cntIdx >= 0 {
			if v, ok := ds.Float(i, cntIdx); ok {
				counts[stage] = v
			}
		}
	}

	f := &Funnel{}
	for i, stage := range catalog.FunnelStages {
		f.Stages = append(f.Stages, stage)
		f.Amounts = append(f.Amounts, amounts[stage])
		f.Counts = append(f.Counts, counts[stage])
		f.Colors = append(f.Colors, pal.seriesColor(i))
	}
	return f
}

func (b *Builder) buildScatter(p plan.Plan, ds *dataset.Dataset) *Scatter {
	segIdx := ds.ColumnIndex("segment_value")
	xIdx := ds.ColumnIndex("x_value")
	yIdx := ds.ColumnIndex("y_value")
	sizeIdx := ds.ColumnIndex("record_count")
	if segIdx < 0 || xIdx < 0 || yIdx < 0 {
		return &Scatter{}
	}

	s := &Scatter{
		XTitle: displayLabel(p.Metric),
		YTitle: displayLabel(p.Secondary),
	}
	for i := 0; i < ds.RowCount(); i++ {
		pt := Point{Label: ds.String(i, segIdx)}
		if v, ok := ds.Float(i, xIdx); ok {
			x := v
			pt.X = &x
		}
		if v, ok := ds.Float(i, yIdx); ok {
			y := v
			pt.Y = &y
		}
		if pt.X == nil || pt.Y == nil {
			continue
		}
		if sizeIdx >= 0 {
			pt.Size, _ = ds.Float(i, sizeIdx)
		}
		s.Points = append(s.Points, pt)
	}
	return s
}

// buildWaterfall decomposes total variance into per-segment percentage
// contributions. The relative steps sum to 100 by construction. A zero
// total has no meaningful decomposition; ok is false.
func (b *Builder) buildWaterfall(ds *dataset.Dataset) (*Waterfall, bool) {
	segIdx := ds.ColumnIndex("segment_value")
	deltaIdx := ds.ColumnIndex("delta")
	if segIdx < 0 || deltaIdx < 0 {
		return nil, false
	}

	type step struct {
		label string
		delta float64
	}
	var steps []step
	var total float64
	for i := 0; i < ds.RowCount(); i++ {
		v, ok := ds.Float(i, deltaIdx)
		if !ok {
			continue
		}
		steps = append(steps, step{label: ds.String(i, segIdx), delta: v})
		total += v
	}
	if total == 0 || len(steps) == 0 {
		return nil, false
	}

	w := &Waterfall{
		Labels:   []string{"Forecast"},
		Measures: []string{MeasureAbsolute},
		Values:   []float64{0},
		Texts:    []string{""},
	}
	for _, s := range steps {
		pct := s.delta / total * 100
		w.Labels = append(w.Labels, s.label)
		w.Measures = append(w.Measures, MeasureRelative)
		w.Values = append(w.Values, pct)
		w.Texts = append(w.Texts, fmt.Sprintf("%+.1f%% (%+.0f)", pct, s.delta))
	}
	w.Labels = append(w.Labels, "Actual")
	w.Measures = append(w.Measures, MeasureTotal)
	w.Values = append(w.Values, 100)
	w.Texts = append(w.Texts, "")
	return w, true
}

// sliceColumns extracts the label/value pairs of a distribution,
// dropping null slices.
func sliceColumns(ds *dataset.Dataset) (labels []string, values []float64) {
	segIdx := ds.ColumnIndex("segment_value")
	if segIdx < 0 {
		segIdx = 0
	}
	valueIdx := firstSeriesColumn(ds, map[int]bool{segIdx: true})
	if valueIdx < 0 {
		return nil, nil
	}
	for i := 0; i < ds.RowCount(); i++ {
		v, ok := ds.Float(i, valueIdx)
		if !ok {
			continue
		}
		labels = append(labels, ds.String(i, segIdx))
		values = append(values, v)
	}
	return labels, values
}

// seriesColumns selects the plottable metric columns: numeric, not an
// axis, not display metadata. An empty candidate set falls back to the
// first numeric column so a chart always has one series to offer.
func seriesColumns(ds *dataset.Dataset, axes map[int]bool) []int {
	var cols []int
	for i, col := range ds.Columns() {
		if axes[i] || col.Type != dataset.Numeric || catalog.IsMetadataColumn(col.Name) {
			continue
		}
		cols = append(cols, i)
	}
	if len(cols) == 0 {
		for i, col := range ds.Columns() {
			if !axes[i] && col.Type == dataset.Numeric {
				return []int{i}
			}
		}
	}
	return cols
}

// firstSeriesColumn returns the first plottable metric column, or -1.
func firstSeriesColumn(ds *dataset.Dataset, axes map[int]bool) int {
	cols := seriesColumns(ds, axes)
	if len(cols) == 0 {
		return -1
	}
	return cols[0]
}

// axisLabels renders a column as the shared X axis, de-duplicated in
// first-seen order.
func axisLabels(ds *dataset.Dataset, col int) []string {
	var labels []string
	seen := make(map[string]bool)
	for i := 0; i < ds.RowCount(); i++ {
		label := ds.String(i, col)
		if seen[label] {
			continue
		}
		seen[label] = true
		labels = append(labels, label)
	}
	return labels
}

// columnValues extracts one column as a null-safe Y vector.
func columnValues(ds *dataset.Dataset, col int) []*float64 {
	values := make([]*float64, ds.RowCount())
	for i := 0; i < ds.RowCount(); i++ {
		if v, ok := ds.Float(i, col); ok {
			f := v
			values[i] = &f
		}
	}
	return values
}

// segmentSeries pivots a grouped time series into one trace per segment,
// aligned on the shared period axis. Credit bands order by fixed rank;
// everything else sorts by label.
func segmentSeries(ds *dataset.Dataset, periodIdx, segIdx, valueIdx int, groupBy string, pal Palette) []Series {
	x := axisLabels(ds, periodIdx)
	xPos := make(map[string]int, len(x))
	for i, label := range x {
		xPos[label] = i
	}

	bySegment := make(map[string][]*float64)
	var segments []string
	for i := 0; i < ds.RowCount(); i++ {
		seg := ds.String(i, segIdx)
		if _, ok := bySegment[seg]; !ok {
			bySegment[seg] = make([]*float64, len(x))
			segments = append(segments, seg)
		}
		if v, ok := ds.Float(i, valueIdx); ok {
			f := v
			bySegment[seg][xPos[ds.String(i, periodIdx)]] = &f
		}
	}

	if groupBy == "cr_fico_band" {
		sort.SliceStable(segments, func(i, j int) bool {
			ri, rj := catalog.FicoBandRank(segments[i]), catalog.FicoBandRank(segments[j])
			if ri < 0 {
				ri = len(catalog.FicoBandOrder)
			}
			if rj < 0 {
				rj = len(catalog.FicoBandOrder)
			}
			if ri != rj {
				return ri < rj
			}
			return segments[i] < segments[j]
		})
	} else {
		sort.Strings(segments)
	}

	series := make([]Series, 0, len(segments))
	for i, seg := range segments {
		series = append(series, Series{
			Name:  seg,
			X:     x,
			Y:     bySegment[seg],
			Color: pal.seriesColor(i),
		})
	}
	return series
}

var chartTitleCaser = cases.Title(language.English)

// displayLabel renders an identifier for chart text.
func displayLabel(name string) string {
	if name == "" {
		return ""
	}
	return chartTitleCaser.String(strings.ReplaceAll(name, "_", " "))
}

// windowTitles maps window identifiers to display names.
var windowTitles = map[string]string{
	"last_7d":            "Last 7 Days",
	"last_full_week":     "Last Full Week",
	"last_30d":           "Last 30 Days",
	"last_full_month":    "Last Full Month",
	"last_3_full_months": "Last 3 Full Months",
	"last_full_quarter":  "Last Full Quarter",
	"last_full_year":     "Last Full Year",
	"qtd":                "Quarter to Date",
	"mtd":                "Month to Date",
	"ytd":                "Year to Date",
}

// windowTitle renders the plan's time scope for a chart title.
func windowTitle(p plan.Plan) string {
	if p.HasExplicitRange() {
		return fmt.Sprintf("%s to %s", p.Start, p.End)
	}
	if title, ok := windowTitles[p.Window]; ok {
		return title
	}
	return "Last 30 Days"
}

// titleFor composes the chart title from the plan's metric, grouping and
// time scope.
func titleFor(p plan.Plan) string {
	metric := displayLabel(p.Metric)
	window := windowTitle(p)
	switch p.Intent {
	case plan.IntentTrend:
		if p.GroupBy != "" {
			return fmt.Sprintf("%s by %s (%s)", metric, displayLabel(p.GroupBy), window)
		}
		return fmt.Sprintf("%s Trend (%s)", metric, window)
	case plan.IntentVariance:
		return fmt.Sprintf("%s Period-over-Period (%s)", metric, window)
	case plan.IntentForecastVsActual:
		return fmt.Sprintf("%s: Forecast vs Actual (%s)", metric, window)
	case plan.IntentForecastGap:
		return fmt.Sprintf("%s Forecast Gap by %s (%s)", metric, displayLabel(p.GroupBy), window)
	case plan.IntentFunnel:
		return fmt.Sprintf("Acquisition Funnel (%s)", window)
	case plan.IntentDistribution:
		return fmt.Sprintf("%s by %s (%s)", metric, displayLabel(p.GroupBy), window)
	case plan.IntentRelationship:
		return fmt.Sprintf("%s vs %s by %s", metric, displayLabel(p.Secondary), displayLabel(p.GroupBy))
	case plan.IntentMultiMetric:
		return fmt.Sprintf("Metric Comparison (%s)", window)
	default:
		return metric
	}
}
