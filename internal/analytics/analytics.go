// Package analytics derives the deterministic narrative insight for a
// result dataset: period deltas, ranked segment drivers, funnel conversion
// and forecast accuracy. All text is assembled from computed numbers;
// nothing here generates free-form prose.
package analytics

import (
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/lendscope-labs/lendscope/internal/catalog"
	"github.com/lendscope-labs/lendscope/internal/dataset"
	"github.com/lendscope-labs/lendscope/internal/plan"
)

// maxBullets caps the supporting bullet list of an insight.
const maxBullets = 3

// Driver is one segment's contribution to a change.
type Driver struct {
	Label    string   `json:"label"`
	Value    float64  `json:"value"`
	Delta    float64  `json:"delta"`
	DeltaPct *float64 `json:"delta_pct,omitempty"`
}

// Insight is the narrative derived from one dataset: exactly one headline
// sentence, up to three bullets, and the ranked driver list when the
// intent has one.
type Insight struct {
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Bullets []string `json:"bullets,omitempty"`
	Drivers []Driver `json:"drivers,omitempty"`
}

// Config holds the engine settings.
type Config struct {
	Logger *slog.Logger
}

// Engine computes insights. It is stateless and safe for concurrent use.
type Engine struct {
	logger  *slog.Logger
	printer *message.Printer
}

// New creates an engine from config.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		logger:  cfg.Logger,
		printer: message.NewPrinter(language.English),
	}
}

// Narrate derives the insight for a plan's dataset. It never fails: an
// empty dataset or any internal fault degrades to a generic headline with
// no bullets.
func (e *Engine) Narrate(p plan.Plan, ds *dataset.Dataset) (out Insight) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("insight computation failed",
				"intent", string(p.Intent), "panic", fmt.Sprint(r))
			out = e.generic(p, "No insight available for this result.")
		}
	}()

	if ds == nil || ds.Empty() {
		return e.generic(p, "No data available for the selected period.")
	}

	var (
		in  Insight
		err error
	)
	switch p.Intent {
	case plan.IntentTrend:
		in, err = e.trendInsight(p, ds)
	case plan.IntentVariance:
		in, err = e.varianceInsight(p, ds)
	case plan.IntentForecastVsActual:
		in, err = e.forecastInsight(p, ds)
	case plan.IntentForecastGap:
		in, err = e.forecastGapInsight(p, ds)
	case plan.IntentFunnel:
		in, err = e.funnelInsight(p, ds)
	case plan.IntentDistribution:
		in, err = e.distributionInsight(p, ds)
	case plan.IntentRelationship:
		in, err = e.relationshipInsight(p, ds)
	case plan.IntentMultiMetric:
		in, err = e.multiMetricInsight(p, ds)
	default:
		err = fmt.Errorf("unknown intent %q", p.Intent)
	}
	if err != nil {
		e.logger.Warn("insight computation degraded",
			"intent", string(p.Intent), "error", err)
		return e.generic(p, "No insight available for this result.")
	}

	if len(in.Bullets) > maxBullets {
		in.Bullets = in.Bullets[:maxBullets]
	}
	return in
}

func (e *Engine) generic(p plan.Plan, summary string) Insight {
	return Insight{Title: titleFor(p.Intent), Summary: summary}
}

func (e *Engine) trendInsight(p plan.Plan, ds *dataset.Dataset) (Insight, error) {
	periodIdx := axisColumn(ds, "period")
	valueIdx := metricColumn(ds, map[string]bool{"period": true, "segment_value": true})
	if periodIdx < 0 || valueIdx < 0 {
		return Insight{}, fmt.Errorf("trend dataset lacks period or metric column")
	}

	currency, percentage := metricStyle(p.Metric, p.Modifier)

	series := periodTotals(ds, periodIdx, valueIdx)
	if len(series) == 0 {
		return Insight{}, fmt.Errorf("no numeric periods")
	}

	var total float64
	for _, pt := range series {
		total += pt.value
	}
	first, last := series[0].value, series[len(series)-1].value

	label := metricLabel(p.Metric)
	summary := e.printer.Sprintf("%s held steady across %d periods (total %s).",
		label, len(series), e.formatNumber(total, currency, percentage))
	if growth, ok := pctChange(first, last); ok {
		switch {
		case growth <= -5:
			summary = e.printer.Sprintf("%s declined %.1f%% across %d periods (total %s).",
				label, growth, len(series), e.formatNumber(total, currency, percentage))
		case growth >= 5:
			summary = e.printer.Sprintf("%s grew %+.1f%% across %d periods (total %s).",
				label, growth, len(series), e.formatNumber(total, currency, percentage))
		}
	}

	var bullets []string
	bullets = append(bullets, e.printer.Sprintf("Latest period %s: %s",
		series[len(series)-1].label, e.formatNumber(last, currency, percentage)))
	if current, prior, ok := lastTwo(series); ok {
		delta := current.value - prior.value
		if pct, ok := pctChange(prior.value, current.value); ok {
			bullets = append(bullets, e.printer.Sprintf("Change vs prior period: %s (%+.1f%%)",
				e.formatNumber(delta, currency, false), pct))
		} else {
			bullets = append(bullets, e.printer.Sprintf("Change vs prior period: %s",
				e.formatNumber(delta, currency, false)))
		}
	}
	bullets = append(bullets, e.printer.Sprintf("Average per period: %s",
		e.formatNumber(total/float64(len(series)), currency, percentage)))

	// A segment axis turns the trend into a driver analysis between the
	// two most recent periods.
	var drivers []Driver
	if segIdx := ds.ColumnIndex("segment_value"); segIdx >= 0 {
		drivers = segmentDrivers(ds, periodIdx, segIdx, valueIdx)
		pos, neg := RankDrivers(drivers)
		drivers = append(pos, neg...)
	}

	return Insight{
		Title:   titleFor(p.Intent),
		Summary: summary,
		Bullets: bullets,
		Drivers: drivers,
	}, nil
}

func (e *Engine) varianceInsight(p plan.Plan, ds *dataset.Dataset) (Insight, error) {
	periodIdx := axisColumn(ds, "period")
	currentIdx := ds.ColumnIndex("current_value")
	deltaIdx := ds.ColumnIndex("delta")
	pctIdx := ds.ColumnIndex("delta_pct")
	if periodIdx < 0 || currentIdx < 0 || deltaIdx < 0 {
		return Insight{}, fmt.Errorf("variance dataset lacks expected columns")
	}

	currency, percentage := metricStyle(p.Metric, p.Modifier)
	last := ds.RowCount() - 1
	label := metricLabel(p.Metric)

	current, _ := ds.Float(last, currentIdx)
	period := ds.String(last, periodIdx)

	delta, hasDelta := ds.Float(last, deltaIdx)
	if !hasDelta {
		return Insight{
			Title:   titleFor(p.Intent),
			Summary: e.printer.Sprintf("%s was %s in %s; no prior period to compare.", label, e.formatNumber(current, currency, percentage), period),
		}, nil
	}

	direction := "up"
	if delta < 0 {
		direction = "down"
	}
	summary := e.printer.Sprintf("%s came in at %s for %s, %s %s",
		label, e.formatNumber(current, currency, percentage), period,
		direction, e.formatNumber(abs(delta), currency, false))
	if pctIdx >= 0 {
		if pct, ok := ds.Float(last, pctIdx); ok {
			summary += e.printer.Sprintf(" (%+.1f%%)", pct)
		}
	}
	summary += " versus the prior period."

	var bullets []string
	if priorIdx := ds.ColumnIndex("prior_value"); priorIdx >= 0 {
		if prior, ok := ds.Float(last, priorIdx); ok {
			bullets = append(bullets, e.printer.Sprintf("Prior period: %s", e.formatNumber(prior, currency, percentage)))
		}
	}
	if ds.RowCount() > 1 {
		bullets = append(bullets, e.printer.Sprintf("%d periods in window", ds.RowCount()))
	}

	return Insight{Title: titleFor(p.Intent), Summary: summary, Bullets: bullets}, nil
}

func (e *Engine) forecastInsight(p plan.Plan, ds *dataset.Dataset) (Insight, error) {
	forecastIdx := ds.ColumnIndex("forecast_value")
	actualIdx := ds.ColumnIndex("actual_value")
	outlookIdx := ds.ColumnIndex("outlook_value")
	if forecastIdx < 0 || actualIdx < 0 {
		return Insight{}, fmt.Errorf("forecast dataset lacks expected columns")
	}

	currency, _ := metricStyle(p.Metric, p.Modifier)
	label := metricLabel(p.Metric)

	var totalForecast, totalActual, totalOutlook float64
	for i := 0; i < ds.RowCount(); i++ {
		if v, ok := ds.Float(i, forecastIdx); ok {
			totalForecast += v
		}
		if v, ok := ds.Float(i, actualIdx); ok {
			totalActual += v
		}
		if outlookIdx >= 0 {
			if v, ok := ds.Float(i, outlookIdx); ok {
				totalOutlook += v
			}
		}
	}

	summary := e.printer.Sprintf("Actual %s reached %s against a %s forecast",
		label, e.formatNumber(totalActual, currency, false), e.formatNumber(totalForecast, currency, false))
	if attainment, ok := ratio(totalActual, totalForecast); ok {
		summary += e.printer.Sprintf(" (%.1f%% attainment)", attainment*100)
	}
	summary += "."

	var bullets []string
	bullets = append(bullets, e.printer.Sprintf("Gap to forecast: %s",
		e.formatNumber(totalActual-totalForecast, currency, false)))
	if outlookIdx >= 0 {
		bullets = append(bullets, e.printer.Sprintf("Gap to outlook: %s",
			e.formatNumber(totalActual-totalOutlook, currency, false)))
	}
	if errPct, ok := ratio(abs(totalActual-totalForecast), totalForecast); ok {
		bullets = append(bullets, e.printer.Sprintf("Absolute forecast error: %.1f%%", errPct*100))
	}

	return Insight{Title: titleFor(p.Intent), Summary: summary, Bullets: bullets}, nil
}

func (e *Engine) forecastGapInsight(p plan.Plan, ds *dataset.Dataset) (Insight, error) {
	segIdx := axisColumn(ds, "segment_value")
	deltaIdx := ds.ColumnIndex("delta")
	actualIdx := ds.ColumnIndex("actual_value")
	if segIdx < 0 || deltaIdx < 0 {
		return Insight{}, fmt.Errorf("gap dataset lacks expected columns")
	}
	pctIdx := ds.ColumnIndex("delta_pct")

	currency, _ := metricStyle(p.Metric, p.Modifier)
	label := metricLabel(p.Metric)

	var total float64
	drivers := make([]Driver, 0, ds.RowCount())
	for i := 0; i < ds.RowCount(); i++ {
		delta, ok := ds.Float(i, deltaIdx)
		if !ok {
			continue
		}
		total += delta
		d := Driver{Label: ds.String(i, segIdx), Delta: delta}
		if actualIdx >= 0 {
			d.Value, _ = ds.Float(i, actualIdx)
		}
		if pctIdx >= 0 {
			if pct, ok := ds.Float(i, pctIdx); ok {
				v := pct
				d.DeltaPct = &v
			}
		}
		drivers = append(drivers, d)
	}

	pos, neg := RankDrivers(drivers)

	relation := "exceed"
	if total < 0 {
		relation = "trail"
	}
	summary := e.printer.Sprintf("Actuals %s forecast by %s for %s across %d segments.",
		relation, e.formatNumber(abs(total), currency, false), label, ds.RowCount())

	var bullets []string
	if len(pos) > 0 {
		bullets = append(bullets, e.printer.Sprintf("Largest positive driver: %s (%s)",
			pos[0].Label, e.formatNumber(pos[0].Delta, currency, false)))
	}
	if len(neg) > 0 {
		bullets = append(bullets, e.printer.Sprintf("Largest negative driver: %s (%s)",
			neg[0].Label, e.formatNumber(neg[0].Delta, currency, false)))
	}

	return Insight{
		Title:   titleFor(p.Intent),
		Summary: summary,
		Bullets: bullets,
		Drivers: append(pos, neg...),
	}, nil
}

func (e *Engine) funnelInsight(p plan.Plan, ds *dataset.Dataset) (Insight, error) {
	stageIdx := axisColumn(ds, "stage")
	amtIdx := ds.ColumnIndex("value_amt")
	cntIdx := ds.ColumnIndex("value_count")
	if stageIdx < 0 || (amtIdx < 0 && cntIdx < 0) {
		return Insight{}, fmt.Errorf("funnel dataset lacks expected columns")
	}
	// Conversion runs on counts when present, amounts otherwise.
	valIdx := cntIdx
	currency := false
	if valIdx < 0 {
		valIdx = amtIdx
		currency = true
	}

	byStage := make(map[string]float64, ds.RowCount())
	for i := 0; i < ds.RowCount(); i++ {
		if v, ok := ds.Float(i, valIdx); ok {
			byStage[ds.String(i, stageIdx)] = v
		}
	}

	stages := catalog.FunnelStages
	base := byStage[stages[0]]

	var bullets []string
	for _, stage := range stages[1:] {
		if rate, ok := ratio(byStage[stage], base); ok {
			bullets = append(bullets, e.printer.Sprintf("%s: %s (%.1f%% of %s)",
				stage, e.formatNumber(byStage[stage], currency, false), rate*100, stages[0]))
		} else {
			bullets = append(bullets, e.printer.Sprintf("%s: %s",
				stage, e.formatNumber(byStage[stage], currency, false)))
		}
	}

	lastStage := stages[len(stages)-1]
	summary := e.printer.Sprintf("%s of %s %s converted end to end",
		e.formatNumber(byStage[lastStage], currency, false),
		e.formatNumber(base, currency, false),
		stages[0])
	if rate, ok := ratio(byStage[lastStage], base); ok {
		summary += e.printer.Sprintf(" (%.1f%%)", rate*100)
	}
	summary += "."

	return Insight{Title: titleFor(p.Intent), Summary: summary, Bullets: bullets}, nil
}

func (e *Engine) distributionInsight(p plan.Plan, ds *dataset.Dataset) (Insight, error) {
	segIdx := axisColumn(ds, "segment_value")
	valIdx := metricColumn(ds, map[string]bool{"segment_value": true})
	if segIdx < 0 || valIdx < 0 {
		return Insight{}, fmt.Errorf("distribution dataset lacks expected columns")
	}

	currency, percentage := metricStyle(p.Metric, p.Modifier)
	label := metricLabel(p.Metric)

	type slice struct {
		label string
		value float64
	}
	var slices []slice
	var total float64
	for i := 0; i < ds.RowCount(); i++ {
		v, ok := ds.Float(i, valIdx)
		if !ok {
			continue
		}
		slices = append(slices, slice{label: ds.String(i, segIdx), value: v})
		total += v
	}
	if len(slices) == 0 {
		return Insight{}, fmt.Errorf("no numeric slices")
	}
	sort.SliceStable(slices, func(i, j int) bool { return slices[i].value > slices[j].value })

	top := slices[0]
	summary := e.printer.Sprintf("%s leads %s", top.label, label)
	if share, ok := ratio(top.value, total); ok {
		summary += e.printer.Sprintf(" with %.1f%% of the total", share*100)
	}
	summary += e.printer.Sprintf(" across %d segments.", len(slices))

	var bullets []string
	bullets = append(bullets, e.printer.Sprintf("Top segment %s: %s",
		top.label, e.formatNumber(top.value, currency, percentage)))
	if len(slices) > 1 {
		bottom := slices[len(slices)-1]
		bullets = append(bullets, e.printer.Sprintf("Smallest segment %s: %s",
			bottom.label, e.formatNumber(bottom.value, currency, percentage)))
	}

	mean := total / float64(len(slices))
	drivers := make([]Driver, 0, len(slices))
	for _, s := range slices {
		d := Driver{Label: s.label, Value: s.value, Delta: s.value - mean}
		if pct, ok := pctChange(mean, s.value); ok {
			v := pct
			d.DeltaPct = &v
		}
		drivers = append(drivers, d)
	}
	pos, neg := RankDrivers(drivers)

	return Insight{
		Title:   titleFor(p.Intent),
		Summary: summary,
		Bullets: bullets,
		Drivers: append(pos, neg...),
	}, nil
}

func (e *Engine) relationshipInsight(p plan.Plan, ds *dataset.Dataset) (Insight, error) {
	segIdx := axisColumn(ds, "segment_value")
	xIdx := ds.ColumnIndex("x_value")
	yIdx := ds.ColumnIndex("y_value")
	if segIdx < 0 || xIdx < 0 || yIdx < 0 {
		return Insight{}, fmt.Errorf("relationship dataset lacks expected columns")
	}

	xLabel := metricLabel(p.Metric)
	yLabel := metricLabel(p.Secondary)

	maxX, maxY := 0, 0
	for i := 1; i < ds.RowCount(); i++ {
		if v, ok := ds.Float(i, xIdx); ok {
			if best, bok := ds.Float(maxX, xIdx); !bok || v > best {
				maxX = i
			}
		}
		if v, ok := ds.Float(i, yIdx); ok {
			if best, bok := ds.Float(maxY, yIdx); !bok || v > best {
				maxY = i
			}
		}
	}

	xCurrency, xPct := metricStyle(p.Metric, p.Modifier)
	yCurrency, yPct := metricStyle(p.Secondary, p.Modifier)

	xBest, _ := ds.Float(maxX, xIdx)
	yBest, _ := ds.Float(maxY, yIdx)

	summary := e.printer.Sprintf("%s peaks at %s (%s) while %s peaks at %s (%s) across %d segments.",
		xLabel, e.formatNumber(xBest, xCurrency, xPct), ds.String(maxX, segIdx),
		yLabel, e.formatNumber(yBest, yCurrency, yPct), ds.String(maxY, segIdx),
		ds.RowCount())

	return Insight{Title: titleFor(p.Intent), Summary: summary}, nil
}

func (e *Engine) multiMetricInsight(p plan.Plan, ds *dataset.Dataset) (Insight, error) {
	periodIdx := axisColumn(ds, "period")
	if periodIdx < 0 {
		return Insight{}, fmt.Errorf("multi-metric dataset lacks a period column")
	}

	currency := p.Modifier != plan.ModifierCount

	var bullets []string
	var names []string
	for i, col := range ds.Columns() {
		if i == periodIdx || col.Type != dataset.Numeric || catalog.IsMetadataColumn(col.Name) {
			continue
		}
		var total float64
		for r := 0; r < ds.RowCount(); r++ {
			if v, ok := ds.Float(r, i); ok {
				total += v
			}
		}
		names = append(names, metricLabel(col.Name))
		bullets = append(bullets, e.printer.Sprintf("%s total: %s",
			metricLabel(col.Name), e.formatNumber(total, currency, false)))
	}
	if len(names) == 0 {
		return Insight{}, fmt.Errorf("no metric columns")
	}

	summary := e.printer.Sprintf("%s tracked together across %d periods.",
		joinLabels(names), ds.RowCount())

	return Insight{Title: titleFor(p.Intent), Summary: summary, Bullets: bullets}, nil
}
