package analytics

import (
	"math"
	"sort"

	"github.com/lendscope-labs/lendscope/internal/catalog"
	"github.com/lendscope-labs/lendscope/internal/dataset"
)

// maxDrivers caps each side of a ranked driver list.
const maxDrivers = 3

// RankDrivers splits a driver list into its top movers: up to three
// positive deltas in descending order and up to three negative deltas in
// ascending order (largest decline first). Ties break on absolute
// magnitude, then label. Zero deltas rank on neither side.
func RankDrivers(drivers []Driver) (positive, negative []Driver) {
	for _, d := range drivers {
		switch {
		case d.Delta > 0:
			positive = append(positive, d)
		case d.Delta < 0:
			negative = append(negative, d)
		}
	}

	sort.SliceStable(positive, func(i, j int) bool {
		if positive[i].Delta != positive[j].Delta {
			return positive[i].Delta > positive[j].Delta
		}
		return positive[i].Label < positive[j].Label
	})
	sort.SliceStable(negative, func(i, j int) bool {
		if negative[i].Delta != negative[j].Delta {
			return negative[i].Delta < negative[j].Delta
		}
		return negative[i].Label < negative[j].Label
	})

	if len(positive) > maxDrivers {
		positive = positive[:maxDrivers]
	}
	if len(negative) > maxDrivers {
		negative = negative[:maxDrivers]
	}
	return positive, negative
}

// point is one period label with its aggregated value.
type point struct {
	label string
	value float64
}

// periodTotals sums the value column per period, returned in first-seen
// period order. Rows arrive period-ordered from the mart, so first-seen
// order is chronological.
func periodTotals(ds *dataset.Dataset, periodIdx, valueIdx int) []point {
	totals := make(map[string]float64)
	var order []string
	for i := 0; i < ds.RowCount(); i++ {
		v, ok := ds.Float(i, valueIdx)
		if !ok {
			continue
		}
		label := ds.String(i, periodIdx)
		if _, seen := totals[label]; !seen {
			order = append(order, label)
		}
		totals[label] += v
	}
	series := make([]point, 0, len(order))
	for _, label := range order {
		series = append(series, point{label: label, value: totals[label]})
	}
	return series
}

// lastTwo returns the two most recent points of a series.
func lastTwo(series []point) (current, prior point, ok bool) {
	if len(series) < 2 {
		return point{}, point{}, false
	}
	return series[len(series)-1], series[len(series)-2], true
}

// segmentDrivers computes each segment's change between the two most
// recent periods of a grouped time series.
func segmentDrivers(ds *dataset.Dataset, periodIdx, segIdx, valueIdx int) []Driver {
	var order []string
	seen := make(map[string]bool)
	bySegment := make(map[string]map[string]float64)
	for i := 0; i < ds.RowCount(); i++ {
		v, ok := ds.Float(i, valueIdx)
		if !ok {
			continue
		}
		period := ds.String(i, periodIdx)
		if !seen[period] {
			seen[period] = true
			order = append(order, period)
		}
		seg := ds.String(i, segIdx)
		if bySegment[seg] == nil {
			bySegment[seg] = make(map[string]float64)
		}
		bySegment[seg][period] += v
	}
	if len(order) < 2 {
		return nil
	}
	currentPeriod, priorPeriod := order[len(order)-1], order[len(order)-2]

	segments := make([]string, 0, len(bySegment))
	for seg := range bySegment {
		segments = append(segments, seg)
	}
	sort.Strings(segments)

	drivers := make([]Driver, 0, len(segments))
	for _, seg := range segments {
		current := bySegment[seg][currentPeriod]
		prior := bySegment[seg][priorPeriod]
		d := Driver{Label: seg, Value: current, Delta: current - prior}
		if pct, ok := pctChange(prior, current); ok {
			p := pct
			d.DeltaPct = &p
		}
		drivers = append(drivers, d)
	}
	return drivers
}

// pctChange returns the percent change from prior to current, or false
// when the prior value is zero.
func pctChange(prior, current float64) (float64, bool) {
	if prior == 0 {
		return 0, false
	}
	return (current - prior) / math.Abs(prior) * 100, true
}

// ratio returns numerator/denominator, or false when the denominator is
// zero.
func ratio(numerator, denominator float64) (float64, bool) {
	if denominator == 0 {
		return 0, false
	}
	return numerator / denominator, true
}

func abs(v float64) float64 { return math.Abs(v) }

// axisColumn finds the named axis column, falling back to column zero
// when the dataset has no column of that name.
func axisColumn(ds *dataset.Dataset, name string) int {
	if idx := ds.ColumnIndex(name); idx >= 0 {
		return idx
	}
	if len(ds.Columns()) > 0 {
		return 0
	}
	return -1
}

// metricColumn picks the first numeric column that is neither an axis
// nor a display-metadata column.
func metricColumn(ds *dataset.Dataset, skip map[string]bool) int {
	for i, col := range ds.Columns() {
		if col.Type != dataset.Numeric || skip[col.Name] || catalog.IsMetadataColumn(col.Name) {
			continue
		}
		return i
	}
	return -1
}
