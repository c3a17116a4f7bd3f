package compile

import (
	"fmt"
	"time"

	"github.com/lendscope-labs/lendscope/internal/plan"
)

// DefaultWindowLimitDays caps non-explicit windows. Named windows stay
// within it by construction; custom ranges are clamped unless the range
// was the caller's explicit request.
const DefaultWindowLimitDays = 366

// Range is a half-open [Start, End) date interval at UTC midnight.
type Range struct {
	Start time.Time
	End   time.Time
}

// Days returns the span in whole days.
func (r Range) Days() int {
	return int(r.End.Sub(r.Start).Hours() / 24)
}

// Valid reports whether Start is strictly before End.
func (r Range) Valid() bool {
	return r.Start.Before(r.End)
}

// WindowTooLargeError covers every window policy violation: spans beyond
// the limit, inverted ranges, and unknown window identifiers.
type WindowTooLargeError struct {
	Window string
	Days   int
	Limit  int
	Reason string
}

func (e *WindowTooLargeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("time window %q: %s", e.Window, e.Reason)
	}
	return fmt.Sprintf("time window %q spans %d days, limit is %d", e.Window, e.Days, e.Limit)
}

// civil truncates an instant to UTC midnight.
func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// weekStart returns the Monday of the week containing d.
func weekStart(d time.Time) time.Time {
	wd := int(d.Weekday())
	if wd == 0 {
		wd = 7
	}
	return d.AddDate(0, 0, -(wd - 1))
}

// quarterStart returns the first day of the quarter containing d.
func quarterStart(d time.Time) time.Time {
	qm := time.Month((int(d.Month())-1)/3*3 + 1)
	return time.Date(d.Year(), qm, 1, 0, 0, 0, 0, time.UTC)
}

// ResolveWindow maps a named window identifier to a concrete half-open
// date range, deterministically for a given evaluation instant.
//
// Complete-period windows end strictly before the current period: the last
// full week is the most recent Monday-Sunday before this week, and trailing
// full months exclude the current partial month. To-date windows include
// today.
func ResolveWindow(id string, now time.Time) (Range, error) {
	today := civil(now)
	tomorrow := today.AddDate(0, 0, 1)
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	yearStart := time.Date(today.Year(), 1, 1, 0, 0, 0, 0, time.UTC)

	switch id {
	case "last_7d":
		return Range{Start: today.AddDate(0, 0, -7), End: today}, nil
	case "last_30d":
		return Range{Start: today.AddDate(0, 0, -30), End: today}, nil
	case "last_full_week":
		ws := weekStart(today)
		return Range{Start: ws.AddDate(0, 0, -7), End: ws}, nil
	case "last_full_month":
		return Range{Start: monthStart.AddDate(0, -1, 0), End: monthStart}, nil
	case "last_3_full_months":
		return Range{Start: monthStart.AddDate(0, -3, 0), End: monthStart}, nil
	case "last_full_quarter":
		qs := quarterStart(today)
		return Range{Start: qs.AddDate(0, -3, 0), End: qs}, nil
	case "last_full_year":
		return Range{Start: yearStart.AddDate(-1, 0, 0), End: yearStart}, nil
	case "qtd":
		return Range{Start: quarterStart(today), End: tomorrow}, nil
	case "mtd":
		return Range{Start: monthStart, End: tomorrow}, nil
	case "ytd":
		return Range{Start: yearStart, End: tomorrow}, nil
	default:
		return Range{}, &WindowTooLargeError{Window: id, Reason: "unknown window identifier"}
	}
}

// ParseRange parses an explicit start/end date pair.
func ParseRange(start, end string) (Range, error) {
	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		return Range{}, &WindowTooLargeError{Window: start, Reason: "invalid start date"}
	}
	e, err := time.Parse("2006-01-02", end)
	if err != nil {
		return Range{}, &WindowTooLargeError{Window: end, Reason: "invalid end date"}
	}
	r := Range{Start: civil(s), End: civil(e)}
	if !r.Valid() {
		return Range{}, &WindowTooLargeError{
			Window: start + ".." + end,
			Reason: "start date is not before end date",
		}
	}
	return r, nil
}

// ClampRange trims a range to its most recent limitDays days. The second
// return reports whether clamping happened.
func ClampRange(r Range, limitDays int) (Range, bool) {
	if r.Days() <= limitDays {
		return r, false
	}
	return Range{Start: r.End.AddDate(0, 0, -limitDays), End: r.End}, true
}

// CheckSpan re-asserts the window policy on a resolved range: explicit
// ranges may be arbitrarily wide, everything else must fit the limit.
func CheckSpan(r Range, explicit bool, limitDays int) error {
	if !r.Valid() {
		return &WindowTooLargeError{
			Window: r.Start.Format("2006-01-02") + ".." + r.End.Format("2006-01-02"),
			Reason: "start date is not before end date",
		}
	}
	if explicit {
		return nil
	}
	if d := r.Days(); d > limitDays {
		return &WindowTooLargeError{
			Window: r.Start.Format("2006-01-02") + ".." + r.End.Format("2006-01-02"),
			Days:   d,
			Limit:  limitDays,
		}
	}
	return nil
}

// InferGranularity picks weekly buckets for windows up to thirteen weeks
// and monthly beyond.
func InferGranularity(r Range) plan.Granularity {
	if r.Days() <= 13*7 {
		return plan.GranularityWeekly
	}
	return plan.GranularityMonthly
}

// PeriodExpr renders the period bucketing expression for a granularity.
func PeriodExpr(g plan.Granularity, col string) string {
	switch g {
	case plan.GranularityDaily:
		return fmt.Sprintf("date(%s)", col)
	case plan.GranularityMonthly:
		return fmt.Sprintf("strftime('%%Y-%%m', %s)", col)
	default:
		return fmt.Sprintf("strftime('%%Y-W%%W', %s)", col)
	}
}
