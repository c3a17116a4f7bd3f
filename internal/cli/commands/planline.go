package commands

import (
	"fmt"
	"strings"

	"github.com/lendscope-labs/lendscope/internal/catalog"
	"github.com/lendscope-labs/lendscope/internal/plan"
)

// ParsePlanLine turns a compact REPL line into a plan. The grammar is
//
//	intent [metric] [window] [key=value]...
//
// The intent comes first; a bare word is the metric, or the window when it
// matches a known window identifier (funnel has no metric, so
// "funnel last_30d" reads naturally). Recognized keys map onto plan
// fields; any other key filters that dimension, so "channel=Email" narrows
// the rows the way a WHERE clause would.
func ParsePlanLine(line string) (plan.Plan, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return plan.Plan{}, fmt.Errorf("empty plan line")
	}

	p := plan.Plan{Intent: plan.Intent(fields[0])}
	if !p.Intent.Valid() {
		return plan.Plan{}, fmt.Errorf("unknown intent %q", fields[0])
	}

	var positional []string
	for _, tok := range fields[1:] {
		key, value, ok := strings.Cut(tok, "=")
		if !ok {
			positional = append(positional, tok)
			continue
		}
		if key == "" || value == "" {
			return plan.Plan{}, fmt.Errorf("malformed pair %q", tok)
		}
		if err := assignPlanKey(&p, key, value); err != nil {
			return plan.Plan{}, err
		}
	}

	switch len(positional) {
	case 0:
	case 1:
		// A single bare word is the window when it names one, otherwise
		// the metric.
		if catalog.KnownWindow(positional[0]) {
			p.Window = positional[0]
		} else {
			p.Metric = positional[0]
		}
	case 2:
		p.Metric, p.Window = positional[0], positional[1]
	default:
		return plan.Plan{}, fmt.Errorf("too many bare words in %q; use key=value pairs", line)
	}

	return p, nil
}

func assignPlanKey(p *plan.Plan, key, value string) error {
	switch key {
	case "metric":
		p.Metric = value
	case "metrics":
		p.Metrics = strings.Split(value, ",")
	case "modifier":
		p.Modifier = plan.Modifier(value)
	case "window":
		p.Window = value
	case "start":
		p.Start = value
	case "end":
		p.End = value
	case "explicit":
		switch value {
		case "true":
			p.Explicit = true
		case "false":
			p.Explicit = false
		default:
			return fmt.Errorf("explicit must be true or false, got %q", value)
		}
	case "granularity", "gran":
		p.Granularity = plan.Granularity(value)
	case "group_by", "groupby", "by":
		p.GroupBy = value
	case "secondary", "secondary_metric":
		p.Secondary = value
	case "chart", "chart_hint":
		p.ChartHint = value
	case "theme":
		p.Theme = plan.Theme(value)
	case "table":
		p.Table = value
	case "date_column":
		p.DateColumn = value
	default:
		// Everything else is a dimension filter.
		if p.Filters == nil {
			p.Filters = make(map[string]string)
		}
		p.Filters[key] = value
	}
	return nil
}
