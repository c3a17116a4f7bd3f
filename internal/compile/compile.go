// Package compile renders analytical plans into parameterized SQL. The
// compiler is pure: the same plan, template and evaluation instant always
// produce the same compiled query.
package compile

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lendscope-labs/lendscope/internal/catalog"
	"github.com/lendscope-labs/lendscope/internal/plan"
)

// DefaultRowCap bounds every compiled query.
const DefaultRowCap = 10000

// DefaultWindow applies when a plan names neither a window nor a range.
const DefaultWindow = "last_30d"

const dateLayout = "2006-01-02"

// CompiledQuery is the executable form of a plan: SQL text with :named
// parameters plus their bindings. It is ephemeral; the pipeline discards it
// after execution.
type CompiledQuery struct {
	SQL         string
	Params      map[string]any
	RowCap      int
	Range       Range
	Granularity plan.Granularity
	Clamped     bool
}

// Config holds the compiler settings.
type Config struct {
	// WindowLimitDays caps non-explicit windows. Zero means
	// DefaultWindowLimitDays.
	WindowLimitDays int

	// RowCap is bound to the :row_cap parameter. Zero means DefaultRowCap.
	RowCap int

	Logger *slog.Logger
}

// Compiler fills template tokens from a plan. User-input problems are the
// validator's to reject; the compiler re-asserts them defensively and
// treats catalog inconsistencies as fatal.
type Compiler struct {
	limitDays int
	rowCap    int
	logger    *slog.Logger
}

// New creates a compiler from config, applying defaults for zero values.
func New(cfg Config) *Compiler {
	if cfg.WindowLimitDays <= 0 {
		cfg.WindowLimitDays = DefaultWindowLimitDays
	}
	if cfg.RowCap <= 0 {
		cfg.RowCap = DefaultRowCap
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Compiler{
		limitDays: cfg.WindowLimitDays,
		rowCap:    cfg.RowCap,
		logger:    cfg.Logger,
	}
}

// WindowLimitDays returns the configured non-explicit window cap.
func (c *Compiler) WindowLimitDays() int {
	return c.limitDays
}

// Compile resolves the plan's window, picks a granularity and fills every
// placeholder the template declares. The returned query carries only
// :named parameters; no plan value is ever interpolated into the SQL text.
func (c *Compiler) Compile(p plan.Plan, tpl catalog.Template, now time.Time) (CompiledQuery, error) {
	r, explicit, clamped, err := c.resolveRange(p, now)
	if err != nil {
		return CompiledQuery{}, err
	}
	if err := CheckSpan(r, explicit, c.limitDays); err != nil {
		return CompiledQuery{}, err
	}

	gran := p.Granularity
	if !gran.Valid() {
		gran = InferGranularity(r)
	}

	params := map[string]any{
		"start_date": r.Start.Format(dateLayout),
		"end_date":   r.End.Format(dateLayout),
		"row_cap":    c.rowCap,
	}

	tokens, err := c.tokenValues(p, tpl, gran, params)
	if err != nil {
		return CompiledQuery{}, err
	}

	sql := tpl.SQL
	for _, name := range tpl.Placeholders {
		val, ok := tokens[name]
		if !ok {
			return CompiledQuery{}, fmt.Errorf("template %q: no value for token {%s}", tpl.Intent, name)
		}
		sql = strings.ReplaceAll(sql, "{"+name+"}", val)
	}

	c.logger.Debug("plan compiled",
		"intent", string(p.Intent),
		"window", r.Start.Format(dateLayout)+".."+r.End.Format(dateLayout),
		"granularity", string(gran),
		"clamped", clamped,
	)

	return CompiledQuery{
		SQL:         sql,
		Params:      params,
		RowCap:      c.rowCap,
		Range:       r,
		Granularity: gran,
		Clamped:     clamped,
	}, nil
}

// resolveRange turns the plan's window identifier or explicit date pair
// into a concrete range. Non-explicit custom ranges are clamped to the
// limit; explicit ones pass through untouched.
func (c *Compiler) resolveRange(p plan.Plan, now time.Time) (Range, bool, bool, error) {
	if p.HasExplicitRange() {
		r, err := ParseRange(p.Start, p.End)
		if err != nil {
			return Range{}, false, false, err
		}
		if p.Explicit {
			return r, true, false, nil
		}
		r, clamped := ClampRange(r, c.limitDays)
		return r, false, clamped, nil
	}

	id := p.Window
	if id == "" {
		id = DefaultWindow
	}
	r, err := ResolveWindow(id, now)
	if err != nil {
		return Range{}, false, false, err
	}
	return r, false, false, nil
}

// tokenValues computes the substitution for every token the template
// declares. Filter predicates bind through params, never through the text.
func (c *Compiler) tokenValues(p plan.Plan, tpl catalog.Template, gran plan.Granularity, params map[string]any) (map[string]string, error) {
	table := p.Table
	if table == "" {
		table = tpl.Table
	}
	dateCol := p.DateColumn
	if dateCol == "" {
		dateCol = tpl.DateColumn
	}

	groupBy := p.GroupBy
	if groupBy == "" {
		groupBy = tpl.DefaultGroupBy
	}
	if groupBy != "" && !tpl.AcceptsDimension(groupBy) {
		return nil, fmt.Errorf("intent %q does not accept dimension %q", tpl.Intent, groupBy)
	}

	tokens := map[string]string{
		"table":    table,
		"date_col": dateCol,
	}

	for _, name := range tpl.Placeholders {
		switch name {
		case "table", "date_col":
			// already set

		case "period_expr":
			tokens[name] = PeriodExpr(gran, dateCol)

		case "metric_expr":
			expr, err := c.metricExpr(p.Metric, p.Modifier, tpl.Intent)
			if err != nil {
				return nil, err
			}
			tokens[name] = expr

		case "metric_selects":
			sel, err := c.metricSelects(p, tpl.Intent)
			if err != nil {
				return nil, err
			}
			tokens[name] = sel

		case "filters":
			clause, err := filterClause(p, tpl, params)
			if err != nil {
				return nil, err
			}
			tokens[name] = clause

		case "group_select":
			if groupBy == "" {
				tokens[name] = ""
			} else {
				tokens[name] = ", " + groupBy + " AS segment_value"
			}

		case "group_clause":
			if groupBy == "" {
				tokens[name] = ""
			} else {
				tokens[name] = ", segment_value"
			}

		case "order_extra":
			if groupBy == "" {
				tokens[name] = ""
			} else {
				tokens[name] = ", " + segmentOrderExpr(groupBy)
			}

		case "group_col":
			if groupBy == "" {
				return nil, fmt.Errorf("intent %q needs a group-by dimension", tpl.Intent)
			}
			tokens[name] = groupBy

		case "order_expr":
			if groupBy == "cr_fico_band" {
				tokens[name] = segmentOrderExpr(groupBy)
			} else {
				tokens[name] = "metric_value DESC"
			}

		case "forecast_col", "outlook_col", "actual_col":
			cols, err := catalog.ForecastColumns(p.Metric)
			if err != nil {
				return nil, fmt.Errorf("intent %q: %w", tpl.Intent, err)
			}
			tokens["forecast_col"] = cols.Forecast
			tokens["outlook_col"] = cols.Outlook
			tokens["actual_col"] = cols.Actual

		case "x_expr":
			expr, err := c.metricExpr(p.Metric, p.Modifier, tpl.Intent)
			if err != nil {
				return nil, err
			}
			tokens[name] = expr

		case "y_expr":
			if p.Secondary == "" {
				return nil, fmt.Errorf("intent %q needs a secondary metric", tpl.Intent)
			}
			expr, err := c.metricExpr(p.Secondary, p.Modifier, tpl.Intent)
			if err != nil {
				return nil, err
			}
			tokens[name] = expr

		default:
			return nil, fmt.Errorf("template %q: unsupported token {%s}", tpl.Intent, name)
		}
	}

	return tokens, nil
}

func (c *Compiler) metricExpr(metric string, mod plan.Modifier, intent plan.Intent) (string, error) {
	if metric == "" {
		return "", fmt.Errorf("intent %q needs a metric", intent)
	}
	expr, err := catalog.MetricExpression(metric, mod)
	if err != nil {
		return "", fmt.Errorf("intent %q: %w", intent, err)
	}
	return expr, nil
}

// metricSelects renders one aliased expression per requested metric,
// aligned with the template's SELECT indentation.
func (c *Compiler) metricSelects(p plan.Plan, intent plan.Intent) (string, error) {
	metrics := p.Metrics
	if len(metrics) == 0 && p.Metric != "" {
		metrics = []string{p.Metric}
	}
	if len(metrics) == 0 {
		return "", fmt.Errorf("intent %q needs at least one metric", intent)
	}

	parts := make([]string, 0, len(metrics))
	for _, m := range metrics {
		expr, err := c.metricExpr(m, p.Modifier, intent)
		if err != nil {
			return "", err
		}
		parts = append(parts, expr+" AS "+m)
	}
	return strings.Join(parts, ",\n       "), nil
}

// filterClause appends one bound equality predicate per filtered dimension,
// in sorted dimension order so compilation stays deterministic.
func filterClause(p plan.Plan, tpl catalog.Template, params map[string]any) (string, error) {
	var b strings.Builder
	for _, dim := range p.FilterDimensions() {
		if !tpl.AcceptsDimension(dim) {
			return "", fmt.Errorf("intent %q does not accept dimension %q", tpl.Intent, dim)
		}
		name := "filter_" + dim
		fmt.Fprintf(&b, " AND %s = :%s", dim, name)
		params[name] = p.Filters[dim]
	}
	return b.String(), nil
}

// segmentOrderExpr orders segment axes. Credit bands use their fixed rank,
// everything else sorts by label.
func segmentOrderExpr(dim string) string {
	if dim == "cr_fico_band" {
		return catalog.FicoBandCase("segment_value")
	}
	return "segment_value"
}
