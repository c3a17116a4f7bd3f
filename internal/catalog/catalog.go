// Package catalog holds the immutable registry of query templates and the
// closed vocabularies (metrics, dimensions, windows) they bind against.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lendscope-labs/lendscope/internal/plan"
)

//go:embed templates.yaml
var templateSpecs []byte

// ErrNotFound is returned by Lookup for intents without a template.
var ErrNotFound = errors.New("template not found")

// Template is one parameterized query blueprint, immutable after load.
type Template struct {
	Intent         plan.Intent
	Description    string
	Table          string
	DateColumn     string
	SQL            string
	Placeholders   []string
	Dimensions     []string
	DefaultGroupBy string
	Columns        []string
}

// AcceptsDimension reports whether the template allows filtering or
// grouping by the dimension.
func (t Template) AcceptsDimension(dim string) bool {
	for _, d := range t.Dimensions {
		if d == dim {
			return true
		}
	}
	return false
}

// Catalog is the loaded template registry. Construct one with New and pass
// it where needed; there is no package-level instance.
type Catalog struct {
	templates map[plan.Intent]Template
	logger    *slog.Logger
}

// templateSpec is the YAML shape of one template.
type templateSpec struct {
	Intent         string   `yaml:"intent"`
	Description    string   `yaml:"description"`
	Table          string   `yaml:"table"`
	DateColumn     string   `yaml:"date_column"`
	Placeholders   []string `yaml:"placeholders"`
	Dimensions     []string `yaml:"dimensions"`
	DefaultGroupBy string   `yaml:"default_group_by"`
	Columns        []string `yaml:"columns"`
	SQL            string   `yaml:"sql"`
}

type specFile struct {
	Templates []templateSpec `yaml:"templates"`
}

// knownTokens is the full set of structural tokens the compiler can fill.
var knownTokens = map[string]bool{
	"table":          true,
	"date_col":       true,
	"period_expr":    true,
	"metric_expr":    true,
	"metric_selects": true,
	"filters":        true,
	"group_select":   true,
	"group_clause":   true,
	"group_col":      true,
	"order_extra":    true,
	"order_expr":     true,
	"forecast_col":   true,
	"outlook_col":    true,
	"actual_col":     true,
	"x_expr":         true,
	"y_expr":         true,
}

// requiredParams must be bound in every compiled query.
var requiredParams = []string{":start_date", ":end_date", ":row_cap"}

var tokenRe = regexp.MustCompile(`\{([a-z_]+)\}`)

// New loads and validates the embedded template specs. Any vocabulary
// mismatch fails the whole load; a partially valid catalog is never
// returned.
func New(logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var file specFile
	if err := yaml.Unmarshal(templateSpecs, &file); err != nil {
		return nil, fmt.Errorf("parse template specs: %w", err)
	}

	c := &Catalog{
		templates: make(map[plan.Intent]Template, len(file.Templates)),
		logger:    logger,
	}

	for _, spec := range file.Templates {
		tpl, err := buildTemplate(spec)
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", spec.Intent, err)
		}
		if _, dup := c.templates[tpl.Intent]; dup {
			return nil, fmt.Errorf("template %q: duplicate intent", spec.Intent)
		}
		c.templates[tpl.Intent] = tpl
	}

	for _, in := range plan.Intents() {
		if _, ok := c.templates[in]; !ok {
			return nil, fmt.Errorf("no template for intent %q", in)
		}
	}

	logger.Debug("template catalog loaded", "templates", len(c.templates))
	return c, nil
}

func buildTemplate(spec templateSpec) (Template, error) {
	intent := plan.Intent(spec.Intent)
	if !intent.Valid() {
		return Template{}, fmt.Errorf("unknown intent")
	}
	if spec.Table != TableEvents && spec.Table != TableForecast {
		return Template{}, fmt.Errorf("unknown table %q", spec.Table)
	}
	if spec.DateColumn == "" {
		return Template{}, fmt.Errorf("missing date column")
	}
	if len(spec.Columns) == 0 {
		return Template{}, fmt.Errorf("no declared output columns")
	}
	for _, d := range spec.Dimensions {
		if !KnownDimension(d) {
			return Template{}, fmt.Errorf("unknown dimension %q", d)
		}
	}
	if spec.DefaultGroupBy != "" && !KnownDimension(spec.DefaultGroupBy) {
		return Template{}, fmt.Errorf("unknown default group-by %q", spec.DefaultGroupBy)
	}

	declared := make(map[string]bool, len(spec.Placeholders))
	for _, p := range spec.Placeholders {
		if !knownTokens[p] {
			return Template{}, fmt.Errorf("unknown placeholder %q", p)
		}
		declared[p] = true
	}

	used := make(map[string]bool)
	for _, m := range tokenRe.FindAllStringSubmatch(spec.SQL, -1) {
		used[m[1]] = true
	}
	for tok := range used {
		if !declared[tok] {
			return Template{}, fmt.Errorf("token {%s} used but not declared", tok)
		}
	}
	for tok := range declared {
		if !used[tok] {
			return Template{}, fmt.Errorf("placeholder %q declared but unused", tok)
		}
	}

	for _, p := range requiredParams {
		if !strings.Contains(spec.SQL, p) {
			return Template{}, fmt.Errorf("missing required parameter %s", p)
		}
	}

	return Template{
		Intent:         intent,
		Description:    spec.Description,
		Table:          spec.Table,
		DateColumn:     spec.DateColumn,
		SQL:            strings.TrimSpace(spec.SQL),
		Placeholders:   append([]string(nil), spec.Placeholders...),
		Dimensions:     append([]string(nil), spec.Dimensions...),
		DefaultGroupBy: spec.DefaultGroupBy,
		Columns:        append([]string(nil), spec.Columns...),
	}, nil
}

// Lookup returns the template for an intent.
func (c *Catalog) Lookup(intent plan.Intent) (Template, error) {
	tpl, ok := c.templates[intent]
	if !ok {
		return Template{}, fmt.Errorf("intent %q: %w", intent, ErrNotFound)
	}
	return tpl, nil
}

// Templates returns all templates sorted by intent name.
func (c *Catalog) Templates() []Template {
	out := make([]Template, 0, len(c.templates))
	for _, t := range c.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Intent < out[j].Intent })
	return out
}

// NormalizePlan fills catalog-derived defaults so that semantically equal
// plans canonicalize (and therefore hash) identically: table and date
// column from the template, the amount modifier for flow metrics, and the
// template's default group-by for intents that need an axis.
func (c *Catalog) NormalizePlan(p plan.Plan) plan.Plan {
	tpl, ok := c.templates[p.Intent]
	if !ok {
		return p
	}
	if p.Table == "" {
		p.Table = tpl.Table
	}
	if p.DateColumn == "" {
		p.DateColumn = tpl.DateColumn
	}
	if p.Metric != "" && p.Modifier == "" {
		if kind, err := MetricKindOf(p.Metric); err == nil && kind == MetricFlow {
			p.Modifier = plan.ModifierAmount
		}
	}
	if p.GroupBy == "" && tpl.DefaultGroupBy != "" {
		p.GroupBy = tpl.DefaultGroupBy
	}
	return p
}
