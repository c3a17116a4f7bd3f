package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/lendscope-labs/lendscope/internal/analytics"
	"github.com/lendscope-labs/lendscope/internal/dataset"
	"github.com/lendscope-labs/lendscope/internal/pipeline"
)

// Output formats for query results.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatCSV   = "csv"
	formatMD    = "md"
)

func knownFormat(f string) bool {
	switch f {
	case formatTable, formatJSON, formatCSV, formatMD, "markdown":
		return true
	}
	return false
}

// renderResult writes one query result in the requested format. The table
// format is the human view: narrative, data, then a diagnostics line.
// json carries the full result including the chart spec; csv and md carry
// the dataset only.
func renderResult(w io.Writer, res pipeline.Result, format string) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case formatCSV:
		renderDatasetCSV(w, res.Dataset)
		return nil
	case formatMD, "markdown":
		renderDatasetMarkdown(w, res.Dataset)
		return nil
	default:
		renderInsight(w, res.Insight)
		renderDatasetTable(w, res.Dataset)
		renderDiagnostics(w, res.Diagnostics)
		return nil
	}
}

func renderInsight(w io.Writer, ins analytics.Insight) {
	_, _ = fmt.Fprintln(w, ins.Title)
	_, _ = fmt.Fprintln(w, ins.Summary)
	for _, b := range ins.Bullets {
		_, _ = fmt.Fprintf(w, "  - %s\n", b)
	}
	_, _ = fmt.Fprintln(w)
}

func renderDatasetTable(w io.Writer, ds *dataset.Dataset) {
	if ds.Empty() {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return
	}

	cols := ds.Columns()

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	headerRow := make(table.Row, len(cols))
	for i, col := range cols {
		headerRow[i] = col.Name
	}
	t.AppendHeader(headerRow)

	for r := 0; r < ds.RowCount(); r++ {
		row := make(table.Row, len(cols))
		for c := range cols {
			row[c] = cellLabel(ds, r, c)
		}
		t.AppendRow(row)
	}

	t.Render()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", ds.RowCount())
}

func renderDatasetCSV(w io.Writer, ds *dataset.Dataset) {
	cols := ds.Columns()
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
	}
	_, _ = fmt.Fprintln(w, strings.Join(names, ","))

	for r := 0; r < ds.RowCount(); r++ {
		values := make([]string, len(cols))
		for c := range cols {
			values[c] = escapeCSV(ds.String(r, c))
		}
		_, _ = fmt.Fprintln(w, strings.Join(values, ","))
	}
}

func renderDatasetMarkdown(w io.Writer, ds *dataset.Dataset) {
	if ds.Empty() {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return
	}

	cols := ds.Columns()
	names := make([]string, len(cols))
	seps := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
		seps[i] = "---"
	}
	_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(names, " | "))
	_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(seps, " | "))

	for r := 0; r < ds.RowCount(); r++ {
		values := make([]string, len(cols))
		for c := range cols {
			values[c] = cellLabel(ds, r, c)
		}
		_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(values, " | "))
	}
}

func renderDiagnostics(w io.Writer, d pipeline.Diagnostics) {
	cacheState := "miss"
	if d.CacheHit {
		cacheState = "hit"
	}
	_, _ = fmt.Fprintf(w, "cache %s, %dms, plan %s\n", cacheState, d.LatencyMS, shortHash(d.PlanHash))
	if d.Truncated {
		_, _ = fmt.Fprintln(w, "warning: result truncated at the row cap")
	}
}

// cellLabel renders a cell for the human-facing views, marking nulls
// explicitly. Machine formats use Dataset.String, which leaves them empty.
func cellLabel(ds *dataset.Dataset, row, col int) string {
	if ds.Value(row, col) == nil {
		return "NULL"
	}
	return ds.String(row, col)
}

func escapeCSV(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
