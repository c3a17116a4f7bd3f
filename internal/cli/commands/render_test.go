package commands

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendscope-labs/lendscope/internal/analytics"
	"github.com/lendscope-labs/lendscope/internal/dataset"
	"github.com/lendscope-labs/lendscope/internal/pipeline"
)

func renderTestDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.New(
		[]dataset.Column{
			{Name: "month_start", Type: dataset.Temporal},
			{Name: "channel", Type: dataset.Categorical},
			{Name: "issuance", Type: dataset.Numeric},
		},
		[][]any{
			{time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), "Small Partners", 125000.0},
			{time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), "Email", nil},
		},
		false,
	)
	require.NoError(t, err)
	return ds
}

func TestKnownFormat(t *testing.T) {
	for _, f := range []string{"table", "json", "csv", "md", "markdown"} {
		assert.True(t, knownFormat(f), "format %q should be known", f)
	}
	for _, f := range []string{"", "xml", "TABLE", "yaml"} {
		assert.False(t, knownFormat(f), "format %q should be unknown", f)
	}
}

func TestRenderDatasetTable(t *testing.T) {
	buf := new(bytes.Buffer)
	renderDatasetTable(buf, renderTestDataset(t))

	out := buf.String()
	assert.Contains(t, out, "2024-04-01")
	assert.Contains(t, out, "Small Partners")
	assert.Contains(t, out, "125000")
	assert.Contains(t, out, "NULL")
	assert.Contains(t, out, "(2 rows)")
}

func TestRenderDatasetTableEmpty(t *testing.T) {
	ds, err := dataset.New([]dataset.Column{{Name: "x", Type: dataset.Numeric}}, nil, false)
	require.NoError(t, err)

	buf := new(bytes.Buffer)
	renderDatasetTable(buf, ds)

	assert.Equal(t, "(0 rows)\n", buf.String())
}

func TestRenderDatasetCSV(t *testing.T) {
	buf := new(bytes.Buffer)
	renderDatasetCSV(buf, renderTestDataset(t))

	want := "month_start,channel,issuance\n" +
		"2024-04-01,Small Partners,125000\n" +
		"2024-05-01,Email,\n"
	assert.Equal(t, want, buf.String())
}

func TestRenderDatasetMarkdown(t *testing.T) {
	buf := new(bytes.Buffer)
	renderDatasetMarkdown(buf, renderTestDataset(t))

	out := buf.String()
	assert.Contains(t, out, "| month_start | channel | issuance |")
	assert.Contains(t, out, "| --- | --- | --- |")
	assert.Contains(t, out, "| 2024-05-01 | Email | NULL |")
}

func TestRenderInsight(t *testing.T) {
	buf := new(bytes.Buffer)
	renderInsight(buf, analytics.Insight{
		Title:   "Issuance trend",
		Summary: "Issuance held steady over the window.",
		Bullets: []string{"Peak week of 2024-04-08", "Small Partners led volume"},
	})

	out := buf.String()
	assert.Contains(t, out, "Issuance trend\n")
	assert.Contains(t, out, "  - Peak week of 2024-04-08\n")
	assert.Contains(t, out, "  - Small Partners led volume\n")
}

func TestRenderDiagnostics(t *testing.T) {
	buf := new(bytes.Buffer)
	renderDiagnostics(buf, pipeline.Diagnostics{PlanHash: "abc123", LatencyMS: 4})
	assert.Equal(t, "cache miss, 4ms, plan abc123\n", buf.String())

	buf.Reset()
	renderDiagnostics(buf, pipeline.Diagnostics{
		PlanHash:  "0123456789abcdef0123",
		LatencyMS: 12,
		CacheHit:  true,
		Truncated: true,
	})
	out := buf.String()
	assert.Contains(t, out, "cache hit, 12ms, plan 0123456789ab\n")
	assert.Contains(t, out, "warning: result truncated at the row cap")
}

func TestRenderResultJSON(t *testing.T) {
	buf := new(bytes.Buffer)
	res := pipeline.Result{
		Dataset:     renderTestDataset(t),
		Diagnostics: pipeline.Diagnostics{PlanHash: "abc123", RowCount: 2, LatencyMS: 4},
	}
	require.NoError(t, renderResult(buf, res, "json"))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	diag, ok := decoded["diagnostics"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "abc123", diag["plan_hash"])
}

func TestEscapeCSV(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"Direct Mail", "Direct Mail"},
		{"a,b", `"a,b"`},
		{`say "hi"`, `"say ""hi"""`},
		{"two\nlines", "\"two\nlines\""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeCSV(tt.in))
	}
}

func TestShortHash(t *testing.T) {
	assert.Equal(t, "abc", shortHash("abc"))
	assert.Equal(t, "0123456789ab", shortHash("0123456789abcdef"))
}
