// Package main provides end-to-end tests for the LendScope CLI.
package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lendscope-labs/lendscope/internal/cli"
)

// runCLI executes the root command with args and returns its output.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// setupDemoMart provisions a small seeded mart and returns its path.
func setupDemoMart(t *testing.T) string {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "demo.db")
	out, err := runCLI(t, "setup", "--dsn", dsn, "--days", "40", "--seed", "7")
	if err != nil {
		t.Fatalf("setup error = %v, output: %s", err, out)
	}
	if !strings.Contains(out, "Demo mart ready") {
		t.Fatalf("setup output should contain 'Demo mart ready', got: %s", out)
	}
	return dsn
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Errorf("version command error = %v", err)
	}
	if !strings.Contains(out, "LendScope") {
		t.Errorf("version output should contain 'LendScope', got: %s", out)
	}
}

func TestHelpCommand(t *testing.T) {
	out, err := runCLI(t, "--help")
	if err != nil {
		t.Errorf("help command error = %v", err)
	}

	expectedCommands := []string{"query", "repl", "export", "catalog", "setup", "serve", "version"}
	for _, expected := range expectedCommands {
		if !strings.Contains(out, expected) {
			t.Errorf("help output should contain '%s', got: %s", expected, out)
		}
	}
}

func TestSetupCommand(t *testing.T) {
	dsn := setupDemoMart(t)

	if _, err := os.Stat(dsn); err != nil {
		t.Errorf("demo mart file should exist: %v", err)
	}
}

func TestQueryCommandFunnel(t *testing.T) {
	dsn := setupDemoMart(t)

	out, err := runCLI(t, "query", "funnel last_30d", "--dsn", dsn)
	if err != nil {
		t.Fatalf("query command error = %v, output: %s", err, out)
	}

	for _, want := range []string{"Submissions", "Approvals", "Issuances", "(3 rows)", "cache miss"} {
		if !strings.Contains(out, want) {
			t.Errorf("query output should contain %q, got: %s", want, out)
		}
	}
}

func TestQueryCommandJSON(t *testing.T) {
	dsn := setupDemoMart(t)

	out, err := runCLI(t, "query",
		`{"intent":"trend","metric":"issuance","window":"last_30d"}`,
		"--dsn", dsn, "--format", "json")
	if err != nil {
		t.Fatalf("query command error = %v, output: %s", err, out)
	}

	var res struct {
		Diagnostics struct {
			PlanHash string `json:"plan_hash"`
			RowCount int    `json:"row_count"`
		} `json:"diagnostics"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("query --format json should emit valid JSON: %v, got: %s", err, out)
	}
	if res.Diagnostics.PlanHash == "" {
		t.Error("diagnostics should carry the plan hash")
	}
	if res.Diagnostics.RowCount == 0 {
		t.Error("a 40-day mart should yield rows for last_30d")
	}
}

func TestQueryCommandFilter(t *testing.T) {
	dsn := setupDemoMart(t)

	out, err := runCLI(t, "query", "funnel last_30d channel=Email", "--dsn", dsn)
	if err != nil {
		t.Fatalf("query command error = %v, output: %s", err, out)
	}
	if !strings.Contains(out, "(3 rows)") {
		t.Errorf("filtered funnel should still return the three stages, got: %s", out)
	}
}

func TestQueryCommandRejectsBadFilterValue(t *testing.T) {
	dsn := setupDemoMart(t)

	_, err := runCLI(t, "query", "funnel last_30d channel=Nonsense", "--dsn", dsn)
	if err == nil {
		t.Fatal("a filter value missing from the mart should be rejected")
	}
	if !strings.Contains(err.Error(), "channel") {
		t.Errorf("rejection should name the dimension, got: %v", err)
	}
}

func TestQueryExplain(t *testing.T) {
	out, err := runCLI(t, "query", "--explain", "trend issuance last_full_month")
	if err != nil {
		t.Fatalf("query --explain error = %v, output: %s", err, out)
	}

	for _, want := range []string{"SELECT", "range:", ":start_date", ":end_date"} {
		if !strings.Contains(out, want) {
			t.Errorf("explain output should contain %q, got: %s", want, out)
		}
	}
}

func TestQueryRejectsUnknownIntent(t *testing.T) {
	_, err := runCLI(t, "query", "histogram issuance")
	if err == nil || !strings.Contains(err.Error(), "unknown intent") {
		t.Errorf("unknown intent should be rejected, got: %v", err)
	}
}

func TestQueryRejectsUnknownFormat(t *testing.T) {
	_, err := runCLI(t, "query", "funnel", "--format", "yaml")
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Errorf("unknown format should be rejected, got: %v", err)
	}
}

func TestExportCommand(t *testing.T) {
	dsn := setupDemoMart(t)
	outPath := filepath.Join(t.TempDir(), "funnel.csv")

	out, err := runCLI(t, "export", "funnel last_30d", "--dsn", dsn, "--output", outPath)
	if err != nil {
		t.Fatalf("export command error = %v, output: %s", err, out)
	}
	if !strings.Contains(out, "wrote") {
		t.Errorf("export should report the bytes written, got: %s", out)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("export file should exist: %v", err)
	}
	if !strings.HasPrefix(string(data), "stage,stage_order,value_amt,value_count") {
		t.Errorf("export CSV should start with the funnel header, got: %s", data)
	}
}

func TestCatalogCommand(t *testing.T) {
	out, err := runCLI(t, "catalog")
	if err != nil {
		t.Fatalf("catalog command error = %v", err)
	}

	for _, want := range []string{"Intents:", "funnel", "Metrics:", "Windows:", "last_30d", "Segments:"} {
		if !strings.Contains(out, want) {
			t.Errorf("catalog output should contain %q, got: %s", want, out)
		}
	}
}

func TestCatalogSegmentsCommand(t *testing.T) {
	out, err := runCLI(t, "catalog", "segments", "channel")
	if err != nil {
		t.Fatalf("catalog segments error = %v", err)
	}
	if !strings.Contains(out, "Email") {
		t.Errorf("channel segments should list Email, got: %s", out)
	}
}
