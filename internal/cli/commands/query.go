package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lendscope-labs/lendscope/internal/compile"
	"github.com/lendscope-labs/lendscope/internal/plan"
)

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Format  string
	Input   string
	Explain bool
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [PLAN]",
		Short: "Run an analytical query plan against the mart",
		Long: `Run one query plan through the full pipeline: validation, SQL
compilation, read-only execution, caching, chart derivation and the
narrative insight.

The plan is a JSON document naming an intent, a metric, a time window and
optional filters, or the compact line form the REPL uses:
intent [metric] [window] [key=value ...]. Pass it inline, from a file with
--input, or piped on stdin. When invoked without input on a terminal,
enters interactive mode.`,
		Example: `  # Run a plan given inline
  lendscope query '{"intent":"trend","metric":"issuance","window":"last_full_month"}'

  # The compact form does the same
  lendscope query 'trend issuance last_full_month'

  # Read the plan from a file
  lendscope query --input plan.json

  # Pipe a plan in
  echo '{"intent":"funnel","window":"last_30d"}' | lendscope query --format json

  # Show the compiled SQL without executing
  lendscope query --explain '{"intent":"trend","metric":"issuance"}'

  # Interactive mode
  lendscope query`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "table", "Output format: table, json, csv, md")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read the plan from a file")
	cmd.Flags().BoolVar(&opts.Explain, "explain", false, "Print the compiled SQL and parameters without executing")

	return cmd
}

func runQuery(cmd *cobra.Command, args []string, opts *QueryOptions) error {
	if !knownFormat(opts.Format) {
		return fmt.Errorf("unknown format %q (expected table, json, csv, md)", opts.Format)
	}

	// Determine the plan source
	var raw []byte

	switch {
	case len(args) > 0:
		raw = []byte(strings.Join(args, " "))
	case opts.Input != "":
		content, err := os.ReadFile(opts.Input)
		if err != nil {
			return fmt.Errorf("read plan file: %w", err)
		}
		raw = content
	case !isTerminal(os.Stdin):
		// Read from stdin (piped input)
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		raw = content
	default:
		// No input, TTY detected - enter interactive mode
		return runREPL(cmd, opts.Format)
	}

	p, err := decodePlan(raw)
	if err != nil {
		return err
	}

	if opts.Explain {
		cmdCtx, err := NewCommandContextWithoutStore(cmd)
		if err != nil {
			return err
		}
		return explainPlan(cmd.OutOrStdout(), cmdCtx, p)
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := cmdCtx.Pipeline.Get(cmd.Context(), p)
	if err != nil {
		return err
	}
	return renderResult(cmd.OutOrStdout(), res, opts.Format)
}

// decodePlan parses a plan given either as a JSON document or as a
// compact plan line.
func decodePlan(raw []byte) (plan.Plan, error) {
	text := strings.TrimSpace(string(raw))
	if strings.HasPrefix(text, "{") {
		var p plan.Plan
		if err := json.Unmarshal([]byte(text), &p); err != nil {
			return plan.Plan{}, fmt.Errorf("decode plan: %w", err)
		}
		return p, nil
	}
	return ParsePlanLine(text)
}

// explainPlan prints the compiled SQL and the parameters it would bind,
// without touching the mart. Compilation alone does not admit the plan;
// allow-list checks need a connection and run only on execution.
func explainPlan(w io.Writer, cmdCtx *CommandContext, p plan.Plan) error {
	p = cmdCtx.Catalog.NormalizePlan(p)
	tpl, err := cmdCtx.Catalog.Lookup(p.Intent)
	if err != nil {
		return err
	}

	compiler := compile.New(compile.Config{
		WindowLimitDays: cmdCtx.Cfg.Query.WindowLimitDays,
		RowCap:          cmdCtx.Cfg.Query.RowCap,
		Logger:          cmdCtx.Logger,
	})
	cq, err := compiler.Compile(p, tpl, time.Now())
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(w, strings.TrimSpace(cq.SQL))
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "range: %s .. %s (%s)\n",
		cq.Range.Start.Format("2006-01-02"), cq.Range.End.Format("2006-01-02"), cq.Granularity)

	names := make([]string, 0, len(cq.Params))
	for name := range cq.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, _ = fmt.Fprintf(w, "  :%s = %v\n", name, cq.Params[name])
	}

	if cq.Clamped {
		_, _ = fmt.Fprintln(w, "note: window clamped to the configured day limit")
	}
	return nil
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
