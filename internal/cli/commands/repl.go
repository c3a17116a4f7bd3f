package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/lendscope-labs/lendscope/internal/catalog"
	"github.com/lendscope-labs/lendscope/internal/pipeline"
	"github.com/lendscope-labs/lendscope/internal/plan"
)

// NewREPLCommand creates the repl command.
func NewREPLCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Run query plans interactively",
		Long: `Start an interactive session against the configured mart.

Plans are entered as compact lines: the intent, then the metric and window,
then key=value pairs for granularity, group_by and dimension filters.`,
		Example: `  lendscope> trend issuance last_full_month granularity=weekly
  lendscope> variance issuance last_full_month group_by=channel
  lendscope> funnel last_30d channel=Email
  lendscope> .values grade`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runREPL(cmd, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format: table, json, csv, md")

	return cmd
}

// replSession carries the REPL's mutable state between lines.
type replSession struct {
	cmdCtx   *CommandContext
	format   string
	lastHash string
}

func runREPL(cmd *cobra.Command, format string) error {
	if !knownFormat(format) {
		return fmt.Errorf("unknown format %q (expected table, json, csv, md)", format)
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "lendscope> ",
		HistoryFile:     ".lendscope_history",
		AutoComplete:    newPlanCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "LendScope REPL (%s mart: %s)\n",
		cmdCtx.Cfg.Store.Driver, cmdCtx.Cfg.Store.DSN)
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Enter plans as: intent metric window key=value ...")
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(cmd.OutOrStdout())

	session := &replSession{cmdCtx: cmdCtx, format: format}

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ".") {
			if handled := handleDotCommand(cmd, session, line); handled {
				if line == ".quit" || line == ".exit" {
					break
				}
				continue
			}
		}

		if err := session.runPlanLine(cmd.Context(), cmd.OutOrStdout(), line); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout())
	}

	return nil
}

func (s *replSession) runPlanLine(ctx context.Context, w io.Writer, line string) error {
	p, err := ParsePlanLine(line)
	if err != nil {
		return err
	}

	res, err := s.cmdCtx.Pipeline.Get(ctx, p)
	if err != nil {
		return err
	}
	s.lastHash = res.Diagnostics.PlanHash

	return renderResult(w, res, s.format)
}

func handleDotCommand(cmd *cobra.Command, s *replSession, line string) bool {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])
	out := cmd.OutOrStdout()

	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printREPLHelp(out)
		return true

	case ".intents":
		renderIntents(out, s.cmdCtx.Catalog)
		return true

	case ".metrics":
		renderWords(out, catalog.MetricNames())
		return true

	case ".dimensions":
		renderWords(out, catalog.Dimensions())
		return true

	case ".windows":
		renderWords(out, catalog.Windows())
		return true

	case ".values":
		if len(parts) < 2 {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Usage: .values <dimension>")
			return true
		}
		values, err := s.cmdCtx.Source.Values(cmd.Context(), parts[1])
		if err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			return true
		}
		renderWords(out, values)
		return true

	case ".format":
		if len(parts) < 2 || !knownFormat(parts[1]) {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Usage: .format table|json|csv|md")
			return true
		}
		s.format = parts[1]
		_, _ = fmt.Fprintf(out, "format set to %s\n", s.format)
		return true

	case ".export":
		runREPLExport(cmd, s, parts[1:])
		return true

	case ".clear":
		fmt.Print("\033[H\033[2J")
		return true

	default:
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Unknown command: %s (type .help for commands)\n", command)
		return true
	}
}

// runREPLExport writes the last result in csv or json, to stdout or a file.
func runREPLExport(cmd *cobra.Command, s *replSession, args []string) {
	if s.lastHash == "" {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Nothing to export; run a plan first")
		return
	}

	format := pipeline.FormatCSV
	if len(args) > 0 {
		format = args[0]
	}

	data, _, err := s.cmdCtx.Pipeline.Export(cmd.Context(), s.lastHash, format)
	if err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		return
	}

	if len(args) > 1 {
		if err := os.WriteFile(args[1], data, 0o600); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			return
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", len(data), args[1])
		return
	}

	_, _ = cmd.OutOrStdout().Write(data)
}

func renderIntents(w io.Writer, cat *catalog.Catalog) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"intent", "description", "dimensions"})
	for _, tpl := range cat.Templates() {
		t.AppendRow(table.Row{tpl.Intent, tpl.Description, strings.Join(tpl.Dimensions, ", ")})
	}
	t.Render()
}

func renderWords(w io.Writer, words []string) {
	sorted := append([]string(nil), words...)
	sort.Strings(sorted)
	for _, word := range sorted {
		_, _ = fmt.Fprintf(w, "  %s\n", word)
	}
}

func printREPLHelp(w io.Writer) {
	help := `
Plans:
  intent [metric] [window] [key=value]...

  trend issuance last_full_month granularity=weekly
  variance issuance last_full_month group_by=channel
  distribution avg_fico last_30d by=grade
  funnel last_30d channel=Email

Keys: metric, metrics, modifier, window, start, end, explicit,
granularity, group_by (by), secondary, chart, theme. Any other key
filters that dimension, e.g. channel=Email.

Commands:
  .help             Show this help message
  .intents          List intents and their dimensions
  .metrics          List metrics
  .dimensions       List filterable dimensions
  .windows          List named time windows
  .values <dim>     List accepted values for a dimension
  .format <f>       Switch output format (table|json|csv|md)
  .export [f] [out] Export the last result (csv|json), to a file if given
  .clear            Clear the screen
  .quit / .exit     Exit the REPL

Tips:
  - Use arrow keys to navigate history
  - Tab completion works for intents, metrics and windows
`
	_, _ = fmt.Fprintln(w, help)
}

// newPlanCompleter builds completion over the closed vocabulary: intents,
// metrics, windows, and the dot-commands.
func newPlanCompleter() *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface

	for _, intent := range plan.Intents() {
		items = append(items, readline.PcItem(string(intent)))
	}
	for _, metric := range catalog.MetricNames() {
		items = append(items, readline.PcItem(metric))
	}
	for _, window := range catalog.Windows() {
		items = append(items, readline.PcItem(window))
	}

	items = append(items,
		readline.PcItem(".help"),
		readline.PcItem(".intents"),
		readline.PcItem(".metrics"),
		readline.PcItem(".dimensions"),
		readline.PcItem(".windows"),
		readline.PcItem(".values"),
		readline.PcItem(".format"),
		readline.PcItem(".export"),
		readline.PcItem(".clear"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)

	return readline.NewPrefixCompleter(items...)
}
