package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// ExportOptions holds options for the export command.
type ExportOptions struct {
	Format string
	Input  string
	Output string
}

// NewExportCommand creates the export command.
func NewExportCommand() *cobra.Command {
	opts := &ExportOptions{}

	cmd := &cobra.Command{
		Use:   "export [PLAN]",
		Short: "Run a plan and export its dataset as CSV or JSON",
		Long: `Run one query plan and write the resulting dataset in a tabular
format, without the chart spec or narrative. The plan takes the same
forms the query command accepts: a JSON document or a compact plan line.`,
		Example: `  # Export to stdout as CSV
  lendscope export '{"intent":"trend","metric":"issuance","window":"last_full_month"}'

  # Export to a file as JSON
  lendscope export --input plan.json --format json -o issuance.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "csv", "Export format: csv, json")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read the plan from a file")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Write to a file instead of stdout")

	return cmd
}

func runExport(cmd *cobra.Command, args []string, opts *ExportOptions) error {
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
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		raw = content
	default:
		return fmt.Errorf("no plan given; pass it inline, with --input, or on stdin")
	}

	p, err := decodePlan(raw)
	if err != nil {
		return err
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

	data, _, err := cmdCtx.Pipeline.Export(cmd.Context(), res.Diagnostics.PlanHash, opts.Format)
	if err != nil {
		return err
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, data, 0o600); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", len(data), opts.Output)
		return nil
	}

	_, err = cmd.OutOrStdout().Write(data)
	return err
}
