package commands

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/lendscope-labs/lendscope/internal/catalog"
)

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Show the query vocabulary",
		Long: `Show what plans can ask for: the intents, metrics, named time
windows and segment dimensions the pipeline accepts. Without a subcommand,
prints the full overview.`,
		Example: `  lendscope catalog
  lendscope catalog intents
  lendscope catalog segments channel`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, err := NewCommandContextWithoutStore(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			_, _ = fmt.Fprintln(out, "Intents:")
			renderIntents(out, cmdCtx.Catalog)
			_, _ = fmt.Fprintln(out)

			_, _ = fmt.Fprintln(out, "Metrics:")
			renderMetrics(out)
			_, _ = fmt.Fprintln(out)

			_, _ = fmt.Fprintln(out, "Windows:")
			renderWords(out, catalog.Windows())
			_, _ = fmt.Fprintln(out)

			_, _ = fmt.Fprintln(out, "Segments:")
			renderSegments(out, "")
			return nil
		},
	}

	cmd.AddCommand(newCatalogIntentsCommand())
	cmd.AddCommand(newCatalogMetricsCommand())
	cmd.AddCommand(newCatalogWindowsCommand())
	cmd.AddCommand(newCatalogSegmentsCommand())

	return cmd
}

func newCatalogIntentsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "intents",
		Short: "List intents and the dimensions they accept",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, err := NewCommandContextWithoutStore(cmd)
			if err != nil {
				return err
			}
			renderIntents(cmd.OutOrStdout(), cmdCtx.Catalog)
			return nil
		},
	}
}

func newCatalogMetricsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "List metrics and their modifiers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			renderMetrics(cmd.OutOrStdout())
			return nil
		},
	}
}

func newCatalogWindowsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "windows",
		Short: "List named time windows",
		RunE: func(cmd *cobra.Command, _ []string) error {
			renderWords(cmd.OutOrStdout(), catalog.Windows())
			return nil
		},
	}
}

func newCatalogSegmentsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "segments [dimension]",
		Short: "List segment dimensions and their bootstrap values",
		Long: `List the filterable dimensions and the bootstrap allow-list values.
At query time the validator checks against values observed in the mart,
refreshed on a cadence; these are the static seed values it starts from.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dim := ""
			if len(args) > 0 {
				dim = args[0]
			}
			return renderSegments(cmd.OutOrStdout(), dim)
		},
	}
}

func renderMetrics(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"metric", "modifiers"})
	for _, name := range catalog.MetricNames() {
		modifiers := "-"
		if kind, err := catalog.MetricKindOf(name); err == nil && kind == catalog.MetricFlow {
			modifiers = "amount, count"
		}
		t.AppendRow(table.Row{name, modifiers})
	}
	t.Render()
}

func renderSegments(w io.Writer, dimension string) error {
	lists := catalog.SeedAllowLists()

	if dimension != "" {
		values, ok := lists[dimension]
		if !ok {
			return fmt.Errorf("unknown dimension %q (known: %s)",
				dimension, strings.Join(catalog.Dimensions(), ", "))
		}
		renderWords(w, values)
		return nil
	}

	dims := make([]string, 0, len(lists))
	for dim := range lists {
		dims = append(dims, dim)
	}
	sort.Strings(dims)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"dimension", "values"})
	for _, dim := range dims {
		t.AppendRow(table.Row{dim, strings.Join(lists[dim], ", ")})
	}
	t.Render()
	return nil
}
