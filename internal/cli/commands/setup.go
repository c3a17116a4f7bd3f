package commands

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lendscope-labs/lendscope/internal/cli/config"
	"github.com/lendscope-labs/lendscope/internal/mart"

	// The store registry only hands out read-only connections, so setup
	// opens its own read-write sqlite handle.
	_ "modernc.org/sqlite"
)

// SetupOptions holds options for the setup command.
type SetupOptions struct {
	Days int
	Seed int64
}

// NewSetupCommand creates the setup command.
func NewSetupCommand() *cobra.Command {
	opts := &SetupOptions{}

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Provision the embedded demo mart",
		Long: `Create the demo mart schema and fill it with deterministic synthetic
lending data: acquisition funnel events and monthly forecast rows. Running
setup again replaces the previous demo data.

The demo mart is sqlite only; point --dsn at the file to create.`,
		Example: `  # Create the default demo mart (lendscope.db)
  lendscope setup

  # A smaller mart with a different random seed
  lendscope setup --days 90 --seed 7 --dsn demo.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetup(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Days, "days", 0, "Days of event history to generate (default 540)")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "Random seed for the synthetic data (default 42)")

	return cmd
}

func runSetup(cmd *cobra.Command, opts *SetupOptions) error {
	cfg := currentConfig()
	logger := config.GetLogger(cmd.Context())

	if cfg.Store.Driver != "sqlite" {
		return fmt.Errorf("setup provisions the demo mart on sqlite only; store.driver is %q", cfg.Store.Driver)
	}

	db, err := sql.Open("sqlite", cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("open demo mart: %w", err)
	}
	defer func() { _ = db.Close() }()

	logger.Info("migrating demo mart", "dsn", cfg.Store.DSN)
	if err := mart.Migrate(db); err != nil {
		return err
	}

	logger.Info("seeding demo mart", "days", opts.Days, "seed", opts.Seed)
	stats, err := mart.Seed(cmd.Context(), db, mart.SeedConfig{Days: opts.Days, Seed: opts.Seed})
	if err != nil {
		return fmt.Errorf("seed demo mart: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Demo mart ready at %s\n", cfg.Store.DSN)
	_, _ = fmt.Fprintf(out, "%d acquisition events, %d forecast rows\n", stats.Events, stats.ForecastRows)
	_, _ = fmt.Fprintln(out, "")
	_, _ = fmt.Fprintln(out, "Try a query:")
	_, _ = fmt.Fprintln(out, `  lendscope query 'funnel last_30d'`)

	return nil
}
