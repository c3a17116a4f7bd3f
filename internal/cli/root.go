// Package cli provides the command-line interface for LendScope.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lendscope-labs/lendscope/internal/cli/commands"
	"github.com/lendscope-labs/lendscope/internal/cli/config"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lendscope",
		Short: "LendScope - Lending Funnel Analytics",
		Long: `LendScope answers structured analytical questions about a consumer
lending acquisition funnel. It validates query plans against a template
catalog, compiles them into parameterized SQL, runs them read-only against
the analytics mart, and returns the data with a chart spec and a short
narrative of what the numbers show.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			// Logs go to stderr so command output on stdout stays
			// machine-readable.
			logger := config.NewLogger(cfg.Log, cmd.ErrOrStderr())
			cmd.SetContext(config.WithLogger(cmd.Context(), logger))

			if configFile := config.ConfigFileUsed(); configFile != "" {
				logger.Debug("using config file", "path", configFile)
			}

			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set version template
	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Lending funnel analytics service
`)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./lendscope.yaml)")
	rootCmd.PersistentFlags().String("driver", "", "mart driver (sqlite|duckdb|postgres)")
	rootCmd.PersistentFlags().String("dsn", "", "mart connection string")
	rootCmd.PersistentFlags().String("addr", "", "API listen address for serve")
	rootCmd.PersistentFlags().Int("row-cap", 0, "maximum rows a query may return")
	rootCmd.PersistentFlags().Int("retries", 0, "query retry attempts after the first failure")
	rootCmd.PersistentFlags().Bool("coalesce", false, "merge concurrent identical queries into one execution")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text|json)")

	// Register completion for enum-valued flags
	_ = rootCmd.RegisterFlagCompletionFunc("driver", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"sqlite", "duckdb", "postgres"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("log-level", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("log-format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(Version, GitCommit, BuildDate))
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewQueryCommand())
	rootCmd.AddCommand(commands.NewREPLCommand())
	rootCmd.AddCommand(commands.NewExportCommand())
	rootCmd.AddCommand(commands.NewCatalogCommand())
	rootCmd.AddCommand(commands.NewSetupCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for LendScope.

To load completions:

Bash:
  $ source <(lendscope completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ lendscope completion bash > /etc/bash_completion.d/lendscope
  # macOS:
  $ lendscope completion bash > $(brew --prefix)/etc/bash_completion.d/lendscope

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ lendscope completion zsh > "${fpath[1]}/_lendscope"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ lendscope completion fish | source

  # To load completions for each session, execute once:
  $ lendscope completion fish > ~/.config/fish/completions/lendscope.fish

PowerShell:
  PS> lendscope completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> lendscope completion powershell > lendscope.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			}
			return nil
		},
	}
	return cmd
}
