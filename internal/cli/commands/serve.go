package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lendscope-labs/lendscope/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the LendScope API server",
		Long: `Start the HTTP API over the configured mart:

  POST /v1/query          run a plan, returns data + chart + insight
  GET  /v1/export/{hash}  download a cached result as CSV or JSON
  GET  /v1/catalog        the query vocabulary
  GET  /healthz           liveness`,
		Example: `  # Serve on the default address
  lendscope serve

  # Custom address
  lendscope serve --addr :9090`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	srv, err := server.New(server.Config{
		Pipeline:       cmdCtx.Pipeline,
		Catalog:        cmdCtx.Catalog,
		Addr:           cmdCtx.Cfg.Server.Addr,
		RequestTimeout: cmdCtx.Cfg.Server.RequestTimeout,
		Logger:         cmdCtx.Logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Handle Ctrl+C
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "\nShutting down...")
		cancel()
	}()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Serving LendScope API on %s (%s mart: %s)\n",
		cmdCtx.Cfg.Server.Addr, cmdCtx.Cfg.Store.Driver, cmdCtx.Cfg.Store.DSN)
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")

	return srv.Serve(ctx)
}
