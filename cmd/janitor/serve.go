package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/webspoilt/code-janitor/internal/metrics"
	"github.com/webspoilt/code-janitor/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analysis API over HTTP",
	Long: `Expose analysis, history, health and Prometheus metrics over HTTP:

  POST /api/analyze   analyze a posted source file
  GET  /api/history   recent runs, attempts and analyses
  GET  /api/health    store and provider checks
  GET  /metrics       Prometheus metrics

The server never refactors or writes files.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr, _ = cmd.Flags().GetString("addr")
		}
		if verbosity < 2 {
			gin.SetMode(gin.ReleaseMode)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		m := metrics.New(true)
		agg, err := newAggregator(cfg, m)
		if err != nil {
			return err
		}
		store, err := openStorage(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		scfg := server.Config{
			Addr:     cfg.Server.Addr,
			Analyzer: agg,
			History:  store,
			Store:    store,
			Metrics:  m,
			Logger:   slog.Default(),
			Version:  version,
		}
		// A missing key only disables the provider health check
		if client, err := newClient(cfg, m); err != nil {
			slog.Warn("provider health check disabled", "error", err)
		} else {
			scfg.Provider = client
		}

		srv, err := server.New(scfg)
		if err != nil {
			return err
		}
		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Fprintf(cmd.OutOrStdout(), "%s Listening on http://%s (Ctrl+C to stop)\n", cyan("→"), cfg.Server.Addr)
		return srv.Serve(ctx)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default: server.addr, 127.0.0.1:8080)")
	rootCmd.AddCommand(serveCmd)
}
