// Copyright (c) 2025 Querydesk
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"log/slog"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"querydesk/cli/internal/logging"
	"querydesk/cli/internal/observability"
)

var (
	serveMetricsAddr string
	serveLogFile     string
)

// serveCmd exposes the database as an MCP server on stdio.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve database resources and the execute_sql tool over MCP stdio",
	Long: `The serve command runs an MCP server on stdin/stdout. It exposes:

  postgresql://tables                      the table list
  postgresql://tables/schemas              every table's schema
  postgresql://tables/{table_name}/schema  one table's schema
  execute_sql                              a tool running SELECT statements only

Logs go to stderr, or to --log-file. With --metrics-addr, Prometheus metrics
are served on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("metrics-addr") {
			cfg.Server.MetricsAddr = serveMetricsAddr
		}
		if cmd.Flags().Changed("log-file") {
			cfg.Server.LogFile = serveLogFile
		}

		// stdout carries the protocol; logs never go there.
		w, closeLog := os.Stderr, func() {}
		if cfg.Server.LogFile != "" {
			f, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
			if err != nil {
				return err
			}
			w, closeLog = f, func() { _ = f.Close() }
		}
		defer closeLog()
		logger := logging.NewLogger(cfg, "querydesk-server", w)

		pool, err := openPool(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		if cfg.Server.MetricsAddr != "" {
			go func() {
				if err := observability.ServeMetrics(ctx, cfg.Server.MetricsAddr, logger); err != nil {
					logger.Error("metrics listener failed", slog.String("error", err.Error()))
				}
			}()
		}

		logger.Info("serving MCP on stdio", slog.String("version", Version))
		err = newServer(pool, cfg, logger).Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, ctx.Err()) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "Address for the Prometheus /metrics listener, e.g. :9464")
	serveCmd.Flags().StringVar(&serveLogFile, "log-file", "", "Write logs to this file instead of stderr")
}
