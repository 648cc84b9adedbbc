// Copyright (c) 2025 Querydesk
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for querydesk.
// It implements the chat loop, one-shot questions, the MCP server, schema
// inspection and credential management using the Cobra CLI framework.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"querydesk/cli/internal/logging"
)

var (
	showVersion bool

	flagVerbose  bool
	flagLogLevel string
	flagStrategy string
	flagModel    string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "querydesk",
	Short:         "Ask questions about your PostgreSQL database in plain language",
	Long:          `querydesk lets a language model answer natural-language questions by reading your database schema and running read-only SELECT statements.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Printf("querydesk %s\n", Version)
			return nil
		}
		// If no flag is set, show help
		return cmd.Help()
	},
}

// Execute runs the CLI application. SIGINT and SIGTERM cancel the command's
// context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, logging.Mask(err.Error()))
		if hint := logging.Hint(err); hint != "" {
			fmt.Fprintln(os.Stderr, "   "+hint)
		}
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show CLI version information")
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Show agent progress and write logs to stderr")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&flagStrategy, "strategy", "", "Context strategy: select or catalog")
	pf.StringVar(&flagModel, "model", "", "Model name")
}
