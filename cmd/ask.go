// Copyright (c) 2025 Querydesk
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"querydesk/cli/internal/events"
	"querydesk/cli/internal/logging"
	"querydesk/cli/internal/terminal"
)

// askCmd answers a single question and exits.
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a single question and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		w, closeLog, err := logWriter(cfg, "chat.log")
		if err != nil {
			return err
		}
		defer closeLog()
		logger := logging.NewLogger(cfg, "querydesk-ask", w)

		renderer := events.NewRenderer(os.Stderr, terminal.IsInteractive(), flagVerbose)
		defer renderer.Stop()
		s, err := openSession(ctx, cfg, logger, renderer.Handle)
		if err != nil {
			return err
		}
		defer s.Close()

		answer, err := s.agent.Ask(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		pterm.Println(answer)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}
