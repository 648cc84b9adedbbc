// Copyright (c) 2025 Querydesk
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"querydesk/cli/internal/events"
	"querydesk/cli/internal/logging"
	"querydesk/cli/internal/terminal"
)

// chatCmd runs the interactive question loop.
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions about your database interactively",
	Long: `The chat command starts an interactive session. Each line you type is answered
by the model using your database schema and read-only SELECT statements.
Type 'quit' or 'q' to exit.`,
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
		logger := logging.NewLogger(cfg, "querydesk-chat", w)

		stats := events.NewStats()
		renderer := events.NewRenderer(os.Stdout, terminal.IsInteractive(), flagVerbose)
		defer renderer.Stop()

		s, err := openSession(ctx, cfg, logger, events.Multi(stats.Record, renderer.Handle))
		if err != nil {
			return err
		}
		defer s.Close()

		runChat(ctx, os.Stdin, func(q string) (string, error) { return s.agent.Ask(ctx, q) })
		printSummary(stats.Snapshot())
		return nil
	},
}

// runChat reads questions line by line until EOF, a quit token or ctx is done.
// Every failure is printed and the loop continues.
func runChat(ctx context.Context, in io.Reader, ask func(string) (string, error)) {
	pterm.Println("\nYour very own Database Analyst!")
	pterm.Println("Type your queries or 'quit' or 'q' to exit.")

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Print("\nQuery: ")
		if !scanner.Scan() {
			return
		}
		prompt := strings.TrimSpace(scanner.Text())
		if isQuit(prompt) {
			return
		}
		if prompt == "" {
			continue
		}

		answer, err := safeAsk(ask, prompt)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			printError(err)
			continue
		}
		pterm.Println("\nResponse: \n" + answer)
	}
}

// safeAsk turns a panic inside one query into an error for that query.
func safeAsk(ask func(string) (string, error), prompt string) (answer string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return ask(prompt)
}

func isQuit(s string) bool {
	s = strings.ToLower(s)
	return s == "quit" || s == "q"
}

func printSummary(sum events.Summary) {
	if sum.Queries == 0 {
		return
	}
	pterm.Println()
	pterm.Println(pterm.NewStyle(pterm.FgGray).Sprintf(
		"%d questions, %d answered, %d failed, %d model turns, %d tool calls (%d errors)",
		sum.Queries, sum.Answered, sum.Failed, sum.Turns, sum.ToolCalls, sum.ToolErrors))
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
