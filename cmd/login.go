// Copyright (c) 2025 Querydesk
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"querydesk/cli/internal/keychain"
)

// loginCmd stores the model API key in the OS keychain.
var loginCmd = &cobra.Command{
	Use:     "login",
	Aliases: []string{"auth"},
	Short:   "Store your Anthropic API key in the OS keychain",
	Long: `The login command reads an Anthropic API key and stores it in the OS keychain,
so that chat and ask can call the model without ANTHROPIC_API_KEY being set.

The key is read without echo when stdin is a terminal, or from a piped line.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := readSecret("Enter Anthropic API key: ")
		if err != nil {
			return err
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return errors.New("API key is required")
		}
		if !strings.HasPrefix(key, "sk-ant-") {
			fmt.Println("⚠️  This does not look like an Anthropic API key (expected prefix sk-ant-). Saving anyway.")
		}

		km, err := keychain.GetManager()
		if err != nil {
			fmt.Println("❌ Secure storage is not available on this system.")
			fmt.Println("   Set ANTHROPIC_API_KEY instead.")
			return err
		}
		if err := km.SaveAPIKey(key); err != nil {
			fmt.Println("❌ Failed to save the API key securely.")
			return err
		}
		fmt.Println("✅ API key saved!")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
}

// readSecret prompts on stdout and reads one line from stdin, without echo
// when stdin is a terminal.
func readSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Println()
		return string(b), err
	}
	var line string
	_, err := fmt.Fscanln(os.Stdin, &line)
	return line, err
}
