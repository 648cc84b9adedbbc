// Copyright (c) 2025 Querydesk
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"querydesk/cli/internal/keychain"
)

var logoutAll bool

// logoutCmd removes stored credentials.
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the saved API key",
	Long: `The logout command removes the Anthropic API key from the OS keychain.
With --all it also removes the saved database connection.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		km, err := keychain.GetManager()
		if err != nil {
			return err
		}
		if logoutAll {
			km.ClearAll()
			fmt.Println("✅ API key and database connection have been removed")
			return nil
		}
		km.ClearAPIKey()
		fmt.Println("✅ API key has been removed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "Also remove the saved database connection")
}
