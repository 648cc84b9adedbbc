// Copyright (c) 2025 Querydesk
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"querydesk/cli/internal/catalog"
	"querydesk/cli/internal/format"
	"querydesk/cli/internal/logging"
)

var schemaJSON bool

// schemaCmd prints what the model sees as database schema.
var schemaCmd = &cobra.Command{
	Use:   "schema [table]",
	Short: "Print the database schema as given to the model",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := logging.NewLogger(cfg, "querydesk-schema", os.Stderr)
		if !flagVerbose {
			logger = logging.NewLogger(cfg, "querydesk-schema", nil)
		}

		pool, err := openPool(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		inspector := catalog.NewInspector(pool, cfg.DB.QueryTimeout.Duration, logger)

		if len(args) == 1 {
			schema, err := inspector.TableSchema(ctx, args[0])
			if err != nil {
				return err
			}
			raw, err := json.Marshal(schema)
			if err != nil {
				return err
			}
			if schemaJSON {
				pterm.Println(string(raw))
				return nil
			}
			text, err := format.TableSchema(args[0], string(raw))
			if err != nil {
				return err
			}
			pterm.Println(text)
			return nil
		}

		full, err := inspector.FullCatalog(ctx)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(full.Tables)
		if err != nil {
			return err
		}
		if schemaJSON {
			pterm.Println(string(raw))
		} else {
			text, err := format.Schema(string(raw))
			if err != nil {
				return err
			}
			if text == "" {
				pterm.Println(format.NoTables)
			}
			pterm.Print(text)
		}
		for _, o := range full.Omitted {
			pterm.Warning.Println(fmt.Sprintf("table %s omitted: %s", o.Table, logging.Mask(o.Reason)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
	schemaCmd.Flags().BoolVar(&schemaJSON, "json", false, "Print the raw JSON resource content")
}
