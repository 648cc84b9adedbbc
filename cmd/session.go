// Copyright (c) 2025 Querydesk
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"querydesk/cli/internal/agent"
	"querydesk/cli/internal/bridge"
	"querydesk/cli/internal/catalog"
	"querydesk/cli/internal/config"
	"querydesk/cli/internal/dsn"
	qerrors "querydesk/cli/internal/errors"
	"querydesk/cli/internal/events"
	"querydesk/cli/internal/keychain"
	"querydesk/cli/internal/llm"
	"querydesk/cli/internal/logging"
	"querydesk/cli/internal/mcpserver"
	"querydesk/cli/internal/sqlexec"
	"querydesk/cli/internal/xdg"
)

// loadConfig reads the config file and environment, applies command-line
// overrides and fills secrets from the OS keychain.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = strings.ToLower(flagLogLevel)
	}
	if flags.Changed("strategy") {
		cfg.Agent.Strategy = strings.ToLower(flagStrategy)
	}
	if flags.Changed("model") {
		cfg.Model.Name = flagModel
	}
	if flagVerbose && !flags.Changed("log-level") {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	if cfg.DB.DSN == "" || cfg.Model.APIKey == "" {
		if km, err := keychain.GetManager(); err == nil {
			if cfg.DB.DSN == "" {
				if v, err := km.LoadDBDSN(); err == nil {
					cfg.DB.DSN = v
				}
			}
			if cfg.Model.APIKey == "" {
				if v, err := km.LoadAPIKey(); err == nil {
					cfg.Model.APIKey = v
				}
			}
		}
	}
	return cfg, nil
}

// logWriter returns where logs go: stderr in verbose mode, otherwise a log
// file in the state directory so the chat output stays clean.
func logWriter(cfg config.Config, name string) (io.Writer, func(), error) {
	if flagVerbose {
		return os.Stderr, func() {}, nil
	}
	p := cfg.Server.LogFile
	if p == "" {
		dir, err := xdg.StateDir()
		if err != nil {
			return nil, nil, err
		}
		p = filepath.Join(dir, name)
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

var errNoDSN = errors.New("no database connection configured; run 'querydesk connect' or set QUERYDESK_DSN")

// openPool connects to the configured database.
func openPool(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if strings.TrimSpace(cfg.DB.DSN) == "" {
		return nil, errNoDSN
	}
	pool, err := dsn.Open(ctx, cfg.DB.DSN, dsn.PoolOptions{MinConns: cfg.DB.MinConns, MaxConns: cfg.DB.MaxConns}, cfg.DB.QueryTimeout.Duration)
	if err != nil {
		return nil, qerrors.Wrap(qerrors.CatalogUnavailable, "connect to "+dsn.DatabaseName(cfg.DB.DSN), err)
	}
	return pool, nil
}

// newServer wires the catalog and the execution gate of pool into an MCP server.
func newServer(pool *pgxpool.Pool, cfg config.Config, logger *slog.Logger) *mcpserver.Server {
	inspector := catalog.NewInspector(pool, cfg.DB.QueryTimeout.Duration, logger)
	gate := sqlexec.New(pool, sqlexec.Options{
		Timeout: cfg.DB.QueryTimeout.Duration,
		MaxRows: cfg.DB.MaxRows,
		Logger:  logger,
	})
	return mcpserver.New(inspector, gate, Version, logger)
}

// session is everything one chat or ask invocation needs.
type session struct {
	agent   *agent.Agent
	closers []func()
}

// openSession connects the agent to a resource server: in-process over the
// configured database, or a spawned server when agent.server_command is set.
func openSession(ctx context.Context, cfg config.Config, logger *slog.Logger, handler events.Handler) (*session, error) {
	s := &session{}
	modelOpts := llm.OptionsFromConfig(cfg.Model)
	modelOpts.Logger = logger
	model, err := llm.NewAnthropic(modelOpts)
	if err != nil {
		return nil, err
	}

	var transport mcp.Transport
	if argv := cfg.Agent.ServerCommand; len(argv) > 0 {
		transport = &mcp.CommandTransport{Command: exec.Command(argv[0], argv[1:]...)}
	} else {
		pool, err := openPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)

		serverT, clientT := mcp.NewInMemoryTransports()
		ss, err := newServer(pool, cfg, logger).Connect(ctx, serverT)
		if err != nil {
			s.Close()
			return nil, qerrors.Wrap(qerrors.ProtocolError, "start resource server", err)
		}
		s.closers = append(s.closers, func() { _ = ss.Close() })
		transport = clientT
	}

	br, err := bridge.Connect(ctx, transport, Version, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.closers = append(s.closers, func() { _ = br.Close() })

	opts := agent.OptionsFromConfig(cfg)
	opts.Logger = logger
	opts.Events = handler
	s.agent = agent.New(model, br, opts)
	return s, nil
}

// Close releases resources in reverse order of acquisition.
func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// dsnSource reports where the configured DSN comes from.
func dsnSource() string {
	for _, key := range []string{"QUERYDESK_DSN", "DATABASE_URL"} {
		if strings.TrimSpace(os.Getenv(key)) != "" {
			return key + " environment variable"
		}
	}
	return "OS keychain"
}

// printError shows err to the user, masked, with a hint when one applies.
func printError(err error) {
	pterm.Println()
	if qerrors.Is(err, qerrors.ModelCallError) {
		pterm.Println(logging.FormatModelError(err))
		return
	}
	pterm.Println(pterm.NewStyle(pterm.FgRed).Sprint("Error: ") + logging.Mask(err.Error()))
	if hint := logging.Hint(err); hint != "" {
		pterm.Println("   " + hint)
	}
}
