// Package config loads and stores CLI configuration in the XDG config dir.
// Only non-secret settings are kept in the file; the DSN and the model API key
// come from the environment or the OS keychain. Environment variables override
// file values.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	qerrors "querydesk/cli/internal/errors"
	"querydesk/cli/internal/xdg"
)

// LookupFunc resolves an environment variable; os.LookupEnv in production.
type LookupFunc func(string) (string, bool)

// Context-gathering strategies for the agent.
const (
	StrategySelect  = "select"
	StrategyCatalog = "catalog"
)

// Config holds non-sensitive CLI settings.
type Config struct {
	LogLevel string       `json:"log_level"`
	LogJSON  bool         `json:"log_json"`
	DB       DBConfig     `json:"db"`
	Model    ModelConfig  `json:"model"`
	Agent    AgentConfig  `json:"agent"`
	Server   ServerConfig `json:"server"`
}

// DBConfig holds database connection settings.
type DBConfig struct {
	// DSN is never written to disk.
	DSN          string   `json:"-"`
	MinConns     int32    `json:"min_conns"`
	MaxConns     int32    `json:"max_conns"`
	QueryTimeout Duration `json:"query_timeout"`
	MaxRows      int      `json:"max_rows"`
}

// ModelConfig holds language model settings.
type ModelConfig struct {
	Name               string   `json:"name"`
	APIKey             string   `json:"-"`
	BaseURL            string   `json:"base_url,omitempty"`
	MaxTokens          int64    `json:"max_tokens"`
	SelectionMaxTokens int64    `json:"selection_max_tokens"`
	Timeout            Duration `json:"timeout"`
	MaxRetries         int      `json:"max_retries"`
}

// AgentConfig holds orchestration loop settings.
type AgentConfig struct {
	Strategy          string   `json:"strategy"`
	MaxTurns          int      `json:"max_turns"`
	SelectionAttempts int      `json:"selection_attempts"`
	ToolTimeout       Duration `json:"tool_timeout"`
	// ServerCommand, when set, spawns an external MCP server instead of
	// serving resources in-process.
	ServerCommand []string `json:"server_command,omitempty"`
}

// ServerConfig holds settings for `querydesk serve`.
type ServerConfig struct {
	MetricsAddr string `json:"metrics_addr,omitempty"`
	LogFile     string `json:"log_file,omitempty"`
}

// Duration is a time.Duration encoded as a Go duration string in JSON.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		DB: DBConfig{
			MinConns:     1,
			MaxConns:     10,
			QueryTimeout: Duration{30 * time.Second},
			MaxRows:      500,
		},
		Model: ModelConfig{
			Name:               "claude-3-7-sonnet-latest",
			MaxTokens:          1024,
			SelectionMaxTokens: 200,
			Timeout:            Duration{120 * time.Second},
			MaxRetries:         2,
		},
		Agent: AgentConfig{
			Strategy:          StrategySelect,
			MaxTurns:          10,
			SelectionAttempts: 3,
			ToolTimeout:       Duration{45 * time.Second},
		},
	}
}

// path returns the path to the config file.
func path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config file, applies environment overrides and validates.
func Load() (Config, error) {
	p, err := path()
	if err != nil {
		return Config{}, err
	}
	return LoadFrom(p, os.LookupEnv)
}

// LoadFrom reads configuration from p; a missing file yields defaults.
func LoadFrom(p string, lookup LookupFunc) (Config, error) {
	c := Default()
	data, err := os.ReadFile(p)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &c); err != nil {
			return c, qerrors.Wrap(qerrors.ConfigInvalid, "parse "+p, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return c, err
	}
	if err := ApplyEnv(&c, lookup); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// Save writes configuration with 0600 permissions.
func Save(c Config) error {
	p, err := path()
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}

// ApplyEnv overrides c with values found through lookup.
func ApplyEnv(c *Config, lookup LookupFunc) error {
	if lookup == nil {
		return nil
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("QUERYDESK_DSN"); ok {
		c.DB.DSN = v
	} else if v, ok := get("DATABASE_URL"); ok {
		c.DB.DSN = v
	}
	if v, ok := get("ANTHROPIC_API_KEY"); ok {
		c.Model.APIKey = v
	}
	if v, ok := get("ANTHROPIC_BASE_URL"); ok {
		c.Model.BaseURL = v
	}
	if v, ok := get("QUERYDESK_MODEL"); ok {
		c.Model.Name = v
	}
	if v, ok := get("QUERYDESK_STRATEGY"); ok {
		c.Agent.Strategy = strings.ToLower(v)
	}
	if v, ok := get("QUERYDESK_LOG_LEVEL"); ok {
		c.LogLevel = strings.ToLower(v)
	}
	if v, ok := get("QUERYDESK_METRICS_ADDR"); ok {
		c.Server.MetricsAddr = v
	}

	var err error
	if c.LogJSON, err = boolEnv(get, "QUERYDESK_LOG_JSON", c.LogJSON); err != nil {
		return err
	}
	if c.Agent.MaxTurns, err = intEnv(get, "QUERYDESK_MAX_TURNS", c.Agent.MaxTurns); err != nil {
		return err
	}
	if c.DB.MaxRows, err = intEnv(get, "QUERYDESK_MAX_ROWS", c.DB.MaxRows); err != nil {
		return err
	}
	if c.DB.QueryTimeout.Duration, err = durationEnv(get, "QUERYDESK_QUERY_TIMEOUT", c.DB.QueryTimeout.Duration); err != nil {
		return err
	}
	if c.Model.Timeout.Duration, err = durationEnv(get, "QUERYDESK_MODEL_TIMEOUT", c.Model.Timeout.Duration); err != nil {
		return err
	}
	if c.Agent.ToolTimeout.Duration, err = durationEnv(get, "QUERYDESK_TOOL_TIMEOUT", c.Agent.ToolTimeout.Duration); err != nil {
		return err
	}
	return nil
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	switch c.Agent.Strategy {
	case StrategySelect, StrategyCatalog:
	default:
		return invalid("agent.strategy must be %q or %q, got %q", StrategySelect, StrategyCatalog, c.Agent.Strategy)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log_level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	if c.Agent.MaxTurns < 1 {
		return invalid("agent.max_turns must be at least 1")
	}
	if c.Agent.SelectionAttempts < 1 {
		return invalid("agent.selection_attempts must be at least 1")
	}
	if c.DB.MinConns < 0 || c.DB.MaxConns < 1 || c.DB.MinConns > c.DB.MaxConns {
		return invalid("db pool bounds invalid: min_conns=%d max_conns=%d", c.DB.MinConns, c.DB.MaxConns)
	}
	if c.DB.MaxRows < 1 {
		return invalid("db.max_rows must be at least 1")
	}
	if c.Model.MaxTokens < 1 || c.Model.SelectionMaxTokens < 1 {
		return invalid("model token limits must be positive")
	}
	if c.Model.Timeout.Duration <= 0 || c.Agent.ToolTimeout.Duration <= 0 || c.DB.QueryTimeout.Duration <= 0 {
		return invalid("timeouts must be positive")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return qerrors.New(qerrors.ConfigInvalid, fmt.Sprintf(format, args...))
}

func boolEnv(get func(string) (string, bool), key string, fallback bool) (bool, error) {
	v, ok := get(key)
	if !ok {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, qerrors.Wrap(qerrors.ConfigInvalid, key, err)
	}
	return b, nil
}

func intEnv(get func(string) (string, bool), key string, fallback int) (int, error) {
	v, ok := get(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, qerrors.Wrap(qerrors.ConfigInvalid, key, err)
	}
	return n, nil
}

func durationEnv(get func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	v, ok := get(key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, qerrors.Wrap(qerrors.ConfigInvalid, key, err)
	}
	return d, nil
}
