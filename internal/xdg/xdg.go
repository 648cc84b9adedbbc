// Package xdg resolves XDG Base Directory paths for querydesk.
// Directories are created on demand with private permissions, falling back to
// the traditional locations under the home directory when the XDG variables
// are unset.
package xdg

import (
	"os"
	"path/filepath"
)

// AppName is the directory name used under every XDG base.
const AppName = "querydesk"

// ConfigDir returns $XDG_CONFIG_HOME/querydesk (default ~/.config/querydesk).
func ConfigDir() (string, error) {
	return resolve("XDG_CONFIG_HOME", ".config")
}

// StateDir returns $XDG_STATE_HOME/querydesk (default ~/.local/state/querydesk).
// The MCP server writes its log file here.
func StateDir() (string, error) {
	return resolve("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

func resolve(envVar, homeRel string) (string, error) {
	base := os.Getenv(envVar)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, homeRel)
	}
	dir := filepath.Join(base, AppName)
	if err := os.MkdirAll(dir, 0o700); err != nil { // private dir
		return "", err
	}
	return dir, nil
}
