// Package config locates stagefs state on disk and loads global and
// per-project settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"stagefs/internal/artifacts"
)

// EnvConfigDir overrides the config directory. Tests point it at a temp dir.
const EnvConfigDir = "STAGEFS_CONFIG_DIR"

// ProjectDirName is the per-project config directory under a staged root.
const ProjectDirName = ".stagefs"

// ConfigDir returns the configuration directory path.
// Uses STAGEFS_CONFIG_DIR if set, otherwise defaults to ~/.stagefs.
func ConfigDir() string {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ProjectDirName)
}

// JournalPath returns the changeset journal database path
func JournalPath() string {
	return filepath.Join(ConfigDir(), "journal.db")
}

// LockPath returns the journal lock file path
func LockPath() string {
	return filepath.Join(ConfigDir(), "journal.lock")
}

// GlobalSettingsPath returns the global settings file path
func GlobalSettingsPath() string {
	return filepath.Join(ConfigDir(), "settings.yaml")
}

// ProjectConfigPath returns {root}/.stagefs/config.yaml
func ProjectConfigPath(root string) string {
	return filepath.Join(root, ProjectDirName, "config.yaml")
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir() error {
	return os.MkdirAll(ConfigDir(), 0700)
}

// InitConfigDir creates the config directory and writes default settings
// if none exist yet.
func InitConfigDir() error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	settingsPath := GlobalSettingsPath()
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		if err := os.WriteFile(settingsPath, artifacts.GlobalSettings, 0600); err != nil {
			return fmt.Errorf("failed to create default settings: %w", err)
		}
	}
	return nil
}
