package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"stagefs/internal/artifacts"
)

// GlobalSettings represents settings shared by every stagefs invocation.
type GlobalSettings struct {
	LogLevel    string `yaml:"log_level"`    // trace, debug, info, warn, none (default: none)
	BusyTimeout int    `yaml:"busy_timeout"` // SQLite busy_timeout for the journal (ms), 0 = use default
}

// loadDefaultGlobalSettings parses default settings from embedded artifact.
func loadDefaultGlobalSettings() GlobalSettings {
	var settings GlobalSettings
	if err := yaml.Unmarshal(artifacts.GlobalSettings, &settings); err != nil {
		panic("failed to parse embedded global settings: " + err.Error())
	}
	return settings
}

// LoadGlobalSettings loads settings.yaml from the config directory.
// Falls back to embedded defaults if the file doesn't exist.
func LoadGlobalSettings() (*GlobalSettings, error) {
	data, err := os.ReadFile(GlobalSettingsPath())
	if err != nil {
		if os.IsNotExist(err) {
			settings := loadDefaultGlobalSettings()
			return &settings, nil
		}
		return nil, err
	}

	settings := loadDefaultGlobalSettings()
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}
