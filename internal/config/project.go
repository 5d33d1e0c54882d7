package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"stagefs/internal/artifacts"
	"stagefs/internal/tree"
)

// ProjectConfig represents per-project configuration from {root}/.stagefs/config.yaml
type ProjectConfig struct {
	Strategy     string   `yaml:"strategy"`       // merge strategy name, default: "default"
	Logging      string   `yaml:"logging"`        // logging level: none, warn, info, debug, trace (case insensitive)
	Gitignore    *bool    `yaml:"gitignore"`      // default: true (pointer to detect missing)
	Includes     []string `yaml:"includes"`       // force-include paths, even when gitignored
	Excludes     []string `yaml:"excludes"`       // force-exclude paths, default: [".git"]
	StatCacheTTL *int     `yaml:"stat-cache-ttl"` // milliseconds, 0 disables caching
}

// DefaultProjectConfig returns the embedded defaults.
func DefaultProjectConfig() *ProjectConfig {
	var cfg ProjectConfig
	if err := yaml.Unmarshal(artifacts.ProjectConfig, &cfg); err != nil {
		panic("failed to parse embedded project config: " + err.Error())
	}
	return &cfg
}

// ApplyDefaults fills missing fields from the embedded defaults.
// An explicitly empty list stays empty.
func (cfg *ProjectConfig) ApplyDefaults() {
	def := DefaultProjectConfig()
	if cfg.Strategy == "" {
		cfg.Strategy = def.Strategy
	}
	if cfg.Logging == "" {
		cfg.Logging = def.Logging
	}
	if cfg.Gitignore == nil {
		cfg.Gitignore = def.Gitignore
	}
	if cfg.Includes == nil {
		cfg.Includes = def.Includes
	}
	if cfg.Excludes == nil {
		cfg.Excludes = def.Excludes
	}
	if cfg.StatCacheTTL == nil {
		cfg.StatCacheTTL = def.StatCacheTTL
	}
}

// GitignoreEnabled returns whether gitignore filtering is enabled (defaults to true).
func (cfg *ProjectConfig) GitignoreEnabled() bool {
	if cfg.Gitignore == nil {
		return true
	}
	return *cfg.Gitignore
}

// LogLevel returns the normalized (lowercase) logging level.
func (cfg *ProjectConfig) LogLevel() string {
	return strings.ToLower(cfg.Logging)
}

// MergeStrategy parses the configured strategy name.
func (cfg *ProjectConfig) MergeStrategy() (tree.MergeStrategy, error) {
	return tree.ParseMergeStrategy(cfg.Strategy)
}

// StatCacheDuration returns the stat cache TTL, 0 when caching is off.
func (cfg *ProjectConfig) StatCacheDuration() time.Duration {
	if cfg.StatCacheTTL == nil || *cfg.StatCacheTTL <= 0 {
		return 0
	}
	return time.Duration(*cfg.StatCacheTTL) * time.Millisecond
}

// LoadProjectConfig loads {root}/.stagefs/config.yaml.
// Returns the embedded defaults if the file does not exist.
func LoadProjectConfig(root string) (*ProjectConfig, error) {
	return LoadProjectConfigFromPath(ProjectConfigPath(root))
}

// LoadProjectConfigFromPath loads the project config from a specific file.
// Returns the embedded defaults if the file does not exist.
func LoadProjectConfigFromPath(configPath string) (*ProjectConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultProjectConfig(), nil
		}
		return nil, err
	}
	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}
