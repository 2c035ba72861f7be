// Package config holds all credkeeper configuration from ~/.credkeeper/config.json.
// This is the single source of truth for configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// UserConfig holds ALL credkeeper configuration.
type UserConfig struct {
	// Browser automation settings
	Browser *BrowserConfig `json:"browser,omitempty"`

	// Login flow settings
	Flow *FlowConfig `json:"flow,omitempty"`

	// Credential lifecycle monitor settings
	Lifecycle *LifecycleConfig `json:"lifecycle,omitempty"`

	// Fallback extraction server settings
	Extract *ExtractConfig `json:"extract,omitempty"`

	// Logging settings (read by internal/logging at startup)
	Logging *LoggingConfig `json:"logging,omitempty"`
}

// LoggingConfig controls categorized file logging.
type LoggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Categories map[string]bool `json:"categories,omitempty"`
	Level      string          `json:"level,omitempty"`
	JSONFormat bool            `json:"json_format,omitempty"`
}

// DefaultUserConfigPath returns the canonical config location.
func DefaultUserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".credkeeper", "config.json")
	}
	return filepath.Join(home, ".credkeeper", "config.json")
}

// DefaultStateDir returns the directory holding persisted account and expiry state.
func DefaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".credkeeper"
	}
	return filepath.Join(home, ".credkeeper")
}

// DefaultUserConfig returns a config populated with defaults for every section.
func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		Browser:   DefaultBrowserConfig(),
		Flow:      DefaultFlowConfig(),
		Lifecycle: DefaultLifecycleConfig(),
		Extract:   DefaultExtractConfig(),
	}
}

// LoadUserConfig reads config from the given path.
func LoadUserConfig(path string) (*UserConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg UserConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadOrDefault loads the user config, falling back to defaults when absent.
func LoadOrDefault(path string) *UserConfig {
	cfg, err := LoadUserConfig(path)
	if err != nil {
		return DefaultUserConfig()
	}
	return cfg
}

// Save writes the config to the given path.
func (c *UserConfig) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// applyDefaults fills in any missing sections so callers never nil-check.
func (c *UserConfig) applyDefaults() {
	if c.Browser == nil {
		c.Browser = DefaultBrowserConfig()
	}
	if c.Flow == nil {
		c.Flow = DefaultFlowConfig()
	}
	if c.Lifecycle == nil {
		c.Lifecycle = DefaultLifecycleConfig()
	}
	if c.Extract == nil {
		c.Extract = DefaultExtractConfig()
	}
}
