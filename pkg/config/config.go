// Package config provides configuration loading and management for dicomseries.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"dicomseries/pkg/geometry"
	"dicomseries/pkg/report"
	"dicomseries/pkg/tags"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumWorkers bounds the goroutines used for scanning files and
		// for sorting and splitting groups
		NumWorkers int `yaml:"numWorkers"`

		// Tolerance is the geometric tolerance used both to detect equal
		// slice distances and spacing violations
		Tolerance float64 `yaml:"tolerance"`

		// RestrictionTags are extra "gggg|eeee" tags appended to the
		// grouping key
		RestrictionTags []string `yaml:"restrictionTags"`

		// SkipInvalidGroups drops groups that fail sorting instead of
		// failing the whole run
		SkipInvalidGroups bool `yaml:"skipInvalidGroups"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Format is one of text, json, yaml, msgpack
		Format string `yaml:"format"`

		// LogLevel is one of debug, info, warn, error
		LogLevel string `yaml:"logLevel"`

		// JSONLogs switches the log handler to JSON lines
		JSONLogs bool `yaml:"jsonLogs"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumWorkers = runtime.NumCPU()
	cfg.Processing.Tolerance = geometry.DefaultTolerance
	cfg.Processing.RestrictionTags = []string{}
	cfg.Processing.SkipInvalidGroups = false

	cfg.Output.Format = report.FormatText
	cfg.Output.LogLevel = "info"
	cfg.Output.JSONLogs = false

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return cfg, nil
}

// Validate checks value ranges and tag identifiers
func (c *Config) Validate() error {
	if c.Processing.NumWorkers < 0 {
		return fmt.Errorf("numWorkers must be non-negative, got %d", c.Processing.NumWorkers)
	}
	if c.Processing.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive, got %g", c.Processing.Tolerance)
	}
	if _, err := tags.ParseTagIDs(c.Processing.RestrictionTags); err != nil {
		return err
	}
	if !report.IsFormat(c.Output.Format) {
		return fmt.Errorf("unknown output format %q", c.Output.Format)
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
