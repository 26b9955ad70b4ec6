// Package config provides functionality for loading, saving, and validating
// the application configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"quickreply/pkg/model"
)

var validate = validator.New()

// Default returns the configuration written on first run.
func Default() *model.Config {
	return &model.Config{
		DataDir:        "./data",
		LogDir:         "./logs",
		LogLevel:       "info",
		LogConsole:     false,
		DefaultAccount: "default",
	}
}

// Load reads the YAML configuration at path. If the file does not exist, a
// default configuration is created there first.
func Load(path string) (*model.Config, error) {
	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	// Create a default config file on first run
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg := &model.Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Fill blanks left by hand-edited files before validating
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the configuration to the YAML file at path.
func Save(path string, cfg *model.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}
