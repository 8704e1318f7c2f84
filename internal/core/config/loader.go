package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Defaults applied by Load when a value is left unset.
const (
	DefaultMaxRetries = 3
	DefaultQueue      = "items"
	DefaultVersion    = "dev"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding environment variables first.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Jobs.MaxRetries <= 0 {
		cfg.Jobs.MaxRetries = DefaultMaxRetries
	}
	if cfg.Jobs.Queue == "" {
		cfg.Jobs.Queue = DefaultQueue
	}
	if cfg.Jobs.Version == "" {
		cfg.Jobs.Version = DefaultVersion
	}
	if cfg.Jobs.MaxDelay == 0 && cfg.Jobs.RetryDelay > 0 {
		cfg.Jobs.MaxDelay = 10 * cfg.Jobs.RetryDelay
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return &cfg, nil
}
