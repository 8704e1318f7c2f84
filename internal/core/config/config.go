package config

import (
	"time"

	redisclient "github.com/vietddude/harvester/internal/infra/redis"
	"github.com/vietddude/harvester/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Redis    redisclient.Config `yaml:"redis"`
	Database postgres.Config    `yaml:"database"`
	Logging  LoggingConfig      `yaml:"logging"`
	Jobs     JobsConfig         `yaml:"jobs"`
	Cache    CacheConfig        `yaml:"cache"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"` // 0 disables the health server
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// JobsConfig controls job execution.
type JobsConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"` // initial backoff, 0 = resume immediately
	MaxDelay   time.Duration `yaml:"max_delay"`
	Queue      string        `yaml:"queue"`
	Version    string        `yaml:"version"`
}

// CacheConfig holds the location of job caches.
type CacheConfig struct {
	BaseDir string `yaml:"base_dir"`
}
