// Package config reads process configuration from BASHED_* environment
// variables. Command-line flags override what it returns.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/roach88/bashed/internal/publish"
)

// Config is the process configuration.
type Config struct {
	Workers     int    `env:"BASHED_WORKERS"`
	Game        string `env:"BASHED_GAME" envDefault:"skyrim"`
	SchemaDir   string `env:"BASHED_SCHEMA_DIR"`
	DB          string `env:"BASHED_DB"`
	LogLevel    string `env:"BASHED_LOG_LEVEL" envDefault:"info"`
	MetricsFile string `env:"BASHED_METRICS_FILE"`

	OTelEndpoint string `env:"BASHED_OTEL_ENDPOINT"`

	S3Region    string `env:"BASHED_S3_REGION" envDefault:"us-east-1"`
	S3Endpoint  string `env:"BASHED_S3_ENDPOINT"`
	S3PathStyle bool   `env:"BASHED_S3_PATH_STYLE"`
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load returns the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Workers < 0 {
		return Config{}, fmt.Errorf("BASHED_WORKERS must not be negative, got %d", cfg.Workers)
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Level returns the configured log level.
func (c Config) Level() slog.Level {
	l, _ := ParseLevel(c.LogLevel)
	return l
}

// S3 returns the publisher settings for s3:// destinations.
func (c Config) S3() publish.S3Config {
	return publish.S3Config{
		Region:    c.S3Region,
		Endpoint:  c.S3Endpoint,
		PathStyle: c.S3PathStyle,
	}
}

// ParseLevel parses debug, info, warn or error. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("BASHED_LOG_LEVEL: %w", err)
	}
	return l, nil
}
