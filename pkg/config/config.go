package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "SWFT_"

// OutputFormats lists the accepted OutputFormat values
var OutputFormats = []string{"table", "json"}

// Config holds application configuration
type Config struct {
	LogLevel        logrus.Level  `json:"log_level" env:"LOG_LEVEL"`
	ScanTimeout     time.Duration `json:"scan_timeout" env:"SCAN_TIMEOUT" default:"10s"`
	AllowDuplicates bool          `json:"allow_duplicates" env:"ALLOW_DUPLICATES" default:"true"`
	OutputFormat    string        `json:"output_format" env:"OUTPUT_FORMAT" default:"table"`
	StorePath       string        `json:"store_path" env:"STORE_PATH"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{
		LogLevel:  logrus.InfoLevel,
		StorePath: DefaultStorePath(),
	}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load returns the defaults overridden by SWFT_* environment variables
func Load() (*Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be expressed as types
func (c *Config) Validate() error {
	if c.ScanTimeout < 0 {
		return fmt.Errorf("invalid scan timeout %s: must not be negative", c.ScanTimeout)
	}

	valid := false
	for _, f := range OutputFormats {
		if c.OutputFormat == f {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid format '%s': must be one of %v", c.OutputFormat, OutputFormats)
	}

	if c.StorePath == "" {
		return fmt.Errorf("store path must not be empty")
	}
	return nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// DefaultStorePath is record.yaml under the user config directory,
// or under ./.swft when there is none
func DefaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".swft", "record.yaml")
	}
	return filepath.Join(dir, "swft", "record.yaml")
}
