package config

import (
	"fmt"
	"io"
	"os"

	"github.com/kilianp07/routecast/infra/logger"
)

// LoggingConfig selects the log level and output format.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level"`
	// Format is "json" or "console".
	Format string `json:"format"`
	// File additionally writes logs to a rotated file when set.
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "json"
	}
	if c.File == "" {
		return
	}
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = 100
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = 3
	}
	if c.MaxAgeDays == 0 {
		c.MaxAgeDays = 7
	}
}

// Validate checks mandatory fields.
func (c LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q not supported", c.Level)
	}
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("logging.format %q not supported", c.Format)
	}
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return fmt.Errorf("logging rotation limits must not be negative")
	}
	return nil
}

// Apply configures the process loggers.
func (c LoggingConfig) Apply() error {
	if err := logger.Configure(c.Level, c.Format); err != nil {
		return err
	}
	if c.File != "" {
		f, err := logger.NewRotatingFile(c.File, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
		if err != nil {
			return fmt.Errorf("log file: %w", err)
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, f))
	}
	return nil
}
