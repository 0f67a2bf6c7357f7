package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// LoggerConfig configures logging behavior.
//
// Priority order (highest to lowest):
//  1. Environment variables (CONVOY_LOGGER__LEVEL, CONVOY_LOGGER__FILE, CONVOY_LOGGER__FORMAT)
//  2. Config file (logger section)
//  3. Defaults (info level, simple format, stderr)
type LoggerConfig struct {
	// Level specifies the log level (debug, info, warn, error). Default: info.
	Level string `yaml:"level,omitempty"`
	// File specifies the log file path. If empty, logs go to stderr.
	File string `yaml:"file,omitempty"`
	// Format specifies the log format: "simple" (text) or "json". Default: simple.
	Format string `yaml:"format,omitempty"`
}

// SetDefaults applies default values to LoggerConfig.
func (c *LoggerConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

// Validate checks the logger configuration.
func (c *LoggerConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Level)
	}
	switch c.Format {
	case "", "simple", "json":
	default:
		return fmt.Errorf("invalid log format %q (valid: simple, json)", c.Format)
	}
	return nil
}

// NewLogger builds a slog.Logger from the configuration.
func (c *LoggerConfig) NewLogger() (*slog.Logger, error) {
	var level slog.Level
	switch c.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if c.File != "" {
		f, err := os.OpenFile(c.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if c.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler), nil
}
