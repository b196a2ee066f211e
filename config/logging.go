package config

import (
	"log/slog"
	"strings"
)

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `env:"LOG_LEVEL" envDefault:"info"`

	// Format is json or text.
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// Sanitize lowercases the values and falls back to info/json for unknown ones.
func (c *LogConfig) Sanitize() {
	c.Level = strings.ToLower(strings.TrimSpace(c.Level))
	switch c.Level {
	case "debug", "info", "warn", "error":
	case "warning":
		c.Level = "warn"
	default:
		c.Level = "info"
	}

	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	if c.Format != "text" {
		c.Format = "json"
	}
}

// SlogLevel returns the slog level for Level.
func (c LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
