package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/target/mmk-jobs/config"
)

// InitLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func InitLogger() *slog.Logger {
	_ = loadDotEnv()
	logCfg, err := env.ParseAs[config.LogConfig]()
	if err != nil {
		logCfg = config.LogConfig{}
	}
	logCfg.Sanitize()

	logger := NewLogger(os.Stdout, logCfg)
	slog.SetDefault(logger)
	return logger
}

// NewLogger returns a slog logger writing to w in the configured format.
func NewLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// loadDotEnv reads .env when present. A missing file is not an error.
func loadDotEnv() error {
	err := godotenv.Load()
	var pathErr *os.PathError
	if err == nil || errors.As(err, &pathErr) {
		return nil
	}
	return fmt.Errorf("load .env file: %w", err)
}

// LoadConfig reads the application configuration from the environment and
// sanitizes it.
func LoadConfig() (config.AppConfig, error) {
	if err := loadDotEnv(); err != nil {
		return config.AppConfig{}, err
	}

	cfg, err := env.ParseAs[config.AppConfig]()
	if err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.Sanitize()
	return cfg, nil
}

// ValidateServiceConfig fails when SERVICES is malformed or selects nothing.
func ValidateServiceConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("service config is required")
	}
	services, err := cfg.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("invalid service configuration: %w", err)
	}
	if len(services) == 0 {
		return errors.New("no services enabled")
	}
	return nil
}

// GetEnabledServices lists the enabled service names in their canonical order.
// A malformed SERVICES value yields an empty list; ValidateServiceConfig reports it.
func GetEnabledServices(cfg *config.AppConfig) []string {
	if cfg == nil {
		return nil
	}
	services, err := cfg.GetEnabledServices()
	if err != nil {
		return nil
	}

	names := make([]string, 0, len(services))
	for _, mode := range config.ValidServiceModes() {
		if services[mode] {
			names = append(names, string(mode))
		}
	}
	return names
}
