package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/target/mmk-jobs/config"
	"github.com/target/mmk-jobs/internal/bootstrap"
)

// startupTimeout bounds connecting to the backends and migrating the schema.
const startupTimeout = 2 * time.Minute

func main() {
	logger := bootstrap.InitLogger()
	if err := run(logger); err != nil {
		logger.Error("mmk-jobs exited with error", "error", err)
		os.Exit(1) //nolint:forbidigo // non-zero exit on fatal errors
	}
}

func run(logger *slog.Logger) (err error) {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	if err := bootstrap.ValidateServiceConfig(&cfg); err != nil {
		return err
	}
	logger.Info("starting mmk-jobs", startupAttrs(&cfg)...)

	var closers closeStack
	defer func() { err = errors.Join(err, closers.close(logger)) }()

	deps, err := connect(&cfg, logger, &closers)
	if err != nil {
		return err
	}

	services, err := bootstrap.NewServices(deps)
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}
	return bootstrap.RunServicesWithShutdown(&bootstrap.ServiceOrchestrationConfig{
		Config:      &cfg,
		Services:    services,
		DB:          deps.DB,
		RedisClient: deps.RedisClient,
		Logger:      logger,
	})
}

// connect opens the database and, when enabled, Redis, then applies pending
// migrations if configured to. Every opened connection is pushed onto closers.
func connect(cfg *config.AppConfig, logger *slog.Logger, closers *closeStack) (*bootstrap.ServiceDeps, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	closers.push("database", db.Close)
	deps := &bootstrap.ServiceDeps{Config: cfg, DB: db, Logger: logger}

	if cfg.Redis.Enabled {
		client, err := bootstrap.ConnectRedis(bootstrap.DatabaseConfig{RedisConfig: cfg.Redis, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		closers.push("redis", client.Close)
		deps.RedisClient = client
	} else {
		logger.Info("redis disabled; progress cache and lifecycle events are off")
	}

	if !cfg.Postgres.RunMigrationsOnStart {
		logger.Info("skipping database migrations on startup")
		return deps, nil
	}
	if err := bootstrap.RunMigrations(ctx, db, logger); err != nil {
		return nil, err
	}
	return deps, nil
}

func startupAttrs(cfg *config.AppConfig) []any {
	return []any{
		"db_host", cfg.Postgres.Host,
		"db_port", cfg.Postgres.Port,
		"db_name", cfg.Postgres.Name,
		"redis_enabled", cfg.Redis.Enabled,
		"max_concurrent_jobs", cfg.Jobs.MaxConcurrent,
		"enabled_services", bootstrap.GetEnabledServices(cfg),
		"log_level", cfg.Log.Level,
	}
}

type namedCloser struct {
	name string
	fn   func() error
}

// closeStack closes resources in reverse order of opening.
type closeStack []namedCloser

func (s *closeStack) push(name string, fn func() error) {
	*s = append(*s, namedCloser{name: name, fn: fn})
}

func (s *closeStack) close(logger *slog.Logger) error {
	var errs []error
	for i := len(*s) - 1; i >= 0; i-- {
		c := (*s)[i]
		if err := c.fn(); err != nil {
			logger.Error("close failed", "resource", c.name, "error", err)
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	*s = nil
	return errors.Join(errs...)
}
