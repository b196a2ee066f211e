package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/target/mmk-jobs/config"
	"github.com/target/mmk-jobs/internal/adapters/jobrunner"
	"github.com/target/mmk-jobs/internal/adapters/reaper"
)

// orchestratorDrainTimeout bounds how long in-flight jobs get to wind down
// once every service loop has returned.
const orchestratorDrainTimeout = 15 * time.Second

// ServiceOrchestrationConfig is what RunServicesWithShutdown needs to run a process.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceUnit is one long-running loop selected by SERVICES.
type serviceUnit struct {
	mode config.ServiceMode
	run  func(context.Context) error
}

// RunServicesWithShutdown runs every enabled service until SIGINT or SIGTERM
// arrives or one of them fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return runServices(ctx, cfg)
}

// runServices runs the enabled units under one errgroup: the first failure
// cancels the rest. After all units return, running jobs are cancelled and
// drained.
func runServices(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("service orchestration config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, unit := range serviceUnits(cfg, logger) {
		if !enabled[unit.mode] {
			continue
		}
		g.Go(func() error {
			logger.InfoContext(gctx, "service started", "service", unit.mode)
			if err := unit.run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.ErrorContext(gctx, "service failed", "service", unit.mode, "error", err)
				return fmt.Errorf("%s: %w", unit.mode, err)
			}
			logger.Info("service stopped", "service", unit.mode)
			return nil
		})
	}
	err = g.Wait()

	if orch := cfg.Services.Orchestrator; orch != nil {
		dctx, cancel := context.WithTimeout(context.Background(), orchestratorDrainTimeout)
		defer cancel()
		if derr := orch.Shutdown(dctx); derr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown orchestrator: %w", derr))
		}
	}
	return err
}

func serviceUnits(cfg *ServiceOrchestrationConfig, logger *slog.Logger) []serviceUnit {
	app := cfg.Config
	svcs := cfg.Services
	return []serviceUnit{
		{
			mode: config.ServiceModeHTTP,
			run: func(ctx context.Context) error {
				return serveHTTP(ctx, newHTTPServer(app, svcs, logger), app.HTTP.ShutdownTimeout, logger)
			},
		},
		{
			mode: config.ServiceModeOrchestrator,
			run: func(ctx context.Context) error {
				runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{
					Orchestrator:     svcs.Orchestrator,
					Recovery:         svcs.Recovery,
					Logger:           logger,
					Metrics:          svcs.Observability.sink(),
					RecoverOnStartup: app.Jobs.RecoverOnStartup,
					SweepInterval:    app.Jobs.QueueSweepInterval,
				})
				if err != nil {
					return fmt.Errorf("create job runner: %w", err)
				}
				return runner.Run(ctx)
			},
		},
		{
			mode: config.ServiceModeReaper,
			run: func(ctx context.Context) error {
				runner, err := reaper.NewRunner(reaper.RunnerOptions{
					DB:      cfg.DB,
					Config:  app.Reaper,
					Logger:  logger,
					Metrics: svcs.Observability.sink(),
				})
				if err != nil {
					return fmt.Errorf("create reaper runner: %w", err)
				}
				return runner.Run(ctx)
			},
		},
	}
}
