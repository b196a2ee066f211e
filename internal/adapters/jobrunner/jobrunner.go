// Package jobrunner runs the orchestrator service mode: startup recovery and the periodic
// queue sweep.
package jobrunner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/target/mmk-jobs/internal/observability/statsd"
	"github.com/target/mmk-jobs/internal/service"
)

const defaultSweepInterval = 30 * time.Second

// RunnerOptions configures the orchestrator runner adapter.
type RunnerOptions struct {
	Orchestrator *service.Orchestrator        // Required
	Recovery     *service.RecoveryCoordinator // Required when RecoverOnStartup is set
	Logger       *slog.Logger
	Metrics      statsd.Sink

	RecoverOnStartup bool
	SweepInterval    time.Duration // defaults to 30s
}

// Runner keeps the orchestrator's queue moving for the lifetime of the process.
type Runner struct {
	orch            *service.Orchestrator
	recovery        *service.RecoveryCoordinator
	logger          *slog.Logger
	metrics         statsd.Sink
	recoverOnStart bool
	interval       time.Duration
}

func resolveLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

// NewRunner validates opts and constructs a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if opts.RecoverOnStartup && opts.Recovery == nil {
		return nil, errors.New("recovery coordinator is required when recovering on startup")
	}

	interval := opts.SweepInterval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Runner{
		orch:           opts.Orchestrator,
		recovery:       opts.Recovery,
		logger:         resolveLogger(opts.Logger).With("component", "job_runner"),
		metrics:        opts.Metrics,
		recoverOnStart: opts.RecoverOnStartup,
		interval:       interval,
	}, nil
}

// Run recovers orphaned jobs if configured, then sweeps the queue every interval until
// ctx is cancelled. Running jobs are left alone; the owner shuts the orchestrator down
// once the API has stopped accepting work.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting job runner",
		"sweep_interval", r.interval,
		"recover_on_startup", r.recoverOnStart,
	)

	if r.recoverOnStart {
		res := r.recovery.Recover(ctx)
		for _, e := range res.Errors {
			r.logger.WarnContext(ctx, "startup recovery error", "error", e)
		}
	}
	r.sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "job runner stopping")
			return nil
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Runner) sweep(ctx context.Context) {
	if err := r.orch.ProcessQueuedJobs(ctx); err != nil && ctx.Err() == nil {
		r.logger.ErrorContext(ctx, "queue sweep failed", "error", err)
		if r.metrics != nil {
			r.metrics.Count("jobs.queue_sweep_error", 1, nil)
		}
	}
}
