package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/target/mmk-jobs/internal/core"
	"github.com/target/mmk-jobs/internal/observability/metrics"
	"github.com/target/mmk-jobs/internal/observability/statsd"
)

// RecoveryResult reports what a recovery run did.
type RecoveryResult struct {
	AlreadyRecovered      bool     `json:"already_recovered,omitempty"`
	StaleJobsFound        int      `json:"stale_jobs_found"`
	StaleJobsMarkedFailed int64    `json:"stale_jobs_marked_failed"`
	QueuedJobsStarted     int      `json:"queued_jobs_started"`
	Errors                []string `json:"errors"`
}

// RecoveryCoordinatorOptions groups dependencies for RecoveryCoordinator.
type RecoveryCoordinatorOptions struct {
	Orchestrator *Orchestrator // Required
	Metrics      statsd.Sink   // Optional
	Logger       *slog.Logger  // Optional
}

// RecoveryCoordinator fails jobs orphaned by a previous process and restarts waiting jobs.
// It runs at most once per process unless forced.
type RecoveryCoordinator struct {
	orch    *Orchestrator
	store   core.JobStore
	manager *JobManager
	metrics statsd.Sink
	logger  *slog.Logger

	mu sync.Mutex
}

// NewRecoveryCoordinator constructs a RecoveryCoordinator.
func NewRecoveryCoordinator(opts RecoveryCoordinatorOptions) (*RecoveryCoordinator, error) {
	if opts.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RecoveryCoordinator{
		orch:    opts.Orchestrator,
		store:   opts.Orchestrator.store,
		manager: opts.Orchestrator.manager,
		metrics: opts.Metrics,
		logger:  logger.With("component", "recovery"),
	}, nil
}

// Recovered reports whether recovery has completed in this process.
func (c *RecoveryCoordinator) Recovered() bool { return c.manager.Recovered() }

// Recover runs recovery once. Later calls return AlreadyRecovered without touching the store.
func (c *RecoveryCoordinator) Recover(ctx context.Context) RecoveryResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.manager.Recovered() {
		c.logger.DebugContext(ctx, "recovery already completed, skipping")
		metrics.EmitRecovery(c.metrics, metrics.RecoveryMetric{Skipped: true})
		return RecoveryResult{AlreadyRecovered: true, Errors: []string{}}
	}
	return c.run(ctx)
}

// Force resets the recovered flag and runs recovery again.
func (c *RecoveryCoordinator) Force(ctx context.Context) RecoveryResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.manager.MarkRecovered(false)
	return c.run(ctx)
}

func (c *RecoveryCoordinator) run(ctx context.Context) RecoveryResult {
	start := time.Now()
	res := RecoveryResult{Errors: []string{}}
	c.logger.InfoContext(ctx, "starting job recovery")

	stale, err := c.store.GetStaleRunningJobs(ctx)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("get stale jobs: %v", err))
	}

	ids := make([]string, 0, len(stale))
	for _, j := range stale {
		if c.manager.IsRunning(j.ID) {
			continue
		}
		ids = append(ids, j.ID)
	}
	res.StaleJobsFound = len(ids)

	if len(ids) > 0 {
		n, err := c.store.MarkStaleJobsAsFailed(ctx, ids, MsgInterrupted)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("mark stale jobs failed: %v", err))
		} else {
			res.StaleJobsMarkedFailed = n
			c.logger.InfoContext(ctx, "marked stale jobs as failed", "count", n)
		}
	}

	pending, err := c.store.GetPendingJobs(ctx, c.manager.MaxConcurrent())
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("get pending jobs: %v", err))
	}
	for _, j := range pending {
		if !c.manager.CanStart() {
			break
		}
		if c.manager.IsRunning(j.ID) {
			continue
		}
		outcome, err := c.orch.StartJob(ctx, j)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("start job %s: %v", j.ID, err))
			continue
		}
		if outcome == StartStarted {
			res.QueuedJobsStarted++
		}
	}

	c.manager.MarkRecovered(true)

	var joined error
	if len(res.Errors) > 0 {
		joined = errors.New(res.Errors[0])
	}
	metrics.EmitRecovery(c.metrics, metrics.RecoveryMetric{
		StaleFailed: res.StaleJobsMarkedFailed,
		Resumed:     res.QueuedJobsStarted,
		Duration:    time.Since(start),
		Err:         joined,
	})
	c.logger.InfoContext(ctx, "job recovery complete",
		"stale_found", res.StaleJobsFound,
		"stale_failed", res.StaleJobsMarkedFailed,
		"started", res.QueuedJobsStarted,
		"errors", len(res.Errors),
	)
	return res
}
