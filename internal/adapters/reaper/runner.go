// Package reaper runs the retention loop that deletes expired terminal jobs.
package reaper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/target/mmk-jobs/config"
	"github.com/target/mmk-jobs/internal/core"
	"github.com/target/mmk-jobs/internal/data"
	"github.com/target/mmk-jobs/internal/domain/model"
	"github.com/target/mmk-jobs/internal/observability/statsd"
	"github.com/target/mmk-jobs/internal/service"
)

// RunnerOptions configures a Runner. Either DB or Repo must be set.
type RunnerOptions struct {
	DB      *sql.DB
	Repo    core.ReaperRepository // overrides DB
	Config  config.ReaperConfig
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// Summary counts the jobs deleted by one pass.
type Summary struct {
	Completed int64
	Failed    int64
}

// Total is the number of jobs deleted across both statuses.
func (s Summary) Total() int64 { return s.Completed + s.Failed }

// Runner drives a ReaperService either on its interval or as a single pass.
type Runner struct {
	svc    *service.ReaperService
	counts *countingRepo
	logger *slog.Logger
}

// NewRunner wires a ReaperService over the job store.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	repo := opts.Repo
	if repo == nil {
		if opts.DB == nil {
			return nil, errors.New("database connection is required")
		}
		repo = data.NewJobRepo(opts.DB, data.RepoConfig{Logger: logger})
	}
	counts := &countingRepo{next: repo}

	svc, err := service.NewReaperService(service.ReaperServiceOptions{
		Repo:    counts,
		Config:  opts.Config,
		Logger:  logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}
	return &Runner{svc: svc, counts: counts, logger: logger.With("component", "reaper_runner")}, nil
}

// Run loops until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner")
	return r.svc.Run(ctx)
}

// RunOnce performs a single retention pass and reports what it deleted.
func (r *Runner) RunOnce(ctx context.Context) (Summary, error) {
	r.counts.reset()
	err := r.svc.RunOnce(ctx)
	return r.counts.summary(), err
}

// countingRepo tallies deletions per status on their way through.
type countingRepo struct {
	next core.ReaperRepository

	mu  sync.Mutex
	sum Summary
}

func (c *countingRepo) DeleteOldJobs(ctx context.Context, params core.DeleteOldJobsParams) (int64, error) {
	n, err := c.next.DeleteOldJobs(ctx, params)
	c.mu.Lock()
	switch params.Status {
	case model.JobStatusCompleted:
		c.sum.Completed += n
	case model.JobStatusFailed:
		c.sum.Failed += n
	}
	c.mu.Unlock()
	return n, err
}

func (c *countingRepo) reset() {
	c.mu.Lock()
	c.sum = Summary{}
	c.mu.Unlock()
}

func (c *countingRepo) summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sum
}
