package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/target/mmk-jobs/config"
	"github.com/target/mmk-jobs/internal/core"
	"github.com/target/mmk-jobs/internal/domain/model"
	obserrors "github.com/target/mmk-jobs/internal/observability/errors"
	"github.com/target/mmk-jobs/internal/observability/metrics"
	"github.com/target/mmk-jobs/internal/observability/statsd"
)

// ReaperServiceOptions configures a ReaperService.
type ReaperServiceOptions struct {
	Repo    core.ReaperRepository // Required
	Config  config.ReaperConfig
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// ReaperService deletes completed and failed jobs once they outlive their
// retention window. Queued and running jobs are never touched.
type ReaperService struct {
	repo    core.ReaperRepository
	cfg     config.ReaperConfig
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewReaperService validates opts and builds a ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("reaper repository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ReaperService{
		repo:    opts.Repo,
		cfg:     opts.Config,
		logger:  logger.With("component", "reaper"),
		metrics: opts.Metrics,
	}, nil
}

// Run performs a pass after a short random delay and then one per Interval
// until ctx ends. Cancellation returns nil; a deadline returns its error.
func (s *ReaperService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "reaper started",
		"interval", s.cfg.Interval,
		"completed_max_age", s.cfg.CompletedMaxAge,
		"failed_max_age", s.cfg.FailedMaxAge,
	)

	if !sleepCtx(ctx, s.jitter()) {
		return stopReason(ctx)
	}
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil && !isCtxErr(err) {
			s.logger.ErrorContext(ctx, "reaper pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "reaper stopping", "reason", ctx.Err())
			return stopReason(ctx)
		case <-ticker.C:
		}
	}
}

// jitter is up to a tenth of the interval so replicas started together drift apart.
func (s *ReaperService) jitter() time.Duration {
	spread := s.cfg.Interval / 10
	if spread <= 0 {
		return 0
	}
	return rand.N(spread)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func stopReason(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

func isCtxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

type sweepResult struct {
	op      string
	deleted int64
	err     error
}

// RunOnce deletes expired completed jobs, then expired failed jobs. A
// failure in one status does not stop the other. When every failure was a
// context cancellation, context.Canceled is returned as is.
func (s *ReaperService) RunOnce(ctx context.Context) error {
	start := time.Now()
	sweeps := []struct {
		op     string
		status model.JobStatus
		maxAge time.Duration
	}{
		{"delete_completed", model.JobStatusCompleted, s.cfg.CompletedMaxAge},
		{"delete_failed", model.JobStatusFailed, s.cfg.FailedMaxAge},
	}

	results := make([]sweepResult, 0, len(sweeps))
	var errs []error
	onlyCanceled := true
	for _, sw := range sweeps {
		n, err := s.sweep(ctx, sw.status, sw.maxAge)
		results = append(results, sweepResult{op: sw.op, deleted: n, err: err})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sw.op, err))
			onlyCanceled = onlyCanceled && isCtxErr(err)
		}
	}
	s.record(results, time.Since(start))

	switch {
	case len(errs) == 0:
		return nil
	case onlyCanceled:
		return context.Canceled
	default:
		return fmt.Errorf("reaper pass: %w", errors.Join(errs...))
	}
}

// sweep deletes batches of status until one comes back empty.
func (s *ReaperService) sweep(ctx context.Context, status model.JobStatus, maxAge time.Duration) (int64, error) {
	params := core.DeleteOldJobsParams{Status: status, MaxAge: maxAge, BatchSize: s.cfg.BatchSize}
	var total int64
	for {
		n, err := s.repo.DeleteOldJobs(ctx, params)
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
	if total > 0 {
		s.logger.InfoContext(ctx, "expired jobs deleted", "status", status, "count", total, "max_age", maxAge)
	}
	return total, nil
}

// record emits one reaper.cleanup per pass and one reaper.cleanup_operation
// per status. Cancellation is not counted as an error.
func (s *ReaperService) record(results []sweepResult, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	var total int64
	var passErr error
	for i := range results {
		if isCtxErr(results[i].err) {
			results[i].err = nil
		}
		total += results[i].deleted
		if passErr == nil {
			passErr = results[i].err
		}
	}

	tags := outcomeTags(total, passErr)
	s.metrics.Count("reaper.cleanup", 1, tags)
	s.metrics.Timing("reaper.cleanup_duration", elapsed, metrics.CloneTags(tags))

	for _, r := range results {
		opTags := outcomeTags(r.deleted, r.err)
		opTags["operation"] = r.op
		s.metrics.Count("reaper.cleanup_operation", 1, opTags)
		if r.err == nil && r.deleted > 0 {
			s.metrics.Count("reaper.jobs_processed", r.deleted, metrics.CloneTags(opTags))
		}
	}
	if passErr == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func outcomeTags(deleted int64, err error) map[string]string {
	switch {
	case err != nil:
		return map[string]string{"result": metrics.ResultError, "error_class": obserrors.Classify(err)}
	case deleted == 0:
		return map[string]string{"result": metrics.ResultNoop}
	default:
		return map[string]string{"result": metrics.ResultSuccess}
	}
}
