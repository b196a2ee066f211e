// Package failurenotifier fans terminal job failures out to notification sinks.
package failurenotifier

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/mmk-jobs/internal/observability/notify"
)

// SinkRegistration names a sink for log lines.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures a Service.
type Options struct {
	Logger  *slog.Logger
	Sinks   []SinkRegistration
	Timeout time.Duration // per-sink delivery bound; zero means none
	Clock   func() time.Time
}

// Service delivers each failure to every registered sink in parallel.
// A nil *Service is valid and drops everything.
type Service struct {
	logger  *slog.Logger
	sinks   []SinkRegistration
	timeout time.Duration
	now     func() time.Time
}

// NewService builds a Service, skipping registrations without a sink.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "failure_notifier")
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	sinks := make([]SinkRegistration, 0, len(opts.Sinks))
	for _, reg := range opts.Sinks {
		if reg.Sink == nil {
			continue
		}
		if reg.Name == "" {
			reg.Name = "sink"
		}
		sinks = append(sinks, reg)
	}
	return &Service{logger: logger, sinks: sinks, timeout: opts.Timeout, now: now}
}

// Enabled reports whether any sink is registered.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}

// NotifyJobFailure fills in severity and timestamp defaults, then blocks until
// every sink has accepted or rejected the failure. Delivery errors are logged,
// never returned.
func (s *Service) NotifyJobFailure(ctx context.Context, failure notify.JobFailure) {
	if !s.Enabled() {
		return
	}
	if failure.Severity == "" {
		failure.Severity = notify.SeverityFor(failure.ErrorClass)
	}
	if failure.OccurredAt.IsZero() {
		failure.OccurredAt = s.now().UTC()
	}

	var g errgroup.Group
	for _, reg := range s.sinks {
		g.Go(func() error {
			s.deliver(ctx, reg, failure)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) deliver(ctx context.Context, reg SinkRegistration, failure notify.JobFailure) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := reg.Sink.SendJobFailure(ctx, failure); err != nil {
		s.logger.ErrorContext(ctx, "failure notification not delivered",
			"sink", reg.Name,
			"job_id", failure.JobID,
			"job_type", failure.JobType,
			"error", err,
		)
		return
	}
	s.logger.DebugContext(ctx, "failure notification delivered", "sink", reg.Name, "job_id", failure.JobID)
}
