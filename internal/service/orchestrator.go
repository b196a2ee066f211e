package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/target/mmk-jobs/internal/core"
	domainjob "github.com/target/mmk-jobs/internal/domain/job"
	"github.com/target/mmk-jobs/internal/domain/model"
	"github.com/target/mmk-jobs/internal/observability/metrics"
	"github.com/target/mmk-jobs/internal/observability/statsd"
	"github.com/target/mmk-jobs/internal/service/failurenotifier"
)

// StartOutcome reports what StartJob did with a job.
type StartOutcome string

const (
	// StartStarted means an executor goroutine now owns the job.
	StartStarted StartOutcome = "started"
	// StartQueued means no slot was free; the job is persisted as queued.
	StartQueued StartOutcome = "queued"
	// StartFailed means the job could not be run at all and was recorded as failed.
	StartFailed StartOutcome = "failed"
)

// finalizeTimeout bounds status writes made after a job's own context is gone.
const finalizeTimeout = 10 * time.Second

// SleepFunc waits for d or until ctx is done, returning ctx's error in the latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// OrchestratorOptions groups dependencies for Orchestrator.
type OrchestratorOptions struct {
	Store    core.JobStore     // Required: durable job store
	Manager  *JobManager       // Required: in-process registry
	Registry core.WorkRegistry // Required: work function per job type

	Cache    core.ProgressCache       // Optional: progress mirror and event fan-out
	Notifier *failurenotifier.Service // Optional: terminal failure notifications
	Metrics  statsd.Sink              // Optional: metrics sink
	Logger   *slog.Logger             // Optional: structured logger

	Policy  *domainjob.RetryPolicy // Optional: defaults to 3 attempts, 2s base delay
	MaxRows int                    // Optional: row budget per job, defaults to domainjob.DefaultMaxRows

	// Sleep replaces the backoff wait; tests inject a recorder.
	Sleep SleepFunc
	// BaseContext parents every job context. Shutdown cancels it.
	BaseContext context.Context
	Now         func() time.Time
}

// Orchestrator starts jobs within the manager's cap, runs them with retry and backoff,
// and promotes waiting jobs whenever a slot frees up.
type Orchestrator struct {
	store    core.JobStore
	manager  *JobManager
	registry core.WorkRegistry
	cache    core.ProgressCache
	notifier *failurenotifier.Service
	metrics  statsd.Sink
	logger   *slog.Logger
	policy   *domainjob.RetryPolicy
	maxRows  int
	sleep    SleepFunc
	now      func() time.Time

	baseCtx  context.Context
	stopBase context.CancelCauseFunc
	wg       sync.WaitGroup
	drain    singleflight.Group
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, errors.New("JobStore is required")
	}
	if opts.Manager == nil {
		return nil, errors.New("JobManager is required")
	}
	if len(opts.Registry) == 0 {
		return nil, errors.New("at least one work function is required")
	}

	policy := opts.Policy
	if policy == nil {
		var err error
		policy, err = domainjob.NewRetryPolicy(3, 2*time.Second)
		if err != nil {
			return nil, fmt.Errorf("create retry policy: %w", err)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	parent := opts.BaseContext
	if parent == nil {
		parent = context.Background()
	}
	baseCtx, stop := context.WithCancelCause(parent)

	o := &Orchestrator{
		store:    opts.Store,
		manager:  opts.Manager,
		registry: opts.Registry,
		cache:    opts.Cache,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		logger:   logger.With("component", "orchestrator"),
		policy:   policy,
		maxRows:  opts.MaxRows,
		sleep:    sleep,
		now:      now,
		baseCtx:  baseCtx,
		stopBase: stop,
	}
	o.logger.Debug("Orchestrator initialized",
		"max_concurrent", opts.Manager.MaxConcurrent(),
		"max_retries", policy.MaxRetries(),
	)
	return o, nil
}

// Manager returns the registry the orchestrator starts jobs into.
func (o *Orchestrator) Manager() *JobManager { return o.manager }

// StartJob runs j now when a slot is free and queues it otherwise.
// The executor runs on the orchestrator's base context, not on ctx, so the job outlives the
// request that started it. ctx only bounds the status writes made here.
func (o *Orchestrator) StartJob(ctx context.Context, j *model.Job) (StartOutcome, error) {
	if j == nil || j.ID == "" {
		return "", errors.New("job with id is required")
	}
	if o.manager.IsRunning(j.ID) {
		return StartStarted, nil
	}
	if err := o.baseCtx.Err(); err != nil {
		return o.queue(ctx, j)
	}

	params, err := model.DecodeParameters(j.Type, j.Parameters)
	if err != nil {
		return o.reject(ctx, j, fmt.Sprintf("Invalid job parameters: %v", err), err)
	}
	work, ok := o.registry.Lookup(j.Type)
	if !ok {
		return o.reject(ctx, j, fmt.Sprintf("Unsupported job type: %s", j.Type), model.ErrInvalidJobType)
	}

	if !o.manager.CanStart() {
		return o.queue(ctx, j)
	}

	jobCtx, cancel := context.WithCancelCause(o.baseCtx)
	reg, ok := o.manager.register(j.ID, cancel)
	if !ok {
		cancel(nil)
		if o.manager.IsRunning(j.ID) {
			return StartStarted, nil
		}
		// Lost the race for the last slot.
		return o.queue(ctx, j)
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel(nil)
		o.execute(jobCtx, j, params, work, reg)
	}()

	o.logger.InfoContext(ctx, "started job", "job_id", j.ID, "job_type", j.Type)
	metrics.EmitCapacity(o.metrics, o.manager.RunningCount(), o.manager.MaxConcurrent())
	return StartStarted, nil
}

func (o *Orchestrator) queue(ctx context.Context, j *model.Job) (StartOutcome, error) {
	if _, err := o.store.UpdateStatus(ctx, j.ID, model.StatusUpdate{Status: model.JobStatusQueued}); err != nil {
		return "", fmt.Errorf("queue job %s: %w", j.ID, err)
	}
	o.logger.InfoContext(ctx, "job queued (concurrency limit reached)", "job_id", j.ID)
	o.publish(ctx, j, model.JobEventQueued, model.JobStatusQueued, 0, "")
	metrics.EmitJobLifecycle(o.metrics, metrics.JobMetric{
		JobType:    string(j.Type),
		Transition: metrics.TransitionQueued,
		Result:     metrics.ResultSuccess,
	})
	return StartQueued, nil
}

func (o *Orchestrator) reject(ctx context.Context, j *model.Job, message string, cause error) (StartOutcome, error) {
	now := o.now()
	if _, err := o.store.UpdateStatus(ctx, j.ID, model.StatusUpdate{
		Status:       model.JobStatusFailed,
		ErrorMessage: &message,
		CompletedAt:  &now,
	}); err != nil {
		return "", fmt.Errorf("fail job %s: %w", j.ID, err)
	}
	o.logger.WarnContext(ctx, "job rejected", "job_id", j.ID, "job_type", j.Type, "error", cause)
	o.publish(ctx, j, model.JobEventFailed, model.JobStatusFailed, 0, message)
	metrics.EmitJobLifecycle(o.metrics, metrics.JobMetric{
		JobType:    string(j.Type),
		Transition: metrics.TransitionFailed,
		Result:     metrics.ResultError,
		Err:        domainjob.Fatal(cause),
	})
	return StartFailed, nil
}

// ProcessQueuedJobs starts waiting jobs, oldest first, until no slot is free.
// Concurrent calls share one drain; a caller that joined a drain already in flight runs one
// more pass so a slot freed during that drain is not left idle.
func (o *Orchestrator) ProcessQueuedJobs(ctx context.Context) error {
	_, err, shared := o.drain.Do("drain", func() (any, error) {
		return o.drainOnce(ctx)
	})
	if err == nil && shared && o.manager.CanStart() {
		_, err, _ = o.drain.Do("drain", func() (any, error) {
			return o.drainOnce(ctx)
		})
	}
	return err
}

func (o *Orchestrator) drainOnce(ctx context.Context) (int, error) {
	if o.baseCtx.Err() != nil || !o.manager.CanStart() {
		return 0, nil
	}

	pending, err := o.store.GetPendingJobs(ctx, o.manager.MaxConcurrent())
	if err != nil {
		return 0, fmt.Errorf("get pending jobs: %w", err)
	}

	started := 0
	for _, j := range pending {
		if !o.manager.CanStart() {
			break
		}
		if o.manager.IsRunning(j.ID) {
			continue
		}
		outcome, err := o.StartJob(ctx, j)
		if err != nil {
			o.logger.ErrorContext(ctx, "failed to start queued job", "job_id", j.ID, "error", err)
			continue
		}
		if outcome == StartStarted {
			started++
		}
	}
	return started, nil
}

// Shutdown cancels every running job with ErrShutdown and waits for their cleanup, or for ctx.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.stopBase(ErrShutdown)
	n := o.manager.CancelAll(ErrShutdown)
	o.logger.InfoContext(ctx, "orchestrator shutting down", "cancelled_jobs", n)

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for running jobs: %w", ctx.Err())
	}
}

// Wait blocks until every executor launched so far has finished.
func (o *Orchestrator) Wait() { o.wg.Wait() }

func (o *Orchestrator) publish(
	ctx context.Context,
	j *model.Job,
	typ model.JobEventType,
	status model.JobStatus,
	attempt int,
	message string,
) {
	if o.cache == nil {
		return
	}
	evt := model.JobEvent{
		Type:      typ,
		JobID:     j.ID,
		JobType:   j.Type,
		Status:    status,
		Attempt:   attempt,
		Message:   message,
		Timestamp: o.now(),
	}
	if err := o.cache.PublishEvent(ctx, evt); err != nil {
		o.logger.WarnContext(ctx, "failed to publish job event",
			"job_id", j.ID, "event", typ, "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
