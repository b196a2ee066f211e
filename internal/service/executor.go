package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/target/mmk-jobs/internal/core"
	"github.com/target/mmk-jobs/internal/data"
	domainjob "github.com/target/mmk-jobs/internal/domain/job"
	"github.com/target/mmk-jobs/internal/domain/model"
	obserrors "github.com/target/mmk-jobs/internal/observability/errors"
	"github.com/target/mmk-jobs/internal/observability/metrics"
	"github.com/target/mmk-jobs/internal/observability/notify"
)

// Messages written to error_message by the executor and the recovery coordinator.
const (
	MsgCancelledByUser    = "Cancelled by user"
	MsgCancelled          = "Job was cancelled"
	MsgInterrupted        = "Job interrupted by server restart. Please retry."
	MsgMaxRetriesExceeded = "Max retries exceeded. Last error: "
	MsgSaveFailed         = "failed to save results to database"
	msgComplete           = "Complete"
)

var (
	// errExecutorPanic wraps a recovered panic from a work function.
	errExecutorPanic = errors.New("work function panicked")
	// errJobGone stops execution of a job whose row was deleted underneath it.
	errJobGone = domainjob.Fatal(data.ErrJobNotFound)
)

// execute runs j until it completes, fails, or is cancelled. It always releases the job's
// slot and drains the queue before returning.
func (o *Orchestrator) execute(
	ctx context.Context,
	j *model.Job,
	params model.Parameters,
	work core.WorkFunc,
	reg *slot,
) {
	start := time.Now()
	logger := o.logger.With("job_id", j.ID, "job_type", j.Type)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("job executor panicked", "panic", r)
			err := domainjob.Fatal(fmt.Errorf("%w: %v", errExecutorPanic, r))
			o.finishFailed(ctx, j, 0, err.Error(), err, start)
		}
		o.manager.release(j.ID, reg)
		metrics.EmitCapacity(o.metrics, o.manager.RunningCount(), o.manager.MaxConcurrent())
		if err := o.ProcessQueuedJobs(o.baseCtx); err != nil {
			logger.Error("failed to process queued jobs", "error", err)
		}
	}()

	for retryCount := 0; ; retryCount++ {
		logger.Info("executing job", "attempt", retryCount+1, "max_attempts", o.policy.MaxRetries())
		err := o.attempt(ctx, j, params, work, retryCount)
		if err == nil {
			o.emitTransition(j, metrics.TransitionCompleted, metrics.ResultSuccess, time.Since(start), nil)
			return
		}
		if errors.Is(err, errJobGone) {
			o.abandon(ctx, j, retryCount)
			return
		}

		if ctx.Err() != nil {
			o.finishCancelled(ctx, j, retryCount, start)
			return
		}

		if o.policy.ShouldRetry(err, retryCount) {
			logger.Warn("retryable job error", "attempt", retryCount+1, "error", err)
			if rerr := o.scheduleRetry(ctx, j, retryCount, err); rerr != nil {
				if errors.Is(rerr, errJobGone) {
					o.abandon(ctx, j, retryCount)
				} else {
					o.finishCancelled(ctx, j, retryCount, start)
				}
				return
			}
			continue
		}

		msg := err.Error()
		if domainjob.IsRetryable(err) {
			msg = MsgMaxRetriesExceeded + msg
			logger.Error("max retries exceeded", "attempts", retryCount+1, "error", err)
		} else {
			logger.Error("job failed", "attempt", retryCount+1, "error", err)
		}
		o.finishFailed(ctx, j, retryCount, msg, err, start)
		return
	}
}

// attempt runs the work function once and persists its result. A nil return means the job
// is completed.
func (o *Orchestrator) attempt(
	ctx context.Context,
	j *model.Job,
	params model.Parameters,
	work core.WorkFunc,
	retryCount int,
) error {
	startMsg := "Starting data collection..."
	if retryCount > 0 {
		startMsg = fmt.Sprintf("Starting data collection (retry %d)...", retryCount)
	}
	upd := model.StatusUpdate{
		Status:           model.JobStatusRunning,
		Progress:         intPtr(0),
		ProgressMessage:  &startMsg,
		ClearCompletedAt: true,
	}
	if retryCount == 0 {
		now := o.now()
		upd.StartedAt = &now
	}
	ok, err := o.store.UpdateStatus(ctx, j.ID, upd)
	if err != nil {
		return domainjob.Retryable(fmt.Errorf("mark job running: %w", err))
	}
	if !ok {
		return errJobGone
	}
	o.cacheProgress(ctx, j.ID, model.JobStatusRunning, 0, startMsg, retryCount)
	o.publish(ctx, j, model.JobEventStarted, model.JobStatusRunning, retryCount, startMsg)
	if retryCount == 0 {
		o.emitTransition(j, metrics.TransitionStarted, metrics.ResultSuccess, 0, nil)
	}

	rows := domainjob.NewRowSink(o.maxRows)
	reporter := &progressReporter{orch: o, jobID: j.ID, retryCount: retryCount}

	res, err := work(ctx, core.WorkRequest{
		JobID:    j.ID,
		Params:   params,
		Attempt:  retryCount,
		Progress: reporter.report,
		Rows:     rows,
	})
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	out := model.WorkResult{}
	if res != nil {
		out = *res
	}
	if out.Rows == nil {
		out.Rows = rows.Rows()
	}
	meta := make(map[string]any, len(out.Metadata)+3)
	for k, v := range out.Metadata {
		meta[k] = v
	}
	meta[model.MetaRetryCount] = retryCount
	if rows.LimitReached() {
		meta[model.MetaRowLimitHit] = true
		meta[model.MetaMaxRows] = rows.Max()
	}
	out.Metadata = meta

	ok, err = o.store.Complete(ctx, j.ID, out)
	if err != nil {
		return domainjob.Retryable(fmt.Errorf("%s: %w", MsgSaveFailed, err))
	}
	if !ok {
		return domainjob.Retryable(errors.New(MsgSaveFailed))
	}

	o.logger.InfoContext(ctx, "job completed",
		"job_id", j.ID,
		"rows", len(out.Rows),
		"attempt", retryCount+1,
	)
	o.cacheProgress(ctx, j.ID, model.JobStatusCompleted, 100, msgComplete, retryCount)
	o.publish(ctx, j, model.JobEventCompleted, model.JobStatusCompleted, retryCount, msgComplete)
	return nil
}

// scheduleRetry records pending_retry, bumps the stored retry counter, and waits out the
// backoff. It returns errJobGone when the row no longer exists and the context error when
// the job was cancelled during the wait.
func (o *Orchestrator) scheduleRetry(ctx context.Context, j *model.Job, retryCount int, cause error) error {
	delay := o.policy.Delay(retryCount)
	next := retryCount + 1
	msg := fmt.Sprintf("Retrying in %ds... (attempt %d/%d)", int(delay/time.Second), next+1, o.policy.MaxRetries())
	errMsg := cause.Error()

	ok, err := o.store.UpdateStatus(ctx, j.ID, model.StatusUpdate{
		Status:          model.JobStatusPendingRetry,
		ProgressMessage: &msg,
		ErrorMessage:    &errMsg,
	})
	switch {
	case err != nil:
		o.logger.WarnContext(ctx, "failed to record pending retry", "job_id", j.ID, "error", err)
	case !ok:
		return errJobGone
	}
	if _, err := o.store.IncrementRetry(ctx, j.ID); err != nil {
		if errors.Is(err, data.ErrJobNotFound) {
			return errJobGone
		}
		o.logger.WarnContext(ctx, "failed to increment retry count", "job_id", j.ID, "error", err)
	}
	o.cacheProgress(ctx, j.ID, model.JobStatusPendingRetry, -1, msg, next)
	o.publish(ctx, j, model.JobEventRetrying, model.JobStatusPendingRetry, next, msg)
	o.emitTransition(j, metrics.TransitionRetrying, metrics.ResultRetry, 0, cause)

	return o.sleep(ctx, delay)
}

// abandon stops a job whose row was deleted mid-flight. Nothing is written back and no
// failure is reported; only the cached snapshot is dropped.
func (o *Orchestrator) abandon(ctx context.Context, j *model.Job, retryCount int) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	o.logger.InfoContext(wctx, "job record removed, abandoning execution", "job_id", j.ID, "attempt", retryCount+1)
	if o.cache == nil {
		return
	}
	if err := o.cache.Forget(wctx, j.ID); err != nil {
		o.logger.WarnContext(wctx, "failed to drop cached progress", "job_id", j.ID, "error", err)
	}
}

// finishCancelled records the cancellation message matching the context's cause.
func (o *Orchestrator) finishCancelled(ctx context.Context, j *model.Job, retryCount int, start time.Time) {
	cause := context.Cause(ctx)
	msg := MsgCancelled
	switch {
	case errors.Is(cause, ErrCancelledByUser):
		msg = MsgCancelledByUser
	case errors.Is(cause, ErrShutdown):
		msg = MsgInterrupted
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	now := o.now()
	if _, err := o.store.UpdateStatus(wctx, j.ID, model.StatusUpdate{
		Status:       model.JobStatusFailed,
		ErrorMessage: &msg,
		CompletedAt:  &now,
	}); err != nil {
		o.logger.ErrorContext(wctx, "failed to record cancellation", "job_id", j.ID, "error", err)
	}
	o.logger.InfoContext(wctx, "job cancelled", "job_id", j.ID, "reason", msg)
	o.cacheProgress(wctx, j.ID, model.JobStatusFailed, -1, msg, retryCount)
	o.publish(wctx, j, model.JobEventCancelled, model.JobStatusFailed, retryCount, msg)
	o.emitTransition(j, metrics.TransitionCancelled, metrics.ResultError, time.Since(start), cause)

	if errors.Is(cause, ErrShutdown) {
		o.notifier.NotifyJobFailure(wctx, o.failurePayload(j, retryCount, msg, cause))
	}
}

// finishFailed records a terminal failure and notifies the failure sinks.
func (o *Orchestrator) finishFailed(
	ctx context.Context,
	j *model.Job,
	retryCount int,
	msg string,
	cause error,
	start time.Time,
) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	now := o.now()
	if _, err := o.store.UpdateStatus(wctx, j.ID, model.StatusUpdate{
		Status:       model.JobStatusFailed,
		ErrorMessage: &msg,
		CompletedAt:  &now,
	}); err != nil {
		o.logger.ErrorContext(wctx, "failed to record job failure", "job_id", j.ID, "error", err)
	}
	o.cacheProgress(wctx, j.ID, model.JobStatusFailed, -1, msg, retryCount)
	o.publish(wctx, j, model.JobEventFailed, model.JobStatusFailed, retryCount, msg)
	o.emitTransition(j, metrics.TransitionFailed, metrics.ResultError, time.Since(start), cause)
	o.notifier.NotifyJobFailure(wctx, o.failurePayload(j, retryCount, msg, cause))
}

func (o *Orchestrator) failurePayload(
	j *model.Job,
	retryCount int,
	msg string,
	cause error,
) notify.JobFailure {
	return notify.JobFailure{
		JobID:      j.ID,
		JobType:    string(j.Type),
		JobName:    j.Name,
		SessionID:  j.SessionID,
		Attempts:   retryCount + 1,
		Error:      domainjob.TruncateMessage(msg, domainjob.DefaultErrorMessageMax),
		ErrorClass: obserrors.Classify(cause),
		OccurredAt: o.now(),
	}
}

// cacheProgress mirrors a snapshot into the progress cache. progress < 0 keeps the last
// cached value.
func (o *Orchestrator) cacheProgress(
	ctx context.Context,
	jobID string,
	status model.JobStatus,
	progress int,
	msg string,
	retryCount int,
) {
	if o.cache == nil {
		return
	}
	if progress < 0 {
		progress = 0
		if prev, err := o.cache.GetProgress(ctx, jobID); err == nil && prev != nil {
			progress = prev.Progress
		}
	}
	snap := model.ProgressSnapshot{
		JobID:      jobID,
		Status:     status,
		Progress:   progress,
		Message:    msg,
		RetryCount: retryCount,
		UpdatedAt:  o.now(),
	}
	if err := o.cache.SetProgress(ctx, snap); err != nil {
		o.logger.WarnContext(ctx, "failed to cache job progress", "job_id", jobID, "error", err)
	}
}

func (o *Orchestrator) emitTransition(j *model.Job, transition, result string, d time.Duration, err error) {
	metrics.EmitJobLifecycle(o.metrics, metrics.JobMetric{
		JobType:    string(j.Type),
		Transition: transition,
		Result:     result,
		Duration:   d,
		Err:        err,
	})
}

// progressReporter persists work-function progress. Reported values never go backwards
// within an attempt.
type progressReporter struct {
	orch       *Orchestrator
	jobID      string
	retryCount int

	mu   sync.Mutex
	last int
}

func (r *progressReporter) report(ctx context.Context, percent int, message string) {
	r.mu.Lock()
	percent = min(max(percent, 0), 100)
	if percent < r.last {
		percent = r.last
	}
	r.last = percent
	r.mu.Unlock()

	if _, err := r.orch.store.UpdateStatus(ctx, r.jobID, model.StatusUpdate{
		Status:          model.JobStatusRunning,
		Progress:        &percent,
		ProgressMessage: &message,
	}); err != nil {
		r.orch.logger.WarnContext(ctx, "failed to update progress", "job_id", r.jobID, "error", err)
	}
	r.orch.cacheProgress(ctx, r.jobID, model.JobStatusRunning, percent, message, r.retryCount)
}

func intPtr(v int) *int { return &v }
