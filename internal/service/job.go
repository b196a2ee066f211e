package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/mmk-jobs/internal/core"
	"github.com/target/mmk-jobs/internal/data"
	"github.com/target/mmk-jobs/internal/domain/model"
	apperrors "github.com/target/mmk-jobs/internal/errors"
)

var (
	// ErrJobNotRetryable is returned when retry is requested for a job that has not failed.
	ErrJobNotRetryable = errors.New("only failed jobs can be retried")
	// ErrJobNotCompleted is returned when results are requested before a job completed.
	ErrJobNotCompleted = errors.New("job has not completed")
	// ErrResultUnavailable is returned when a completed job has no stored result data.
	ErrResultUnavailable = errors.New("result data not stored")
	// ErrInvalidQuery is returned for a malformed result projection.
	ErrInvalidQuery = errors.New("invalid result query")
)

// Pagination bounds for List.
const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// Messages returned alongside a created or retried job.
const (
	MsgJobCreated   = "Job created"
	MsgJobQueued    = "Job queued (max concurrent jobs reached)"
	MsgJobRejected  = "Job could not be started"
	MsgRetrying     = "Retrying..."
	MsgRetryStarted = "Job retry scheduled"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Store        core.JobStore        // Required: durable job store
	Orchestrator *Orchestrator        // Required: starts and cancels jobs
	Recovery     *RecoveryCoordinator // Required: orphan recovery
	Cache        core.ProgressCache   // Optional: progress snapshots
	Evaluator    JMESPathEvaluator    // Optional: result projection
	Logger       *slog.Logger         // Optional: structured logger
}

// JobService is the API-facing entry point for job operations.
type JobService struct {
	store    core.JobStore
	orch     *Orchestrator
	manager  *JobManager
	recovery *RecoveryCoordinator
	cache    core.ProgressCache
	jems     JMESPathEvaluator
	logger   *slog.Logger
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Store == nil {
		return nil, errors.New("JobStore is required")
	}
	if opts.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if opts.Recovery == nil {
		return nil, errors.New("recovery coordinator is required")
	}
	jems := opts.Evaluator
	if jems == nil {
		jems = jmespathLibEvaluator{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobService{
		store:    opts.Store,
		orch:     opts.Orchestrator,
		manager:  opts.Orchestrator.Manager(),
		recovery: opts.Recovery,
		cache:    opts.Cache,
		jems:     jems,
		logger:   logger.With("component", "job_service"),
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// CreateJobResult is the outcome of Create.
type CreateJobResult struct {
	Job     *model.Job
	Start   StartOutcome
	Message string
}

// Create validates and persists a job, then starts or queues it.
func (s *JobService) Create(ctx context.Context, req *model.CreateJobRequest) (*CreateJobResult, error) {
	if req == nil {
		return nil, apperrors.Validation("request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeValidation, "invalid job request")
	}

	job, err := s.store.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.logger.InfoContext(ctx, "job created", "job_id", job.ID, "job_type", job.Type, "session_id", job.SessionID)

	outcome, err := s.orch.StartJob(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("start job %s: %w", job.ID, err)
	}

	msg := MsgJobCreated
	switch outcome {
	case StartQueued:
		msg = MsgJobQueued
	case StartFailed:
		msg = MsgJobRejected
	}
	return &CreateJobResult{Job: s.refresh(ctx, job), Start: outcome, Message: msg}, nil
}

// JobListResult is a page of a session's jobs plus queue counters.
type JobListResult struct {
	Jobs          []*model.Job `json:"jobs"`
	RunningCount  int          `json:"running_count"`
	PendingCount  int          `json:"pending_count"`
	MaxConcurrent int          `json:"max_concurrent"`
}

// List returns a session's jobs, newest first.
func (s *JobService) List(ctx context.Context, opts model.JobListOptions) (*JobListResult, error) {
	if opts.SessionID == "" {
		return nil, apperrors.ValidationField("session_id", "session id is required")
	}
	opts.Limit, opts.Offset = normalizePagination(opts.Limit, opts.Offset)

	jobs, err := s.store.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	counts, err := s.store.CountBySession(ctx, opts.SessionID)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}
	return &JobListResult{
		Jobs:          jobs,
		RunningCount:  counts.Running,
		PendingCount:  counts.Pending,
		MaxConcurrent: s.manager.MaxConcurrent(),
	}, nil
}

func normalizePagination(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Get returns a job owned by sessionID.
func (s *JobService) Get(ctx context.Context, id, sessionID string) (*model.Job, error) {
	job, err := s.store.Get(ctx, id, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// Progress returns the freshest progress snapshot of a job. Active jobs are served from the
// progress cache when it holds a snapshot; otherwise the stored record is used.
func (s *JobService) Progress(ctx context.Context, id, sessionID string) (*model.ProgressSnapshot, error) {
	job, err := s.Get(ctx, id, sessionID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil && !job.Status.IsTerminal() {
		snap, err := s.cache.GetProgress(ctx, id)
		if err != nil {
			s.logger.WarnContext(ctx, "progress cache read failed", "job_id", id, "error", err)
		} else if snap != nil {
			return snap, nil
		}
	}
	snap := model.SnapshotFromJob(job)
	return &snap, nil
}

// DeleteResult reports what Delete did.
type DeleteResult struct {
	Deleted    bool `json:"deleted"`
	WasRunning bool `json:"was_running"`
}

// Delete cancels a job running in this process, or removes the record otherwise.
func (s *JobService) Delete(ctx context.Context, id, sessionID string) (*DeleteResult, error) {
	if _, err := s.Get(ctx, id, sessionID); err != nil {
		return nil, err
	}

	if s.manager.Cancel(id, ErrCancelledByUser) {
		s.logger.InfoContext(ctx, "running job cancelled", "job_id", id)
		return &DeleteResult{Deleted: true, WasRunning: true}, nil
	}

	ok, err := s.store.Delete(ctx, id, sessionID)
	if err != nil {
		return nil, fmt.Errorf("delete job %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("delete job %s: %w", id, data.ErrJobNotFound)
	}
	if s.cache != nil {
		if err := s.cache.Forget(ctx, id); err != nil {
			s.logger.WarnContext(ctx, "failed to drop cached progress", "job_id", id, "error", err)
		}
	}
	s.logger.InfoContext(ctx, "job deleted", "job_id", id)
	return &DeleteResult{Deleted: true}, nil
}

// Retry resets a failed job to pending and starts or queues it again.
func (s *JobService) Retry(ctx context.Context, id, sessionID string) (*CreateJobResult, error) {
	job, err := s.Get(ctx, id, sessionID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusFailed {
		return nil, ErrJobNotRetryable
	}

	msg := MsgRetrying
	ok, err := s.store.UpdateStatus(ctx, id, model.StatusUpdate{
		Status:           model.JobStatusPending,
		Progress:         intPtr(0),
		ProgressMessage:  &msg,
		ClearError:       true,
		ClearCompletedAt: true,
		ResetRetryCount:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("reset job %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("reset job %s: %w", id, data.ErrJobNotFound)
	}

	job.Status = model.JobStatusPending
	outcome, err := s.orch.StartJob(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("restart job %s: %w", id, err)
	}
	s.logger.InfoContext(ctx, "job retry scheduled", "job_id", id, "start", outcome)
	return &CreateJobResult{Job: s.refresh(ctx, job), Start: outcome, Message: MsgRetryStarted}, nil
}

// Status returns the in-process manager status.
func (s *JobService) Status() ManagerStatus {
	return s.manager.Status()
}

// Recover forces a recovery run regardless of whether one already happened.
func (s *JobService) Recover(ctx context.Context) RecoveryResult {
	return s.recovery.Force(ctx)
}

// refresh re-reads a job after a transition, falling back to the given copy.
func (s *JobService) refresh(ctx context.Context, job *model.Job) *model.Job {
	fresh, err := s.store.Get(ctx, job.ID, "")
	if err != nil {
		s.logger.DebugContext(ctx, "failed to refresh job", "job_id", job.ID, "error", err)
		return job
	}
	return fresh
}
