package core

import (
	"context"
	"time"

	"github.com/target/mmk-jobs/internal/domain/job"
	"github.com/target/mmk-jobs/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// Service implementations depend on these interfaces, not on concrete implementations.

// JobStore is the durable record of every job.
type JobStore interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	// Get returns the job; an empty sessionID skips the owner check.
	Get(ctx context.Context, id, sessionID string) (*model.Job, error)
	// List returns a session's jobs, newest first.
	List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error)
	UpdateStatus(ctx context.Context, id string, upd model.StatusUpdate) (bool, error)
	// IncrementRetry bumps retry_count and returns the new value.
	IncrementRetry(ctx context.Context, id string) (int, error)
	// Complete persists a successful result, dropping result_data above the size cap.
	Complete(ctx context.Context, id string, res model.WorkResult) (bool, error)
	Delete(ctx context.Context, id, sessionID string) (bool, error)
	// GetPendingJobs returns pending and queued jobs, oldest first.
	GetPendingJobs(ctx context.Context, limit int) ([]*model.Job, error)
	GetStaleRunningJobs(ctx context.Context) ([]*model.Job, error)
	MarkStaleJobsAsFailed(ctx context.Context, ids []string, message string) (int64, error)
	GetRunningJobsCount(ctx context.Context) (int, error)
	CountBySession(ctx context.Context, sessionID string) (model.JobCounts, error)
}

// DeleteOldJobsParams groups parameters for DeleteOldJobs to keep param count ≤3.
type DeleteOldJobsParams struct {
	Status    model.JobStatus
	MaxAge    time.Duration
	BatchSize int
}

// ReaperRepository removes terminal jobs past their retention window.
type ReaperRepository interface {
	DeleteOldJobs(ctx context.Context, params DeleteOldJobsParams) (int64, error)
}

// ProgressCache mirrors job progress to a fast store and fans out lifecycle events.
// Implementations must tolerate being called for jobs they have never seen.
type ProgressCache interface {
	SetProgress(ctx context.Context, snap model.ProgressSnapshot) error
	// GetProgress returns nil, nil when no snapshot is cached.
	GetProgress(ctx context.Context, jobID string) (*model.ProgressSnapshot, error)
	PublishEvent(ctx context.Context, evt model.JobEvent) error
	// Forget drops the cached snapshot of a deleted job.
	Forget(ctx context.Context, jobID string) error
	Health(ctx context.Context) error
}

// ProgressFunc reports progress from inside a work function. Values are clamped to 0..100.
type ProgressFunc func(ctx context.Context, percent int, message string)

// WorkRequest is everything a work function receives for one attempt.
type WorkRequest struct {
	JobID    string
	Params   model.Parameters
	Attempt  int // zero-based retry count
	Progress ProgressFunc
	// Rows bounds collected rows; work functions stop once Add returns false.
	Rows *job.RowSink
}

// WorkFunc runs the computation behind one job type. Errors should be classified with
// job.Retryable or job.Fatal; unclassified errors are treated as fatal.
type WorkFunc func(ctx context.Context, req WorkRequest) (*model.WorkResult, error)
