// Package model defines the core data types shared across the mmk-jobs orchestrator.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobType selects which work function runs a job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobType string

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	// JobTypeSpotlist collects every spot aired on the selected channels.
	JobTypeSpotlist JobType = "spotlist"
	// JobTypeTopTen aggregates collected spots into a per-company ranking.
	JobTypeTopTen JobType = "top_ten"

	// JobStatusPending indicates a job was created and has not been picked up yet.
	JobStatusPending JobStatus = "pending"
	// JobStatusQueued indicates a job is waiting for a free concurrency slot.
	JobStatusQueued JobStatus = "queued"
	// JobStatusRunning indicates a job is executing in some process.
	JobStatusRunning JobStatus = "running"
	// JobStatusPendingRetry indicates a job failed transiently and is waiting out its backoff.
	JobStatusPendingRetry JobStatus = "pending_retry"
	// JobStatusCompleted indicates a job finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a job reached a terminal failure.
	JobStatusFailed JobStatus = "failed"
)

// ErrInvalidJobType is returned when a job type has no registered work function.
var ErrInvalidJobType = errors.New("invalid job type")

// UnmarshalText implements encoding.TextUnmarshaler for JobType to allow env parsing.
func (t *JobType) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	jt := JobType(v)
	if jt.Valid() {
		*t = jt
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidJobType, v)
}

// Valid returns true if the JobType is known.
func (t JobType) Valid() bool {
	return t == JobTypeSpotlist || t == JobTypeTopTen
}

// Valid returns true if the JobStatus is known.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusQueued, JobStatusRunning, JobStatusPendingRetry,
		JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further automatic transition can leave this status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsWaiting reports whether the job is eligible to be started by the queue drain.
func (s JobStatus) IsWaiting() bool {
	return s == JobStatusPending || s == JobStatusQueued
}

// Job is the durable record of one unit of schedulable work.
type Job struct {
	ID              string          `json:"id"                         db:"id"`
	SessionID       string          `json:"session_id"                 db:"session_id"`
	Name            string          `json:"job_name"                   db:"job_name"`
	Type            JobType         `json:"job_type"                   db:"job_type"`
	Status          JobStatus       `json:"status"                     db:"status"`
	Progress        int             `json:"progress"                   db:"progress"`
	ProgressMessage *string         `json:"progress_message,omitempty" db:"progress_message"`
	Parameters      json.RawMessage `json:"parameters"                 db:"parameters"`
	RetryCount      int             `json:"retry_count"                db:"retry_count"`
	ResultMetadata  json.RawMessage `json:"result_metadata,omitempty"  db:"result_metadata"`
	ResultData      json.RawMessage `json:"result_data,omitempty"      db:"result_data"`
	ErrorMessage    *string         `json:"error_message,omitempty"    db:"error_message"`
	CreatedAt       time.Time       `json:"created_at"                 db:"created_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"       db:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"     db:"completed_at"`
	UpdatedAt       time.Time       `json:"updated_at"                 db:"updated_at"`
}

// CreateJobRequest represents a request to create a new job.
type CreateJobRequest struct {
	SessionID  string          `json:"session_id"`
	Name       string          `json:"job_name"`
	Type       JobType         `json:"job_type"`
	Parameters json.RawMessage `json:"parameters"`
}

// Validate validates the CreateJobRequest fields, including the type-specific parameters.
func (r *CreateJobRequest) Validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return errors.New("session id is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("job name is required")
	}
	if r.Type == "" {
		r.Type = JobTypeSpotlist
	}
	if !r.Type.Valid() {
		return ErrInvalidJobType
	}
	if len(r.Parameters) == 0 {
		return errors.New("parameters are required")
	}
	if _, err := DecodeParameters(r.Type, r.Parameters); err != nil {
		return err
	}
	return nil
}

// StatusUpdate describes a partial status write. Nil fields are left untouched.
type StatusUpdate struct {
	Status          JobStatus
	Progress        *int
	ProgressMessage *string
	ErrorMessage    *string
	StartedAt       *time.Time
	CompletedAt     *time.Time

	// ClearError resets error_message to NULL; takes precedence over ErrorMessage.
	ClearError bool
	// ClearCompletedAt resets completed_at to NULL; takes precedence over CompletedAt.
	ClearCompletedAt bool
	ResetRetryCount  bool
}

// JobStats counts jobs per status across all sessions.
type JobStats map[JobStatus]int

// JobCounts summarizes a session's jobs for list responses.
type JobCounts struct {
	Running int `json:"running_count"`
	Pending int `json:"pending_count"`
}
