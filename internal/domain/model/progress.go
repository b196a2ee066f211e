package model

import "time"

// ProgressSnapshot is the latest progress of a job as mirrored to the progress cache.
type ProgressSnapshot struct {
	JobID      string    `json:"job_id"`
	Status     JobStatus `json:"status"`
	Progress   int       `json:"progress"`
	Message    string    `json:"message,omitempty"`
	RetryCount int       `json:"retry_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SnapshotFromJob builds a snapshot from a stored job record.
func SnapshotFromJob(j *Job) ProgressSnapshot {
	snap := ProgressSnapshot{
		JobID:      j.ID,
		Status:     j.Status,
		Progress:   j.Progress,
		RetryCount: j.RetryCount,
		UpdatedAt:  j.UpdatedAt,
	}
	if j.ProgressMessage != nil {
		snap.Message = *j.ProgressMessage
	}
	return snap
}

// JobEventType names a lifecycle transition published on the event channel.
type JobEventType string

// Lifecycle event types.
const (
	JobEventStarted   JobEventType = "started"
	JobEventQueued    JobEventType = "queued"
	JobEventRetrying  JobEventType = "retrying"
	JobEventCompleted JobEventType = "completed"
	JobEventFailed    JobEventType = "failed"
	JobEventCancelled JobEventType = "cancelled"
)

// JobEvent is a lifecycle notification for subscribers of the event channel.
type JobEvent struct {
	Type      JobEventType `json:"type"`
	JobID     string       `json:"job_id"`
	JobType   JobType      `json:"job_type,omitempty"`
	Status    JobStatus    `json:"status"`
	Attempt   int          `json:"attempt"`
	Message   string       `json:"message,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}
