// Package notify describes terminal job failures and the sinks that receive them.
package notify

import (
	"context"
	"time"

	obserrors "github.com/target/mmk-jobs/internal/observability/errors"
)

// Severity ranks a failure for the people on the receiving end.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// JobFailure is what a sink learns about a job that ended in the failed state.
type JobFailure struct {
	JobID      string
	JobType    string
	JobName    string
	SessionID  string
	Attempts   int
	Error      string
	ErrorClass string
	Severity   Severity
	OccurredAt time.Time
	Metadata   map[string]string
}

// Label is the job name when set, otherwise its id.
func (f JobFailure) Label() string {
	if f.JobName != "" {
		return f.JobName
	}
	return f.JobID
}

// SeverityFor picks a default severity from an error class. Fatal job errors
// usually mean bad parameters or an empty report and only warrant a warning.
func SeverityFor(errorClass string) Severity {
	if errorClass == obserrors.ClassJobFatal {
		return SeverityWarning
	}
	return SeverityCritical
}

// Sink delivers failure notifications somewhere.
type Sink interface {
	SendJobFailure(ctx context.Context, failure JobFailure) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, failure JobFailure) error

// SendJobFailure calls f. A nil SinkFunc drops the notification.
func (f SinkFunc) SendJobFailure(ctx context.Context, failure JobFailure) error {
	if f == nil {
		return nil
	}
	return f(ctx, failure)
}
