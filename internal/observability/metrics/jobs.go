// Package metrics names the job, capacity and recovery metrics and emits them
// through a statsd.Sink. Every function accepts a nil sink.
package metrics

import (
	"maps"
	"time"

	obserrors "github.com/target/mmk-jobs/internal/observability/errors"
	"github.com/target/mmk-jobs/internal/observability/statsd"
)

// Values of the "result" tag.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
	ResultRetry   = "retry"
)

// Values of the "transition" tag on job.transition.
const (
	TransitionQueued    = "queued"
	TransitionStarted   = "started"
	TransitionRetrying  = "retrying"
	TransitionCompleted = "completed"
	TransitionFailed    = "failed"
	TransitionCancelled = "cancelled"
)

// JobMetric describes one job state change.
type JobMetric struct {
	JobType    string
	Transition string
	Result     string
	Duration   time.Duration // zero skips job.duration
	Err        error
}

// EmitJobLifecycle counts job.transition and, when Duration is set, times
// job.duration with the same tags.
func EmitJobLifecycle(sink statsd.Sink, m JobMetric) {
	if sink == nil {
		return
	}
	tags := withErrorClass(map[string]string{
		"job_type":   m.JobType,
		"transition": m.Transition,
		"result":     m.Result,
	}, m.Result, m.Err)

	sink.Count("job.transition", 1, tags)
	if m.Duration > 0 {
		sink.Timing("job.duration", m.Duration, CloneTags(tags))
	}
}

// EmitCapacity gauges occupied and total concurrency slots.
func EmitCapacity(sink statsd.Sink, running, limit int) {
	if sink == nil {
		return
	}
	sink.Gauge("job.running", float64(running), nil)
	sink.Gauge("job.capacity", float64(limit), nil)
}

// RecoveryMetric describes one startup recovery pass.
type RecoveryMetric struct {
	StaleFailed int64
	Resumed     int
	Skipped     bool // another pass was already running
	Duration    time.Duration
	Err         error
}

// EmitRecovery counts recovery.run tagged with its result. Passes that ran
// also report how many jobs were failed and resumed.
func EmitRecovery(sink statsd.Sink, m RecoveryMetric) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	if m.Err != nil {
		result = ResultError
	} else if m.Skipped {
		result = ResultNoop
	}
	tags := withErrorClass(map[string]string{"result": result}, result, m.Err)

	sink.Count("recovery.run", 1, tags)
	if m.Skipped {
		return
	}
	sink.Count("recovery.stale_failed", m.StaleFailed, nil)
	sink.Count("recovery.resumed", int64(m.Resumed), nil)
	if m.Duration > 0 {
		sink.Timing("recovery.duration", m.Duration, CloneTags(tags))
	}
}

func withErrorClass(tags map[string]string, result string, err error) map[string]string {
	if err == nil || result == ResultSuccess {
		return tags
	}
	if class := obserrors.Classify(err); class != "" {
		tags["error_class"] = class
	}
	return tags
}

// CloneTags copies src without empty keys. Sinks may retain the maps they are
// given, so each call gets its own.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := maps.Clone(src)
	delete(out, "")
	return out
}
