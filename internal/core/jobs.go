// Package core holds the ports between the orchestrator services and their adapters.
package core

import (
	"github.com/target/mmk-jobs/internal/domain/model"
)

// JobType is re-exported for HTTP handlers to avoid coupling them to the model package.
type JobType = model.JobType

// CreateJobRequest is re-exported for HTTP handlers to avoid coupling them to the model package.
type CreateJobRequest = model.CreateJobRequest

// WorkRegistry maps job types to the work function that runs them.
type WorkRegistry map[model.JobType]WorkFunc

// Lookup returns the work function for t.
func (r WorkRegistry) Lookup(t model.JobType) (WorkFunc, bool) {
	fn, ok := r[t]
	return fn, ok && fn != nil
}
