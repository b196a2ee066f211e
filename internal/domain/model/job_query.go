//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import "fmt"

// JobListOptions groups parameters for listing a session's jobs.
type JobListOptions struct {
	SessionID string     // Required owner scope
	Status    *JobStatus // Optional filter by status
	Limit     int        // Pagination limit
	Offset    int        // Pagination offset
}

// ParseStatusFilter converts an optional query value into a status filter.
func ParseStatusFilter(raw string) (*JobStatus, error) {
	if raw == "" {
		return nil, nil
	}
	s := JobStatus(raw)
	if !s.Valid() {
		return nil, fmt.Errorf("unknown job status: %q", raw)
	}
	return &s, nil
}
