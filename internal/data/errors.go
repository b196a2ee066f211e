package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// ErrJobNotFound is returned when a job is not found (or belongs to another session).
	ErrJobNotFound = errors.New("job not found")
	// ErrJobIDRequired is returned when an operation is called without a job id.
	ErrJobIDRequired = errors.New("job id is required")
)
