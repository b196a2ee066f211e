package job

import "sync"

// DefaultMaxConsecutiveFailures is the sub-unit failure streak that aborts an attempt.
const DefaultMaxConsecutiveFailures = 5

// FailureTracker counts consecutive sub-unit failures inside one attempt.
// Any success resets the streak. Safe for concurrent use.
type FailureTracker struct {
	mu     sync.Mutex
	limit  int
	streak int
	total  int
}

// NewFailureTracker returns a tracker that trips after limit consecutive failures.
func NewFailureTracker(limit int) *FailureTracker {
	if limit <= 0 {
		limit = DefaultMaxConsecutiveFailures
	}
	return &FailureTracker{limit: limit}
}

// Success resets the streak.
func (t *FailureTracker) Success() {
	t.mu.Lock()
	t.streak = 0
	t.mu.Unlock()
}

// Failure records a failure and returns a retryable error once the streak reaches the limit.
func (t *FailureTracker) Failure() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.streak++
	t.total++
	if t.streak >= t.limit {
		return Retryablef("too many consecutive channel errors (%d)", t.streak)
	}
	return nil
}

// Total returns the number of failures recorded, including reset ones.
func (t *FailureTracker) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}
