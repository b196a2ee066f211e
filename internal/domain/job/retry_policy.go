package job

import (
	"errors"
	"time"
)

// ErrInvalidBaseDelay indicates the configured retry base delay is not positive.
var ErrInvalidBaseDelay = errors.New("retry base delay must be positive")

// ErrInvalidMaxAttempts indicates the configured attempt budget is below one.
var ErrInvalidMaxAttempts = errors.New("max retries must be at least 1")

// RetryPolicy decides whether a failed attempt is retried and how long to wait first.
// MaxRetries is the total number of attempts, so MaxRetries=3 allows two retries.
type RetryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
}

// NewRetryPolicy constructs a RetryPolicy.
func NewRetryPolicy(maxRetries int, baseDelay time.Duration) (*RetryPolicy, error) {
	if maxRetries < 1 {
		return nil, ErrInvalidMaxAttempts
	}
	if baseDelay <= 0 {
		return nil, ErrInvalidBaseDelay
	}
	return &RetryPolicy{maxRetries: maxRetries, baseDelay: baseDelay}, nil
}

// MaxRetries returns the total attempt budget.
func (p *RetryPolicy) MaxRetries() int {
	if p == nil {
		return 1
	}
	return p.maxRetries
}

// ShouldRetry reports whether an attempt that failed with err at retryCount may run again.
func (p *RetryPolicy) ShouldRetry(err error, retryCount int) bool {
	if p == nil || !IsRetryable(err) {
		return false
	}
	return retryCount < p.maxRetries-1
}

// Delay returns base * 2^retryCount.
func (p *RetryPolicy) Delay(retryCount int) time.Duration {
	if p == nil {
		return 0
	}
	if retryCount < 0 {
		retryCount = 0
	}
	// Shift stays well inside int64 for any realistic attempt budget.
	if retryCount > 30 {
		retryCount = 30
	}
	return p.baseDelay * time.Duration(1<<retryCount)
}
