package job

import (
	"errors"
	"fmt"
)

// ErrorKind tags an execution error with the executor's response to it.
type ErrorKind string

const (
	// KindRetryable errors consume the retry budget and are retried with backoff.
	KindRetryable ErrorKind = "retryable"
	// KindFatal errors fail the job immediately.
	KindFatal ErrorKind = "fatal"
)

// Error is a classified execution error.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e == nil || e.Err == nil {
		return string(KindFatal) + " job error"
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Retryable wraps err as a retryable error. A nil err stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindRetryable, Err: err}
}

// Retryablef formats a new retryable error.
func Retryablef(format string, args ...any) error {
	return &Error{Kind: KindRetryable, Err: fmt.Errorf(format, args...)}
}

// Fatal wraps err as a fatal error. A nil err stays nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindFatal, Err: err}
}

// Fatalf formats a new fatal error.
func Fatalf(format string, args ...any) error {
	return &Error{Kind: KindFatal, Err: fmt.Errorf(format, args...)}
}

// IsRetryable reports whether the outermost classified error in err's chain is retryable.
// Unclassified errors are not retryable.
func IsRetryable(err error) bool {
	var jerr *Error
	if errors.As(err, &jerr) {
		return jerr.Kind == KindRetryable
	}
	return false
}

// KindOf returns the classification of err, or KindFatal for unclassified errors.
func KindOf(err error) ErrorKind {
	var jerr *Error
	if errors.As(err, &jerr) {
		return jerr.Kind
	}
	return KindFatal
}
