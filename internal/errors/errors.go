// Package errors carries coded errors from the job service and store up to
// the HTTP layer, which turns a Code into a status and a machine-readable
// error code.
package errors

import (
	"errors"
	"fmt"
)

// Code classifies an application error.
type Code string

const (
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeValidation   Code = "validation_error"
	CodeInvalidState Code = "invalid_state"
	CodeTimeout      Code = "timeout"
	CodeCanceled     Code = "canceled"
	CodeInternal     Code = "internal_error"
)

// AppError is an error with a Code and an optional offending field.
type AppError struct {
	Code    Code
	Message string
	Field   string // request or column name, when known
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *AppError) Unwrap() error { return e.Cause }

// New returns an AppError without a cause.
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Validation is New(CodeValidation, message).
func Validation(message string) *AppError { return New(CodeValidation, message) }

// ValidationField reports an invalid request field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: CodeValidation, Message: message, Field: field}
}

// Wrap attaches code and message to err. It returns nil for a nil err.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, code Code, format string, args ...any) error {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

func as(err error) (*AppError, bool) {
	var ae *AppError
	ok := errors.As(err, &ae)
	return ae, ok
}

// CodeOf returns the Code of the first AppError in err's chain, or "" when
// there is none.
func CodeOf(err error) Code {
	if ae, ok := as(err); ok {
		return ae.Code
	}
	return ""
}

// FieldOf returns the offending field recorded on err, if any.
func FieldOf(err error) string {
	if ae, ok := as(err); ok {
		return ae.Field
	}
	return ""
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsValidation is Is(err, CodeValidation).
func IsValidation(err error) bool { return Is(err, CodeValidation) }
