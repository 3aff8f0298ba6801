// Package errors provides structured error types for the depsight application.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across CLI and API
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Analysis-run errors carry stable kind strings that are surfaced verbatim on
// the HTTP API:
//   - FETCH_FAILED: repository unreachable or private without a credential
//   - MISSING_CREDENTIAL: regeneration needs a token and none was supplied
//   - RUN_IN_PROGRESS: a pipeline run is already active for the project
//   - FEED_UNAVAILABLE: too many vulnerability feed lookups failed
//
// # Usage
//
//	err := errors.New(errors.ErrCodeFetchFailed, "clone %s: repository not found", url)
//	if errors.Is(err, errors.ErrCodeFetchFailed) {
//	    // Handle fetch failure
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeInternal, origErr, "persist report %d", id)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Analysis pipeline errors, fatal to a run
	ErrCodeFetchFailed       Code = "FETCH_FAILED"
	ErrCodeMissingCredential Code = "MISSING_CREDENTIAL"
	ErrCodeRunInProgress     Code = "RUN_IN_PROGRESS"
	ErrCodeFeedUnavailable   Code = "FEED_UNAVAILABLE"

	// Input validation errors
	ErrCodeInvalidInput Code = "INVALID_INPUT"

	// Resource not found errors
	ErrCodeNotFound Code = "NOT_FOUND"

	// Network errors
	ErrCodeNetwork Code = "NETWORK_ERROR"
	ErrCodeTimeout Code = "TIMEOUT"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns ErrCodeInternal if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
