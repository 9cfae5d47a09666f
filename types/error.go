package types

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a client error across the library.
type ErrorCode string

// Graph errors: local, the caller must fix the graph.
const (
	ErrNotFound     ErrorCode = "NOT_FOUND"
	ErrAmbiguous    ErrorCode = "AMBIGUOUS"
	ErrInvalidGraph ErrorCode = "INVALID_GRAPH"
)

// Execution errors.
const (
	ErrTransport    ErrorCode = "TRANSPORT"
	ErrProvisioning ErrorCode = "PROVISIONING"
	ErrTimeout      ErrorCode = "TIMEOUT"
)

// Error is a structured error with a code, message, and optional cause.
// The code distinguishes "couldn't get a machine" (PROVISIONING) from
// "machine unreachable" (TRANSPORT) so callers can react differently.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// GetErrorCode extracts the error code from an error, unwrapping as needed.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// IsRetryable checks if an error is marked retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool { return IsCode(err, ErrNotFound) }

// IsAmbiguous reports whether err is an AMBIGUOUS error.
func IsAmbiguous(err error) bool { return IsCode(err, ErrAmbiguous) }

// IsInvalidGraph reports whether err is an INVALID_GRAPH error.
func IsInvalidGraph(err error) bool { return IsCode(err, ErrInvalidGraph) }

// IsTransport reports whether err is a TRANSPORT error.
func IsTransport(err error) bool { return IsCode(err, ErrTransport) }

// IsProvisioning reports whether err is a PROVISIONING error.
func IsProvisioning(err error) bool { return IsCode(err, ErrProvisioning) }

// IsTimeout reports whether err is a TIMEOUT error.
func IsTimeout(err error) bool { return IsCode(err, ErrTimeout) }
