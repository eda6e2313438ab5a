package errors

import (
	stderrors "errors"
	"fmt"
)

// Type classifies an error by how the run should react to it.
type Type string

const (
	// Fatal types: the run cannot continue.
	TypeAuth   Type = "auth"
	TypeConfig Type = "config"

	// Per-user recoverable types: log and skip the roster entry.
	TypeNotFound    Type = "not_found"
	TypeNetwork     Type = "network"
	TypeRateLimit   Type = "rate_limit"
	TypeServerError Type = "server_error"
	TypePersistence Type = "persistence"
	TypeStructural  Type = "structural"

	// Per-file recoverable type: log, count and continue the sweep.
	TypeFilesystem Type = "filesystem"

	TypeUnknown Type = "unknown"
)

// Error represents a classified error with an optional protocol code.
type Error struct {
	Type    Type
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Code != 0:
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %s: %s", e.Type, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s error: %s", e.Type, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error.
func New(t Type, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(t Type, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a classified error wrapping an underlying cause.
func Wrap(t Type, err error, message string) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

// Wrapf creates a classified error wrapping an underlying cause, with a
// formatted message.
func Wrapf(t Type, err error, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...), Err: err}
}

// TypeOf extracts the classification from an error chain, or TypeUnknown.
func TypeOf(err error) Type {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return TypeUnknown
}

// IsFatal reports whether an error must abort the whole run. Only missing
// credentials, failed authentication and broken configuration qualify.
func IsFatal(err error) bool {
	switch TypeOf(err) {
	case TypeAuth, TypeConfig:
		return true
	default:
		return false
	}
}

// IsNotFound reports whether an error is a routine profile-not-found.
func IsNotFound(err error) bool {
	return TypeOf(err) == TypeNotFound
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType Type) bool {
	switch errorType {
	case TypeNetwork, TypeRateLimit, TypeServerError:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return true
	case 500, 502, 503, 504: // Server errors
		return true
	case 401, 403, 404: // Client errors that won't change
		return false
	default:
		return statusCode >= 500
	}
}
