package xrelay

import (
	"errors"
	"fmt"
)

var (
	ErrMissingHost            = errors.New("xrelay: missing host")
	ErrResponseTooLarge       = errors.New("xrelay: response body exceeds maximum size limit")
	ErrUnsupportedContentType = errors.New("xrelay: unsupported response content type")
)

// RetryableError marks an error as safe to retry.
type RetryableError interface {
	error
	Retryable() bool
}

// TemporaryError wraps a transient failure (network, timeout).
type TemporaryError struct{ Err error }

func NewTemporaryError(err error) *TemporaryError { return &TemporaryError{Err: err} }
func (e *TemporaryError) Error() string {
	if e.Err == nil {
		return "xrelay: temporary error"
	}
	return e.Err.Error()
}
func (e *TemporaryError) Unwrap() error  { return e.Err }
func (e *TemporaryError) Retryable() bool { return true }

// PermanentError wraps a failure that must not be retried.
type PermanentError struct{ Err error }

func NewPermanentError(err error) *PermanentError { return &PermanentError{Err: err} }
func (e *PermanentError) Error() string {
	if e.Err == nil {
		return "xrelay: permanent error"
	}
	return e.Err.Error()
}
func (e *PermanentError) Unwrap() error  { return e.Err }
func (e *PermanentError) Retryable() bool { return false }

// APIError is a parsed HTTP error response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func NewAPIError(statusCode int, code, message string) *APIError {
	return &APIError{StatusCode: statusCode, Code: code, Message: message}
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("xrelay: api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("xrelay: api error: status=%d code=%s", e.StatusCode, e.Code)
}

// Retryable reports whether this status is worth retrying: 429 and 5xx.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// IsRetryable mirrors the teacher's top-level helper: nil is never
// retryable, a RetryableError defers to its own judgment, anything
// else is treated as non-retryable by default (the safer default for
// a billable relay call).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var re RetryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return false
}
