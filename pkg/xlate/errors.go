package xlate

import (
	"errors"
	"fmt"
)

// Kind classifies a translation-core error for routing and reporting
// purposes. Kind is a taxonomy, not a type hierarchy — every error
// surfaced across a backend boundary is a *Error carrying one Kind.
type Kind string

const (
	KindNetwork         Kind = "network"
	KindTimeout         Kind = "timeout"
	KindSessionInvalid  Kind = "session_invalid"
	KindPlanNotSupported Kind = "plan_not_supported"
	KindQuotaExceeded   Kind = "quota_exceeded"
	KindRateLimited     Kind = "rate_limited"
	KindAPIError        Kind = "api_error"
	KindProcessingError Kind = "processing_error"
	KindCircuitOpen     Kind = "circuit_open"
	KindInternal        Kind = "internal"
)

// retryableByDefault answers the taxonomy's default retryability for a
// Kind, used when an Error doesn't override it explicitly.
func retryableByDefault(k Kind) bool {
	switch k {
	case KindNetwork, KindTimeout, KindRateLimited, KindCircuitOpen:
		return true
	case KindAPIError:
		// retryable at most once then surfaced; callers that already
		// retried once should construct the Error with Retryable=false.
		return true
	default:
		return false
	}
}

// Error is the structured error every backend surfaces across the
// router boundary. It implements the RetryableError shape
// (error + Retryable() bool) so it composes directly with the kept
// resilience wrappers (xbreaker, xretry) without adapter code.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	Err       error
}

func newError(kind Kind, retryable bool, format string, args ...any) *Error {
	return &Error{Kind: kind, Retryable: retryable, Message: fmt.Sprintf(format, args...)}
}

func newInternalError(format string, args ...any) *Error {
	return newError(KindInternal, false, format, args...)
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("xlate: %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("xlate: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the caller should attempt another backend
// or another attempt at the same backend.
func (e *Error) RetryableErr() bool { return e.Retryable }

// Is supports errors.Is comparisons against the Kind sentinels below.
func (e *Error) Is(target error) bool {
	var sentinel *kindSentinel
	if errors.As(target, &sentinel) {
		return e.Kind == sentinel.kind
	}
	return false
}

type kindSentinel struct{ kind Kind }

func (s *kindSentinel) Error() string { return "xlate: kind " + string(s.kind) }

// Sentinels for errors.Is comparisons, mirroring the teacher's
// ErrUnauthorized/ErrForbidden/ErrServerError convention in xauth.
var (
	ErrNetwork          = &kindSentinel{KindNetwork}
	ErrTimeout          = &kindSentinel{KindTimeout}
	ErrSessionInvalid   = &kindSentinel{KindSessionInvalid}
	ErrPlanNotSupported = &kindSentinel{KindPlanNotSupported}
	ErrQuotaExceeded    = &kindSentinel{KindQuotaExceeded}
	ErrRateLimited      = &kindSentinel{KindRateLimited}
	ErrAPIError         = &kindSentinel{KindAPIError}
	ErrProcessingError  = &kindSentinel{KindProcessingError}
	ErrCircuitOpen      = &kindSentinel{KindCircuitOpen}
	ErrInternal         = &kindSentinel{KindInternal}
)

// NewNetworkError, NewTimeoutError, ... construct the standard error
// for each taxonomy kind. Constructors fix the default retryability;
// callers needing the non-default case (e.g. an API error already
// retried once) should set Retryable directly on the returned value.
func NewNetworkError(err error) *Error {
	e := newError(KindNetwork, retryableByDefault(KindNetwork), "network error")
	e.Err = err
	return e
}

func NewTimeoutError(err error) *Error {
	e := newError(KindTimeout, retryableByDefault(KindTimeout), "timeout")
	e.Err = err
	return e
}

func NewSessionInvalidError(msg string) *Error {
	return newError(KindSessionInvalid, retryableByDefault(KindSessionInvalid), "%s", msg)
}

func NewPlanNotSupportedError(msg string) *Error {
	return newError(KindPlanNotSupported, retryableByDefault(KindPlanNotSupported), "%s", msg)
}

func NewQuotaExceededError(msg string) *Error {
	return newError(KindQuotaExceeded, retryableByDefault(KindQuotaExceeded), "%s", msg)
}

func NewRateLimitedError(msg string) *Error {
	return newError(KindRateLimited, retryableByDefault(KindRateLimited), "%s", msg)
}

// NewAPIError constructs an API-error-kind failure. retried indicates
// whether this is the surfaced result after the one permitted retry —
// when true, Retryable is forced false (spec: "retryable at most once
// then surfaced").
func NewAPIError(statusCode int, msg string, retried bool) *Error {
	e := newError(KindAPIError, retryableByDefault(KindAPIError) && !retried,
		"api error (status=%d): %s", statusCode, msg)
	return e
}

func NewProcessingError(code string, err error) *Error {
	e := newError(KindProcessingError, retryableByDefault(KindProcessingError), "%s", code)
	e.Err = err
	return e
}

func NewCircuitOpenError(backend string) *Error {
	return newError(KindCircuitOpen, retryableByDefault(KindCircuitOpen),
		"circuit open for backend %s", backend)
}

func NewInternalError(err error) *Error {
	e := newInternalError("internal error")
	e.Err = err
	return e
}

// IsRetryable mirrors the teacher's xauth.IsRetryable helper,
// generalized to the xlate.Error taxonomy: a nil error never needs
// retrying; a *Error defers to its own Retryable flag; anything else
// defaults to not retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var xe *Error
	if errors.As(err, &xe) {
		return xe.Retryable
	}
	return false
}
