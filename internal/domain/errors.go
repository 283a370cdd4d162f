package domain

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a tracker failure independently of the backend that produced it.
type Kind string

const (
	KindValidation  Kind = "validation_error"
	KindAuth        Kind = "auth_error"
	KindNotFound    Kind = "not_found"
	KindRateLimit   Kind = "rate_limited"
	KindUnavailable Kind = "unavailable"
	// KindIncomplete is reported when pagination hit the safety cap before
	// the backend reported the last page.
	KindIncomplete Kind = "incomplete_result"
	// KindUnknown is returned by KindOf for errors that carry no kind.
	KindUnknown Kind = ""
)

// TrackerError is the error type every provider adapter returns.
// Errors pass through the application core unchanged and are rendered only
// at the dispatcher boundary.
type TrackerError struct {
	Kind        Kind
	Message     string
	Provider    string
	BackendCode string
	RetryAfter  time.Duration
	Err         error
}

func (e *TrackerError) Error() string {
	msg := e.Message
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *TrackerError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the same call may succeed if repeated later.
func (e *TrackerError) Retryable() bool {
	return e.Kind == KindRateLimit || e.Kind == KindUnavailable
}

// KindOf extracts the Kind from any error in the chain.
func KindOf(err error) Kind {
	var te *TrackerError
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}

// IsKind checks if the error has the specified kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable reports whether err is a retryable tracker error.
func IsRetryable(err error) bool {
	var te *TrackerError
	if errors.As(err, &te) {
		return te.Retryable()
	}
	return false
}

// NewValidationError reports malformed caller input.
func NewValidationError(format string, args ...any) *TrackerError {
	return &TrackerError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewAuthError reports missing or rejected credentials.
func NewAuthError(provider, message string, err error) *TrackerError {
	return &TrackerError{Kind: KindAuth, Provider: provider, Message: message, Err: err}
}

// NewNotFoundError reports a ticket or entity the backend does not know.
func NewNotFoundError(provider, message string) *TrackerError {
	return &TrackerError{Kind: KindNotFound, Provider: provider, Message: message}
}

// NewRateLimitError reports backend throttling. retryAfter may be zero.
func NewRateLimitError(provider string, retryAfter time.Duration, err error) *TrackerError {
	return &TrackerError{
		Kind:       KindRateLimit,
		Provider:   provider,
		Message:    "rate limit exceeded",
		RetryAfter: retryAfter,
		Err:        err,
	}
}

// NewUnavailableError reports a transport failure, timeout or unmapped
// backend failure. code preserves the backend's own error code, if any.
func NewUnavailableError(provider, code string, err error) *TrackerError {
	return &TrackerError{
		Kind:        KindUnavailable,
		Provider:    provider,
		Message:     "backend unavailable",
		BackendCode: code,
		Err:         err,
	}
}

// NewIncompleteResultError reports that pagination stopped at the page cap.
func NewIncompleteResultError(provider string, pages int) *TrackerError {
	return &TrackerError{
		Kind:     KindIncomplete,
		Provider: provider,
		Message:  fmt.Sprintf("result set exceeds %d pages", pages),
	}
}
