package marvel

import (
	"errors"
	"fmt"
)

// Kind classifies an upstream failure for propagation decisions.
type Kind string

// Failure kinds. Transient errors are absorbed by client-side retries and
// only escape once the retry budget is spent, at which point they surface as
// RetryExhausted.
const (
	KindRetryExhausted Kind = "retry_exhausted"
	KindClientRejected Kind = "client_rejected"
)

// ErrSeriesNotFound reports that a series lookup legitimately matched
// nothing. Callers treat it as a skip, not a failure.
var ErrSeriesNotFound = errors.New("no matching series")

// bodySnippetLimit bounds how much of an upstream body is kept for logs.
const bodySnippetLimit = 400

// APIError carries the diagnostic context of an upstream failure.
type APIError struct {
	Kind       Kind
	Endpoint   string
	StatusCode int
	Body       string
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("marvel %s: %s %s (status=%d): %s",
			e.Kind, "GET", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("marvel %s: %s %s (status=%d)",
		e.Kind, "GET", e.Endpoint, e.StatusCode)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsRetryExhausted reports whether err is an upstream failure that outlived
// the retry budget.
func IsRetryExhausted(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindRetryExhausted
}

// IsClientRejected reports whether err is a non-retryable upstream rejection.
func IsClientRejected(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindClientRejected
}

// IsAPIError reports whether err originated from the upstream API. The
// orchestrator isolates these per series; anything else is run-level.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

func snippet(b []byte) string {
	if len(b) > bodySnippetLimit {
		return string(b[:bodySnippetLimit])
	}
	return string(b)
}
