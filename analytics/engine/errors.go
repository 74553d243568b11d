package engine

import (
	"errors"
	"fmt"
)

// ErrNoEngine is returned when discovery finds no usable engine and the
// backend cannot provision one (self-hosted deployments).
var ErrNoEngine = errors.New("no engine available")

// TransientError wraps a remote failure that is safe to retry: request
// timeouts, connection resets, and 5xx responses. Retry policies treat any
// error matching this type as retryable; everything else aborts immediately.
type TransientError struct {
	// Op names the remote operation that failed (e.g. "submit job").
	Op string

	// StatusCode is the HTTP status when the failure was an HTTP
	// response, zero for transport-level failures.
	StatusCode int

	// Cause is the underlying error, if any.
	Cause error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transient failure (status %d)", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Cause)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// RequestError wraps a remote failure that retrying cannot fix: 4xx
// responses for malformed requests, missing resources, or rejected
// credentials.
type RequestError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: request rejected (status %d): %s", e.Op, e.StatusCode, e.Message)
}

// NotFound reports whether the failure was a 404. Teardown treats a
// missing engine as already stopped.
func (e *RequestError) NotFound() bool { return e.StatusCode == 404 }

// JobFailedError reports that the engine accepted a job and the job itself
// failed. It is fatal for the job but says nothing about engine health; the
// engine is still torn down normally.
type JobFailedError struct {
	JobID  string
	Reason string
}

func (e *JobFailedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("job %s failed", e.JobID)
	}
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Reason)
}

// IsRetryable reports whether err should be retried under the standard
// classification: transient network failures and 5xx responses are
// retryable, everything else is fatal.
func IsRetryable(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
