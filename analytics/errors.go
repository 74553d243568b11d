package analytics

import (
	"errors"
	"fmt"
	"time"
)

// ErrEmptyBatch is returned synchronously when a batch carries no requests.
// This is a programmer error, not an execution failure, so unlike every
// other failure it is not converted into a Result.
var ErrEmptyBatch = errors.New("batch contains no requests")

// ErrInvalidRetryPolicy is returned by RetryPolicy.Validate for
// configurations that cannot be satisfied.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// ConfigError reports a malformed request or an invalid option
// combination. It is always fatal and never retried; no remote call is
// made once one is detected.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return "invalid configuration: " + e.Message }

// TimeoutError reports that a job did not reach a terminal status within
// its wait budget. The job is treated as failed; the engine is not assumed
// dead and is torn down normally.
type TimeoutError struct {
	JobID  string
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job %s did not finish within %v", e.JobID, e.Budget)
}

// CleanupError reports a failed engine teardown. It never overrides the
// primary result status; it is surfaced separately on the Result so the
// caller can take manual action against the possibly still-running engine.
type CleanupError struct {
	EngineID string
	Cause    error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("teardown of engine %s failed: %v", e.EngineID, e.Cause)
}

func (e *CleanupError) Unwrap() error { return e.Cause }
