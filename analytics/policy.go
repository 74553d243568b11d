package analytics

import (
	"context"
	"math/rand"
	"time"

	"github.com/ArthurKeen/graph-analytics-go/analytics/engine"
)

// RetryPolicy defines automatic retry behavior for transient remote
// failures. Every remote call an execution makes runs under this policy;
// a transient failure is retried with capped-exponential backoff and
// jitter until MaxAttempts is reached, after which it escalates to fatal.
// Non-retryable failures abort on the first attempt.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first.
	// Must be >= 1; 1 means no retries.
	MaxAttempts int

	// BaseDelay is the backoff base. The delay before retry n is
	// min(BaseDelay * 2^n, MaxDelay) + jitter(0, BaseDelay).
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth. Zero means no cap.
	MaxDelay time.Duration

	// Retryable decides whether an error is worth retrying. Nil uses
	// engine.IsRetryable: transient network failures and 5xx responses.
	Retryable func(error) bool
}

// DefaultRetryPolicy is used when no policy is configured: three attempts
// with a 500ms base and a 10s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
}

// Validate checks the policy's constraints.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if p.MaxDelay > 0 && p.BaseDelay > 0 && p.MaxDelay < p.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

func (p RetryPolicy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return engine.IsRetryable(err)
}

// computeBackoff returns the delay before retry attempt n (zero-based):
// min(base * 2^attempt, maxDelay) plus a random jitter in [0, base) that
// keeps concurrent executions from retrying in lockstep.
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base * (1 << attempt)
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	var jitter time.Duration
	if rng != nil {
		jitter = time.Duration(rng.Int63n(int64(base)))
	} else {
		jitter = time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- retry jitter, not security
	}
	return delay + jitter
}

// retryCall runs fn under the policy. onRetry is invoked before each
// backoff sleep so callers can emit events and count retries; it may be
// nil. Cancellation is observed at every backoff boundary.
func retryCall[T any](
	ctx context.Context,
	policy RetryPolicy,
	rng *rand.Rand,
	sleep func(context.Context, time.Duration) error,
	onRetry func(attempt int, wait time.Duration, err error),
	fn func(ctx context.Context) (T, error),
) (T, error) {
	var zero T
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; ; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		if !policy.retryable(err) || attempt >= attempts {
			return zero, err
		}
		wait := computeBackoff(attempt-1, policy.BaseDelay, policy.MaxDelay, rng)
		if onRetry != nil {
			onRetry(attempt, wait, err)
		}
		if err := sleep(ctx, wait); err != nil {
			return zero, err
		}
	}
}
