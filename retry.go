package journeys

import "time"

// RetryBuilder provides a fluent way to construct RetryPolicy values
// for use with TaskBuilder.Retry.
type RetryBuilder struct {
	policy RetryPolicy
}

// Retry creates a RetryBuilder allowing maxAttempts retries after the first
// invocation, so Retry(1) means at most two calls.
//
// maxAttempts < 0 is treated as 0 (no retries).
func Retry(maxAttempts int) RetryBuilder {
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	return RetryBuilder{
		policy: RetryPolicy{
			MaxAttempts: maxAttempts,
		},
	}
}

// WithExponentialBackoff configures exponential backoff:
//
//   - initial is the delay before the first retry.
//   - multiplier > 1 grows the delay each attempt (default 2.0 if <= 0).
//   - max caps the delay; if <= 0, there is no cap.
//
// Example:
//
//	Retry(3).WithExponentialBackoff(100*time.Millisecond, 2.0, 2*time.Second)
func (r RetryBuilder) WithExponentialBackoff(initial time.Duration, multiplier float64, max time.Duration) RetryBuilder {
	p := r.policy
	p.Interval = initial
	p.MaxDelay = max
	if multiplier <= 0 {
		multiplier = 2.0
	}
	p.BackoffRate = multiplier
	return RetryBuilder{policy: p}
}

// WithConstantBackoff configures a constant backoff between retries.
func (r RetryBuilder) WithConstantBackoff(delay time.Duration) RetryBuilder {
	p := r.policy
	p.Interval = delay
	p.MaxDelay = 0
	p.BackoffRate = 1.0
	return RetryBuilder{policy: p}
}

// Immediate disables any sleep between retries.
// Retries will still respect MaxAttempts.
func (r RetryBuilder) Immediate() RetryBuilder {
	p := r.policy
	p.Interval = 0
	p.MaxDelay = 0
	p.BackoffRate = 0
	return RetryBuilder{policy: p}
}

// Policy returns the underlying RetryPolicy.
func (r RetryBuilder) Policy() RetryPolicy {
	return r.policy
}
