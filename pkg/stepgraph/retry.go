package stepgraph

import (
	"math/rand/v2"
	"time"
)

// RetryPolicy controls per-node retry behavior within a single step.
// Retries happen inside the execute phase, so a retried node still sees
// the same pre-step snapshot on every attempt.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	MaxAttempts int

	// InitialBackoff is the starting backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each attempt.
	BackoffFactor float64

	// Jitter is the random jitter factor (0.0-1.0).
	Jitter float64

	// RetryableFunc optionally restricts which errors are retried.
	// When nil, every node error is retried.
	RetryableFunc func(error) bool
}

// DefaultRetryPolicy is the standard retry policy for nodes that opt in
// via WithRetry without tuning.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:    3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

// NoRetry disables retries. The zero node behavior.
var NoRetry = RetryPolicy{
	MaxAttempts: 1,
}

// attempts normalizes MaxAttempts so a zero-valued policy still runs once.
func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// nextBackoff returns the sleep before the next attempt and the grown base
// for the attempt after that.
func (p RetryPolicy) nextBackoff(base time.Duration) (sleep, next time.Duration) {
	sleep = base
	if p.Jitter > 0 {
		jitterAmount := float64(base) * p.Jitter * (rand.Float64()*2 - 1)
		sleep = time.Duration(float64(base) + jitterAmount)
	}

	next = time.Duration(float64(base) * p.BackoffFactor)
	if p.MaxBackoff > 0 && next > p.MaxBackoff {
		next = p.MaxBackoff
	}
	if next < base {
		next = base
	}
	return sleep, next
}

// retryable reports whether an error qualifies for another attempt.
func (p RetryPolicy) retryable(err error) bool {
	if p.RetryableFunc == nil {
		return true
	}
	return p.RetryableFunc(err)
}
