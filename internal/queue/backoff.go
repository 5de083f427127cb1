package queue

import (
	"math"
	"math/rand"
	"time"
)

// RetryConfig holds the redelivery backoff policy for nacked jobs.
type RetryConfig struct {
	BaseDelay time.Duration // Initial delay (e.g., 2s)
	MaxDelay  time.Duration // Maximum delay (e.g., 5m)
	MaxJitter time.Duration // Random jitter range
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		BaseDelay: 2 * time.Second,
		MaxDelay:  5 * time.Minute,
		MaxJitter: 500 * time.Millisecond,
	}
}

// CalculateBackoff computes exponential backoff delay with jitter.
//
// Formula: min(BaseDelay * 2^(attempt-1), MaxDelay) + jitter
func (c RetryConfig) CalculateBackoff(attempt int) time.Duration {
	delay := float64(c.BaseDelay) * math.Pow(2, float64(attempt-1))

	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}

	// Jitter prevents a burst of same-aged failures from redelivering in
	// lockstep. rand.Int63n panics on zero, hence the guard.
	var jitter time.Duration
	if c.MaxJitter > 0 {
		jitter = time.Duration(rand.Int63n(int64(c.MaxJitter)))
	}

	return time.Duration(delay) + jitter
}
