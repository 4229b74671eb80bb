// Package backoff provides the delay calculation strategies used between
// retry attempts.
package backoff

import (
	"math/rand"
	"time"
)

// Strategy computes the wait before retry attempt+1, given attempt index
// (starting at 0) and the policy parameters.
type Strategy interface {
	Calculate(attempt int, initialDelay, maxDelay time.Duration, multiplier, jitter float64) time.Duration
}

// Exponential grows the delay geometrically: initialDelay * multiplier^attempt,
// optionally widened by uniform jitter. With jitter 0 the result is exact,
// which the retry timing guarantees rely on.
type Exponential struct{}

// Calculate implements Strategy.
func (Exponential) Calculate(attempt int, initialDelay, maxDelay time.Duration, multiplier, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Past 30 doublings the delay saturates anyway; avoid overflow.
	if attempt > 30 {
		attempt = 30
	}

	delay := time.Duration(float64(initialDelay) * Pow(multiplier, attempt))
	if delay < 0 || delay > maxDelay {
		delay = maxDelay
	}

	jitter = clampJitter(jitter)
	if jitter > 0 {
		widened := delay + time.Duration(float64(delay)*jitter*rand.Float64())
		if widened > maxDelay {
			widened = maxDelay
		}
		delay = widened
	}
	return delay
}

// DecorrelatedJitter implements AWS-style decorrelated jitter: a random delay
// between the base and min(cap, base*3^attempt). It trades predictable timing
// for smoother tail behavior under herds of retries.
type DecorrelatedJitter struct{}

// Calculate implements Strategy.
func (DecorrelatedJitter) Calculate(attempt int, initialDelay, maxDelay time.Duration, multiplier, jitter float64) time.Duration {
	if attempt <= 0 {
		return initialDelay
	}
	if attempt > 10 {
		attempt = 10
	}

	base := float64(initialDelay)
	upper := base * Pow(3.0, attempt)
	if upper > float64(maxDelay) || upper < base {
		upper = float64(maxDelay)
	}
	if upper < base {
		upper = base
	}

	delay := time.Duration(base + rand.Float64()*(upper-base))
	if delay < 0 || delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// Pow computes base^exponent by repeated multiplication; exponents here are
// small attempt counts, so this stays exact for the common cases.
func Pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}

func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}
