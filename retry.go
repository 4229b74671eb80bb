package skyhttp

import (
	"math"
	"time"

	"github.com/billlza/skyhttp/internal/backoff"
)

// Retry defaults.
const (
	DefaultMaxRetries        = 3
	DefaultInitialDelay      = 1000 * time.Millisecond
	DefaultBackoffMultiplier = 2.0
)

// DefaultRetryableStatuses returns the status codes retried out of the box.
func DefaultRetryableStatuses() []int {
	return []int{500, 502, 503}
}

// RetryPolicy decides whether and how long to wait before re-attempting a
// request that came back with a retryable status code.
//
// Only post-response failures are retried: a connection or transport error
// carries no status code to classify, so it is terminal by design.
type RetryPolicy struct {
	maxRetries int
	initial    time.Duration
	multiplier float64
	jitter     float64
	maxDelay   time.Duration
	retryable  map[int]struct{}
	strategy   backoff.Strategy
}

// NewRetryPolicy returns the default policy: 3 retries, 1s initial delay,
// multiplier 2.0, retryable {500, 502, 503}, no jitter.
func NewRetryPolicy() *RetryPolicy {
	p := &RetryPolicy{
		maxRetries: DefaultMaxRetries,
		initial:    DefaultInitialDelay,
		multiplier: DefaultBackoffMultiplier,
		strategy:   backoff.Exponential{},
		retryable:  make(map[int]struct{}),
	}
	for _, code := range DefaultRetryableStatuses() {
		p.retryable[code] = struct{}{}
	}
	return p
}

// MaxRetries returns the retry budget for one logical request.
func (p *RetryPolicy) MaxRetries() int {
	return p.maxRetries
}

// Retryable reports whether a status code is in the retryable set.
func (p *RetryPolicy) Retryable(status int) bool {
	_, ok := p.retryable[status]
	return ok
}

// ShouldRetry decides the fate of a completed attempt. attempt is zero-based;
// the returned delay is initialDelay * multiplier^attempt (plus jitter when
// configured).
func (p *RetryPolicy) ShouldRetry(resp *Response, attempt int) (time.Duration, bool) {
	if resp == nil || resp.Success {
		return 0, false
	}
	if attempt >= p.maxRetries {
		return 0, false
	}
	if !p.Retryable(resp.StatusCode) {
		return 0, false
	}
	return p.Delay(attempt), true
}

// Delay computes the backoff before attempt+1.
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	maxDelay := p.maxDelay
	if maxDelay <= 0 {
		maxDelay = math.MaxInt64
	}
	return p.strategy.Calculate(attempt, p.initial, maxDelay, p.multiplier, p.jitter)
}

// setRetryable replaces the retryable status set.
func (p *RetryPolicy) setRetryable(codes []int) {
	p.retryable = make(map[int]struct{}, len(codes))
	for _, code := range codes {
		p.retryable[code] = struct{}{}
	}
}
