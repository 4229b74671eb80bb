package skyhttp

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/billlza/skyhttp/internal/backoff"
)

// WithTransport replaces the connection-opening primitive. Tests use this to
// substitute a scripted in-memory transport.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithTLSConfig sets the TLS configuration the default transport dials with.
// Ignored when WithTransport supplies a custom transport.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Client) {
		c.tlsConfig = cfg
	}
}

// WithMaxConnections caps how many idle connections the pool retains.
func WithMaxConnections(n int) Option {
	return func(c *Client) {
		c.maxConnections = n
	}
}

// WithWorkers fixes the async worker count. Zero or negative means one worker
// per CPU.
func WithWorkers(n int) Option {
	return func(c *Client) {
		c.workers = n
	}
}

// WithQueueSize bounds the async task queue.
func WithQueueSize(n int) Option {
	return func(c *Client) {
		c.queueSize = n
	}
}

// WithCache enables response caching with the in-memory store.
func WithCache() Option {
	return func(c *Client) {
		c.cache = NewMemoryCache()
	}
}

// WithCustomCache enables caching backed by a caller-supplied store.
func WithCustomCache(cache Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithCacheTTL sets how long cached responses stay fresh.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.cacheTTL = ttl
	}
}

// WithCacheKeyFunc overrides how cache keys are derived from requests.
func WithCacheKeyFunc(fn CacheKeyFunc) Option {
	return func(c *Client) {
		if fn != nil {
			c.cacheKeyFunc = fn
		}
	}
}

// WithCacheCondition overrides which requests are cacheable.
func WithCacheCondition(cond CacheCondition) Option {
	return func(c *Client) {
		if cond != nil {
			c.cacheCondition = cond
		}
	}
}

// WithRetryPolicy replaces the whole retry policy. The granular retry options
// below tweak fields of whichever policy is installed, so order matters when
// mixing them.
func WithRetryPolicy(p *RetryPolicy) Option {
	return func(c *Client) {
		if p != nil {
			c.retryPolicy = p
		}
	}
}

// WithMaxRetries sets the retry budget per logical request.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.retryPolicy.maxRetries = n
	}
}

// WithInitialDelay sets the delay before the first retry.
func WithInitialDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryPolicy.initial = d
	}
}

// WithBackoffMultiplier sets the exponential growth factor between retries.
func WithBackoffMultiplier(m float64) Option {
	return func(c *Client) {
		c.retryPolicy.multiplier = m
	}
}

// WithMaxBackoff caps the computed retry delay. Zero means uncapped.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.retryPolicy.maxDelay = d
	}
}

// WithJitter adds randomization to retry delays. factor is the fraction of
// the delay that may be added, in [0, 1].
func WithJitter(factor float64) Option {
	return func(c *Client) {
		c.retryPolicy.jitter = factor
	}
}

// WithBackoffStrategy replaces the delay computation, e.g. with
// backoff.DecorrelatedJitter.
func WithBackoffStrategy(s backoff.Strategy) Option {
	return func(c *Client) {
		if s != nil {
			c.retryPolicy.strategy = s
		}
	}
}

// WithRetryableStatuses replaces the set of status codes that trigger a
// retry.
func WithRetryableStatuses(codes ...int) Option {
	return func(c *Client) {
		c.retryPolicy.setRetryable(codes)
	}
}

// WithRateLimit applies a token-bucket limit to outgoing logical requests:
// rps sustained, burst peak. Requests over the limit fail fast with a
// RateLimit error rather than queueing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCircuitBreaker guards the upstream with a circuit breaker.
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.breaker = NewCircuitBreaker(config)
	}
}

// WithMetrics enables Prometheus metrics on the default registry.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsRegistry enables Prometheus metrics on a caller-owned registry.
func WithMetricsRegistry(registry prometheus.Registerer) Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollectorWithRegistry(registry)
	}
}

// WithLogger sets the logger debug output goes through.
func WithLogger(l Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithSimpleLogger attaches the stderr console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		c.logger = NewSimpleLogger()
	}
}

// WithZapLogger attaches a zap logger.
func WithZapLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = NewZapLogger(l)
	}
}

// WithDebug turns on debug logging with the given area gates. A nil config
// enables every area.
func WithDebug(config *DebugConfig) Option {
	return func(c *Client) {
		if config == nil {
			config = DefaultDebugConfig()
		}
		if config.RequestIDGen == nil {
			config.RequestIDGen = DefaultDebugConfig().RequestIDGen
		}
		config.Enabled = true
		c.debug = config
	}
}

// WithUserAgent sets the User-Agent applied to requests that do not carry
// their own.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// ValidateConfiguration checks the assembled configuration section by
// section. New is lenient so option order never matters; this runs once after
// all options have been applied.
func (c *Client) ValidateConfiguration() error {
	if err := c.validatePoolConfig(); err != nil {
		return err
	}
	if err := c.validateQueueConfig(); err != nil {
		return err
	}
	if err := c.validateRetryConfig(); err != nil {
		return err
	}
	if err := c.validateCacheConfig(); err != nil {
		return err
	}
	return nil
}

func (c *Client) validatePoolConfig() error {
	if c.maxConnections < 0 {
		return fmt.Errorf("maxConnections must not be negative, got %d", c.maxConnections)
	}
	return nil
}

func (c *Client) validateQueueConfig() error {
	if c.workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.workers)
	}
	if c.queueSize < 0 {
		return fmt.Errorf("queueSize must not be negative, got %d", c.queueSize)
	}
	return nil
}

func (c *Client) validateRetryConfig() error {
	p := c.retryPolicy
	if p.maxRetries < 0 {
		return fmt.Errorf("maxRetries must not be negative, got %d", p.maxRetries)
	}
	if p.initial < 0 {
		return fmt.Errorf("initialDelay must not be negative, got %v", p.initial)
	}
	if p.multiplier < 1.0 {
		return fmt.Errorf("backoffMultiplier must be at least 1.0, got %g", p.multiplier)
	}
	if p.jitter < 0 || p.jitter > 1 {
		return fmt.Errorf("jitter must be in [0, 1], got %g", p.jitter)
	}
	if p.maxDelay < 0 {
		return fmt.Errorf("maxBackoff must not be negative, got %v", p.maxDelay)
	}
	for code := range p.retryable {
		if code < 100 || code > 599 {
			return fmt.Errorf("retryable status code out of range: %d", code)
		}
	}
	return nil
}

func (c *Client) validateCacheConfig() error {
	if c.cacheTTL < 0 {
		return fmt.Errorf("cacheTTL must not be negative, got %v", c.cacheTTL)
	}
	return nil
}
