package skyhttp

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/time/rate"
)

// Client is a high-throughput HTTP client that layers connection pooling,
// asynchronous dispatch, retries, caching and metrics over an opaque
// Transport. It is safe for concurrent use; all state lives on the value, no
// process-wide session exists.
type Client struct {
	transport Transport
	tlsConfig *tls.Config

	pool  *ConnectionPool
	queue *workerPool
	stats *PerformanceStats

	cache          Cache
	cacheTTL       time.Duration
	cacheKeyFunc   CacheKeyFunc
	cacheCondition CacheCondition

	retryPolicy *RetryPolicy

	limiter *rate.Limiter
	breaker *CircuitBreaker

	metrics *MetricsCollector
	logger  Logger
	debug   *DebugConfig

	userAgent string

	maxConnections int
	workers        int
	queueSize      int

	initialized  atomic.Bool
	shuttingDown atomic.Bool

	validationError error
}

// New constructs a Client from functional options. Construction never fails;
// call IsValid / ValidationError for configuration errors, or let Initialize
// surface them.
func New(options ...Option) *Client {
	c := &Client{
		cacheTTL:       DefaultCacheTTL,
		cacheKeyFunc:   DefaultCacheKeyFunc,
		cacheCondition: DefaultCacheCondition,
		retryPolicy:    NewRetryPolicy(),
		maxConnections: DefaultMaxConnections,
		stats:          NewPerformanceStats(),
		debug:          DefaultDebugConfig(),
	}

	for _, option := range options {
		option(c)
	}

	if err := c.ValidateConfiguration(); err != nil {
		c.validationError = err
	}

	return c
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

// Initialize brings the client up: default transport, connection pool and
// worker pool. It is idempotent; after a failed call it may be retried.
func (c *Client) Initialize() error {
	if c.initialized.Load() {
		return nil
	}
	if c.validationError != nil {
		return &ClientError{
			Type:      ErrorTypeInit,
			Message:   "configuration invalid",
			Cause:     c.validationError,
			Timestamp: time.Now(),
		}
	}

	if c.transport == nil {
		c.transport = NewNetTransport(c.tlsConfig)
	}
	c.pool = NewConnectionPool(c.transport, c.maxConnections)
	c.queue = newWorkerPool(c.workers, c.queueSize)
	c.queue.start()

	c.shuttingDown.Store(false)
	c.initialized.Store(true)

	if c.logger != nil && c.debug.Enabled {
		c.logger.Info("client initialized", "workers", c.queue.workers, "maxConnections", c.maxConnections)
	}
	return nil
}

// Shutdown stops the client: no new dequeues, queued-but-unstarted async
// tasks are dropped, running tasks finish, workers are joined, then idle
// connections are closed. Detached streaming tasks are not tracked and run
// to their terminal callback on their own.
func (c *Client) Shutdown() {
	if !c.initialized.Load() {
		return
	}
	c.shuttingDown.Store(true)

	c.queue.shutdown()
	c.pool.CloseIdle()

	c.initialized.Store(false)
	c.shuttingDown.Store(false)

	if c.logger != nil && c.debug.Enabled {
		c.logger.Info("client shut down")
	}
}

// Send performs one blocking request on the caller's goroutine. Failures
// below the HTTP layer return a failed Response plus a *ClientError; HTTP
// status failures return Success=false with a nil error.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	if !c.initialized.Load() {
		return nil, &ClientError{
			Type:      ErrorTypeInit,
			Message:   "client not initialized",
			Cause:     ErrNotInitialized,
			Timestamp: time.Now(),
		}
	}
	return c.do(ctx, c.prepare(req), c.requestID())
}

// Get is shorthand for a GET Send.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.Send(ctx, &Request{URL: url})
}

// Post is shorthand for a POST Send with the given content type.
func (c *Client) Post(ctx context.Context, url, contentType string, body []byte) (*Response, error) {
	return c.Send(ctx, &Request{
		URL:         url,
		Method:      MethodPost,
		Body:        body,
		ContentType: contentType,
	})
}

// SendAsync queues the request for execution by the worker pool and returns
// immediately. Exactly one of onSuccess/onError fires per accepted request.
// Tasks still queued at Shutdown are dropped without a callback; callers
// needing delivery guarantees must track completion themselves.
func (c *Client) SendAsync(ctx context.Context, req *Request, onSuccess ResponseCallback, onError ErrorCallback) {
	if !c.initialized.Load() {
		if onError != nil {
			onError(&ClientError{
				Type:      ErrorTypeInit,
				Message:   "client not initialized",
				Cause:     ErrNotInitialized,
				Timestamp: time.Now(),
			})
		}
		return
	}

	cloned := c.prepare(req)
	requestID := c.requestID()

	task := &queueTask{run: func() {
		defer func() {
			if r := recover(); r != nil {
				if onError != nil {
					onError(c.newError(ErrorTypeTransport, "panic in async task", fmt.Errorf("%v", r), requestID, cloned, 0, 0))
				}
			}
		}()

		resp, err := c.do(ctx, cloned, requestID)
		switch {
		case err != nil:
			if onError != nil {
				onError(err)
			}
		case resp.Success:
			if onSuccess != nil {
				onSuccess(resp)
			}
		default:
			if onError != nil {
				err := c.newError(ErrorTypeServer,
					fmt.Sprintf("request failed: %d %s", resp.StatusCode, resp.StatusText),
					nil, requestID, cloned, 0, resp.ResponseTime)
				err.StatusCode = resp.StatusCode
				onError(err)
			}
		}
	}}

	if err := c.queue.submit(task); err != nil {
		c.metrics.RecordError(ErrorTypeQueue, string(cloned.Method), endpointOf(cloned.URL))
		if onError != nil {
			onError(c.newError(ErrorTypeQueue, "async submission rejected", err, requestID, cloned, 0, 0))
		}
		return
	}
	c.metrics.RecordQueueDepth(c.queue.depth())

	if c.logger != nil && c.debug.Enabled && c.debug.LogQueue {
		c.logger.Debug("request queued", "requestID", requestID, "depth", c.queue.depth())
	}
}

// Metrics returns a snapshot of the lifetime performance counters.
func (c *Client) Metrics() PerformanceMetrics {
	return c.stats.Snapshot()
}

// ResetMetrics zeroes the performance counters and restarts the epoch.
func (c *Client) ResetMetrics() {
	c.stats.Reset()
}

// do is the shared non-streaming path: cache lookup, send-with-retry, cache
// store. req must already be a defaulted clone.
func (c *Client) do(ctx context.Context, req *Request, requestID string) (*Response, error) {
	method := string(req.Method)
	endpoint := endpointOf(req.URL)

	c.metrics.RecordRequestStart(method, endpoint)
	defer c.metrics.RecordRequestEnd(method, endpoint)

	cacheEnabled := c.cache != nil && c.cacheCondition(req)
	if cacheEnabled {
		key := c.cacheKeyFunc(req)
		if resp, found := c.cache.Get(key); found {
			c.metrics.RecordCacheHit(method, endpoint)
			if c.logger != nil && c.debug.Enabled && c.debug.LogCache {
				c.logger.Debug("cache hit", "requestID", requestID, "key", key)
			}
			return resp, nil
		}
		c.metrics.RecordCacheMiss(method, endpoint)
	}

	resp, err := c.sendWithRetry(ctx, req, requestID)

	if cacheEnabled && err == nil && resp.Success {
		key := c.cacheKeyFunc(req)
		c.cache.Set(key, resp, c.cacheTTL)
		if mc, ok := c.cache.(*MemoryCache); ok {
			c.metrics.RecordCacheSize(mc.Len())
		}
		if c.logger != nil && c.debug.Enabled && c.debug.LogCache {
			c.logger.Debug("response cached", "requestID", requestID, "key", key, "ttl", c.cacheTTL)
		}
	}

	return resp, err
}

// sendWithRetry is the core routine every non-streaming submission funnels
// into: admission, pooled round trip, classification, backoff, retry. The
// whole chain counts as one logical request: exactly one Response and one
// stats update come out, whatever happens inside.
func (c *Client) sendWithRetry(ctx context.Context, req *Request, requestID string) (*Response, error) {
	start := time.Now()
	method := string(req.Method)
	endpoint := endpointOf(req.URL)

	finish := func(resp *Response) *Response {
		resp.ResponseTime = time.Since(start)
		c.stats.Record(resp)
		c.metrics.RecordRequest(method, endpoint, resp.StatusCode, resp.ResponseTime.Seconds())
		c.metrics.RecordPoolIdle(c.pool.IdleCount())
		return resp
	}

	if c.limiter != nil && !c.limiter.Allow() {
		c.metrics.RecordError(ErrorTypeRateLimit, method, endpoint)
		err := c.newError(ErrorTypeRateLimit, "rate limit exceeded", ErrRateLimited, requestID, req, 0, time.Since(start))
		return finish(&Response{Err: err.Message}), err
	}
	if c.breaker != nil && !c.breaker.Allow() {
		c.metrics.RecordError(ErrorTypeCircuitOpen, method, endpoint)
		err := c.newError(ErrorTypeCircuitOpen, "circuit breaker is open", ErrCircuitOpen, requestID, req, 0, time.Since(start))
		return finish(&Response{Err: err.Message}), err
	}

	var resp *Response
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			c.metrics.RecordRetry(method, endpoint, attempt)
			if c.logger != nil && c.debug.Enabled && c.debug.LogRetries {
				c.logger.Info("retry attempt", "requestID", requestID,
					"attempt", attempt, "maxRetries", c.retryPolicy.MaxRetries(), "endpoint", endpoint)
			}
		}

		var cerr *ClientError
		resp, cerr = c.attempt(ctx, req, requestID, attempt)
		if cerr != nil {
			// Connection or transport failure: no status code exists to
			// classify, terminal by design.
			if c.breaker != nil {
				c.breaker.RecordFailure()
			}
			c.metrics.RecordError(cerr.Type, method, endpoint)
			cerr.Duration = time.Since(start)
			return finish(&Response{Err: cerr.Message}), cerr
		}

		if c.breaker != nil {
			if resp.Success || !c.retryPolicy.Retryable(resp.StatusCode) {
				c.breaker.RecordSuccess()
			} else {
				c.breaker.RecordFailure()
			}
		}

		delay, retry := c.retryPolicy.ShouldRetry(resp, attempt)
		if !retry {
			break
		}
		if c.logger != nil && c.debug.Enabled && c.debug.LogRetries {
			c.logger.Info("scheduling retry", "requestID", requestID,
				"attempt", attempt+1, "backoff", delay, "statusCode", resp.StatusCode)
		}
		time.Sleep(delay)
	}

	if !resp.Success {
		c.metrics.RecordError(ErrorTypeServer, method, endpoint)
	}
	return finish(resp), nil
}

// attempt performs one pooled round trip, following redirects up to the
// request's budget. Redirect hops reuse the same attempt; only status-code
// classification above decides retries.
func (c *Client) attempt(ctx context.Context, req *Request, requestID string, attempt int) (*Response, *ClientError) {
	attemptCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	current := req
	for redirects := 0; ; redirects++ {
		addr, err := splitURL(current.URL)
		if err != nil {
			return nil, c.newError(ErrorTypeConnection, "failed to parse URL", err, requestID, req, attempt, 0)
		}

		pc, err := c.pool.Acquire(attemptCtx, addr)
		if err != nil {
			return nil, c.newError(ErrorTypeConnection, "failed to open connection", err, requestID, req, attempt, 0)
		}
		if c.logger != nil && c.debug.Enabled && c.debug.LogPool {
			c.logger.Debug("connection acquired", "requestID", requestID, "addr", addr.String(), "idle", c.pool.IdleCount())
		}

		raw, err := pc.conn.Send(attemptCtx, current)
		if err != nil {
			c.pool.Discard(pc)
			return nil, c.newError(ErrorTypeTransport, "transport round trip failed", err, requestID, req, attempt, 0)
		}

		body, err := readBody(raw, current)
		if err != nil {
			c.pool.Discard(pc)
			return nil, c.newError(ErrorTypeTransport, "failed to read response body", err, requestID, req, attempt, 0)
		}

		if raw.Close || current.DisableKeepAlive {
			c.pool.Discard(pc)
		} else {
			c.pool.Release(pc)
		}

		if loc := headerValue(raw.Headers, "Location"); loc != "" &&
			isRedirect(raw.StatusCode) && redirects < current.MaxRedirects {
			next, rerr := redirectedRequest(current, raw.StatusCode, loc)
			if rerr == nil {
				current = next
				continue
			}
		}

		return &Response{
			StatusCode:    raw.StatusCode,
			StatusText:    raw.StatusText,
			Body:          body,
			Headers:       raw.Headers,
			ContentLength: int64(len(body)),
			Success:       IsSuccessStatusCode(raw.StatusCode),
		}, nil
	}
}

// readBody drains and closes the raw body, transparently decoding gzip when
// the request offered it. Full consumption is what makes the connection
// reusable.
func readBody(raw *RawResponse, req *Request) ([]byte, error) {
	defer raw.Body.Close()

	var r io.Reader = raw.Body
	if !req.DisableCompression && strings.EqualFold(headerValue(raw.Headers, "Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(raw.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	}
	return io.ReadAll(r)
}

func isRedirect(code int) bool {
	switch code {
	case 301, 302, 303, 307, 308:
		return true
	}
	return false
}

// redirectedRequest resolves the Location target against the current URL.
// A 303 (and the conventional 301/302-after-POST) downgrades to a bodyless
// GET; 307/308 preserve method and body.
func redirectedRequest(req *Request, status int, location string) (*Request, error) {
	base, err := url.Parse(req.URL)
	if err != nil {
		return nil, err
	}
	ref, err := url.Parse(location)
	if err != nil {
		return nil, err
	}

	next := *req
	next.URL = base.ResolveReference(ref).String()
	if status == 303 || ((status == 301 || status == 302) && req.Method == MethodPost) {
		next.Method = MethodGet
		next.Body = nil
		next.ContentType = ""
	}
	return &next, nil
}

// prepare copies the caller's request and fills defaults. The copy is shallow;
// header and body slices are shared and never mutated.
func (c *Client) prepare(req *Request) *Request {
	cp := *req
	if cp.UserAgent == "" && c.userAgent != "" {
		cp.UserAgent = c.userAgent
	}
	cp.applyDefaults()
	return &cp
}

func (c *Client) requestID() string {
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		return c.debug.RequestIDGen()
	}
	return ""
}

func (c *Client) newError(errType, message string, cause error, requestID string, req *Request, attempt int, duration time.Duration) *ClientError {
	return &ClientError{
		Type:       errType,
		Message:    message,
		Cause:      cause,
		RequestID:  requestID,
		Method:     string(req.Method),
		URL:        req.URL,
		Endpoint:   endpointOf(req.URL),
		Attempt:    attempt,
		MaxRetries: c.retryPolicy.MaxRetries(),
		Timestamp:  time.Now(),
		Duration:   duration,
	}
}

// headerValue returns the first header with the given name, or "".
func headerValue(hs []Header, name string) string {
	for _, h := range hs {
		if equalFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// endpointOf reduces a URL to host+path for metric labels.
func endpointOf(rawurl string) string {
	u, err := url.Parse(rawurl)
	if err != nil || u.Host == "" {
		return "unknown"
	}

	var b strings.Builder
	b.WriteString(u.Host)
	if u.Path != "" && u.Path != "/" {
		b.WriteString(u.Path)
	} else {
		b.WriteByte('/')
	}
	return b.String()
}
