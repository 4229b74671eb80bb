package skyhttp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSendSuccess(t *testing.T) {
	tr := &fakeTransport{script: []step{
		{status: 200, body: "hello", headers: []Header{{Name: "X-Test", Value: "yes"}}},
	}}
	c := newTestClient(t, tr)

	resp, err := c.Send(context.Background(), &Request{URL: "http://api.example.com/v1/ping"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !resp.Success {
		t.Errorf("Success = false, want true")
	}
	if resp.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if string(resp.Body) != "hello" {
		t.Errorf("Body = %q, want %q", resp.Body, "hello")
	}
	if resp.ContentLength != 5 {
		t.Errorf("ContentLength = %d, want 5", resp.ContentLength)
	}
	if got := resp.HeaderValue("x-test"); got != "yes" {
		t.Errorf("HeaderValue(x-test) = %q, want %q", got, "yes")
	}
	if resp.ResponseTime <= 0 {
		t.Errorf("ResponseTime = %v, want > 0", resp.ResponseTime)
	}
}

func TestSendNotInitialized(t *testing.T) {
	c := New(WithTransport(&fakeTransport{}))

	_, err := c.Send(context.Background(), &Request{URL: "http://example.com/"})
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Send() error = %v, want ErrNotInitialized", err)
	}

	var cerr *ClientError
	if !errors.As(err, &cerr) || cerr.Type != ErrorTypeInit {
		t.Errorf("error type = %v, want %q", err, ErrorTypeInit)
	}
}

func TestSendHTTPFailureReturnsNilError(t *testing.T) {
	tr := &fakeTransport{script: []step{{status: 404, body: "missing"}}}
	c := newTestClient(t, tr)

	resp, err := c.Send(context.Background(), &Request{URL: "http://example.com/nope"})
	if err != nil {
		t.Fatalf("Send() error = %v, want nil for HTTP-level failure", err)
	}
	if resp.Success {
		t.Errorf("Success = true, want false")
	}
	if resp.StatusCode != 404 {
		t.Errorf("StatusCode = %d, want 404", resp.StatusCode)
	}
	if tr.sendCount() != 1 {
		t.Errorf("send count = %d, want 1 (404 is not retryable)", tr.sendCount())
	}
}

func TestSendConnectionError(t *testing.T) {
	dialErr := errors.New("connection refused")
	tr := &fakeTransport{openErr: dialErr}
	c := newTestClient(t, tr)

	resp, err := c.Send(context.Background(), &Request{URL: "http://down.example.com/"})
	if err == nil {
		t.Fatal("Send() error = nil, want connection error")
	}
	var cerr *ClientError
	if !errors.As(err, &cerr) {
		t.Fatalf("error is %T, want *ClientError", err)
	}
	if cerr.Type != ErrorTypeConnection {
		t.Errorf("Type = %q, want %q", cerr.Type, ErrorTypeConnection)
	}
	if !errors.Is(err, dialErr) {
		t.Errorf("cause not preserved: %v", err)
	}
	if resp == nil || resp.Success {
		t.Errorf("resp = %+v, want failed response alongside the error", resp)
	}
	if tr.sendCount() != 0 {
		t.Errorf("send count = %d, want 0 (connection errors are terminal)", tr.sendCount())
	}
}

func TestSendTransportErrorNotRetried(t *testing.T) {
	tr := &fakeTransport{script: []step{{err: errors.New("broken pipe")}}}
	c := newTestClient(t, tr)

	_, err := c.Send(context.Background(), &Request{URL: "http://example.com/"})
	var cerr *ClientError
	if !errors.As(err, &cerr) || cerr.Type != ErrorTypeTransport {
		t.Fatalf("error = %v, want transport ClientError", err)
	}
	if tr.sendCount() != 1 {
		t.Errorf("send count = %d, want 1 (no retry without a status code)", tr.sendCount())
	}
}

func TestRetryExhaustion(t *testing.T) {
	tr := &fakeTransport{script: []step{
		{status: 500}, {status: 500}, {status: 500}, {status: 500}, {status: 500},
	}}
	c := newTestClient(t, tr)

	resp, err := c.Send(context.Background(), &Request{URL: "http://flaky.example.com/"})
	if err != nil {
		t.Fatalf("Send() error = %v, want nil", err)
	}
	if resp.Success {
		t.Error("Success = true, want false after exhausted retries")
	}
	// 1 initial attempt + 3 retries.
	if tr.sendCount() != 4 {
		t.Errorf("send count = %d, want 4", tr.sendCount())
	}
}

func TestRetryThenSuccess(t *testing.T) {
	tr := &fakeTransport{script: []step{
		{status: 503}, {status: 502}, {status: 200, body: "recovered"},
	}}
	c := newTestClient(t, tr)

	resp, err := c.Send(context.Background(), &Request{URL: "http://flaky.example.com/"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !resp.Success || string(resp.Body) != "recovered" {
		t.Errorf("resp = %+v, want recovered success", resp)
	}
	if tr.sendCount() != 3 {
		t.Errorf("send count = %d, want 3", tr.sendCount())
	}
}

func TestRetryBackoffSpacing(t *testing.T) {
	tr := &fakeTransport{script: []step{
		{status: 500}, {status: 500}, {status: 500}, {status: 500},
	}}
	initial := 20 * time.Millisecond
	c := newTestClient(t, tr, WithInitialDelay(initial), WithBackoffMultiplier(2.0))

	if _, err := c.Send(context.Background(), &Request{URL: "http://flaky.example.com/"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	times := tr.sendTimes()
	if len(times) != 4 {
		t.Fatalf("send count = %d, want 4", len(times))
	}
	// Attempt k waits initial * 2^(k-1); jitter is off by default so each gap
	// has an exact lower bound.
	want := []time.Duration{initial, 2 * initial, 4 * initial}
	for i, w := range want {
		gap := times[i+1].Sub(times[i])
		if gap < w {
			t.Errorf("gap before attempt %d = %v, want >= %v", i+1, gap, w)
		}
	}
}

func TestCustomRetryableStatuses(t *testing.T) {
	tr := &fakeTransport{script: []step{{status: 404}, {status: 200}}}
	c := newTestClient(t, tr, WithRetryableStatuses(404))

	resp, err := c.Send(context.Background(), &Request{URL: "http://example.com/"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !resp.Success {
		t.Errorf("Success = false, want true after retrying 404")
	}
	if tr.sendCount() != 2 {
		t.Errorf("send count = %d, want 2", tr.sendCount())
	}
}

func TestGetAndPostShorthand(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestClient(t, tr)

	if _, err := c.Get(context.Background(), "http://example.com/get"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, err := c.Post(context.Background(), "http://example.com/post", "text/plain", []byte("x")); err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if tr.sendCount() != 2 {
		t.Errorf("send count = %d, want 2", tr.sendCount())
	}
}

func TestSendAsyncSuccessCallback(t *testing.T) {
	tr := &fakeTransport{script: []step{{status: 200, body: "async"}}}
	c := newTestClient(t, tr)

	done := make(chan *Response, 1)
	c.SendAsync(context.Background(), &Request{URL: "http://example.com/"},
		func(resp *Response) { done <- resp },
		func(err error) { t.Errorf("unexpected error callback: %v", err) },
	)

	select {
	case resp := <-done:
		if string(resp.Body) != "async" {
			t.Errorf("Body = %q, want %q", resp.Body, "async")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for success callback")
	}
}

func TestSendAsyncErrorCallbackOnHTTPFailure(t *testing.T) {
	tr := &fakeTransport{script: []step{{status: 404}}}
	c := newTestClient(t, tr)

	done := make(chan error, 1)
	c.SendAsync(context.Background(), &Request{URL: "http://example.com/"},
		func(resp *Response) { t.Error("unexpected success callback") },
		func(err error) { done <- err },
	)

	select {
	case err := <-done:
		var cerr *ClientError
		if !errors.As(err, &cerr) || cerr.Type != ErrorTypeServer {
			t.Errorf("error = %v, want server ClientError", err)
		}
		if cerr.StatusCode != 404 {
			t.Errorf("StatusCode = %d, want 404", cerr.StatusCode)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error callback")
	}
}

func TestSendAsyncAfterShutdown(t *testing.T) {
	tr := &fakeTransport{}
	c := New(WithTransport(tr))
	if err := c.Initialize(); err != nil {
		t.Fatalf("Initialize() = %v", err)
	}
	c.Shutdown()

	done := make(chan error, 1)
	c.SendAsync(context.Background(), &Request{URL: "http://example.com/"},
		nil, func(err error) { done <- err })

	select {
	case err := <-done:
		if !errors.Is(err, ErrNotInitialized) {
			t.Errorf("error = %v, want ErrNotInitialized", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for rejection callback")
	}
}

func TestShutdownDropsQueuedTasks(t *testing.T) {
	tr := &fakeTransport{}
	// One worker, wide queue: the first task blocks the worker while more
	// tasks pile up behind it.
	c := newTestClient(t, tr, WithWorkers(1), WithQueueSize(64))

	block := make(chan struct{})
	started := make(chan struct{})
	c.queue.submit(&queueTask{run: func() {
		close(started)
		<-block
	}})
	<-started

	var mu sync.Mutex
	var ran int
	for i := 0; i < 8; i++ {
		c.SendAsync(context.Background(), &Request{URL: "http://example.com/"},
			func(*Response) {
				mu.Lock()
				ran++
				mu.Unlock()
			}, nil)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(block)
	}()
	c.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	if ran != 0 {
		t.Errorf("queued tasks ran after shutdown began: %d", ran)
	}
	if tr.sendCount() != 0 {
		t.Errorf("send count = %d, want 0", tr.sendCount())
	}
}

func TestPerformanceMetricsCounts(t *testing.T) {
	tr := &fakeTransport{script: []step{
		{status: 200, body: "aaaa"},
		{status: 404},
		{status: 200, body: "bb"},
	}}
	c := newTestClient(t, tr)

	for i := 0; i < 3; i++ {
		if _, err := c.Send(context.Background(), &Request{URL: "http://example.com/"}); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}

	m := c.Metrics()
	if m.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", m.TotalRequests)
	}
	if m.SuccessfulRequests != 2 || m.FailedRequests != 1 {
		t.Errorf("success/failed = %d/%d, want 2/1", m.SuccessfulRequests, m.FailedRequests)
	}
	if m.TotalBytes != 6 {
		t.Errorf("TotalBytes = %d, want 6", m.TotalBytes)
	}
	if m.SuccessRate < 66.0 || m.SuccessRate > 67.0 {
		t.Errorf("SuccessRate = %g, want ~66.7", m.SuccessRate)
	}

	c.ResetMetrics()
	m = c.Metrics()
	if m.TotalRequests != 0 || m.AverageResponseTime != 0 {
		t.Errorf("after reset: %+v, want zeroed", m)
	}
}

func TestRetryChainCountsAsOneRequest(t *testing.T) {
	tr := &fakeTransport{script: []step{{status: 503}, {status: 200}}}
	c := newTestClient(t, tr)

	if _, err := c.Send(context.Background(), &Request{URL: "http://example.com/"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	m := c.Metrics()
	if m.TotalRequests != 1 {
		t.Errorf("TotalRequests = %d, want 1 (whole retry chain is one logical request)", m.TotalRequests)
	}
	if tr.sendCount() != 2 {
		t.Errorf("send count = %d, want 2", tr.sendCount())
	}
}

func TestClientUserAgentApplied(t *testing.T) {
	c := New(WithTransport(&fakeTransport{}), WithUserAgent("compass-agent/2.1"))
	req := c.prepare(&Request{URL: "http://example.com/"})
	if req.UserAgent != "compass-agent/2.1" {
		t.Errorf("UserAgent = %q, want client override", req.UserAgent)
	}

	req = c.prepare(&Request{URL: "http://example.com/", UserAgent: "explicit/1.0"})
	if req.UserAgent != "explicit/1.0" {
		t.Errorf("UserAgent = %q, want per-request value preserved", req.UserAgent)
	}
}

func TestRedirectFollowed(t *testing.T) {
	tr := &fakeTransport{script: []step{
		{status: 301, headers: []Header{{Name: "Location", Value: "/moved"}}},
		{status: 200, body: "landed"},
	}}
	c := newTestClient(t, tr)

	resp, err := c.Send(context.Background(), &Request{URL: "http://example.com/start"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !resp.Success || string(resp.Body) != "landed" {
		t.Errorf("resp = %+v, want redirect target", resp)
	}
	if tr.sendCount() != 2 {
		t.Errorf("send count = %d, want 2", tr.sendCount())
	}
}

func TestRedirectLimit(t *testing.T) {
	var script []step
	for i := 0; i < 10; i++ {
		script = append(script, step{status: 301, headers: []Header{{Name: "Location", Value: "/loop"}}})
	}
	tr := &fakeTransport{script: script}
	c := newTestClient(t, tr)

	resp, err := c.Send(context.Background(), &Request{URL: "http://example.com/loop"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if resp.Success {
		t.Error("Success = true, want false when redirects exhausted")
	}
	// Initial request plus DefaultMaxRedirects hops.
	if tr.sendCount() != DefaultMaxRedirects+1 {
		t.Errorf("send count = %d, want %d", tr.sendCount(), DefaultMaxRedirects+1)
	}
}

func TestInitializeIdempotent(t *testing.T) {
	c := New(WithTransport(&fakeTransport{}))
	if err := c.Initialize(); err != nil {
		t.Fatalf("Initialize() = %v", err)
	}
	if err := c.Initialize(); err != nil {
		t.Fatalf("second Initialize() = %v", err)
	}
	c.Shutdown()
	c.Shutdown()
}

func TestInitializeRejectsInvalidConfig(t *testing.T) {
	c := New(WithMaxRetries(-1))
	if c.IsValid() {
		t.Fatal("IsValid() = true, want false")
	}
	err := c.Initialize()
	var cerr *ClientError
	if !errors.As(err, &cerr) || cerr.Type != ErrorTypeInit {
		t.Fatalf("Initialize() = %v, want initialization ClientError", err)
	}
}
