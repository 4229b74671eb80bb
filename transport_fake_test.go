package skyhttp

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// step scripts one transport round trip for the fake transport. A zero step
// answers 200 OK with body "ok".
type step struct {
	status  int
	body    string
	headers []Header
	close   bool
	err     error
}

// fakeTransport hands out fakeConns that replay a script, one step per Send,
// and records every Send's wall-clock time so tests can assert on backoff
// spacing.
type fakeTransport struct {
	mu       sync.Mutex
	script   []step
	opens    int
	sends    int
	sendTime []time.Time
	openErr  error
}

func (f *fakeTransport) Open(ctx context.Context, addr Address) (Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opens++
	return &fakeConn{t: f}, nil
}

func (f *fakeTransport) next() step {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	f.sendTime = append(f.sendTime, time.Now())
	if len(f.script) == 0 {
		return step{}
	}
	s := f.script[0]
	f.script = f.script[1:]
	return s
}

func (f *fakeTransport) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends
}

func (f *fakeTransport) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

func (f *fakeTransport) sendTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Time, len(f.sendTime))
	copy(out, f.sendTime)
	return out
}

type fakeConn struct {
	t      *fakeTransport
	closed bool
}

func (c *fakeConn) Send(ctx context.Context, req *Request) (*RawResponse, error) {
	s := c.t.next()
	if s.err != nil {
		return nil, s.err
	}
	if s.status == 0 {
		s.status = 200
		s.body = "ok"
	}
	return &RawResponse{
		StatusCode:    s.status,
		StatusText:    statusLabel(s.status),
		Headers:       s.headers,
		ContentLength: int64(len(s.body)),
		Body:          io.NopCloser(strings.NewReader(s.body)),
		Close:         s.close,
	}, nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func newStringBody(s string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(s))
}

func statusLabel(code int) string {
	switch code {
	case 200:
		return "OK"
	case 301:
		return "Moved Permanently"
	case 404:
		return "Not Found"
	case 500:
		return "Internal Server Error"
	case 502:
		return "Bad Gateway"
	case 503:
		return "Service Unavailable"
	default:
		return "Status"
	}
}

// newTestClient builds an initialized client on the fake transport with fast
// retry timing, shut down when the test ends.
func newTestClient(t *testing.T, tr Transport, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithTransport(tr),
		WithInitialDelay(5 * time.Millisecond),
		WithWorkers(4),
	}
	c := New(append(base, opts...)...)
	if err := c.Initialize(); err != nil {
		t.Fatalf("Initialize() = %v", err)
	}
	t.Cleanup(c.Shutdown)
	return c
}
