package skyhttp

import (
	"context"
	"errors"
	"io"
)

const streamChunkSize = 32 * 1024

// StreamTask is the handle for an in-flight streaming request. Done is closed
// after the terminal callback has returned, which is what tests and shutdown
// paths wait on.
type StreamTask struct {
	done chan struct{}
}

// Done returns a channel closed once the stream has finished, successfully or
// not.
func (t *StreamTask) Done() <-chan struct{} {
	return t.done
}

// SendStream performs the request on a dedicated goroutine with a fresh,
// unpooled connection and delivers the body incrementally through onData.
// Exactly one of onComplete or onError fires, after the last onData call.
// Streaming bypasses the cache, the retry policy and the performance
// counters, since a half-delivered body can be neither replayed nor
// meaningfully timed. The goroutine is detached: Shutdown does not wait
// for it.
func (c *Client) SendStream(ctx context.Context, req *Request, onData DataCallback, onComplete CompleteCallback, onError ErrorCallback) *StreamTask {
	task := &StreamTask{done: make(chan struct{})}

	succeed := func() {
		if onComplete != nil {
			onComplete()
		}
		close(task.done)
	}
	fail := func(err error) {
		if onError != nil {
			onError(err)
		}
		close(task.done)
	}

	if !c.initialized.Load() {
		go fail(ErrNotInitialized)
		return task
	}

	cloned := c.prepare(req)
	requestID := c.requestID()

	go func() {
		streamCtx, cancel := context.WithTimeout(ctx, cloned.Timeout)
		defer cancel()

		addr, err := splitURL(cloned.URL)
		if err != nil {
			fail(c.newError(ErrorTypeConnection, "failed to parse URL", err, requestID, cloned, 0, 0))
			return
		}

		conn, err := c.transport.Open(streamCtx, addr)
		if err != nil {
			fail(c.newError(ErrorTypeConnection, "failed to open connection", err, requestID, cloned, 0, 0))
			return
		}
		defer conn.Close()

		raw, err := conn.Send(streamCtx, cloned)
		if err != nil {
			fail(c.newError(ErrorTypeTransport, "transport round trip failed", err, requestID, cloned, 0, 0))
			return
		}
		defer raw.Body.Close()

		if !IsSuccessStatusCode(raw.StatusCode) {
			serr := c.newError(ErrorTypeServer, "stream request failed: "+raw.StatusText, nil, requestID, cloned, 0, 0)
			serr.StatusCode = raw.StatusCode
			fail(serr)
			return
		}

		if c.logger != nil && c.debug.Enabled && c.debug.LogRequests {
			c.logger.Debug("stream started", "requestID", requestID, "url", cloned.URL)
		}

		buf := make([]byte, streamChunkSize)
		for {
			n, err := raw.Body.Read(buf)
			if n > 0 && onData != nil {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				onData(chunk)
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					succeed()
				} else {
					fail(c.newError(ErrorTypeTransport, "stream read failed", err, requestID, cloned, 0, 0))
				}
				return
			}
			select {
			case <-streamCtx.Done():
				fail(c.newError(ErrorTypeTransport, "stream cancelled", streamCtx.Err(), requestID, cloned, 0, 0))
				return
			default:
			}
		}
	}()

	return task
}
