package skyhttp

import (
	"context"
	"fmt"
	"sync"
)

// SendBatch executes the requests in parallel and blocks until every one has
// completed. Each request runs on its own transient goroutine, never the
// worker queue: the join must not depend on tasks the queue is allowed to
// drop at shutdown, and a full queue must not turn slots into rejections.
// The returned slice is positional: result i belongs to request i regardless
// of completion order. A request that fails below the HTTP layer yields a
// failed Response in its slot rather than aborting the batch.
func (c *Client) SendBatch(ctx context.Context, reqs []*Request) []*Response {
	if !c.initialized.Load() {
		return failedBatch(reqs, "client not initialized")
	}
	if len(reqs) == 0 {
		return nil
	}

	results := make([]*Response, len(reqs))
	var wg sync.WaitGroup

	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req *Request) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = &Response{Err: fmt.Sprintf("panic: %v", r)}
				}
			}()
			resp, err := c.do(ctx, c.prepare(req), c.requestID())
			if err != nil {
				resp = &Response{Err: err.Error()}
			}
			results[i] = resp
		}(i, req)
	}

	wg.Wait()
	return results
}

// SendBatchAsync runs the batch without blocking the caller. onComplete
// receives the positional result slice exactly once, after the last request
// finishes.
func (c *Client) SendBatchAsync(ctx context.Context, reqs []*Request, onComplete BatchCallback) {
	if onComplete == nil {
		return
	}
	if !c.initialized.Load() {
		onComplete(failedBatch(reqs, "client not initialized"))
		return
	}

	go onComplete(c.SendBatch(ctx, reqs))
}

func failedBatch(reqs []*Request, msg string) []*Response {
	results := make([]*Response, len(reqs))
	for i := range results {
		results[i] = &Response{Err: msg}
	}
	return results
}
