// Package skyhttp is the SkyBridge Compass networking core: a high-throughput
// HTTP client built around an opaque Transport primitive, with
//
//   - Connection pooling (bounded idle list, host-matched reuse)
//   - Asynchronous dispatch through a bounded worker pool
//   - Retries with exponential backoff over a retryable status set
//   - Time-bound response caching keyed by request fingerprint
//   - Streaming reads and fan-out batch execution
//   - Lock-free performance counters and Prometheus metrics
//
// Design goals:
//   - Small surface area: functional options configure everything
//   - Safe concurrent use of a single *Client instance
//   - Failures are values: every fault becomes a failed Response or an
//     error callback, never a dead goroutine
//   - Extensibility via pluggable Transport, Cache, Logger and metrics registry
//
// Typical usage:
//
//	client := skyhttp.New(
//	    skyhttp.WithMaxConnections(32),
//	    skyhttp.WithCache(),
//	    skyhttp.WithMetrics(),
//	)
//	if err := client.Initialize(); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Shutdown()
//
//	resp, err := client.Send(ctx, &skyhttp.Request{URL: "https://api.example.com/data"})
//
// Shutdown is best effort for queued work: tasks accepted by SendAsync but not
// yet picked up by a worker are discarded, while running tasks finish. Callers
// that need at-least-once delivery must track completion themselves.
package skyhttp
