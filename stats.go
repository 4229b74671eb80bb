package skyhttp

import (
	"sync/atomic"
	"time"
)

// PerformanceMetrics is a point-in-time snapshot of client behavior.
// RequestsPerSecond and SuccessRate are derived at snapshot time, never
// stored.
type PerformanceMetrics struct {
	TotalRequests      uint64
	SuccessfulRequests uint64
	FailedRequests     uint64
	TotalBytes         uint64

	// AverageResponseTime is the running mean latency in milliseconds.
	AverageResponseTime float64

	RequestsPerSecond float64

	// SuccessRate is a percentage; 0 when no requests have completed.
	SuccessRate float64
}

// meanState pairs the running mean with its sample count so both advance in
// one atomic pointer swap.
type meanState struct {
	count uint64
	avg   float64
}

// PerformanceStats tracks lock-free counters over the client's lifetime. Each
// counter is independently atomic; there is no cross-counter transaction. One
// logical request (the whole retry chain) contributes exactly one update.
type PerformanceStats struct {
	totalRequests      atomic.Uint64
	successfulRequests atomic.Uint64
	failedRequests     atomic.Uint64
	totalBytes         atomic.Uint64

	// mean is advanced with a compare-and-swap loop: a plain read-modify-
	// write on a shared float is a race under parallel completions.
	mean atomic.Pointer[meanState]

	startNano atomic.Int64
}

// NewPerformanceStats returns zeroed stats with the epoch set to now.
func NewPerformanceStats() *PerformanceStats {
	s := &PerformanceStats{}
	s.mean.Store(&meanState{})
	s.startNano.Store(time.Now().UnixNano())
	return s
}

// Record accounts one completed logical request.
func (s *PerformanceStats) Record(resp *Response) {
	s.totalRequests.Add(1)
	if resp.Success {
		s.successfulRequests.Add(1)
	} else {
		s.failedRequests.Add(1)
	}
	if resp.ContentLength > 0 {
		s.totalBytes.Add(uint64(resp.ContentLength))
	}
	s.observeLatency(float64(resp.ResponseTime) / float64(time.Millisecond))
}

// observeLatency folds one sample into the running mean:
// avg' = (avg*n + t) / (n+1).
func (s *PerformanceStats) observeLatency(ms float64) {
	for {
		old := s.mean.Load()
		next := &meanState{
			count: old.count + 1,
			avg:   (old.avg*float64(old.count) + ms) / float64(old.count+1),
		}
		if s.mean.CompareAndSwap(old, next) {
			return
		}
	}
}

// AverageResponseTime returns the running mean latency in milliseconds.
func (s *PerformanceStats) AverageResponseTime() float64 {
	return s.mean.Load().avg
}

// Snapshot derives the full metrics view.
func (s *PerformanceStats) Snapshot() PerformanceMetrics {
	m := PerformanceMetrics{
		TotalRequests:       s.totalRequests.Load(),
		SuccessfulRequests:  s.successfulRequests.Load(),
		FailedRequests:      s.failedRequests.Load(),
		TotalBytes:          s.totalBytes.Load(),
		AverageResponseTime: s.mean.Load().avg,
	}

	elapsed := time.Since(time.Unix(0, s.startNano.Load())).Seconds()
	if elapsed > 0 {
		m.RequestsPerSecond = float64(m.TotalRequests) / elapsed
	}
	if m.TotalRequests > 0 {
		m.SuccessRate = float64(m.SuccessfulRequests) / float64(m.TotalRequests) * 100.0
	}
	return m
}

// Reset zeroes every counter and restarts the epoch.
func (s *PerformanceStats) Reset() {
	s.totalRequests.Store(0)
	s.successfulRequests.Store(0)
	s.failedRequests.Store(0)
	s.totalBytes.Store(0)
	s.mean.Store(&meanState{})
	s.startNano.Store(time.Now().UnixNano())
}
