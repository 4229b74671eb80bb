package skyhttp

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCollectorNilSafe(t *testing.T) {
	var mc *MetricsCollector
	// Must not panic.
	mc.RecordRequest("GET", "example.com/", 200, 0.1)
	mc.RecordRequestStart("GET", "example.com/")
	mc.RecordRequestEnd("GET", "example.com/")
	mc.RecordRetry("GET", "example.com/", 1)
	mc.RecordCacheHit("GET", "example.com/")
	mc.RecordCacheMiss("GET", "example.com/")
	mc.RecordCacheSize(3)
	mc.RecordPoolIdle(2)
	mc.RecordQueueDepth(1)
	mc.RecordError(ErrorTypeServer, "GET", "example.com/")
}

func TestMetricsRecordRequest(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.RecordRequest("GET", "example.com/v1", 200, 0.05)
	mc.RecordRequest("GET", "example.com/v1", 200, 0.10)
	mc.RecordRequest("POST", "example.com/v1", 500, 0.20)

	if got := testutil.ToFloat64(mc.requestsTotal.WithLabelValues("GET", "200", "example.com/v1")); got != 2 {
		t.Errorf("requests_total{GET,200} = %g, want 2", got)
	}
	if got := testutil.ToFloat64(mc.requestsTotal.WithLabelValues("POST", "500", "example.com/v1")); got != 1 {
		t.Errorf("requests_total{POST,500} = %g, want 1", got)
	}
}

func TestMetricsInFlightGauge(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.RecordRequestStart("GET", "example.com/")
	mc.RecordRequestStart("GET", "example.com/")
	if got := testutil.ToFloat64(mc.requestsInFlight.WithLabelValues("GET", "example.com/")); got != 2 {
		t.Errorf("in_flight = %g, want 2", got)
	}
	mc.RecordRequestEnd("GET", "example.com/")
	if got := testutil.ToFloat64(mc.requestsInFlight.WithLabelValues("GET", "example.com/")); got != 1 {
		t.Errorf("in_flight = %g, want 1", got)
	}
}

func TestMetricsThroughClient(t *testing.T) {
	registry := prometheus.NewRegistry()
	tr := &fakeTransport{script: []step{
		{status: 503},
		{status: 200, body: "ok"},
	}}
	c := newTestClient(t, tr, WithMetricsRegistry(registry), WithCache())

	req := &Request{URL: "http://example.com/v1"}
	if _, err := c.Send(context.Background(), req); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	// Second hit comes from the cache.
	if _, err := c.Send(context.Background(), req); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	mc := c.metrics
	if got := testutil.ToFloat64(mc.retriesTotal.WithLabelValues("GET", "example.com/v1", "1")); got != 1 {
		t.Errorf("retries_total = %g, want 1", got)
	}
	if got := testutil.ToFloat64(mc.cacheHits.WithLabelValues("GET", "example.com/v1")); got != 1 {
		t.Errorf("cache_hits_total = %g, want 1", got)
	}
	if got := testutil.ToFloat64(mc.cacheMisses.WithLabelValues("GET", "example.com/v1")); got != 1 {
		t.Errorf("cache_misses_total = %g, want 1", got)
	}
	if got := testutil.ToFloat64(mc.requestsTotal.WithLabelValues("GET", "200", "example.com/v1")); got != 1 {
		t.Errorf("requests_total = %g, want 1 (cache hit not counted)", got)
	}
}

func TestMetricsErrorCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.RecordError(ErrorTypeConnection, "GET", "down.example.com/")
	mc.RecordError(ErrorTypeConnection, "GET", "down.example.com/")

	if got := testutil.ToFloat64(mc.errorsTotal.WithLabelValues(ErrorTypeConnection, "GET", "down.example.com/")); got != 2 {
		t.Errorf("errors_total = %g, want 2", got)
	}
}

func TestEndpointOf(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"http://example.com/v1/users", "example.com/v1/users"},
		{"http://example.com", "example.com/"},
		{"http://example.com/", "example.com/"},
		{"https://example.com:8443/x", "example.com:8443/x"},
		{"not a url", "unknown"},
	}
	for _, tt := range tests {
		if got := endpointOf(tt.url); got != tt.want {
			t.Errorf("endpointOf(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
