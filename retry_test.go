package skyhttp

import (
	"testing"
	"time"
)

func TestRetryPolicyDefaults(t *testing.T) {
	p := NewRetryPolicy()
	if p.MaxRetries() != 3 {
		t.Errorf("MaxRetries() = %d, want 3", p.MaxRetries())
	}
	for _, code := range []int{500, 502, 503} {
		if !p.Retryable(code) {
			t.Errorf("Retryable(%d) = false, want true", code)
		}
	}
	for _, code := range []int{200, 400, 404, 501, 504} {
		if p.Retryable(code) {
			t.Errorf("Retryable(%d) = true, want false", code)
		}
	}
}

func TestRetryPolicyDelaySequence(t *testing.T) {
	p := NewRetryPolicy()
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for attempt, w := range want {
		if got := p.Delay(attempt); got != w {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestRetryPolicyShouldRetry(t *testing.T) {
	p := NewRetryPolicy()

	tests := []struct {
		name    string
		resp    *Response
		attempt int
		want    bool
	}{
		{"nil response", nil, 0, false},
		{"success", &Response{StatusCode: 200, Success: true}, 0, false},
		{"retryable first attempt", &Response{StatusCode: 500}, 0, true},
		{"retryable last attempt", &Response{StatusCode: 503}, 2, true},
		{"budget exhausted", &Response{StatusCode: 500}, 3, false},
		{"non-retryable", &Response{StatusCode: 404}, 0, false},
		{"504 not retryable by default", &Response{StatusCode: 504}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := p.ShouldRetry(tt.resp, tt.attempt)
			if got != tt.want {
				t.Errorf("ShouldRetry() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetryPolicyMaxDelayCap(t *testing.T) {
	c := New(WithMaxBackoff(3 * time.Second))
	if got := c.retryPolicy.Delay(5); got != 3*time.Second {
		t.Errorf("Delay(5) = %v, want capped at 3s", got)
	}
}

func TestRetryPolicyCustomStatuses(t *testing.T) {
	c := New(WithRetryableStatuses(429, 503))
	p := c.retryPolicy
	if !p.Retryable(429) || !p.Retryable(503) {
		t.Error("custom statuses not retryable")
	}
	if p.Retryable(500) {
		t.Error("Retryable(500) = true after replacement, want false")
	}
}
