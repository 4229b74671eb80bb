package skyhttp

import (
	"errors"
	"fmt"
	"time"
)

// Error type labels carried by ClientError.Type.
const (
	// ErrorTypeInit marks failures to bring the client up; no operation is
	// possible until Initialize succeeds.
	ErrorTypeInit = "Initialization"
	// ErrorTypeConnection marks a failed connection open or reuse; terminal
	// for the attempt, never retried.
	ErrorTypeConnection = "Connection"
	// ErrorTypeTransport marks a send/receive failure mid-flight; no status
	// code exists to classify, so it is never retried.
	ErrorTypeTransport = "Transport"
	// ErrorTypeServer marks a non-2xx status after retries were exhausted or
	// the status was not retryable.
	ErrorTypeServer = "Server"
	// ErrorTypeRateLimit marks an admission denial by the client-side limiter.
	ErrorTypeRateLimit = "RateLimit"
	// ErrorTypeCircuitOpen marks an admission denial by the circuit breaker.
	ErrorTypeCircuitOpen = "CircuitBreaker"
	// ErrorTypeQueue marks a rejected async submission (queue full or client
	// shutting down).
	ErrorTypeQueue = "Queue"
	// ErrorTypeValidation marks invalid client configuration.
	ErrorTypeValidation = "Validation"
)

// Sentinel errors for common failure scenarios.
var (
	// ErrNotInitialized is returned when an operation is invoked before
	// Initialize or after Shutdown.
	ErrNotInitialized = errors.New("skyhttp: client not initialized")

	// ErrQueueFull is returned when the async queue cannot accept more work.
	ErrQueueFull = errors.New("skyhttp: request queue full")

	// ErrShuttingDown is returned for work submitted during shutdown.
	ErrShuttingDown = errors.New("skyhttp: client shutting down")

	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("skyhttp: circuit open")

	// ErrRateLimited is returned when a request is denied by the limiter.
	ErrRateLimited = errors.New("skyhttp: rate limited")
)

// ClientError carries the failure taxonomy plus request diagnostics.
type ClientError struct {
	Type       string
	Message    string
	Cause      error
	RequestID  string
	Method     string
	URL        string
	Endpoint   string
	StatusCode int
	Attempt    int
	MaxRetries int
	Timestamp  time.Time
	Duration   time.Duration
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxRetries)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*ClientError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// IsTransient reports whether err represents a failure that might succeed on
// a fresh submission: server errors, admission denials and queue rejection.
// Connection and transport failures are not classified as transient because
// the client itself never retries them (no status code to consult).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrQueueFull) {
		return true
	}

	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Type {
		case ErrorTypeServer, ErrorTypeRateLimit, ErrorTypeCircuitOpen, ErrorTypeQueue:
			return true
		}
	}

	return false
}
