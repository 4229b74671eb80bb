package skyhttp

import (
	"time"
)

// Method is an HTTP request method.
type Method string

// Supported request methods.
const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodPatch   Method = "PATCH"
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
)

// Header is a single name/value pair. Requests carry headers as an ordered
// list so duplicates are preserved, unlike a map.
type Header struct {
	Name  string
	Value string
}

// Request describes a single HTTP exchange. A Request is treated as immutable
// once submitted to the client; the client works on its own copy.
//
// Zero values are filled with defaults at submission: Method GET, Timeout
// 30s, MaxRedirects 5, UserAgent "skyhttp/1.0", ContentType
// "application/json" (only when a body is present). Compression and
// keep-alive are on unless explicitly disabled.
type Request struct {
	URL     string
	Method  Method
	Headers []Header
	Body    []byte

	// Timeout bounds one transport round trip, including connection setup.
	Timeout time.Duration

	// DisableCompression suppresses the Accept-Encoding: gzip offer and
	// response body decoding.
	DisableCompression bool

	// DisableKeepAlive asks the server to close the connection after the
	// exchange; the connection is then never returned to the pool.
	DisableKeepAlive bool

	// MaxRedirects bounds how many 3xx Location hops are followed.
	MaxRedirects int

	UserAgent   string
	ContentType string
}

// NewRequest returns a GET request for url with all defaults applied eagerly,
// for callers that want to inspect or tweak the effective values.
func NewRequest(url string) *Request {
	r := &Request{URL: url}
	r.applyDefaults()
	return r
}

func (r *Request) applyDefaults() {
	if r.Method == "" {
		r.Method = MethodGet
	}
	if r.Timeout <= 0 {
		r.Timeout = DefaultTimeout
	}
	if r.MaxRedirects == 0 {
		r.MaxRedirects = DefaultMaxRedirects
	}
	if r.UserAgent == "" {
		r.UserAgent = DefaultUserAgent
	}
	if r.ContentType == "" && len(r.Body) > 0 {
		r.ContentType = DefaultContentType
	}
}

// Request defaults.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxRedirects = 5
	DefaultUserAgent    = "skyhttp/1.0"
	DefaultContentType  = "application/json"
)

// Response is the terminal record of one logical request. Exactly one
// Response is produced per submission, whether the exchange succeeded or
// failed; failures carry a diagnostic in Err and Success=false.
type Response struct {
	StatusCode    int
	StatusText    string
	Body          []byte
	Headers       []Header
	ResponseTime  time.Duration
	ContentLength int64

	// Success is derived: 200 <= StatusCode < 300.
	Success bool

	// Err holds diagnostic text when the failure happened below the HTTP
	// layer (connection or transport I/O), where no status code exists.
	Err string
}

// HeaderValue returns the first header with the given name, or "".
func (r *Response) HeaderValue(name string) string {
	for _, h := range r.Headers {
		if equalFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// equalFold is an ASCII-only case-insensitive compare, sufficient for
// header names.
func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// IsSuccessStatusCode reports whether code is in the 2xx range.
func IsSuccessStatusCode(code int) bool {
	return code >= 200 && code < 300
}

// Callback types for the asynchronous submission paths.
type (
	// ResponseCallback receives the terminal Response of an async request.
	ResponseCallback func(*Response)
	// ErrorCallback receives the terminal error of an async or stream request.
	ErrorCallback func(error)
	// BatchCallback receives batch results ordered by input index, not by
	// completion order.
	BatchCallback func([]*Response)
	// DataCallback receives one streamed body chunk. The slice is owned by
	// the receiver.
	DataCallback func([]byte)
	// CompleteCallback signals successful end of a stream. Exactly one of
	// CompleteCallback or ErrorCallback fires per stream.
	CompleteCallback func()
)

// Option configures a Client at construction time.
type Option func(*Client)
