package skyhttp

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Address identifies a transport endpoint. TLS is part of the identity: a
// pooled cleartext connection is never handed out for an https request.
type Address struct {
	Host string
	Port int
	TLS  bool
}

// String renders host:port, the pool's connection key.
func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// RawResponse is what a Conn hands back: status line, headers and an
// unconsumed body stream. The caller owns Body and must drain and close it
// before the connection can be reused.
type RawResponse struct {
	StatusCode    int
	StatusText    string
	Headers       []Header
	ContentLength int64
	Body          io.ReadCloser

	// Close reports that the server asked for the connection to be torn
	// down after this exchange; such a connection must not be pooled.
	Close bool
}

// Conn is one open transport connection. A Conn is owned by either the pool
// or exactly one in-flight request, never both.
type Conn interface {
	// Send performs one blocking round trip. Any context deadline bounds
	// the whole exchange.
	Send(ctx context.Context, req *Request) (*RawResponse, error)
	Close() error
}

// Transport opens connections. It is the opaque platform primitive this
// client's pooling and retry logic never bypasses; wire-level framing, TLS
// and name resolution all live behind it.
type Transport interface {
	Open(ctx context.Context, addr Address) (Conn, error)
}

// splitURL derives the transport address from a request URL.
func splitURL(rawurl string) (Address, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return Address{}, err
	}
	if u.Host == "" {
		return Address{}, fmt.Errorf("url %q has no host", rawurl)
	}

	addr := Address{Host: u.Hostname(), TLS: u.Scheme == "https"}
	if p := u.Port(); p != "" {
		addr.Port, err = strconv.Atoi(p)
		if err != nil {
			return Address{}, fmt.Errorf("url %q has invalid port: %w", rawurl, err)
		}
	} else if addr.TLS {
		addr.Port = 443
	} else {
		addr.Port = 80
	}
	return addr, nil
}

// netTransport is the default Transport: TCP (+TLS) via net.Dialer, HTTP/1.1
// framing delegated to net/http's reader and writer.
type netTransport struct {
	dialer    net.Dialer
	tlsConfig *tls.Config
}

// NewNetTransport returns the default network transport. tlsConfig may be
// nil for standard verification.
func NewNetTransport(tlsConfig *tls.Config) Transport {
	return &netTransport{tlsConfig: tlsConfig}
}

func (t *netTransport) Open(ctx context.Context, addr Address) (Conn, error) {
	raw, err := t.dialer.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return nil, err
	}

	if addr.TLS {
		cfg := t.tlsConfig
		if cfg == nil {
			cfg = &tls.Config{}
		}
		if cfg.ServerName == "" {
			cfg = cfg.Clone()
			cfg.ServerName = addr.Host
		}
		tlsConn := tls.Client(raw, cfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = raw.Close()
			return nil, err
		}
		raw = tlsConn
	}

	return &netConn{conn: raw, br: bufio.NewReader(raw)}, nil
}

type netConn struct {
	conn net.Conn
	br   *bufio.Reader
}

func (c *netConn) Send(ctx context.Context, req *Request) (*RawResponse, error) {
	if dl, ok := ctx.Deadline(); ok {
		if err := c.conn.SetDeadline(dl); err != nil {
			return nil, err
		}
	} else if err := c.conn.SetDeadline(noDeadline); err != nil {
		return nil, err
	}

	httpReq, err := buildWireRequest(req)
	if err != nil {
		return nil, err
	}
	if err := httpReq.Write(c.conn); err != nil {
		return nil, err
	}

	resp, err := http.ReadResponse(c.br, httpReq)
	if err != nil {
		return nil, err
	}

	headers := make([]Header, 0, len(resp.Header))
	for name, values := range resp.Header {
		for _, v := range values {
			headers = append(headers, Header{Name: name, Value: v})
		}
	}

	return &RawResponse{
		StatusCode:    resp.StatusCode,
		StatusText:    statusTextOf(resp.Status, resp.StatusCode),
		Headers:       headers,
		ContentLength: resp.ContentLength,
		Body:          resp.Body,
		Close:         resp.Close,
	}, nil
}

func (c *netConn) Close() error {
	return c.conn.Close()
}

var noDeadline time.Time

func buildWireRequest(req *Request) (*http.Request, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, err
	}

	httpReq := &http.Request{
		Method:     string(req.Method),
		URL:        u,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     make(http.Header),
		Host:       u.Host,
	}
	if len(req.Body) > 0 {
		httpReq.Body = io.NopCloser(bytes.NewReader(req.Body))
		httpReq.ContentLength = int64(len(req.Body))
	}

	for _, h := range req.Headers {
		httpReq.Header.Add(h.Name, h.Value)
	}
	if httpReq.Header.Get("User-Agent") == "" && req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}
	if httpReq.Header.Get("Content-Type") == "" && req.ContentType != "" && len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	if !req.DisableCompression && httpReq.Header.Get("Accept-Encoding") == "" {
		httpReq.Header.Set("Accept-Encoding", "gzip")
	}
	if req.DisableKeepAlive {
		httpReq.Close = true
	}

	return httpReq, nil
}

// statusTextOf strips the numeric prefix from a status line ("200 OK" -> "OK").
func statusTextOf(status string, code int) string {
	text := strings.TrimPrefix(status, strconv.Itoa(code))
	return strings.TrimSpace(text)
}
