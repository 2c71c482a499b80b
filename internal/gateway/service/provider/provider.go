// Package provider abstracts the upstream chat-completion providers
// behind a single byte-stable proxy contract. Bodies pass through
// verbatim in both directions; the gateway only rewrites URL and auth.
package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// ErrUpstreamUnavailable indicates the upstream could not be reached at
// the network level; it maps to 502.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// DefaultTimeout bounds a provider call when no timeout is configured.
const DefaultTimeout = 60 * time.Second

// ResponseKind classifies an upstream response by its Content-Type.
type ResponseKind int

const (
	// KindJSON is an application/json body, fully read.
	KindJSON ResponseKind = iota
	// KindStream is a text/event-stream body, handed over unread.
	KindStream
	// KindText is any other body, fully read.
	KindText
)

// ProxyRequest is an upstream-bound request. URL overrides the
// provider's own URL construction when set.
type ProxyRequest struct {
	URL    string
	Method string
	Header http.Header
	Body   []byte
}

// ProxyResponse is the upstream's answer. Body is set for json and text
// kinds; Stream for the stream kind, and the caller must close it.
type ProxyResponse struct {
	Status int
	Header http.Header
	Kind   ResponseKind
	Body   []byte
	Stream io.ReadCloser
}

// Provider proxies chat-completions bodies to one upstream dialect.
type Provider interface {
	// Proxy sends the request and classifies the response. Non-2xx
	// responses come back as ordinary responses for verbatim
	// passthrough; only network-level failures are errors.
	Proxy(ctx context.Context, req *ProxyRequest) (*ProxyResponse, error)
}

// newHTTPClient builds the shared upstream client. The header timeout
// bounds time-to-first-byte without cutting long-lived streams.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
			MaxIdleConnsPerHost:   32,
		},
	}
}

// doProxy performs the upstream exchange shared by both dialects.
// setAuth applies the dialect's credential header.
func doProxy(ctx context.Context, client *http.Client, url string, setAuth func(*http.Request), preq *ProxyRequest) (*ProxyResponse, error) {
	method := preq.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(preq.Body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}

	// Forward caller headers minus hop-specific ones; Host and auth are
	// always the gateway's own.
	for k, vs := range preq.Header {
		switch http.CanonicalHeaderKey(k) {
		case "Host", "Authorization", "Api-Key", "Content-Length", "Connection":
			continue
		}
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	setAuth(req)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	out := &ProxyResponse{Status: resp.StatusCode, Header: resp.Header}
	contentType := resp.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "text/event-stream"):
		out.Kind = KindStream
		out.Stream = resp.Body
		return out, nil
	case strings.Contains(contentType, "application/json"):
		out.Kind = KindJSON
	default:
		out.Kind = KindText
	}

	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUpstreamUnavailable, err)
	}
	out.Body = body
	return out, nil
}
