package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"

	"github.com/puntoylana/offlinecache/core"
)

// Network performs the real round trip for a request
type Network interface {
	Fetch(ctx context.Context, req *http.Request) (*http.Response, error)
}

// NetworkFunc adapts a function to the Network interface
type NetworkFunc func(ctx context.Context, req *http.Request) (*http.Response, error)

// Fetch calls f(ctx, req).
func (f NetworkFunc) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	return f(ctx, req)
}

// HTTPNetwork forwards requests to an upstream origin over HTTP
type HTTPNetwork struct {
	client   *http.Client
	upstream *url.URL
}

// NewHTTPNetwork creates a network that sends every request to upstream.
// With a nil upstream requests go to the URL they carry.
// If client is nil, a client with a 30s timeout that does not follow redirects is used.
func NewHTTPNetwork(upstream *url.URL, client *http.Client) *HTTPNetwork {
	if client == nil {
		client = &http.Client{
			Timeout: 30 * time.Second,
			// Redirects go back to the caller as-is
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return &HTTPNetwork{client: client, upstream: upstream}
}

// Fetch sends req upstream
func (n *HTTPNetwork) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	out := req.Clone(ctx)
	out.RequestURI = ""
	out.URL = core.RequestURL(req)
	out.Header = req.Header.Clone()
	core.RemoveHopHeaders(out.Header)

	if n.upstream != nil {
		out.Header.Set("X-Forwarded-Host", req.Host)
		out.Header.Set("X-Forwarded-Proto", out.URL.Scheme)
		out.URL.Scheme = n.upstream.Scheme
		out.URL.Host = n.upstream.Host
		out.Host = n.upstream.Host
	}

	return n.client.Do(out)
}

// HandlerNetwork serves requests from an in-process handler, for running the
// cache in front of a mux in the same binary
type HandlerNetwork struct {
	Handler http.Handler
}

// Fetch runs the handler and returns what it wrote
func (n HandlerNetwork) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec := httptest.NewRecorder()
	n.Handler.ServeHTTP(rec, req.Clone(ctx))
	resp := rec.Result()
	resp.Request = req
	return resp, nil
}
