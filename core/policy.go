package core

import (
	"net/http"
	"net/url"
	"strings"
)

// Policy holds everything Decide needs to classify a request
type Policy struct {
	Origin         *url.URL // The worker's own origin
	BypassPrefixes []string // Same-origin path prefixes that always go to the network
}

// NewPolicy creates a policy for origin with the default API bypass prefix.
func NewPolicy(origin *url.URL) Policy {
	return Policy{
		Origin:         origin,
		BypassPrefixes: []string{DefaultAPIPrefix},
	}
}

// Decide classifies a request. It never touches the network or the cache.
func (p Policy) Decide(r *http.Request) Action {
	u := RequestURL(r)
	if !p.SameOrigin(u) {
		return ActionPassthrough
	}

	for _, prefix := range p.BypassPrefixes {
		if prefix != "" && strings.HasPrefix(u.Path, prefix) {
			return ActionBypass
		}
	}

	return ActionNetworkFirst
}

// SameOrigin reports whether u shares scheme, host and port with the policy origin.
// A policy without an origin treats every request as same-origin.
func (p Policy) SameOrigin(u *url.URL) bool {
	if p.Origin == nil {
		return true
	}
	return strings.EqualFold(u.Scheme, p.Origin.Scheme) && strings.EqualFold(hostPort(u), hostPort(p.Origin))
}

// Resolve turns a path or relative URL into an absolute URL on the policy origin.
func (p Policy) Resolve(ref string) (*url.URL, error) {
	target, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}
	if p.Origin == nil {
		return target, nil
	}
	return p.Origin.ResolveReference(target), nil
}

func hostPort(u *url.URL) string {
	port := u.Port()
	if port == "" {
		port = defaultPort(u.Scheme)
	}
	return strings.ToLower(u.Hostname()) + ":" + port
}

// canonicalHost lowercases the host and drops the scheme's default port,
// so equal origins produce equal cache keys.
func canonicalHost(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port := u.Port(); port != "" && port != defaultPort(u.Scheme) {
		return host + ":" + port
	}
	return host
}

func defaultPort(scheme string) string {
	if strings.EqualFold(scheme, "https") {
		return "443"
	}
	return "80"
}

// IsNavigation reports whether r is a top-level document load.
//
// Browsers send Sec-Fetch-Mode: navigate for these. Older clients without
// fetch metadata are treated as navigating when they ask for HTML with GET.
func IsNavigation(r *http.Request) bool {
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	if r.Method != http.MethodGet {
		return false
	}
	if dest := r.Header.Get("Sec-Fetch-Dest"); dest != "" && dest != "document" {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
