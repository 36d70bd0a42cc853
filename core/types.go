package core

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Defaults taken from the storefront's deployed worker.
const (
	DefaultCachePrefix = "puntoylana-"
	DefaultVersion     = "v1"
	DefaultOfflineURL  = "/offline.html"
	DefaultAPIPrefix   = "/api/"
)

// DefaultPrecache is the manifest that must be cached before a worker counts as installed.
var DefaultPrecache = []string{
	"/",
	"/index.html",
	"/manifest.json",
	"/offline.html",
}

// Action is the interceptor's decision for a single request
type Action int

const (
	// ActionPassthrough leaves cross-origin requests untouched
	ActionPassthrough Action = iota
	// ActionBypass always goes to the network, no caching and no fallback
	ActionBypass
	// ActionNetworkFirst tries the network and falls back to the cache
	ActionNetworkFirst
)

func (a Action) String() string {
	switch a {
	case ActionPassthrough:
		return "passthrough"
	case ActionBypass:
		return "bypass"
	case ActionNetworkFirst:
		return "network-first"
	default:
		return "unknown"
	}
}

// Outcome records how a fetch was finally satisfied
type Outcome string

const (
	OutcomeNetwork      Outcome = "network"
	OutcomeNetworkNotOK Outcome = "network-not-ok"
	OutcomeCache        Outcome = "cache"
	OutcomeOffline      Outcome = "offline"
	OutcomeUnavailable  Outcome = "unavailable"
	OutcomeBypass       Outcome = "bypass"
	OutcomePassthrough  Outcome = "passthrough"
)

// RequestKey identifies a cache entry: method plus absolute URL
type RequestKey string

// KeyFor builds the cache key for a method and URL. The fragment is dropped
// and the scheme and host are normalized the way SameOrigin compares them.
func KeyFor(method string, u *url.URL) RequestKey {
	clean := *u
	clean.Scheme = strings.ToLower(u.Scheme)
	if u.Host != "" {
		clean.Host = canonicalHost(u)
	}
	clean.Fragment = ""
	clean.RawFragment = ""
	return RequestKey(strings.ToUpper(method) + " " + clean.String())
}

// KeyForRequest builds the cache key for an incoming request.
func KeyForRequest(r *http.Request) RequestKey {
	return KeyFor(r.Method, RequestURL(r))
}

// Method returns the method part of the key.
func (k RequestKey) Method() string {
	method, _, _ := strings.Cut(string(k), " ")
	return method
}

// URL returns the URL part of the key.
func (k RequestKey) URL() string {
	_, u, _ := strings.Cut(string(k), " ")
	return u
}

// CacheName returns the cache store name for a version.
func CacheName(prefix, version string) string {
	return prefix + version
}

// RequestURL returns the absolute URL of a request. Server-side requests only
// carry a path, so scheme and host are filled in from TLS state and Host.
func RequestURL(r *http.Request) *url.URL {
	u := *r.URL
	if u.Host == "" {
		u.Host = r.Host
	}
	if u.Scheme == "" {
		u.Scheme = "http"
		if r.TLS != nil {
			u.Scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			u.Scheme = proto
		}
	}
	return &u
}

// Notification describes a notification ready to be shown
type Notification struct {
	ID        string               `json:"id"`
	Title     string               `json:"title"`
	Body      string               `json:"body"`
	Icon      string               `json:"icon"`
	Badge     string               `json:"badge"`
	Vibrate   []int                `json:"vibrate,omitempty"`
	Data      NotificationData     `json:"data"`
	Actions   []NotificationAction `json:"actions"`
	CreatedAt time.Time            `json:"created_at"`
}

// NotificationData is the payload attached to a notification for click handling
type NotificationData struct {
	URL string `json:"url"`
}

// NotificationAction is a button on a notification
type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Notification action identifiers.
const (
	ActionOpen  = "open"
	ActionClose = "close"
)
