package api

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	gocache "github.com/patrickmn/go-cache"

	"github.com/puntoylana/offlinecache/core"
)

// DefaultPushThrottle allows a burst of 10 pushes per sender, then one every 6 seconds
var DefaultPushThrottle = core.ThrottleConfig{Capacity: 10, RefillPerSec: 1.0 / 6}

// ControlAuth guards the endpoints that raise worker events. With a token,
// requests must carry "Authorization: Bearer <token>". Without one, only
// loopback peers are accepted.
func ControlAuth(token string) echo.MiddlewareFunc {
	if token == "" {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				if !isLoopback(c.Request().RemoteAddr) {
					return unauthorized(c, "control API is restricted to localhost")
				}
				return next(c)
			}
		}
	}

	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(key string, c echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1, nil
		},
		ErrorHandler: func(err error, c echo.Context) error {
			return unauthorized(c, "missing or invalid control token")
		},
	})
}

func unauthorized(c echo.Context, message string) error {
	return c.JSON(http.StatusUnauthorized, ErrorResponse{
		Error:   "unauthorized",
		Message: message,
	})
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Throttle spends one token per request from each peer address.
// Idle senders are forgotten after ten minutes.
type Throttle struct {
	bucket *core.TokenBucket
	now    func() time.Time

	mu     sync.Mutex
	states *gocache.Cache
}

// NewThrottle creates a per-peer throttle
func NewThrottle(config core.ThrottleConfig) *Throttle {
	return &Throttle{
		bucket: core.NewTokenBucket(config),
		now:    time.Now,
		states: gocache.New(10*time.Minute, time.Minute),
	}
}

// Allow spends a token for key
func (t *Throttle) Allow(key string) core.CheckResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	var state *core.BucketState
	if v, ok := t.states.Get(key); ok {
		state = v.(*core.BucketState)
	}
	state, result := t.bucket.Check(state, t.now())
	t.states.SetDefault(key, state)
	return result
}

// Middleware rejects requests over budget with 429 and Retry-After
func (t *Throttle) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key, _, err := net.SplitHostPort(c.Request().RemoteAddr)
		if err != nil {
			key = c.Request().RemoteAddr
		}

		result := t.Allow(key)
		if !result.Allowed {
			secs := int64((result.RetryAfter + time.Second - 1) / time.Second)
			c.Response().Header().Set("Retry-After", strconv.FormatInt(secs, 10))
			return c.JSON(http.StatusTooManyRequests, ErrorResponse{
				Error:   "rate_limited",
				Message: "Too many pushes, retry after " + strconv.FormatInt(secs, 10) + "s",
			})
		}
		return next(c)
	}
}
