package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Prefix is where the control API is mounted
const Prefix = "/_sw"

// RouterConfig wires the control API
type RouterConfig struct {
	Handler   *Handler        // Required
	Metrics   *MetricsHandler // Optional: no metrics routes
	Clients   http.Handler    // Optional: page WebSocket endpoint
	Dashboard http.Handler    // Optional: HTML dashboard

	// ControlToken guards message, push and notificationclick.
	// Empty restricts them to loopback peers.
	ControlToken string
	PushThrottle *Throttle // Optional: unlimited pushes
}

// NewRouter builds the echo instance serving the control API and /health
func NewRouter(cfg RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET("/health", cfg.Handler.Health)

	g := e.Group(Prefix)

	auth := ControlAuth(cfg.ControlToken)
	push := []echo.MiddlewareFunc{auth}
	if cfg.PushThrottle != nil {
		push = append(push, cfg.PushThrottle.Middleware)
	}
	g.POST("/message", cfg.Handler.PostMessage, auth)
	g.POST("/push", cfg.Handler.Push, push...)
	g.POST("/notificationclick", cfg.Handler.NotificationClick, auth)
	g.GET("/state", cfg.Handler.State)
	g.GET("/caches", cfg.Handler.Caches)

	if cfg.Metrics != nil {
		g.GET("/metrics", cfg.Metrics.Snapshot)
		g.GET("/prometheus", cfg.Metrics.Prometheus)
	}
	if cfg.Clients != nil {
		g.GET("/clients", echo.WrapHandler(cfg.Clients))
	}
	if cfg.Dashboard != nil {
		g.GET("/dashboard", echo.WrapHandler(cfg.Dashboard))
	}

	return e
}
