package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/puntoylana/offlinecache/metrics"
)

// MetricsProvider defines the interface for getting metrics
type MetricsProvider interface {
	GetSnapshot() *metrics.Snapshot
	PrometheusHandler() http.Handler
}

// MetricsHandler handles the metrics endpoints
type MetricsHandler struct {
	provider MetricsProvider
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(provider MetricsProvider) *MetricsHandler {
	return &MetricsHandler{provider: provider}
}

// Snapshot handles GET /_sw/metrics
func (h *MetricsHandler) Snapshot(c echo.Context) error {
	c.Response().Header().Set("Access-Control-Allow-Origin", "*") // Allow dashboard to fetch
	return c.JSON(http.StatusOK, h.provider.GetSnapshot())
}

// Prometheus handles GET /_sw/prometheus
func (h *MetricsHandler) Prometheus(c echo.Context) error {
	h.provider.PrometheusHandler().ServeHTTP(c.Response(), c.Request())
	return nil
}
