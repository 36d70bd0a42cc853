package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/puntoylana/offlinecache/core"
	"github.com/puntoylana/offlinecache/store"
	"github.com/puntoylana/offlinecache/worker"
)

// maxPushBytes matches the payload limit of web push services
const maxPushBytes = 4096

// Controller is what the control API drives, usually a *worker.Registration
type Controller interface {
	PostMessage(ctx context.Context, msg worker.Message) error
	Push(ctx context.Context, data []byte) error
	ClickNotification(ctx context.Context, n core.Notification, action string) error
	Snapshot() worker.Snapshot
}

// Handler handles worker control requests
type Handler struct {
	ctrl    Controller
	storage store.Storage
	log     *slog.Logger
}

// NewHandler creates a new API handler
func NewHandler(ctrl Controller, storage store.Storage, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		ctrl:    ctrl,
		storage: storage,
		log:     logger,
	}
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusResponse acknowledges a delivered event
type StatusResponse struct {
	Status string `json:"status"`
}

// ClickRequest reports a click on a shown notification
type ClickRequest struct {
	Notification core.Notification `json:"notification"`
	Action       string            `json:"action,omitempty"` // Empty when the body was clicked
}

// CacheInfo describes one cache store
type CacheInfo struct {
	Name    string   `json:"name"`
	Entries int      `json:"entries"`
	Keys    []string `json:"keys,omitempty"`
}

// PostMessage handles POST /_sw/message
func (h *Handler) PostMessage(c echo.Context) error {
	var msg worker.Message
	if err := c.Bind(&msg); err != nil {
		return h.sendError(c, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
	}
	if msg.Type == "" {
		return h.sendError(c, http.StatusBadRequest, "missing_type", "type is required")
	}

	if err := h.ctrl.PostMessage(c.Request().Context(), msg); err != nil {
		return h.eventError(c, "message", err)
	}
	return c.JSON(http.StatusAccepted, StatusResponse{Status: "delivered"})
}

// Push handles POST /_sw/push. The raw body is the push payload; an empty
// body is a push without data.
func (h *Handler) Push(c echo.Context) error {
	data, err := io.ReadAll(io.LimitReader(c.Request().Body, maxPushBytes+1))
	if err != nil {
		return h.sendError(c, http.StatusBadRequest, "invalid_request", "Could not read body")
	}
	if len(data) > maxPushBytes {
		return h.sendError(c, http.StatusRequestEntityTooLarge, "payload_too_large", "Push payload exceeds 4096 bytes")
	}

	if err := h.ctrl.Push(c.Request().Context(), data); err != nil {
		return h.eventError(c, "push", err)
	}
	return c.JSON(http.StatusAccepted, StatusResponse{Status: "delivered"})
}

// NotificationClick handles POST /_sw/notificationclick
func (h *Handler) NotificationClick(c echo.Context) error {
	var req ClickRequest
	if err := c.Bind(&req); err != nil {
		return h.sendError(c, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
	}

	if err := h.ctrl.ClickNotification(c.Request().Context(), req.Notification, req.Action); err != nil {
		return h.eventError(c, "notificationclick", err)
	}
	return c.JSON(http.StatusAccepted, StatusResponse{Status: "delivered"})
}

// State handles GET /_sw/state
func (h *Handler) State(c echo.Context) error {
	return c.JSON(http.StatusOK, h.ctrl.Snapshot())
}

// Caches handles GET /_sw/caches. With ?keys=true every request key is listed.
func (h *Handler) Caches(c echo.Context) error {
	ctx := c.Request().Context()
	withKeys := c.QueryParam("keys") == "true"

	names, err := h.storage.Keys(ctx)
	if err != nil {
		h.log.Error("listing caches failed", "error", err)
		return h.sendError(c, http.StatusInternalServerError, "storage_error", "Could not list caches")
	}

	out := make([]CacheInfo, 0, len(names))
	for _, name := range names {
		cache, err := h.storage.Open(ctx, name)
		if err != nil {
			h.log.Error("opening cache failed", "cache", name, "error", err)
			return h.sendError(c, http.StatusInternalServerError, "storage_error", "Could not open cache "+name)
		}
		keys, err := cache.Keys(ctx)
		if err != nil {
			h.log.Error("listing cache keys failed", "cache", name, "error", err)
			return h.sendError(c, http.StatusInternalServerError, "storage_error", "Could not list cache "+name)
		}

		info := CacheInfo{Name: name, Entries: len(keys)}
		if withKeys {
			for _, k := range keys {
				info.Keys = append(info.Keys, string(k))
			}
		}
		out = append(out, info)
	}

	return c.JSON(http.StatusOK, out)
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{Status: "healthy"})
}

func (h *Handler) eventError(c echo.Context, kind string, err error) error {
	switch {
	case errors.Is(err, worker.ErrNoWorker):
		return h.sendError(c, http.StatusServiceUnavailable, "no_worker", "No worker is active")
	case errors.Is(err, worker.ErrForeignTarget):
		return h.sendError(c, http.StatusBadRequest, "foreign_target", "Notification URL must be on the storefront origin")
	case errors.Is(err, worker.ErrNoClients):
		return h.sendError(c, http.StatusConflict, "no_clients", "No page is connected to open a window")
	default:
		h.log.Warn("event failed", "event", kind, "error", err)
		return h.sendError(c, http.StatusInternalServerError, "event_failed", err.Error())
	}
}

func (h *Handler) sendError(c echo.Context, statusCode int, errorCode, message string) error {
	return c.JSON(statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}
