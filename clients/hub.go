// Package clients tracks open storefront pages over WebSocket so the worker
// can focus them, open new windows and deliver notifications.
package clients

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/puntoylana/offlinecache/core"
	"github.com/puntoylana/offlinecache/worker"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
	sendBuffer     = 16
)

// Frame types exchanged with pages.
const (
	FrameNavigate          = "navigate"
	FrameMessage           = "message"
	FrameNotificationClick = "notificationclick"
	FrameFocus             = "focus"
	FrameOpen              = "open"
	FrameControllerChange  = "controllerchange"
	FrameNotification      = "notification"
	FrameNotificationClose = "notificationclose"
)

// Frame is one JSON message on a page connection
type Frame struct {
	Type         string             `json:"type"`
	ClientID     string             `json:"client_id,omitempty"`
	URL          string             `json:"url,omitempty"`
	Version      string             `json:"version,omitempty"`
	ID           string             `json:"id,omitempty"`
	Action       string             `json:"action,omitempty"`
	Data         *worker.Message    `json:"data,omitempty"`
	Notification *core.Notification `json:"notification,omitempty"`
}

// Dispatcher receives events raised by pages
type Dispatcher interface {
	PostMessage(ctx context.Context, msg worker.Message) error
	ClickNotification(ctx context.Context, n core.Notification, action string) error
}

// Hub is the set of connected pages. It implements worker.Clients and
// worker.Notifier.
type Hub struct {
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu         sync.RWMutex
	conns      map[string]*Conn
	order      []string // connection order, oldest first
	dispatcher Dispatcher
	closed     bool

	wg sync.WaitGroup
}

// Ensure Hub implements the worker interfaces
var (
	_ worker.Clients  = (*Hub)(nil)
	_ worker.Notifier = (*Hub)(nil)
)

// NewHub creates an empty hub. Only same-host browser origins may connect.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     sameHost,
		},
		log:   logger.With("component", "clients"),
		conns: make(map[string]*Conn),
	}
}

func sameHost(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

// SetDispatcher routes page messages and notification clicks to d
func (h *Hub) SetDispatcher(d Dispatcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dispatcher = d
}

// ServeHTTP upgrades a page connection. The page's URL is passed as ?url=.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := &Conn{
		id:   uuid.NewString(),
		url:  r.URL.Query().Get("url"),
		ws:   ws,
		send: make(chan Frame, sendBuffer),
		done: make(chan struct{}),
	}
	if !h.add(c) {
		ws.Close()
		return
	}
	h.log.Debug("client connected", "id", c.id, "url", c.url)

	c.enqueue(Frame{Type: FrameNavigate, ClientID: c.id, URL: c.url})

	go func() {
		defer h.wg.Done()
		c.writeLoop()
	}()

	h.readLoop(r.Context(), c)
	h.remove(c)
	c.stop()
	h.log.Debug("client disconnected", "id", c.id)
}

func (h *Hub) readLoop(ctx context.Context, c *Conn) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f Frame
		if err := c.ws.ReadJSON(&f); err != nil {
			return
		}
		h.handleFrame(context.WithoutCancel(ctx), c, f)
	}
}

func (h *Hub) handleFrame(ctx context.Context, c *Conn, f Frame) {
	h.mu.RLock()
	d := h.dispatcher
	h.mu.RUnlock()

	switch f.Type {
	case FrameNavigate:
		c.setURL(f.URL)
	case FrameMessage:
		if d == nil || f.Data == nil {
			return
		}
		if err := d.PostMessage(ctx, *f.Data); err != nil {
			h.log.Warn("page message failed", "client", c.id, "type", f.Data.Type, "error", err)
		}
	case FrameNotificationClick:
		if d == nil || f.Notification == nil {
			return
		}
		if err := d.ClickNotification(ctx, *f.Notification, f.Action); err != nil {
			h.log.Warn("notification click failed", "client", c.id, "error", err)
		}
	default:
		h.log.Debug("unknown frame", "client", c.id, "type", f.Type)
	}
}

// add registers c and counts its write loop, unless the hub is shut down.
// The count happens under mu so Shutdown never waits on a stale total.
func (h *Hub) add(c *Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.wg.Add(1)
	h.conns[c.id] = c
	h.order = append(h.order, c.id)
	return true
}

func (h *Hub) remove(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c.id)
	for i, id := range h.order {
		if id == c.id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

func (h *Hub) snapshot() []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Conn, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.conns[id])
	}
	return out
}

// Len returns the number of connected pages
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// MatchAll returns connected pages, oldest first. Without IncludeUncontrolled
// only pages claimed by a worker are returned.
func (h *Hub) MatchAll(_ context.Context, opts worker.MatchOptions) ([]worker.Client, error) {
	var out []worker.Client
	for _, c := range h.snapshot() {
		if !opts.IncludeUncontrolled && c.Controller() == "" {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// OpenWindow asks the most recently connected page to open target.
func (h *Hub) OpenWindow(_ context.Context, target string) (worker.Client, error) {
	conns := h.snapshot()
	if len(conns) == 0 {
		return nil, worker.ErrNoClients
	}
	last := conns[len(conns)-1]
	last.enqueue(Frame{Type: FrameOpen, URL: target})
	return nil, nil
}

// Claim marks every page as controlled by version and tells them so
func (h *Hub) Claim(_ context.Context, version string) error {
	for _, c := range h.snapshot() {
		c.setController(version)
		c.enqueue(Frame{Type: FrameControllerChange, Version: version})
	}
	return nil
}

// Show sends n to every connected page
func (h *Hub) Show(_ context.Context, n core.Notification) error {
	for _, c := range h.snapshot() {
		c.enqueue(Frame{Type: FrameNotification, Notification: &n})
	}
	return nil
}

// Close dismisses notification id on every connected page
func (h *Hub) Close(_ context.Context, id string) error {
	for _, c := range h.snapshot() {
		c.enqueue(Frame{Type: FrameNotificationClose, ID: id})
	}
	return nil
}

// Shutdown disconnects every page and waits for the writers to stop
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.stop()
	}
	h.wg.Wait()
}

// Conn is one connected page
type Conn struct {
	id   string
	ws   *websocket.Conn
	send chan Frame
	done chan struct{}
	once sync.Once

	mu         sync.RWMutex
	url        string
	controller string
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) URL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.url
}

func (c *Conn) Type() worker.ClientType { return worker.ClientTypeWindow }

// Controller returns the version controlling the page, empty if none
func (c *Conn) Controller() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.controller
}

// Focus asks the page to bring itself to the front
func (c *Conn) Focus(context.Context) error {
	c.enqueue(Frame{Type: FrameFocus})
	return nil
}

func (c *Conn) setURL(u string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.url = u
}

func (c *Conn) setController(v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controller = v
}

// enqueue drops the frame if the page is not keeping up
func (c *Conn) enqueue(f Frame) {
	select {
	case <-c.done:
	case c.send <- f:
	default:
	}
}

func (c *Conn) stop() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case f := <-c.send:
			b, err := json.Marshal(f)
			if err != nil {
				continue
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				c.stop()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.stop()
				return
			}
		}
	}
}
