package worker

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puntoylana/offlinecache/core"
	"github.com/puntoylana/offlinecache/store"
)

// DefaultMaxEntryBytes is the largest response body the worker will cache
const DefaultMaxEntryBytes = 10 << 20

// State is the worker lifecycle state
type State int

const (
	StateParsed State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	default:
		return "unknown"
	}
}

// Config for creating a worker
type Config struct {
	Version        string                    // Required: cache version, e.g. "v1"
	Origin         *url.URL                  // Required: the worker's own origin
	Network        Network                   // Required: upstream round trips
	CachePrefix    string                    // Optional: defaults to "puntoylana-"
	Precache       []string                  // Optional: defaults to core.DefaultPrecache
	OfflineURL     string                    // Optional: defaults to "/offline.html"
	BypassPrefixes []string                  // Optional: defaults to ["/api/"]
	MaxEntryBytes  int64                     // Optional: defaults to DefaultMaxEntryBytes
	Notifications  core.NotificationDefaults // Optional: defaults to the storefront's
	Storage        store.Storage             // Optional: defaults to in-memory
	Clients        Clients                   // Optional: no pages
	Notifier       Notifier                  // Optional: notifications are dropped
	Recorder       Recorder                  // Optional: no metrics
	Logger         *slog.Logger              // Optional: discards logs
	Now            func() time.Time          // Optional: defaults to time.Now

	// WaitForSkipWaiting keeps an installed worker waiting until a
	// SKIP_WAITING message arrives, instead of skipping waiting on install.
	WaitForSkipWaiting bool
}

// Worker is one version of the offline cache: a small state machine driven
// through a dispatch table of event handlers.
type Worker struct {
	cfg       Config
	cacheName string
	policy    core.Policy
	storage   store.Storage
	network   Network
	clients   Clients
	notifier  Notifier
	recorder  Recorder
	log       *slog.Logger

	handlers map[EventKind]Handler

	mu          sync.RWMutex
	state       State
	skipWaiting atomic.Bool
	onSkip      func(ctx context.Context) error

	tasks backgroundTasks
}

// New creates a worker in the parsed state
func New(cfg Config) (*Worker, error) {
	if cfg.Version == "" {
		return nil, fmt.Errorf("%w: version cannot be empty", ErrInvalidConfig)
	}
	if cfg.Origin == nil || cfg.Origin.Scheme == "" || cfg.Origin.Host == "" {
		return nil, fmt.Errorf("%w: origin must be an absolute URL", ErrInvalidConfig)
	}
	if cfg.Network == nil {
		return nil, fmt.Errorf("%w: network cannot be nil", ErrInvalidConfig)
	}
	if cfg.MaxEntryBytes < 0 {
		return nil, fmt.Errorf("%w: max entry bytes cannot be negative", ErrInvalidConfig)
	}

	if cfg.CachePrefix == "" {
		cfg.CachePrefix = core.DefaultCachePrefix
	}
	if cfg.Precache == nil {
		cfg.Precache = append([]string(nil), core.DefaultPrecache...)
	}
	if cfg.OfflineURL == "" {
		cfg.OfflineURL = core.DefaultOfflineURL
	}
	if cfg.BypassPrefixes == nil {
		cfg.BypassPrefixes = []string{core.DefaultAPIPrefix}
	}
	if cfg.MaxEntryBytes == 0 {
		cfg.MaxEntryBytes = DefaultMaxEntryBytes
	}
	if cfg.Notifications.Title == "" {
		cfg.Notifications = core.DefaultNotificationDefaults()
	}
	if cfg.Storage == nil {
		cfg.Storage = store.NewMemoryStorage()
	}
	if cfg.Clients == nil {
		cfg.Clients = noClients{}
	}
	if cfg.Notifier == nil {
		cfg.Notifier = noNotifier{}
	}
	if cfg.Recorder == nil {
		cfg.Recorder = noRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	cacheName := core.CacheName(cfg.CachePrefix, cfg.Version)
	w := &Worker{
		cfg:       cfg,
		cacheName: cacheName,
		policy: core.Policy{
			Origin:         cfg.Origin,
			BypassPrefixes: cfg.BypassPrefixes,
		},
		storage:  cfg.Storage,
		network:  cfg.Network,
		clients:  cfg.Clients,
		notifier: cfg.Notifier,
		recorder: cfg.Recorder,
		log:      cfg.Logger.With("version", cfg.Version, "cache", cacheName),
		state:    StateParsed,
	}

	w.handlers = map[EventKind]Handler{
		EventInstall:           w.handleInstall,
		EventActivate:          w.handleActivate,
		EventFetch:             w.handleFetch,
		EventMessage:           w.handleMessage,
		EventPush:              w.handlePush,
		EventNotificationClick: w.handleNotificationClick,
	}

	return w, nil
}

// Version returns the worker's cache version
func (w *Worker) Version() string {
	return w.cfg.Version
}

// CacheName returns the name of the cache store this version owns
func (w *Worker) CacheName() string {
	return w.cacheName
}

// Policy returns the request classification policy
func (w *Worker) Policy() core.Policy {
	return w.policy
}

// State returns the current lifecycle state
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// SkipWaitingRequested reports whether the worker asked to skip waiting
func (w *Worker) SkipWaitingRequested() bool {
	return w.skipWaiting.Load()
}

// Handle replaces the handler for kind.
func (w *Worker) Handle(kind EventKind, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[kind] = h
}

// Dispatch runs the handler for ev and returns once the event is settled.
func (w *Worker) Dispatch(ctx context.Context, ev Event) error {
	w.mu.RLock()
	h, ok := w.handlers[ev.Kind()]
	w.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Kind())
	}

	err := h(ctx, ev)
	if ev.Kind() != EventFetch {
		w.recorder.RecordEvent(string(ev.Kind()), err == nil)
	}
	return err
}

// Install dispatches an install event.
func (w *Worker) Install(ctx context.Context) error {
	return w.Dispatch(ctx, &InstallEvent{})
}

// Activate dispatches an activate event.
func (w *Worker) Activate(ctx context.Context) error {
	return w.Dispatch(ctx, &ActivateEvent{})
}

// Push dispatches a push event with data.
func (w *Worker) Push(ctx context.Context, data []byte) error {
	return w.Dispatch(ctx, &PushEvent{Data: data})
}

// PostMessage dispatches a message event.
func (w *Worker) PostMessage(ctx context.Context, msg Message) error {
	return w.Dispatch(ctx, &MessageEvent{Message: msg})
}

// ClickNotification dispatches a notification click.
func (w *Worker) ClickNotification(ctx context.Context, n core.Notification, action string) error {
	return w.Dispatch(ctx, &NotificationClickEvent{Notification: n, Action: action})
}

// Wait blocks until every background cache write started so far has finished.
func (w *Worker) Wait() {
	w.tasks.Wait()
}

// Close stops accepting background cache writes and waits for the running ones.
func (w *Worker) Close() {
	w.tasks.Close()
}

func (w *Worker) now() time.Time {
	return w.cfg.Now()
}

func (w *Worker) transition(to State, from ...State) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range from {
		if w.state == s {
			w.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: cannot move from %s to %s", ErrInvalidState, w.state, to)
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = s
}

// markRedundant retires a worker that has been replaced or failed.
func (w *Worker) markRedundant() {
	w.setState(StateRedundant)
}

func (w *Worker) setSkipWaitingHook(fn func(ctx context.Context) error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onSkip = fn
}

func (w *Worker) handleMessage(ctx context.Context, ev Event) error {
	me, ok := ev.(*MessageEvent)
	if !ok {
		return mismatch(ev)
	}

	switch me.Message.Type {
	case MessageSkipWaiting:
		w.skipWaiting.Store(true)
		w.mu.RLock()
		hook := w.onSkip
		w.mu.RUnlock()
		if hook != nil {
			return hook(ctx)
		}
		return nil
	default:
		w.log.Debug("ignoring message", "type", me.Message.Type)
		return nil
	}
}

func mismatch(ev Event) error {
	return fmt.Errorf("%w: unexpected %T for %s", ErrUnknownEvent, ev, ev.Kind())
}

// backgroundTasks tracks detached work such as cache writes. Tasks may still
// be running when the process exits unless Close is called first.
type backgroundTasks struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

func (b *backgroundTasks) Go(fn func()) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		fn()
	}()
	return true
}

func (b *backgroundTasks) Wait() {
	b.wg.Wait()
}

func (b *backgroundTasks) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}
