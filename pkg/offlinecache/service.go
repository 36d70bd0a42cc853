package offlinecache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/puntoylana/offlinecache/api"
	"github.com/puntoylana/offlinecache/clients"
	"github.com/puntoylana/offlinecache/core"
	"github.com/puntoylana/offlinecache/metrics"
	"github.com/puntoylana/offlinecache/middleware"
	"github.com/puntoylana/offlinecache/notify"
	"github.com/puntoylana/offlinecache/store"
	"github.com/puntoylana/offlinecache/worker"
)

// Service assembles the offline cache: storage, worker registration, page
// hub, notifiers, control API and the request interceptor.
type Service struct {
	config    *Config
	storage   store.Storage
	network   worker.Network
	notifiers []worker.Notifier
	logger    *slog.Logger
	metrics   *metrics.Metrics

	origin       *url.URL
	closeStorage func() error
	hub          *clients.Hub
	reg          *worker.Registration
	router       *echo.Echo
	interceptor  *middleware.Interceptor

	retryMu     sync.Mutex
	retryCancel context.CancelFunc
	retryWG     sync.WaitGroup
}

// New creates a Service with the given options.
// Without options it uses NewConfig with environment overrides applied.
//
// Example:
//
//	svc, err := offlinecache.New(
//	    offlinecache.WithConfigFile("offlinecache.yaml"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := svc.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	http.ListenAndServe(":8080", svc.Handler(nil))
func New(opts ...Option) (*Service, error) {
	s := &Service{}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.config == nil {
		config, err := LoadConfig("")
		if err != nil {
			return nil, err
		}
		s.config = config
	}
	if s.logger == nil {
		s.logger = NewLogger(io.Discard, s.config)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewMetrics()
	}

	origin, err := s.config.OriginURL()
	if err != nil {
		return nil, err
	}
	s.origin = origin

	if s.network == nil {
		var upstream *url.URL
		if s.config.Upstream != "" {
			upstream, _ = url.Parse(s.config.Upstream)
		}
		s.network = worker.NewHTTPNetwork(upstream, nil)
	}

	if s.storage == nil {
		storage, closeFn, err := OpenStorage(context.Background(), s.config.Store)
		if err != nil {
			return nil, err
		}
		s.storage = storage
		s.closeStorage = closeFn
	}

	s.hub = clients.NewHub(s.logger)
	if len(s.config.Notifications.ShoutrrrURLs) > 0 {
		sh, err := notify.NewShoutrrr(s.config.Origin, s.config.Notifications.ShoutrrrURLs...)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("%w: notifications: %v", ErrInvalidConfig, err)
		}
		s.notifiers = append(s.notifiers, sh)
	}

	s.reg = worker.NewRegistration()
	s.hub.SetDispatcher(s.reg)

	s.router = api.NewRouter(api.RouterConfig{
		Handler:      api.NewHandler(s.reg, s.storage, s.logger),
		Metrics:      api.NewMetricsHandler(s.metrics),
		Clients:      s.hub,
		Dashboard:    api.DashboardHandler(),
		ControlToken: s.config.ControlToken,
		PushThrottle: api.NewThrottle(core.ThrottleConfig{
			Capacity:     s.config.PushThrottle.Capacity,
			RefillPerSec: s.config.PushThrottle.RefillPerSec,
		}),
	})
	s.interceptor = middleware.NewInterceptor(middleware.Config{
		Fetcher: s.reg,
		Logger:  s.logger,
	})

	return s, nil
}

// OpenStorage builds the configured storage backend. The returned function
// releases it.
func OpenStorage(ctx context.Context, cfg StoreConfig) (store.Storage, func() error, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return store.NewMemoryStorage(), func() error { return nil }, nil
	case BackendRedis:
		rs := store.NewRedisStorage(store.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err := rs.Ping(ctx); err != nil {
			rs.Close()
			return nil, nil, fmt.Errorf("%w: redis %s: %v", ErrStoreFailed, cfg.Redis.Addr, err)
		}
		return rs, rs.Close, nil
	case BackendSQLite:
		ss, err := store.NewSQLiteStorage(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: sqlite %s: %v", ErrStoreFailed, cfg.SQLite.Path, err)
		}
		return ss, ss.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// Start installs and activates the configured version.
func (s *Service) Start(ctx context.Context) error {
	return s.Deploy(ctx, s.config.Version)
}

// StartInBackground installs the configured version without blocking. A
// failed install is logged and retried, starting at InstallRetry and
// doubling up to ten times that, until it succeeds, ctx ends or the
// service closes. Until then requests go straight to the network.
func (s *Service) StartInBackground(ctx context.Context) {
	s.retryMu.Lock()
	defer s.retryMu.Unlock()
	if s.retryCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.retryCancel = cancel

	s.retryWG.Add(1)
	go func() {
		defer s.retryWG.Done()
		s.installWithRetry(ctx)
	}()
}

func (s *Service) installWithRetry(ctx context.Context) {
	delay := s.config.InstallRetry
	maxDelay := 10 * delay

	for attempt := 1; ; attempt++ {
		err := s.Start(ctx)
		if err == nil {
			if attempt > 1 {
				s.logger.Info("cache installed after retry", "version", s.config.Version, "attempts", attempt)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("cache install failed, serving from network",
			"version", s.config.Version,
			"attempt", attempt,
			"retry_in", delay.String(),
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		delay = min(2*delay, maxDelay)
	}
}

// Deploy registers a new cache version. It replaces the active version right
// away unless WaitForSkipWaiting is set, in which case it waits for a page to
// post SKIP_WAITING.
func (s *Service) Deploy(ctx context.Context, version string) error {
	w, err := s.newWorker(version)
	if err != nil {
		return err
	}
	if err := s.reg.Register(ctx, w); err != nil {
		w.Close()
		return err
	}
	s.logger.Info("cache version registered", "version", version, "state", w.State().String())
	return nil
}

func (s *Service) newWorker(version string) (*worker.Worker, error) {
	notifiers := append(notify.Multi{s.hub}, s.notifiers...)

	return worker.New(worker.Config{
		Version:            version,
		Origin:             s.origin,
		Network:            s.network,
		CachePrefix:        s.config.CachePrefix,
		Precache:           s.config.Precache,
		OfflineURL:         s.config.OfflineURL,
		BypassPrefixes:     s.config.BypassPrefixes,
		MaxEntryBytes:      s.config.MaxEntryBytes,
		Notifications:      s.config.NotificationDefaults(),
		WaitForSkipWaiting: s.config.WaitForSkipWaiting,
		Storage:            s.storage,
		Clients:            s.hub,
		Notifier:           notifiers,
		Recorder:           s.metrics,
		Logger:             s.logger,
	})
}

// Handler serves the control API under /_sw and /health and routes every
// other request through the active worker. Requests the worker leaves alone
// go to next; a nil next sends them to the network unchanged.
func (s *Service) Handler(next http.Handler) http.Handler {
	if next == nil {
		next = middleware.NetworkHandler(s.network, s.logger)
	}
	intercepted := s.interceptor.Middleware(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || strings.HasPrefix(r.URL.Path, api.Prefix+"/") {
			s.router.ServeHTTP(w, r)
			return
		}
		intercepted.ServeHTTP(w, r)
	})
}

// Config returns the effective configuration
func (s *Service) Config() *Config { return s.config }

// Registration returns the worker registration
func (s *Service) Registration() *worker.Registration { return s.reg }

// Storage returns the cache storage
func (s *Service) Storage() store.Storage { return s.storage }

// Metrics returns the metrics tracker
func (s *Service) Metrics() *metrics.Metrics { return s.metrics }

// Hub returns the connected page registry
func (s *Service) Hub() *clients.Hub { return s.hub }

// Close drains pending cache writes, disconnects pages and releases storage
// the service opened itself.
func (s *Service) Close() error {
	s.retryMu.Lock()
	if s.retryCancel != nil {
		s.retryCancel()
	}
	s.retryMu.Unlock()
	s.retryWG.Wait()

	if s.reg != nil {
		s.reg.Close()
	}
	if s.hub != nil {
		s.hub.Shutdown()
	}
	if s.closeStorage != nil {
		return s.closeStorage()
	}
	return nil
}
