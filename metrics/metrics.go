package metrics

import (
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/puntoylana/offlinecache/core"
	"github.com/puntoylana/offlinecache/worker"
)

// Ensure Metrics implements worker.Recorder
var _ worker.Recorder = (*Metrics)(nil)

// topPaths is how many paths a snapshot lists
const topPaths = 10

// Metrics tracks offline cache statistics
type Metrics struct {
	totalFetches     atomic.Int64
	cacheWriteErrors atomic.Int64

	// Per-outcome and per-path stats
	mu        sync.RWMutex
	outcomes  map[core.Outcome]int64
	pathStats map[string]*PathStats
	events    map[string]*EventStats
	startTime time.Time

	registry   *prometheus.Registry
	fetchTotal *prometheus.CounterVec
	lifecycle  *prometheus.CounterVec
	writeErrs  prometheus.Counter
}

// PathStats tracks statistics for a specific request path
type PathStats struct {
	Path          string         `json:"path"`
	TotalRequests int64          `json:"total_requests"`
	Outcomes      map[string]int `json:"outcomes"`
	LastOutcome   core.Outcome   `json:"last_outcome"`
	LastRequestAt time.Time      `json:"last_request_at"`
	FirstSeenAt   time.Time      `json:"first_seen_at"`
}

// EventStats counts handled worker events of one kind
type EventStats struct {
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}

// NewMetrics creates a new metrics tracker with its own Prometheus registry
func NewMetrics() *Metrics {
	m := &Metrics{
		outcomes:  make(map[core.Outcome]int64),
		pathStats: make(map[string]*PathStats),
		events:    make(map[string]*EventStats),
		startTime: time.Now(),
		registry:  prometheus.NewRegistry(),
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "offlinecache",
			Name:      "fetch_total",
			Help:      "Intercepted requests by how they were satisfied.",
		}, []string{"outcome"}),
		lifecycle: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "offlinecache",
			Name:      "lifecycle_total",
			Help:      "Handled worker events by kind and result.",
		}, []string{"event", "result"}),
		writeErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "offlinecache",
			Name:      "cache_write_errors_total",
			Help:      "Background cache writes that failed.",
		}),
	}
	m.registry.MustRegister(m.fetchTotal, m.lifecycle, m.writeErrs)
	return m
}

// RecordFetch records how an intercepted request was satisfied
func (m *Metrics) RecordFetch(path string, outcome core.Outcome) {
	m.totalFetches.Add(1)
	m.fetchTotal.WithLabelValues(string(outcome)).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.outcomes[outcome]++

	stats, exists := m.pathStats[path]
	if !exists {
		stats = &PathStats{
			Path:        path,
			Outcomes:    make(map[string]int),
			FirstSeenAt: time.Now(),
		}
		m.pathStats[path] = stats
	}

	stats.TotalRequests++
	stats.Outcomes[string(outcome)]++
	stats.LastOutcome = outcome
	stats.LastRequestAt = time.Now()
}

// RecordEvent records a handled lifecycle, message or push event
func (m *Metrics) RecordEvent(kind string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.lifecycle.WithLabelValues(kind, result).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()

	stats, exists := m.events[kind]
	if !exists {
		stats = &EventStats{}
		m.events[kind] = stats
	}
	if ok {
		stats.Succeeded++
	} else {
		stats.Failed++
	}
}

// RecordCacheWriteError records a failed background cache write
func (m *Metrics) RecordCacheWriteError() {
	m.cacheWriteErrors.Add(1)
	m.writeErrs.Inc()
}

// Registry returns the Prometheus registry holding the collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// PrometheusHandler serves the collectors in the Prometheus text format
func (m *Metrics) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// GetSnapshot returns a snapshot of current metrics
func (m *Metrics) GetSnapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Copy path stats
	top := make([]*PathStats, 0, len(m.pathStats))
	for _, stats := range m.pathStats {
		outcomes := make(map[string]int, len(stats.Outcomes))
		for k, v := range stats.Outcomes {
			outcomes[k] = v
		}
		top = append(top, &PathStats{
			Path:          stats.Path,
			TotalRequests: stats.TotalRequests,
			Outcomes:      outcomes,
			LastOutcome:   stats.LastOutcome,
			LastRequestAt: stats.LastRequestAt,
			FirstSeenAt:   stats.FirstSeenAt,
		})
	}

	// Busiest first, path as tie-break
	sort.Slice(top, func(i, j int) bool {
		if top[i].TotalRequests != top[j].TotalRequests {
			return top[i].TotalRequests > top[j].TotalRequests
		}
		return top[i].Path < top[j].Path
	})
	if len(top) > topPaths {
		top = top[:topPaths]
	}

	outcomes := make(map[string]int64, len(m.outcomes))
	for k, v := range m.outcomes {
		outcomes[string(k)] = v
	}
	events := make(map[string]EventStats, len(m.events))
	for k, v := range m.events {
		events[k] = *v
	}

	uptime := time.Since(m.startTime)

	return &Snapshot{
		TotalFetches:     m.totalFetches.Load(),
		ServedFromCache:  m.outcomes[core.OutcomeCache] + m.outcomes[core.OutcomeOffline],
		Unavailable:      m.outcomes[core.OutcomeUnavailable],
		CacheWriteErrors: m.cacheWriteErrors.Load(),
		Outcomes:         outcomes,
		Events:           events,
		UniquePaths:      int64(len(m.pathStats)),
		TopPaths:         top,
		UptimeSeconds:    int64(uptime.Seconds()),
		StartTime:        m.startTime,
	}
}

// Snapshot represents a point-in-time view of metrics
type Snapshot struct {
	TotalFetches     int64                 `json:"total_fetches"`
	ServedFromCache  int64                 `json:"served_from_cache"`
	Unavailable      int64                 `json:"unavailable"`
	CacheWriteErrors int64                 `json:"cache_write_errors"`
	Outcomes         map[string]int64      `json:"outcomes"`
	Events           map[string]EventStats `json:"events"`
	UniquePaths      int64                 `json:"unique_paths"`
	TopPaths         []*PathStats          `json:"top_paths"`
	UptimeSeconds    int64                 `json:"uptime_seconds"`
	StartTime        time.Time             `json:"start_time"`
}
