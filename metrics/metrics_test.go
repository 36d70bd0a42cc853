package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/puntoylana/offlinecache/core"
)

func TestMetrics_RecordFetch(t *testing.T) {
	m := NewMetrics()

	m.RecordFetch("/", core.OutcomeNetwork)
	m.RecordFetch("/", core.OutcomeCache)
	m.RecordFetch("/catalogo", core.OutcomeOffline)
	m.RecordFetch("/img/a.png", core.OutcomeUnavailable)

	snap := m.GetSnapshot()

	if snap.TotalFetches != 4 {
		t.Errorf("TotalFetches = %d, want 4", snap.TotalFetches)
	}
	if snap.ServedFromCache != 2 {
		t.Errorf("ServedFromCache = %d, want 2", snap.ServedFromCache)
	}
	if snap.Unavailable != 1 {
		t.Errorf("Unavailable = %d, want 1", snap.Unavailable)
	}
	if snap.UniquePaths != 3 {
		t.Errorf("UniquePaths = %d, want 3", snap.UniquePaths)
	}
	if snap.TopPaths[0].Path != "/" {
		t.Errorf("TopPaths[0] = %s, want /", snap.TopPaths[0].Path)
	}
	if snap.TopPaths[0].LastOutcome != core.OutcomeCache {
		t.Errorf("LastOutcome = %s, want cache", snap.TopPaths[0].LastOutcome)
	}
}

func TestMetrics_TopPathsLimited(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < 15; i++ {
		for j := 0; j <= i; j++ {
			m.RecordFetch(fmt.Sprintf("/p%d", i), core.OutcomeNetwork)
		}
	}

	snap := m.GetSnapshot()
	if len(snap.TopPaths) != 10 {
		t.Fatalf("len(TopPaths) = %d, want 10", len(snap.TopPaths))
	}
	if snap.TopPaths[0].Path != "/p14" {
		t.Errorf("busiest path = %s, want /p14", snap.TopPaths[0].Path)
	}
}

func TestMetrics_SnapshotIsCopy(t *testing.T) {
	m := NewMetrics()
	m.RecordFetch("/", core.OutcomeNetwork)

	snap := m.GetSnapshot()
	snap.TopPaths[0].Outcomes["network"] = 99

	if got := m.GetSnapshot().TopPaths[0].Outcomes["network"]; got != 1 {
		t.Errorf("internal stats changed through snapshot: %d", got)
	}
}

func TestMetrics_Prometheus(t *testing.T) {
	m := NewMetrics()
	m.RecordFetch("/", core.OutcomeNetwork)
	m.RecordFetch("/x", core.OutcomeNetwork)
	m.RecordEvent("install", true)
	m.RecordEvent("push", false)
	m.RecordCacheWriteError()

	if got := testutil.ToFloat64(m.fetchTotal.WithLabelValues("network")); got != 2 {
		t.Errorf("fetch_total{network} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.lifecycle.WithLabelValues("push", "error")); got != 1 {
		t.Errorf("lifecycle_total{push,error} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.writeErrs); got != 1 {
		t.Errorf("cache_write_errors_total = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	m.PrometheusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `offlinecache_fetch_total{outcome="network"} 2`) {
		t.Errorf("exposition missing fetch counter:\n%s", rec.Body.String())
	}

	snap := m.GetSnapshot()
	if snap.Events["install"].Succeeded != 1 || snap.Events["push"].Failed != 1 {
		t.Errorf("Events = %+v", snap.Events)
	}
	if snap.CacheWriteErrors != 1 {
		t.Errorf("CacheWriteErrors = %d, want 1", snap.CacheWriteErrors)
	}
}
