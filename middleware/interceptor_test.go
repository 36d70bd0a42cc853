package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/puntoylana/offlinecache/core"
	"github.com/puntoylana/offlinecache/worker"
)

const origin = "http://puntoylana.test"

// storefront serves the precache manifest and can be switched offline
type storefront struct {
	offline atomic.Bool
	mux     *http.ServeMux
}

func newStorefront() *storefront {
	s := &storefront{mux: http.NewServeMux()}
	page := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Header().Set("Connection", "close")
			w.Write([]byte(body))
		}
	}
	s.mux.HandleFunc("/{$}", page("inicio"))
	s.mux.HandleFunc("/index.html", page("inicio"))
	s.mux.HandleFunc("/manifest.json", page("{}"))
	s.mux.HandleFunc("/offline.html", page("sin conexión"))
	s.mux.HandleFunc("/catalogo", page("catalogo"))
	return s
}

func (s *storefront) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	if s.offline.Load() {
		return nil, errors.New("connection refused")
	}
	return worker.HandlerNetwork{Handler: s.mux}.Fetch(ctx, req)
}

func setup(t *testing.T) (*worker.Registration, *storefront) {
	t.Helper()
	u, _ := url.Parse(origin)
	site := newStorefront()
	w, err := worker.New(worker.Config{Version: "v1", Origin: u, Network: site})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	reg := worker.NewRegistration()
	if err := reg.Register(context.Background(), w); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	t.Cleanup(reg.Close)
	return reg, site
}

func TestInterceptor_ServesFromWorker(t *testing.T) {
	reg, _ := setup(t)
	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { nextCalled = true })

	handler := NewInterceptor(Config{Fetcher: reg}).Middleware(next)

	req := httptest.NewRequest(http.MethodGet, origin+"/catalogo", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if nextCalled {
		t.Error("next should not be called when the worker responds")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "catalogo" {
		t.Errorf("Body = %q, want catalogo", rec.Body.String())
	}
	if got := rec.Header().Get(OutcomeHeader); got != string(core.OutcomeNetwork) {
		t.Errorf("%s = %q, want network", OutcomeHeader, got)
	}
	if rec.Header().Get("Connection") != "" {
		t.Error("hop-by-hop headers must not be copied")
	}
}

func TestInterceptor_OfflineFallbacks(t *testing.T) {
	reg, site := setup(t)
	handler := NewInterceptor(Config{Fetcher: reg}).Middleware(http.NotFoundHandler())
	site.offline.Store(true)

	tests := []struct {
		name       string
		path       string
		navigate   bool
		wantStatus int
		wantBody   string
		wantHeader core.Outcome
	}{
		{"precached page", "/index.html", true, http.StatusOK, "inicio", core.OutcomeCache},
		{"unknown page", "/nuevo", true, http.StatusOK, "sin conexión", core.OutcomeOffline},
		{"unknown asset", "/app.js", false, http.StatusServiceUnavailable, core.UnavailableBody, core.OutcomeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, origin+tt.path, nil)
			if tt.navigate {
				req.Header.Set("Sec-Fetch-Mode", "navigate")
			} else {
				req.Header.Set("Sec-Fetch-Mode", "cors")
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("Body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
			if got := rec.Header().Get(OutcomeHeader); got != string(tt.wantHeader) {
				t.Errorf("%s = %q, want %q", OutcomeHeader, got, tt.wantHeader)
			}
		})
	}
}

func TestInterceptor_BypassGoesToNext(t *testing.T) {
	reg, site := setup(t)
	site.offline.Store(true)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	handler := NewInterceptor(Config{Fetcher: reg}).Middleware(next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, origin+"/api/v1/orders", nil))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
	if rec.Header().Get(OutcomeHeader) != "" {
		t.Error("bypassed requests must not be marked")
	}
}

func TestInterceptor_NoWorkerGoesToNext(t *testing.T) {
	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { nextCalled = true })
	handler := NewInterceptor(Config{Fetcher: worker.NewRegistration()}).Middleware(next)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, origin+"/", nil))

	if !nextCalled {
		t.Error("next should be called when no worker is active")
	}
}

func TestNetworkHandler(t *testing.T) {
	site := newStorefront()
	handler := NetworkHandler(site, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, origin+"/catalogo", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "catalogo" {
		t.Errorf("online: Status = %d, Body = %q", rec.Code, rec.Body.String())
	}

	site.offline.Store(true)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, origin+"/api/v1/orders", nil))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("offline: Status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
}
