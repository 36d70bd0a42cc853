package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/puntoylana/offlinecache/core"
	"github.com/puntoylana/offlinecache/worker"
)

// OutcomeHeader reports how the offline cache satisfied a request
const OutcomeHeader = "X-Offline-Cache"

// Fetcher routes a request through the controlling worker
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*worker.FetchEvent, error)
}

// Interceptor provides HTTP middleware that lets the worker answer requests
type Interceptor struct {
	fetcher Fetcher
	log     *slog.Logger
}

// Config for creating an interceptor
type Config struct {
	Fetcher Fetcher      // Required: usually a *worker.Registration
	Logger  *slog.Logger // Optional: discards logs
}

// NewInterceptor creates a new interception middleware
func NewInterceptor(config Config) *Interceptor {
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Interceptor{
		fetcher: config.Fetcher,
		log:     config.Logger,
	}
}

// Middleware wraps an http.Handler. Requests the worker does not answer,
// and every request while no worker is active, go to next unchanged.
func (in *Interceptor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ev, err := in.fetcher.Fetch(r.Context(), r)
		if err != nil {
			if !errors.Is(err, worker.ErrNoWorker) {
				in.log.Warn("fetch interception failed", "url", r.URL.String(), "error", err)
			}
			next.ServeHTTP(w, r)
			return
		}

		resp, ok := ev.Response()
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		defer resp.Body.Close()

		in.write(w, resp, ev.Outcome())
	})
}

func (in *Interceptor) write(w http.ResponseWriter, resp *http.Response, outcome core.Outcome) {
	copyHeader(w.Header(), resp.Header)
	w.Header().Set(OutcomeHeader, string(outcome))

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		in.log.Debug("response copy interrupted", "error", err)
	}
}
