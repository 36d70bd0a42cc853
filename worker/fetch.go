package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/puntoylana/offlinecache/core"
)

// Fetch dispatches a fetch event for req and returns it once settled. If the
// event has no response the caller sends req to the network itself.
func (w *Worker) Fetch(ctx context.Context, req *http.Request) (*FetchEvent, error) {
	ev := &FetchEvent{Request: req}
	if err := w.Dispatch(ctx, ev); err != nil {
		return nil, err
	}
	w.recorder.RecordFetch(req.URL.Path, ev.Outcome())
	return ev, nil
}

func (w *Worker) handleFetch(ctx context.Context, ev Event) error {
	fe, ok := ev.(*FetchEvent)
	if !ok {
		return mismatch(ev)
	}

	switch w.policy.Decide(fe.Request) {
	case core.ActionPassthrough:
		fe.pass(core.OutcomePassthrough)
		return nil
	case core.ActionBypass:
		fe.pass(core.OutcomeBypass)
		return nil
	}

	resp, outcome := w.networkFirst(ctx, fe.Request)
	fe.RespondWith(resp, outcome)
	return nil
}

// networkFirst answers from the network when possible. A 200 is copied into
// the cache in the background; anything else the network returns is passed
// through untouched. Only a network error falls back to the cache, then to
// the offline page for navigations, then to a synthetic 503.
func (w *Worker) networkFirst(ctx context.Context, req *http.Request) (*http.Response, core.Outcome) {
	key := core.KeyForRequest(req)

	resp, err := w.network.Fetch(ctx, req)
	if err == nil {
		if resp.StatusCode != http.StatusOK {
			return resp, core.OutcomeNetworkNotOK
		}
		return w.teeToCache(ctx, key, resp), core.OutcomeNetwork
	}

	w.log.Debug("network failed, trying cache", "key", string(key), "error", err)

	if cached, ok := w.match(ctx, key); ok {
		return cached.Response(req), core.OutcomeCache
	}

	if core.IsNavigation(req) {
		if offline, ok := w.matchOffline(ctx); ok {
			return offline.Response(req), core.OutcomeOffline
		}
	}

	return core.UnavailableResponse(req), core.OutcomeUnavailable
}

// teeToCache buffers the body of a 200 so one copy can go to the caller and
// one to the cache. Bodies over MaxEntryBytes, and non-GET requests, are
// only streamed through.
func (w *Worker) teeToCache(ctx context.Context, key core.RequestKey, resp *http.Response) *http.Response {
	if key.Method() != http.MethodGet {
		return resp
	}
	if resp.ContentLength > w.cfg.MaxEntryBytes {
		return resp
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, w.cfg.MaxEntryBytes+1))
	if err != nil || int64(len(body)) > w.cfg.MaxEntryBytes {
		if err != nil {
			w.log.Debug("not caching partially read body", "key", string(key), "error", err)
		}
		resp.Body = &multiReadCloser{
			Reader: io.MultiReader(bytes.NewReader(body), resp.Body),
			closer: resp.Body,
		}
		return resp
	}
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))

	entry := core.NewCachedResponse(key.URL(), resp, body, w.now())
	w.storeInBackground(ctx, key, entry)
	return resp
}

// storeInBackground writes entry without holding up the response. The write
// is detached from the request context and is best-effort.
func (w *Worker) storeInBackground(ctx context.Context, key core.RequestKey, entry *core.CachedResponse) {
	if w.State() != StateActivated {
		return
	}

	bg := context.WithoutCancel(ctx)
	started := w.tasks.Go(func() {
		if err := w.put(bg, key, entry); err != nil {
			w.recorder.RecordCacheWriteError()
			w.log.Warn("cache write failed", "key", string(key), "error", err)
		}
	})
	if !started {
		w.log.Debug("worker closed, skipping cache write", "key", string(key))
	}
}

func (w *Worker) put(ctx context.Context, key core.RequestKey, entry *core.CachedResponse) error {
	cache, err := w.storage.Open(ctx, w.cacheName)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	return cache.Put(ctx, key, entry)
}

func (w *Worker) match(ctx context.Context, key core.RequestKey) (*core.CachedResponse, bool) {
	cached, ok, err := w.storage.Match(ctx, key)
	if err != nil {
		w.log.Warn("cache lookup failed", "key", string(key), "error", err)
		return nil, false
	}
	return cached, ok
}

func (w *Worker) matchOffline(ctx context.Context) (*core.CachedResponse, bool) {
	u, err := w.policy.Resolve(w.cfg.OfflineURL)
	if err != nil {
		w.log.Warn("invalid offline page URL", "url", w.cfg.OfflineURL, "error", err)
		return nil, false
	}
	return w.match(ctx, core.KeyFor(http.MethodGet, u))
}

type multiReadCloser struct {
	io.Reader
	closer io.Closer
}

func (m *multiReadCloser) Close() error {
	return m.closer.Close()
}
