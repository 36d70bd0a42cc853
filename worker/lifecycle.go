package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/puntoylana/offlinecache/core"
	"github.com/puntoylana/offlinecache/store"
)

// precacheEntry is one manifest resource fetched during install
type precacheEntry struct {
	key  core.RequestKey
	resp *core.CachedResponse
}

func (w *Worker) handleInstall(ctx context.Context, ev Event) error {
	if _, ok := ev.(*InstallEvent); !ok {
		return mismatch(ev)
	}
	if err := w.transition(StateInstalling, StateParsed); err != nil {
		return err
	}

	w.log.Info("installing", "resources", len(w.cfg.Precache))

	if err := w.precache(ctx); err != nil {
		w.markRedundant()
		w.log.Error("install failed", "error", err)
		return fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}

	if !w.cfg.WaitForSkipWaiting {
		w.skipWaiting.Store(true)
	}
	w.setState(StateInstalled)
	w.log.Info("installed")
	return nil
}

// precache fetches every manifest URL and only writes to the cache once all
// of them succeeded, so a failed install leaves no partial version behind.
func (w *Worker) precache(ctx context.Context) error {
	entries := make([]precacheEntry, len(w.cfg.Precache))

	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range w.cfg.Precache {
		g.Go(func() error {
			entry, err := w.fetchManifestEntry(gctx, ref)
			if err != nil {
				return err
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	cache, err := w.storage.Open(ctx, w.cacheName)
	if err != nil {
		return fmt.Errorf("open cache %s: %w", w.cacheName, err)
	}

	// prior holds what each touched key held before this install; nil means absent
	prior := make(map[core.RequestKey]*core.CachedResponse, len(entries))
	for _, e := range entries {
		if _, seen := prior[e.key]; !seen {
			old, found, err := cache.Match(ctx, e.key)
			if err != nil {
				w.rollback(cache, prior)
				return fmt.Errorf("read %s: %w", e.key.URL(), err)
			}
			if !found {
				old = nil
			}
			prior[e.key] = old
		}
		if err := cache.Put(ctx, e.key, e.resp); err != nil {
			w.rollback(cache, prior)
			return fmt.Errorf("cache %s: %w", e.key.URL(), err)
		}
	}
	return nil
}

func (w *Worker) fetchManifestEntry(ctx context.Context, ref string) (precacheEntry, error) {
	u, err := w.policy.Resolve(ref)
	if err != nil {
		return precacheEntry{}, fmt.Errorf("resolve %q: %w", ref, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return precacheEntry{}, err
	}

	resp, err := w.network.Fetch(ctx, req)
	if err != nil {
		return precacheEntry{}, fmt.Errorf("fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return precacheEntry{}, fmt.Errorf("fetch %s: unexpected status %d", u, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return precacheEntry{}, fmt.Errorf("read %s: %w", u, err)
	}

	key := core.KeyFor(http.MethodGet, u)
	return precacheEntry{
		key:  key,
		resp: core.NewCachedResponse(u.String(), resp, body, w.now()),
	}, nil
}

// rollback undoes a partial precache: keys this install added are deleted,
// keys it overwrote get their previous entry back.
func (w *Worker) rollback(cache store.Cache, prior map[core.RequestKey]*core.CachedResponse) {
	ctx := context.Background()
	for k, old := range prior {
		var err error
		if old == nil {
			_, err = cache.Delete(ctx, k)
		} else {
			err = cache.Put(ctx, k, old)
		}
		if err != nil {
			w.log.Warn("rollback failed", "key", string(k), "error", err)
		}
	}
}

func (w *Worker) handleActivate(ctx context.Context, ev Event) error {
	if _, ok := ev.(*ActivateEvent); !ok {
		return mismatch(ev)
	}
	if err := w.transition(StateActivating, StateInstalled); err != nil {
		return err
	}

	if err := w.pruneCaches(ctx); err != nil {
		w.log.Warn("stale cache cleanup incomplete", "error", err)
	}

	if err := w.clients.Claim(ctx, w.cfg.Version); err != nil {
		w.log.Warn("claiming clients failed", "error", err)
	}

	w.setState(StateActivated)
	w.log.Info("activated")
	return nil
}

// pruneCaches deletes every cache not owned by this version. Failures are
// collected and do not stop the remaining deletions.
func (w *Worker) pruneCaches(ctx context.Context) error {
	names, err := w.storage.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list caches: %w", err)
	}

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	for _, name := range names {
		if name == w.cacheName {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := w.storage.Delete(ctx, name); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("delete %s: %w", name, err))
				mu.Unlock()
				return
			}
			w.log.Info("deleted stale cache", "name", name)
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}
