package worker

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/puntoylana/offlinecache/core"
)

// WorkerInfo describes one worker slot of a registration
type WorkerInfo struct {
	Version   string `json:"version"`
	CacheName string `json:"cache_name"`
	State     string `json:"state"`
}

// Snapshot is the registration's current view of its workers
type Snapshot struct {
	Active  *WorkerInfo `json:"active,omitempty"`
	Waiting *WorkerInfo `json:"waiting,omitempty"`
}

// Registration serializes version succession: one active worker serves
// requests while a newer installed one may wait to take over.
type Registration struct {
	mu      sync.Mutex
	active  *Worker
	waiting *Worker
	newest  *Worker // last worker passed to Register
}

// NewRegistration creates an empty registration
func NewRegistration() *Registration {
	return &Registration{}
}

// Register installs w and, when nothing is active yet or w skips waiting,
// activates it. The current workers keep serving while w installs, and stay
// in place if install fails. A worker overtaken by a later Register call
// during its install becomes redundant and ErrSuperseded is returned.
func (r *Registration) Register(ctx context.Context, w *Worker) error {
	r.mu.Lock()
	r.newest = w
	r.mu.Unlock()

	if err := w.Install(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.newest != w {
		w.markRedundant()
		w.Close()
		return fmt.Errorf("%w: %s", ErrSuperseded, w.Version())
	}

	if r.waiting != nil && r.waiting != w {
		r.waiting.markRedundant()
		r.waiting.Close()
	}
	r.waiting = w
	w.setSkipWaitingHook(func(ctx context.Context) error {
		return r.skipWaiting(ctx, w)
	})

	if r.active == nil || w.SkipWaitingRequested() {
		return r.promote(ctx)
	}
	return nil
}

func (r *Registration) skipWaiting(ctx context.Context, w *Worker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.waiting != w {
		return nil
	}
	return r.promote(ctx)
}

// promote activates the waiting worker and retires the old active one.
// Callers hold r.mu.
func (r *Registration) promote(ctx context.Context) error {
	next := r.waiting
	if next == nil {
		return nil
	}
	if err := next.Activate(ctx); err != nil {
		return fmt.Errorf("activate %s: %w", next.Version(), err)
	}

	prev := r.active
	r.active = next
	r.waiting = nil
	if prev != nil && prev != next {
		prev.markRedundant()
		prev.Close()
	}
	return nil
}

// Active returns the worker controlling requests, if any
func (r *Registration) Active() *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Waiting returns the installed worker waiting to activate, if any
func (r *Registration) Waiting() *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waiting
}

// Fetch hands req to the active worker
func (r *Registration) Fetch(ctx context.Context, req *http.Request) (*FetchEvent, error) {
	w := r.Active()
	if w == nil {
		return nil, ErrNoWorker
	}
	return w.Fetch(ctx, req)
}

// PostMessage delivers msg to the waiting worker, or to the active one when
// nothing is waiting.
func (r *Registration) PostMessage(ctx context.Context, msg Message) error {
	r.mu.Lock()
	w := r.waiting
	if w == nil {
		w = r.active
	}
	r.mu.Unlock()

	if w == nil {
		return ErrNoWorker
	}
	return w.PostMessage(ctx, msg)
}

// Push delivers a push payload to the active worker
func (r *Registration) Push(ctx context.Context, data []byte) error {
	w := r.Active()
	if w == nil {
		return ErrNoWorker
	}
	return w.Push(ctx, data)
}

// ClickNotification delivers a notification click to the active worker
func (r *Registration) ClickNotification(ctx context.Context, n core.Notification, action string) error {
	w := r.Active()
	if w == nil {
		return ErrNoWorker
	}
	return w.ClickNotification(ctx, n, action)
}

// Snapshot reports the active and waiting workers
func (r *Registration) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	var s Snapshot
	if r.active != nil {
		s.Active = info(r.active)
	}
	if r.waiting != nil {
		s.Waiting = info(r.waiting)
	}
	return s
}

// Close drains background work of every worker in the registration
func (r *Registration) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range []*Worker{r.waiting, r.active} {
		if w != nil {
			w.Close()
		}
	}
}

func info(w *Worker) *WorkerInfo {
	return &WorkerInfo{
		Version:   w.Version(),
		CacheName: w.CacheName(),
		State:     w.State().String(),
	}
}
