package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/puntoylana/offlinecache/core"
)

func (w *Worker) handlePush(ctx context.Context, ev Event) error {
	pe, ok := ev.(*PushEvent)
	if !ok {
		return mismatch(ev)
	}

	n, err := core.ParsePush(pe.Data, w.cfg.Notifications)
	switch {
	case errors.Is(err, core.ErrNoPayload):
		w.log.Debug("push without payload ignored")
		return nil
	case err != nil:
		w.log.Warn("push payload ignored", "error", err)
		return nil
	}

	if err := w.notifier.Show(ctx, n); err != nil {
		return fmt.Errorf("show notification: %w", err)
	}
	w.log.Info("notification shown", "id", n.ID, "title", n.Title, "url", n.Data.URL)
	return nil
}

func (w *Worker) handleNotificationClick(ctx context.Context, ev Event) error {
	ce, ok := ev.(*NotificationClickEvent)
	if !ok {
		return mismatch(ev)
	}

	if err := w.notifier.Close(ctx, ce.Notification.ID); err != nil {
		w.log.Warn("closing notification failed", "id", ce.Notification.ID, "error", err)
	}

	if ce.Action == core.ActionClose {
		return nil
	}

	ref := ce.Notification.Data.URL
	if ref == "" {
		ref = "/"
	}
	target, err := w.policy.Resolve(ref)
	if err != nil {
		return fmt.Errorf("notification url %q: %w", ref, err)
	}
	if !w.policy.SameOrigin(target) {
		return fmt.Errorf("%w: %s", ErrForeignTarget, target.Redacted())
	}

	clients, err := w.clients.MatchAll(ctx, MatchOptions{
		Type:                ClientTypeWindow,
		IncludeUncontrolled: true,
	})
	if err != nil {
		return fmt.Errorf("match clients: %w", err)
	}

	for _, c := range clients {
		u, err := w.policy.Resolve(c.URL())
		if err != nil || u.String() != target.String() {
			continue
		}
		if err := c.Focus(ctx); err != nil {
			return fmt.Errorf("focus client %s: %w", c.ID(), err)
		}
		return nil
	}

	if _, err := w.clients.OpenWindow(ctx, target.String()); err != nil {
		return fmt.Errorf("open window %s: %w", target, err)
	}
	return nil
}
