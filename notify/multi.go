package notify

import (
	"context"
	"errors"

	"github.com/puntoylana/offlinecache/core"
	"github.com/puntoylana/offlinecache/worker"
)

// Multi fans notifications out to several notifiers
type Multi []worker.Notifier

// Show calls Show on every notifier, even when some fail
func (m Multi) Show(ctx context.Context, n core.Notification) error {
	var errs []error
	for _, nt := range m {
		if err := nt.Show(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close calls Close on every notifier, even when some fail
func (m Multi) Close(ctx context.Context, id string) error {
	var errs []error
	for _, nt := range m {
		if err := nt.Close(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
