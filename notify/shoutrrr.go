// Package notify delivers worker notifications to external channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/puntoylana/offlinecache/core"
	"github.com/puntoylana/offlinecache/worker"
)

// ErrNoURLs is returned when a Shoutrrr notifier has no service URLs
var ErrNoURLs = errors.New("no notification service URLs configured")

// sender is the part of the shoutrrr router the notifier needs
type sender interface {
	Send(message string, params *types.Params) []error
}

// Shoutrrr forwards notifications to shoutrrr services (ntfy, slack, telegram, ...)
type Shoutrrr struct {
	sender sender
	origin string
}

// Ensure Shoutrrr implements worker.Notifier
var _ worker.Notifier = (*Shoutrrr)(nil)

// NewShoutrrr creates a notifier for the given service URLs. Relative
// notification targets are made absolute with origin.
func NewShoutrrr(origin string, urls ...string) (*Shoutrrr, error) {
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}
	s, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, fmt.Errorf("create shoutrrr sender: %w", err)
	}
	return &Shoutrrr{sender: s, origin: strings.TrimSuffix(origin, "/")}, nil
}

// Show sends n as a message; the title travels as the title param
func (s *Shoutrrr) Show(ctx context.Context, n core.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := types.Params{"title": n.Title}

	// Send reports one slot per service, nil when that service succeeded
	var failed []error
	for _, err := range s.sender.Send(s.message(n), &params) {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("send notification %s: %w", n.ID, errors.Join(failed...))
	}
	return nil
}

// Close is a no-op; external messages cannot be withdrawn
func (s *Shoutrrr) Close(context.Context, string) error {
	return nil
}

func (s *Shoutrrr) message(n core.Notification) string {
	target := n.Data.URL
	if strings.HasPrefix(target, "/") {
		target = s.origin + target
	}
	if target == "" {
		return n.Body
	}
	return n.Body + "\n" + target
}
