package worker

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puntoylana/offlinecache/core"
)

type fakeNotifier struct {
	mu     sync.Mutex
	shown  []core.Notification
	closed []string
}

func (n *fakeNotifier) Show(_ context.Context, note core.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shown = append(n.shown, note)
	return nil
}

func (n *fakeNotifier) Close(_ context.Context, id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = append(n.closed, id)
	return nil
}

type fakeClient struct {
	id      string
	url     string
	focused bool
}

func (c *fakeClient) ID() string       { return c.id }
func (c *fakeClient) URL() string      { return c.url }
func (c *fakeClient) Type() ClientType { return ClientTypeWindow }
func (c *fakeClient) Focus(context.Context) error {
	c.focused = true
	return nil
}

type fakeClients struct {
	open    []*fakeClient
	opened  []string
	lastOpt MatchOptions
}

func (c *fakeClients) MatchAll(_ context.Context, opts MatchOptions) ([]Client, error) {
	c.lastOpt = opts
	out := make([]Client, 0, len(c.open))
	for _, cl := range c.open {
		out = append(out, cl)
	}
	return out, nil
}

func (c *fakeClients) OpenWindow(_ context.Context, u string) (Client, error) {
	c.opened = append(c.opened, u)
	return nil, nil
}

func (c *fakeClients) Claim(context.Context, string) error { return nil }

func newPushWorker(t *testing.T, clients Clients, notifier Notifier) *Worker {
	t.Helper()
	u, _ := url.Parse(origin)
	w, err := New(Config{
		Version:  "v1",
		Origin:   u,
		Network:  newFakeNetwork(),
		Clients:  clients,
		Notifier: notifier,
	})
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w
}

func TestPush_OfertaOpensCatalogo(t *testing.T) {
	ctx := context.Background()
	notifier := &fakeNotifier{}
	clients := &fakeClients{}
	w := newPushWorker(t, clients, notifier)

	err := w.Push(ctx, []byte(`{"title":"Oferta","body":"20% descuento","url":"/catalogo"}`))
	require.NoError(t, err)

	require.Len(t, notifier.shown, 1)
	n := notifier.shown[0]
	assert.Equal(t, "Oferta", n.Title)
	assert.Equal(t, "20% descuento", n.Body)
	assert.Equal(t, "/catalogo", n.Data.URL)

	require.NoError(t, w.ClickNotification(ctx, n, ""))

	assert.Equal(t, []string{n.ID}, notifier.closed)
	assert.Equal(t, MatchOptions{Type: ClientTypeWindow, IncludeUncontrolled: true}, clients.lastOpt)
	assert.Equal(t, []string{origin + "/catalogo"}, clients.opened)
}

func TestPush_EmptyPayloadIsNoop(t *testing.T) {
	for _, data := range [][]byte{nil, {}} {
		notifier := &fakeNotifier{}
		w := newPushWorker(t, nil, notifier)

		assert.NoError(t, w.Push(context.Background(), data))
		assert.Empty(t, notifier.shown)
	}
}

func TestPush_MalformedPayloadIsNoop(t *testing.T) {
	notifier := &fakeNotifier{}
	w := newPushWorker(t, nil, notifier)

	assert.NoError(t, w.Push(context.Background(), []byte("not json")))
	assert.Empty(t, notifier.shown)
}

func TestPush_Defaults(t *testing.T) {
	notifier := &fakeNotifier{}
	w := newPushWorker(t, nil, notifier)

	require.NoError(t, w.Push(context.Background(), []byte(`{}`)))
	require.Len(t, notifier.shown, 1)

	n := notifier.shown[0]
	assert.Equal(t, "Punto y Lana", n.Title)
	assert.Equal(t, "¡Tienes una notificación!", n.Body)
	assert.Equal(t, "/", n.Data.URL)
	assert.Equal(t, "/icons/icon-192x192.png", n.Icon)
	assert.Equal(t, "/icons/badge-72x72.png", n.Badge)
	require.Len(t, n.Actions, 2)
	assert.Equal(t, core.ActionOpen, n.Actions[0].Action)
	assert.Equal(t, core.ActionClose, n.Actions[1].Action)
}

type failingNotifier struct{ fakeNotifier }

func (*failingNotifier) Show(context.Context, core.Notification) error {
	return errors.New("permission denied")
}

func TestPush_ShowFailureSurfaces(t *testing.T) {
	w := newPushWorker(t, nil, &failingNotifier{})
	assert.Error(t, w.Push(context.Background(), []byte(`{"title":"x"}`)))
}

func TestClick_FocusesMatchingClient(t *testing.T) {
	clients := &fakeClients{open: []*fakeClient{
		{id: "a", url: origin + "/"},
		{id: "b", url: "/catalogo"},
	}}
	w := newPushWorker(t, clients, &fakeNotifier{})

	n := core.Notification{ID: "n1", Data: core.NotificationData{URL: "/catalogo"}}
	require.NoError(t, w.ClickNotification(context.Background(), n, core.ActionOpen))

	assert.False(t, clients.open[0].focused)
	assert.True(t, clients.open[1].focused)
	assert.Empty(t, clients.opened)
}

func TestClick_CloseActionOnlyCloses(t *testing.T) {
	notifier := &fakeNotifier{}
	clients := &fakeClients{}
	w := newPushWorker(t, clients, notifier)

	n := core.Notification{ID: "n1", Data: core.NotificationData{URL: "/catalogo"}}
	require.NoError(t, w.ClickNotification(context.Background(), n, core.ActionClose))

	assert.Equal(t, []string{"n1"}, notifier.closed)
	assert.Empty(t, clients.opened)
}

func TestClick_MissingURLOpensRoot(t *testing.T) {
	clients := &fakeClients{}
	w := newPushWorker(t, clients, &fakeNotifier{})

	require.NoError(t, w.ClickNotification(context.Background(), core.Notification{ID: "n1"}, ""))
	assert.Equal(t, []string{origin + "/"}, clients.opened)
}

func TestClick_NoClientsSurfaces(t *testing.T) {
	w := newPushWorker(t, nil, &fakeNotifier{})

	err := w.ClickNotification(context.Background(), core.Notification{ID: "n1"}, "")
	assert.ErrorIs(t, err, ErrNoClients)
}

func TestClick_ForeignTargetRejected(t *testing.T) {
	for _, ref := range []string{"https://evil.test/login", "//evil.test/login", "http://puntoylana.test:8443/"} {
		t.Run(ref, func(t *testing.T) {
			notifier := &fakeNotifier{}
			clients := &fakeClients{open: []*fakeClient{{id: "a", url: ref}}}
			w := newPushWorker(t, clients, notifier)

			n := core.Notification{ID: "n1", Data: core.NotificationData{URL: ref}}
			err := w.ClickNotification(context.Background(), n, core.ActionOpen)

			assert.ErrorIs(t, err, ErrForeignTarget)
			assert.Empty(t, clients.opened)
			assert.False(t, clients.open[0].focused)
			assert.Equal(t, []string{"n1"}, notifier.closed)
		})
	}
}
