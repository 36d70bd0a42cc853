package worker

import (
	"context"

	"github.com/puntoylana/offlinecache/core"
)

// ClientType filters clients in MatchAll
type ClientType string

const (
	ClientTypeWindow ClientType = "window"
	ClientTypeAll    ClientType = "all"
)

// MatchOptions controls which clients MatchAll returns
type MatchOptions struct {
	Type                ClientType
	IncludeUncontrolled bool // Also return pages not yet controlled by this worker
}

// Client is an open page the worker can address
type Client interface {
	ID() string
	URL() string
	Type() ClientType
	Focus(ctx context.Context) error
}

// Clients enumerates and drives open pages
type Clients interface {
	MatchAll(ctx context.Context, opts MatchOptions) ([]Client, error)

	// OpenWindow opens url in a new window. The returned client may be nil
	// when the new window cannot be observed yet.
	OpenWindow(ctx context.Context, url string) (Client, error)

	// Claim makes version the controller of every open page.
	Claim(ctx context.Context, version string) error
}

// Notifier displays notifications
type Notifier interface {
	Show(ctx context.Context, n core.Notification) error
	Close(ctx context.Context, id string) error
}

type noClients struct{}

func (noClients) MatchAll(context.Context, MatchOptions) ([]Client, error) { return nil, nil }
func (noClients) OpenWindow(context.Context, string) (Client, error)       { return nil, ErrNoClients }
func (noClients) Claim(context.Context, string) error                      { return nil }

type noNotifier struct{}

func (noNotifier) Show(context.Context, core.Notification) error { return nil }
func (noNotifier) Close(context.Context, string) error           { return nil }

// Recorder receives worker measurements
type Recorder interface {
	RecordFetch(path string, outcome core.Outcome)
	RecordEvent(kind string, ok bool)
	RecordCacheWriteError()
}

type noRecorder struct{}

func (noRecorder) RecordFetch(string, core.Outcome) {}
func (noRecorder) RecordEvent(string, bool)         {}
func (noRecorder) RecordCacheWriteError()           {}
