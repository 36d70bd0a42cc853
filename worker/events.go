package worker

import (
	"context"
	"net/http"

	"github.com/puntoylana/offlinecache/core"
)

// EventKind keys the worker's dispatch table
type EventKind string

const (
	EventInstall           EventKind = "install"
	EventActivate          EventKind = "activate"
	EventFetch             EventKind = "fetch"
	EventMessage           EventKind = "message"
	EventPush              EventKind = "push"
	EventNotificationClick EventKind = "notificationclick"
)

// Event is anything the worker can be asked to handle
type Event interface {
	Kind() EventKind
}

// Handler processes one event. The event is settled when the handler returns.
type Handler func(ctx context.Context, ev Event) error

// InstallEvent asks the worker to precache its manifest
type InstallEvent struct{}

func (*InstallEvent) Kind() EventKind { return EventInstall }

// ActivateEvent asks the worker to prune stale caches and claim clients
type ActivateEvent struct{}

func (*ActivateEvent) Kind() EventKind { return EventActivate }

// FetchEvent carries an intercepted request. A handler that wants to answer
// calls RespondWith; otherwise the host sends the request to the network itself.
type FetchEvent struct {
	Request *http.Request

	response  *http.Response
	outcome   core.Outcome
	responded bool
}

func (*FetchEvent) Kind() EventKind { return EventFetch }

// RespondWith answers the request with resp.
func (e *FetchEvent) RespondWith(resp *http.Response, outcome core.Outcome) {
	e.response = resp
	e.outcome = outcome
	e.responded = true
}

// Response returns the worker's answer and whether there was one.
func (e *FetchEvent) Response() (*http.Response, bool) {
	return e.response, e.responded
}

// Outcome reports how the request was, or is to be, satisfied.
func (e *FetchEvent) Outcome() core.Outcome {
	return e.outcome
}

func (e *FetchEvent) pass(outcome core.Outcome) {
	e.outcome = outcome
}

// Message types understood by the worker.
const (
	MessageSkipWaiting = "SKIP_WAITING"
)

// Message is posted to the worker by a controlled page
type Message struct {
	Type string `json:"type"`
}

// MessageEvent delivers a page message
type MessageEvent struct {
	Message Message
}

func (*MessageEvent) Kind() EventKind { return EventMessage }

// PushEvent carries a push payload. Data is nil when the push had none.
type PushEvent struct {
	Data []byte
}

func (*PushEvent) Kind() EventKind { return EventPush }

// NotificationClickEvent reports a click on a shown notification.
// Action is empty when the notification body itself was clicked.
type NotificationClickEvent struct {
	Notification core.Notification
	Action       string
}

func (*NotificationClickEvent) Kind() EventKind { return EventNotificationClick }
