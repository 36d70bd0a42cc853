package worker

import "errors"

var (
	// ErrInvalidConfig is returned when the worker configuration is invalid
	ErrInvalidConfig = errors.New("invalid worker configuration")

	// ErrInstallFailed is returned when precaching fails; the worker becomes redundant
	ErrInstallFailed = errors.New("worker install failed")

	// ErrInvalidState is returned for a lifecycle event the current state does not allow
	ErrInvalidState = errors.New("invalid worker state for event")

	// ErrUnknownEvent is returned when no handler is registered for an event kind
	ErrUnknownEvent = errors.New("no handler for event")

	// ErrSuperseded is returned when a newer worker was registered while this one installed
	ErrSuperseded = errors.New("worker superseded by a newer registration")

	// ErrNoWorker is returned when a registration has no worker to deliver an event to
	ErrNoWorker = errors.New("no active or waiting worker")

	// ErrForeignTarget is returned when a notification points outside the worker's origin
	ErrForeignTarget = errors.New("notification target is not on the worker origin")

	// ErrNoClients is returned when no window client can open a URL
	ErrNoClients = errors.New("no window clients connected")
)
