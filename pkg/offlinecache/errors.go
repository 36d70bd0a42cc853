package offlinecache

import "errors"

var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMissingVersion is returned when no cache version is configured
	ErrMissingVersion = errors.New("cache version cannot be empty")

	// ErrInvalidOrigin is returned when the origin is not an absolute URL
	ErrInvalidOrigin = errors.New("origin must be an absolute URL")

	// ErrUnknownBackend is returned for an unsupported storage backend
	ErrUnknownBackend = errors.New("unknown storage backend")

	// ErrStoreFailed is returned when the storage backend cannot be opened
	ErrStoreFailed = errors.New("store operation failed")
)
