package offlinecache

import (
	service "github.com/puntoylana/offlinecache/pkg/offlinecache"
)

// Re-export main types for convenience
type (
	Service = service.Service
	Config  = service.Config
	Option  = service.Option
)

// New creates a new offline cache service
var New = service.New

// Options
var (
	NewConfig      = service.NewConfig
	LoadConfig     = service.LoadConfig
	WithConfig     = service.WithConfig
	WithConfigFile = service.WithConfigFile
	WithStorage    = service.WithStorage
	WithNetwork    = service.WithNetwork
	WithNotifier   = service.WithNotifier
	WithLogger     = service.WithLogger
	WithMetrics    = service.WithMetrics
)
