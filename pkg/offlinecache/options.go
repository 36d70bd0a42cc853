package offlinecache

import (
	"fmt"
	"log/slog"

	"github.com/puntoylana/offlinecache/metrics"
	"github.com/puntoylana/offlinecache/store"
	"github.com/puntoylana/offlinecache/worker"
)

// Option is a functional option for configuring a Service.
type Option func(*Service) error

// WithConfig sets the configuration for the service.
func WithConfig(config *Config) Option {
	return func(s *Service) error {
		if config == nil {
			return fmt.Errorf("%w: config cannot be nil", ErrInvalidConfig)
		}
		if err := config.Validate(); err != nil {
			return err
		}
		s.config = config
		return nil
	}
}

// WithConfigFile loads configuration from a YAML file, then the environment.
func WithConfigFile(path string) Option {
	return func(s *Service) error {
		config, err := LoadConfig(path)
		if err != nil {
			return err
		}
		s.config = config
		return nil
	}
}

// WithStorage sets the cache storage instead of building one from the config.
// The caller keeps ownership and closes it.
func WithStorage(storage store.Storage) Option {
	return func(s *Service) error {
		if storage == nil {
			return fmt.Errorf("%w: storage cannot be nil", ErrInvalidConfig)
		}
		s.storage = storage
		return nil
	}
}

// WithNetwork sets how requests reach the storefront instead of the configured upstream.
func WithNetwork(network worker.Network) Option {
	return func(s *Service) error {
		if network == nil {
			return fmt.Errorf("%w: network cannot be nil", ErrInvalidConfig)
		}
		s.network = network
		return nil
	}
}

// WithNotifier adds a notifier that receives every push next to connected pages.
func WithNotifier(notifier worker.Notifier) Option {
	return func(s *Service) error {
		if notifier == nil {
			return fmt.Errorf("%w: notifier cannot be nil", ErrInvalidConfig)
		}
		s.notifiers = append(s.notifiers, notifier)
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			return fmt.Errorf("%w: logger cannot be nil", ErrInvalidConfig)
		}
		s.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics tracker.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) error {
		if m == nil {
			return fmt.Errorf("%w: metrics cannot be nil", ErrInvalidConfig)
		}
		s.metrics = m
		return nil
	}
}
