package offlinecache

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/puntoylana/offlinecache/core"
)

// EnvPrefix prefixes every environment override, e.g. OFFLINECACHE_VERSION.
const EnvPrefix = "OFFLINECACHE_"

// Storage backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config holds the offline cache configuration.
// Values come from a YAML file and can be overridden from the environment.
type Config struct {
	// Listen is the address the proxy binds to
	Listen string `yaml:"listen" env:"LISTEN"`

	// Origin is the public origin pages are served from, e.g. "https://puntoylana.com"
	Origin string `yaml:"origin" env:"ORIGIN"`

	// Upstream is the storefront origin requests are forwarded to.
	// Empty means requests go to the URL they carry.
	Upstream string `yaml:"upstream,omitempty" env:"UPSTREAM"`

	// Version names the current cache; changing it replaces every older cache on activation
	Version string `yaml:"version" env:"VERSION"`

	CachePrefix    string   `yaml:"cache_prefix" env:"CACHE_PREFIX"`
	Precache       []string `yaml:"precache" env:"PRECACHE"`
	OfflineURL     string   `yaml:"offline_url" env:"OFFLINE_URL"`
	BypassPrefixes []string `yaml:"bypass_prefixes" env:"BYPASS_PREFIXES"`

	// MaxEntryBytes caps the size of a cached response body
	MaxEntryBytes int64 `yaml:"max_entry_bytes" env:"MAX_ENTRY_BYTES"`

	// WaitForSkipWaiting keeps a new version waiting until a page posts SKIP_WAITING
	WaitForSkipWaiting bool `yaml:"wait_for_skip_waiting,omitempty" env:"WAIT_FOR_SKIP_WAITING"`

	// ControlToken is the bearer token required by the event endpoints
	// (message, push, notificationclick). Empty restricts them to loopback peers.
	ControlToken string `yaml:"control_token,omitempty" env:"CONTROL_TOKEN"`

	PushThrottle ThrottleConfig `yaml:"push_throttle" envPrefix:"PUSH_THROTTLE_"`

	// InstallRetry is the first delay before retrying a failed startup install.
	// It doubles on each failure up to ten times its value.
	InstallRetry time.Duration `yaml:"install_retry" env:"INSTALL_RETRY"`

	Store         StoreConfig        `yaml:"store" envPrefix:"STORE_"`
	Notifications NotificationConfig `yaml:"notifications" envPrefix:"NOTIFICATIONS_"`

	// LogLevel is one of debug, info, warn, error
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
}

// ThrottleConfig limits how fast a single peer can post pushes.
type ThrottleConfig struct {
	Capacity     float64 `yaml:"capacity" env:"CAPACITY"`
	RefillPerSec float64 `yaml:"refill_per_sec" env:"REFILL_PER_SEC"`
}

// StoreConfig selects and configures the cache storage backend.
type StoreConfig struct {
	Backend string       `yaml:"backend" env:"BACKEND"`
	Redis   RedisConfig  `yaml:"redis,omitempty" envPrefix:"REDIS_"`
	SQLite  SQLiteConfig `yaml:"sqlite,omitempty" envPrefix:"SQLITE_"`
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password,omitempty" env:"PASSWORD"`
	DB       int    `yaml:"db,omitempty" env:"DB"`
	Prefix   string `yaml:"prefix,omitempty" env:"PREFIX"`
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

// NotificationConfig overrides notification defaults and adds external channels.
type NotificationConfig struct {
	Title string `yaml:"title,omitempty" env:"TITLE"`
	Body  string `yaml:"body,omitempty" env:"BODY"`
	Icon  string `yaml:"icon,omitempty" env:"ICON"`
	Badge string `yaml:"badge,omitempty" env:"BADGE"`

	// ShoutrrrURLs are service URLs (ntfy://, slack://, telegram://...) that also receive every push
	ShoutrrrURLs []string `yaml:"shoutrrr_urls,omitempty" env:"SHOUTRRR_URLS"`
}

// NewConfig creates a new Config with the storefront's defaults.
func NewConfig() *Config {
	return &Config{
		Listen:         ":8080",
		Origin:         "http://localhost:8080",
		Version:        core.DefaultVersion,
		CachePrefix:    core.DefaultCachePrefix,
		Precache:       append([]string(nil), core.DefaultPrecache...),
		OfflineURL:     core.DefaultOfflineURL,
		BypassPrefixes: []string{core.DefaultAPIPrefix},
		MaxEntryBytes:  10 << 20,
		PushThrottle: ThrottleConfig{
			Capacity:     10,
			RefillPerSec: 1.0 / 6,
		},
		InstallRetry: 5 * time.Second,
		Store: StoreConfig{
			Backend: BackendMemory,
		},
		LogLevel: "info",
	}
}

// LoadConfigFromFile loads configuration from a YAML file on top of the defaults.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrInvalidConfig, err)
	}

	config := NewConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %v", ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadConfig reads path (if not empty), applies OFFLINECACHE_* environment
// overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	config := NewConfig()
	if path != "" {
		loaded, err := LoadConfigFromFile(path)
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	if err := config.ApplyEnv(nil); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overrides fields from environment variables. A nil environ reads
// the process environment.
func (c *Config) ApplyEnv(environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(c, opts); err != nil {
		return fmt.Errorf("%w: environment: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Version == "" {
		return ErrMissingVersion
	}

	if _, err := c.OriginURL(); err != nil {
		return err
	}

	if c.Upstream != "" {
		u, err := url.Parse(c.Upstream)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: upstream %q must be an absolute URL", ErrInvalidConfig, c.Upstream)
		}
	}

	if c.MaxEntryBytes < 0 {
		return fmt.Errorf("%w: max_entry_bytes cannot be negative", ErrInvalidConfig)
	}

	for _, p := range c.BypassPrefixes {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%w: bypass prefix %q must start with /", ErrInvalidConfig, p)
		}
	}

	if c.PushThrottle.Capacity < 1 || c.PushThrottle.RefillPerSec <= 0 {
		return fmt.Errorf("%w: push_throttle needs capacity >= 1 and refill_per_sec > 0", ErrInvalidConfig)
	}

	if c.InstallRetry <= 0 {
		return fmt.Errorf("%w: install_retry must be positive", ErrInvalidConfig)
	}

	switch c.Store.Backend {
	case "", BackendMemory:
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("%w: store.redis.addr is required", ErrInvalidConfig)
		}
	case BackendSQLite:
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("%w: store.sqlite.path is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Store.Backend)
	}

	if _, err := c.Level(); err != nil {
		return err
	}

	return nil
}

// OriginURL parses Origin.
func (c *Config) OriginURL() (*url.URL, error) {
	u, err := url.Parse(c.Origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOrigin, c.Origin)
	}
	return u, nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	return level, nil
}

// NotificationDefaults merges the configured overrides into the storefront defaults.
func (c *Config) NotificationDefaults() core.NotificationDefaults {
	d := core.DefaultNotificationDefaults()
	if c.Notifications.Title != "" {
		d.Title = c.Notifications.Title
	}
	if c.Notifications.Body != "" {
		d.Body = c.Notifications.Body
	}
	if c.Notifications.Icon != "" {
		d.Icon = c.Notifications.Icon
	}
	if c.Notifications.Badge != "" {
		d.Badge = c.Notifications.Badge
	}
	return d
}
