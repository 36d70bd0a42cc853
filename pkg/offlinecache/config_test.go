package offlinecache

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestNewConfig(t *testing.T) {
	config := NewConfig()

	if config == nil {
		t.Fatal("NewConfig() returned nil")
	}

	// Check defaults
	if config.Version != "v1" {
		t.Errorf("Version = %s, want v1", config.Version)
	}
	if config.CachePrefix != "puntoylana-" {
		t.Errorf("CachePrefix = %s, want puntoylana-", config.CachePrefix)
	}
	want := []string{"/", "/index.html", "/manifest.json", "/offline.html"}
	if !reflect.DeepEqual(config.Precache, want) {
		t.Errorf("Precache = %v, want %v", config.Precache, want)
	}
	if config.OfflineURL != "/offline.html" {
		t.Errorf("OfflineURL = %s, want /offline.html", config.OfflineURL)
	}
	if !reflect.DeepEqual(config.BypassPrefixes, []string{"/api/"}) {
		t.Errorf("BypassPrefixes = %v, want [/api/]", config.BypassPrefixes)
	}
	if config.Store.Backend != BackendMemory {
		t.Errorf("Store.Backend = %s, want memory", config.Store.Backend)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		errType error
	}{
		{"valid", func(c *Config) {}, nil},
		{"empty version", func(c *Config) { c.Version = "" }, ErrMissingVersion},
		{"relative origin", func(c *Config) { c.Origin = "/tienda" }, ErrInvalidOrigin},
		{"relative upstream", func(c *Config) { c.Upstream = "backend:8080" }, ErrInvalidConfig},
		{"negative max entry", func(c *Config) { c.MaxEntryBytes = -1 }, ErrInvalidConfig},
		{"bad bypass prefix", func(c *Config) { c.BypassPrefixes = []string{"api/"} }, ErrInvalidConfig},
		{"unknown backend", func(c *Config) { c.Store.Backend = "mongo" }, ErrUnknownBackend},
		{"redis without addr", func(c *Config) { c.Store.Backend = BackendRedis }, ErrInvalidConfig},
		{"sqlite without path", func(c *Config) { c.Store.Backend = BackendSQLite }, ErrInvalidConfig},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, ErrInvalidConfig},
		{"zero push capacity", func(c *Config) { c.PushThrottle.Capacity = 0 }, ErrInvalidConfig},
		{"no push refill", func(c *Config) { c.PushThrottle.RefillPerSec = 0 }, ErrInvalidConfig},
		{"zero install retry", func(c *Config) { c.InstallRetry = 0 }, ErrInvalidConfig},
		{"redis with addr", func(c *Config) {
			c.Store.Backend = BackendRedis
			c.Store.Redis.Addr = "localhost:6379"
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.errType == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.errType) {
				t.Errorf("Validate() error = %v, want %v", err, tt.errType)
			}
		})
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "offlinecache.yaml")

	yamlContent := `
origin: https://puntoylana.com
upstream: http://storefront:8080
version: v7
bypass_prefixes:
  - /api/
  - /admin/
store:
  backend: sqlite
  sqlite:
    path: /var/lib/offlinecache/cache.db
notifications:
  title: Punto y Lana Tienda
  shoutrrr_urls:
    - ntfy://ntfy.sh/puntoylana
log_level: debug
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	config, err := LoadConfigFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadConfigFromFile() error = %v", err)
	}

	if config.Version != "v7" {
		t.Errorf("Version = %s, want v7", config.Version)
	}
	if config.Upstream != "http://storefront:8080" {
		t.Errorf("Upstream = %s", config.Upstream)
	}
	if len(config.BypassPrefixes) != 2 {
		t.Errorf("BypassPrefixes = %v", config.BypassPrefixes)
	}
	if config.Store.SQLite.Path != "/var/lib/offlinecache/cache.db" {
		t.Errorf("Store.SQLite.Path = %s", config.Store.SQLite.Path)
	}
	if config.OfflineURL != "/offline.html" {
		t.Errorf("OfflineURL default lost: %s", config.OfflineURL)
	}
	if len(config.Notifications.ShoutrrrURLs) != 1 {
		t.Errorf("ShoutrrrURLs = %v", config.Notifications.ShoutrrrURLs)
	}

	level, _ := config.Level()
	if level != slog.LevelDebug {
		t.Errorf("Level = %v, want debug", level)
	}

	d := config.NotificationDefaults()
	if d.Title != "Punto y Lana Tienda" {
		t.Errorf("NotificationDefaults().Title = %s", d.Title)
	}
	if d.Body != "¡Tienes una notificación!" {
		t.Errorf("NotificationDefaults().Body = %s", d.Body)
	}
}

func TestLoadConfigFromFile_Errors(t *testing.T) {
	if _, err := LoadConfigFromFile("/nonexistent/offlinecache.yaml"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("missing file: error = %v, want ErrInvalidConfig", err)
	}

	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(configPath, []byte("version: [unclosed"), 0644)
	if _, err := LoadConfigFromFile(configPath); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("bad yaml: error = %v, want ErrInvalidConfig", err)
	}
}

func TestConfig_ApplyEnv(t *testing.T) {
	config := NewConfig()

	err := config.ApplyEnv(map[string]string{
		"OFFLINECACHE_VERSION":                     "v9",
		"OFFLINECACHE_ORIGIN":                      "https://puntoylana.com",
		"OFFLINECACHE_BYPASS_PREFIXES":             "/api/,/webhooks/",
		"OFFLINECACHE_STORE_BACKEND":               "redis",
		"OFFLINECACHE_STORE_REDIS_ADDR":            "redis:6379",
		"OFFLINECACHE_STORE_REDIS_DB":              "2",
		"OFFLINECACHE_NOTIFICATIONS_SHOUTRRR_URLS": "ntfy://a/b,slack://x",
		"OFFLINECACHE_WAIT_FOR_SKIP_WAITING":       "true",
		"OFFLINECACHE_CONTROL_TOKEN":               "s3cret",
		"OFFLINECACHE_PUSH_THROTTLE_CAPACITY":      "3",
		"OFFLINECACHE_INSTALL_RETRY":               "30s",
		"UNRELATED":                                "ignored",
	})
	if err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}

	if config.Version != "v9" {
		t.Errorf("Version = %s, want v9", config.Version)
	}
	if !reflect.DeepEqual(config.BypassPrefixes, []string{"/api/", "/webhooks/"}) {
		t.Errorf("BypassPrefixes = %v", config.BypassPrefixes)
	}
	if config.Store.Backend != BackendRedis || config.Store.Redis.Addr != "redis:6379" || config.Store.Redis.DB != 2 {
		t.Errorf("Store = %+v", config.Store)
	}
	if len(config.Notifications.ShoutrrrURLs) != 2 {
		t.Errorf("ShoutrrrURLs = %v", config.Notifications.ShoutrrrURLs)
	}
	if !config.WaitForSkipWaiting {
		t.Error("WaitForSkipWaiting = false, want true")
	}

	if config.ControlToken != "s3cret" {
		t.Errorf("ControlToken = %q", config.ControlToken)
	}
	if config.PushThrottle.Capacity != 3 || config.PushThrottle.RefillPerSec != 1.0/6 {
		t.Errorf("PushThrottle = %+v", config.PushThrottle)
	}
	if config.InstallRetry != 30*time.Second {
		t.Errorf("InstallRetry = %v, want 30s", config.InstallRetry)
	}

	// Untouched fields keep their defaults
	if config.OfflineURL != "/offline.html" {
		t.Errorf("OfflineURL = %s", config.OfflineURL)
	}
}

func TestConfig_ApplyEnvBadValue(t *testing.T) {
	config := NewConfig()
	err := config.ApplyEnv(map[string]string{"OFFLINECACHE_MAX_ENTRY_BYTES": "lots"})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("ApplyEnv() error = %v, want ErrInvalidConfig", err)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "offlinecache.yaml")
	os.WriteFile(configPath, []byte("version: v2\norigin: https://puntoylana.com\n"), 0644)

	t.Setenv("OFFLINECACHE_VERSION", "v3")

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if config.Version != "v3" {
		t.Errorf("Version = %s, want v3", config.Version)
	}
	if config.Origin != "https://puntoylana.com" {
		t.Errorf("Origin = %s", config.Origin)
	}
}
