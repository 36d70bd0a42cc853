// Package offlinecache keeps the Punto y Lana storefront usable when its
// origin is unreachable.
//
// It runs a versioned cache worker in front of the storefront: pages and
// assets are fetched network-first and copied into a named cache, and when
// the network fails the cached copy, the offline page or a plain 503 is
// served instead. API traffic under /api/ always goes to the network.
//
// # Quick Start
//
//	svc, err := offlinecache.New(
//	    offlinecache.WithConfigFile("offlinecache.yaml"),
//	    offlinecache.WithLogger(slog.Default()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//
//	if err := svc.Start(ctx); err != nil {
//	    log.Fatal(err) // the precache manifest could not be stored
//	}
//
//	http.ListenAndServe(":8080", svc.Handler(nil))
//
// Start installs the configured version: every precache URL must answer 2xx
// and be stored, otherwise nothing is kept. Activation then deletes every
// cache whose name differs from the current one. StartInBackground does the
// same without blocking and keeps retrying while the storefront is down.
//
// # Configuration
//
// Example YAML configuration:
//
//	origin: https://puntoylana.com
//	upstream: http://storefront:8080
//	version: v2
//	precache: ["/", "/index.html", "/manifest.json", "/offline.html"]
//	offline_url: /offline.html
//	bypass_prefixes: ["/api/"]
//	control_token: change-me
//	push_throttle:
//	  capacity: 10
//	  refill_per_sec: 0.1667
//
//	store:
//	  backend: redis        # memory, redis or sqlite
//	  redis:
//	    addr: localhost:6379
//
//	notifications:
//	  title: Punto y Lana
//	  shoutrrr_urls:
//	    - ntfy://ntfy.sh/puntoylana
//
// Every field can be overridden from the environment with the OFFLINECACHE_
// prefix, e.g. OFFLINECACHE_VERSION=v3 or OFFLINECACHE_STORE_REDIS_ADDR.
//
// # Pages and Notifications
//
// Pages connect to /_sw/clients over a WebSocket. The worker uses those
// connections to focus or open windows when a notification is clicked and
// to claim pages on activation. Pushes are posted to /_sw/push; the raw
// body is the push payload. A click only ever focuses or opens a URL on the
// storefront origin.
//
// The event endpoints (message, push and notificationclick) require
// "Authorization: Bearer <control_token>". Without a token they only accept
// loopback peers. Pushes are also throttled per sender.
//
// # Updates
//
// Deploy registers a new version. With wait_for_skip_waiting set, the new
// version stays waiting until a page posts {"type":"SKIP_WAITING"} to
// /_sw/message.
package offlinecache
