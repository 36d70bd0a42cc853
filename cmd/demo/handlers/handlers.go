package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/puntoylana/offlinecache/worker"
)

// ErrStorefrontDown is what the network reports while the demo storefront is switched off
var ErrStorefrontDown = errors.New("storefront unreachable")

// Response is a generic JSON response structure
type Response struct {
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Storefront is a small Punto y Lana shop served in-process.
// Switching it offline makes every network fetch fail.
type Storefront struct {
	offline atomic.Bool
	mux     *http.ServeMux
}

// NewStorefront builds the shop's pages and API
func NewStorefront() *Storefront {
	s := &Storefront{mux: http.NewServeMux()}
	s.mux.HandleFunc("/{$}", Home)
	s.mux.HandleFunc("/index.html", Home)
	s.mux.HandleFunc("/catalogo", Catalog)
	s.mux.HandleFunc("/offline.html", Offline)
	s.mux.HandleFunc("/manifest.json", Manifest)
	s.mux.HandleFunc("/icons/icon-192x192.png", Icon)
	s.mux.HandleFunc("/api/v1/orders", Orders)
	return s
}

// Fetch implements worker.Network
func (s *Storefront) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	if s.offline.Load() {
		return nil, ErrStorefrontDown
	}
	return worker.HandlerNetwork{Handler: s.mux}.Fetch(ctx, req)
}

// Offline reports whether the storefront is switched off
func (s *Storefront) Offline() bool {
	return s.offline.Load()
}

// Toggle handles POST /demo/toggle and flips the storefront on or off
func (s *Storefront) Toggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	offline := !s.offline.Load()
	s.offline.Store(offline)

	state := "online"
	if offline {
		state = "offline"
	}
	writeJSON(w, http.StatusOK, Response{
		Message:   "Storefront is now " + state,
		Data:      map[string]bool{"offline": offline},
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// Home serves the landing page
func Home(w http.ResponseWriter, r *http.Request) {
	page(w, "Punto y Lana", fmt.Sprintf(`<p>Lanas y agujas. Página generada a las %s.</p>
<p><a href="/catalogo">Ver catálogo</a></p>`, time.Now().Format("15:04:05")))
}

// Catalog serves the product list
func Catalog(w http.ResponseWriter, r *http.Request) {
	page(w, "Catálogo", `<ul>
<li>Merino 100g</li>
<li>Alpaca 50g</li>
<li>Agujas circulares 4mm</li>
</ul>`)
}

// Offline serves the page shown for uncached navigations while offline
func Offline(w http.ResponseWriter, r *http.Request) {
	page(w, "Sin conexión", `<p>No hay conexión. Vuelve a intentarlo en unos minutos.</p>`)
}

// Manifest serves the web app manifest
func Manifest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/manifest+json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":       "Punto y Lana",
		"short_name": "PuntoyLana",
		"start_url":  "/",
		"display":    "standalone",
		"icons": []map[string]string{
			{"src": "/icons/icon-192x192.png", "sizes": "192x192", "type": "image/png"},
		},
	})
}

// Icon serves a 1x1 PNG placeholder
func Icon(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	w.Write(pixel)
}

// Orders handles the order API, which is never served from the cache
func Orders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, Response{
			Message:   "Orders",
			Data:      []map[string]any{{"id": "1001", "items": 2}},
			Timestamp: time.Now().Format(time.RFC3339),
		})
	case http.MethodPost:
		writeJSON(w, http.StatusCreated, Response{
			Message:   "Order created",
			Data:      map[string]any{"id": "1002", "created": true},
			Timestamp: time.Now().Format(time.RFC3339),
		})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func page(w http.ResponseWriter, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="es">
<head><meta charset="UTF-8"><title>%s</title><link rel="manifest" href="/manifest.json"></head>
<body><h1>%s</h1>%s</body>
</html>`, title, title, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

var pixel = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0xf8, 0xcf, 0xc0, 0xf0,
	0x1f, 0x00, 0x05, 0x00, 0x01, 0xff, 0x89, 0x99, 0x3d, 0x1d, 0x00, 0x00,
	0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}
