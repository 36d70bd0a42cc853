package middleware

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/puntoylana/offlinecache/core"
	"github.com/puntoylana/offlinecache/worker"
)

// NetworkHandler sends requests to the network unchanged. A failed round
// trip becomes a 502, the same failure the page would see without a worker.
func NetworkHandler(network worker.Network, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp, err := network.Fetch(r.Context(), r)
		if err != nil {
			logger.Debug("network request failed", "url", r.URL.String(), "error", err)
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		copyHeader(w.Header(), resp.Header)
		w.WriteHeader(resp.StatusCode)
		io.Copy(w, resp.Body)
	})
}

// copyHeader copies end-to-end headers from src into dst
func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	core.RemoveHopHeaders(dst)
}
