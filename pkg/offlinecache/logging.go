package offlinecache

import (
	"io"
	"log/slog"
)

// NewLogger creates a JSON logger at the configured level.
func NewLogger(w io.Writer, config *Config) *slog.Logger {
	level, err := config.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})).
		With("service", "offlinecache")
}
