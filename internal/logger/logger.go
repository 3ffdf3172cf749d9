// Package logger configures the process-wide slog logger.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// L is the shared logger. Init must be called before use; it defaults to
// an info-level text handler otherwise.
var L = slog.New(slog.NewTextHandler(os.Stderr, nil))

// Init builds the shared logger from the configured level and format
// ("text" or "json") and installs it as the slog default.
func Init(level, format string) {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	L = slog.New(handler)
	slog.SetDefault(L)
}
