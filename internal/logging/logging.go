// Package logging constructs the structured logger shared by the driver
// commands under cmd/. Grounded on bobbydeveaux-starbucks-mugs's
// cmd/server/main.go newLogger: a JSON handler over stderr, level selected
// by a single flag, installed once at process start and threaded down via
// constructor arguments rather than a package-level global.
package logging

import (
	"log/slog"
	"os"
)

// New builds a *slog.Logger writing JSON records to stderr at level. level
// is one of "debug", "info", "warn", "error"; anything else is treated as
// "info".
func New(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// Component returns a child logger carrying a fixed "component" field, so
// log lines from the parser, the replay engine, and the control client are
// distinguishable without each one re-stating its origin.
func Component(base *slog.Logger, name string) *slog.Logger {
	return base.With(slog.String("component", name))
}
