// Package logger provides structured logging using Go 1.21's log/slog.
// It sets up a JSON handler with service-level context and helpers for
// per-session log scoping.
package logger

import (
	"log/slog"
	"os"
)

// Init creates and returns a structured logger for the given service.
// The logger outputs JSON to stdout with the service name embedded.
func Init(service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	// Set as default so log/slog.Info() etc. also use structured output
	slog.SetDefault(logger)

	return logger
}

// ForSession returns a logger scoped to one streaming session.
func ForSession(base *slog.Logger, symbol string) *slog.Logger {
	return base.With(slog.String("symbol", symbol))
}
