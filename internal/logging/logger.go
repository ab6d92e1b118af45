// Package logging builds the process-wide structured logger.
package logging

import (
	"anonchat/backend/internal/config"
	"io"
	"log/slog"
	"os"
	"strings"
)

// New creates a logger from cfg, writing to stdout, and installs it as the
// slog default.
func New(cfg *config.Config) *slog.Logger {
	logger := NewWithWriter(os.Stdout, cfg.Logger.Level, cfg.Logger.Format).With(
		slog.String("service", cfg.Service.Name),
		slog.String("env", cfg.Service.Env),
		slog.Int("pid", os.Getpid()),
	)
	slog.SetDefault(logger)
	return logger
}

func NewWithWriter(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: true,
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
