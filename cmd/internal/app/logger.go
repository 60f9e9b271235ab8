package app

import (
	"log/slog"
	"os"
	"strings"
)

// Logger is the app-wide logger type (slog).
type Logger = *slog.Logger

// NewLogger builds the process-wide JSON logger with a static service
// attribute so log lines from every subsystem aggregate under one
// label. It is also installed as slog's default so library code that
// logs through the default logger shares the same handler.
func NewLogger(level string) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     parseLogLevel(level),
		AddSource: true,
	})

	log := slog.New(h).With("service", "goldcoast")
	slog.SetDefault(log)
	return log
}

// parseLogLevel maps a level name to a slog level. Names are
// case-insensitive; unknown values fall back to info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
