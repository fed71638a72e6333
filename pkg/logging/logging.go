// Package logging builds the slog logger shared by every command.
package logging

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// ParseLevel maps a config level name to a slog level. Unknown names mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// Level resolves the effective level; --quiet beats --debug beats config.
func Level(quiet, debug bool, configured string) slog.Level {
	switch {
	case quiet:
		return slog.LevelError
	case debug:
		return slog.LevelDebug
	default:
		return ParseLevel(configured)
	}
}

// New returns a JSON logger, or a colored text logger when format is "text".
func New(w io.Writer, format string, level slog.Level) *slog.Logger {
	if strings.EqualFold(format, "text") {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.RFC3339,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
