// Package logging provides the shared structured logger.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New creates a JSON slog logger writing to stderr.
// The level is taken from the LOG_LEVEL environment variable
// (DEBUG, INFO, WARN, ERROR); unset or unknown values mean INFO.
func New() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	}

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}
