package logger

import (
	"log/slog"
	"os"
)

// New returns the process logger: JSON to stdout, debug level outside
// production so local runs show the full audit chatter.
func New(environment string) *slog.Logger {
	level := slog.LevelDebug
	if environment == "production" {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
