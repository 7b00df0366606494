package logging

import (
	"log/slog"
	"os"
)

// NewStdoutHandler returns the JSON handler used at boot and again as one
// branch of the fan-out once the DB handler is attached.
func NewStdoutHandler() slog.Handler {
	return slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
}

// Setup installs the global slog logger with JSON output to stdout.
func Setup() {
	slog.SetDefault(slog.New(NewStdoutHandler()))
}
