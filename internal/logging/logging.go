// Package logging constructs the process-wide structured logger.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger returns a JSON slog logger tagged with the service name.
// In stdio mode the caller must hand in stderr so log lines do not
// interleave with the MCP protocol stream.
func NewLogger(w io.Writer, service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler).With("service", service)
}

func parseLevel(level string) slog.Level {
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
