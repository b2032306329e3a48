package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps the accepted LOG_LEVEL spellings to a slog level.
// Unknown values fall back to errors only.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Init installs the default logger. An empty level reads LOG_LEVEL from the
// environment; a nil writer means stderr.
func Init(level string, w io.Writer) *slog.Logger {
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	if w == nil {
		w = os.Stderr
	}

	logger := slog.New(
		slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: ParseLevel(level),
		}),
	)
	slog.SetDefault(logger)
	return logger
}
