package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

func Init() {
	slog.SetDefault(New(os.Stderr, os.Getenv("LOG_LEVEL")))
}

// New builds the text logger used across the CLI. The level name follows
// LOG_LEVEL; unknown or empty names fall back to errors only.
func New(w io.Writer, levelName string) *slog.Logger {
	return slog.New(
		slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: ParseLevel(levelName),
		}),
	)
}

func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	default:
		return slog.LevelError // default: production only shows errors
	}
}
