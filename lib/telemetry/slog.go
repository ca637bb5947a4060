package telemetry

import (
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps LOG_LEVEL style values to slog levels, unknown values
// fall back to info.
func ParseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// InitSlog installs a text handler on stderr as the default logger. debug
// forces the debug level, otherwise LOG_LEVEL is honored.
func InitSlog(debug bool) {
	level := ParseLevel(os.Getenv("LOG_LEVEL"))
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	})
	slog.SetDefault(slog.New(handler))
}
