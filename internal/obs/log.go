package obs

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	loggerOnce sync.Once
	logger     *slog.Logger
)

// Logger returns the shared structured JSON logger used across the service.
func Logger() *slog.Logger {
	loggerOnce.Do(func() {
		logger = NewLogger(os.Getenv("BIOVAULT_LOG_LEVEL"), os.Stdout)
	})
	return logger
}

// NewLogger builds a JSON slog logger with the given level name.
func NewLogger(level string, out io.Writer) *slog.Logger {
	if out == nil {
		out = os.Stdout
	}
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl}))
}

// SetLogger replaces the shared logger. Intended for tests.
func SetLogger(l *slog.Logger) {
	loggerOnce.Do(func() {})
	logger = l
}
