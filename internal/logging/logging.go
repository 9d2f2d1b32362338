package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	glog "github.com/labstack/gommon/log"
)

// Init installs the process-wide slog logger on stderr.
// JSON output is meant for log collectors, text output for a terminal.
func Init(json bool, level slog.Level) {
	slog.SetDefault(New(os.Stderr, json, level))
}

// New builds a logger writing to w.
func New(w io.Writer, json bool, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel converts a string ("debug", "info", "warn", "error") to slog.Level.
// Unknown strings default to LevelInfo.
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

// EchoLevel maps an slog level onto the gommon level used by echo's internal logger.
func EchoLevel(level slog.Level) glog.Lvl {
	switch {
	case level <= slog.LevelDebug:
		return glog.DEBUG
	case level <= slog.LevelInfo:
		return glog.INFO
	case level <= slog.LevelWarn:
		return glog.WARN
	default:
		return glog.ERROR
	}
}
