// Package logger builds the two loggers the service uses: slog for the HTTP
// layer and process lifecycle, zap for domain services. Both read one Config
// so level, format and the service tag always agree.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger wraps slog.Logger for the HTTP layer and process lifecycle.
type Logger struct {
	*slog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level   string // debug, info, warn, error
	Format  string // json, text
	Service string // added as "service" to every line when set
	Output  io.Writer
}

// DefaultConfig returns default logger configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "json",
		Output: os.Stdout,
	}
}

// New creates a slog-backed Logger.
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if isText(cfg.Format) {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	l := slog.New(handler)
	if cfg.Service != "" {
		l = l.With(slog.String(serviceKey, cfg.Service))
	}
	return &Logger{Logger: l}
}

// With returns a new Logger with the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

const serviceKey = "service"

// parseLevel maps a config level to slog. Unknown values mean info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

func isText(format string) bool {
	return strings.EqualFold(format, "text")
}

// --- Field helpers shared by middleware and commands ---

// AccountID is the account id attribute. Domain zap logs use the same key.
func AccountID(id int64) slog.Attr {
	return slog.Int64("account_id", id)
}

// RequestID is the request id attribute.
func RequestID(id string) slog.Attr {
	return slog.String("request_id", id)
}

// Err is the error attribute.
func Err(err error) slog.Attr {
	return slog.Any("error", err)
}

// Duration is a duration attribute.
func Duration(key string, d time.Duration) slog.Attr {
	return slog.Duration(key, d)
}
