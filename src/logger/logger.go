package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

var L *slog.Logger // Global logger instance

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// InitLogger initializes the global logger.
// Call this once at application startup, after loading config.
func InitLogger(logLevelStr string) {
	L = New(os.Stdout, logLevelStr)
	slog.SetDefault(L)
	L.Info("Logger initialized", "level", ParseLevel(logLevelStr).String())
}

// New builds a JSON logger writing to w at the given level.
func New(w io.Writer, logLevelStr string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(logLevelStr),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				// Format time as RFC3339 for better machine readability
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339))
				}
			}
			return a
		},
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ParseLevel maps a LOG_LEVEL string to a slog level, defaulting to INFO.
func ParseLevel(logLevelStr string) slog.Level {
	switch strings.ToLower(logLevelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		slog.Warn("Invalid LOG_LEVEL specified, defaulting to INFO", "configuredLevel", logLevelStr)
		return slog.LevelInfo
	}
}

// Get returns the global logger, or a discarding logger when InitLogger has
// not run yet (tests, library use).
func Get() *slog.Logger {
	if L == nil {
		return discard
	}
	return L
}

type contextKey string

const loggerKey = contextKey("logger")

// WithContext stores a request-scoped logger in ctx.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext retrieves a logger from context, or returns the global logger.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
			return l
		}
	}
	return Get()
}
