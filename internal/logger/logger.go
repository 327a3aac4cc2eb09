// Package logger provides structured logging utilities for the application.
// It wraps log/slog with JSON formatting and supports context-based logging
// with request IDs, chat IDs and module names.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogbetterstack "github.com/samber/slog-betterstack"
)

// Logger is the application logger
type Logger struct {
	*slog.Logger
	async *AsyncHandler // remote shipping pipeline, nil when disabled
}

// Options configures optional log sinks.
type Options struct {
	// BetterStackToken enables remote log shipping when non-empty.
	BetterStackToken string
	// BetterStackEndpoint overrides the ingesting host.
	BetterStackEndpoint string
	// Async tunes the remote shipping buffer.
	Async AsyncOptions
}

// New creates a new logger instance with JSON formatting
func New(level string) *Logger {
	return NewWithWriter(level, os.Stdout)
}

// NewWithWriter creates a new logger instance with JSON formatting writing to the provided writer
func NewWithWriter(level string, w io.Writer) *Logger {
	return NewWithOptions(level, w, Options{})
}

// NewWithOptions creates a logger writing JSON to w and, when a Better Stack
// token is configured, shipping the same records asynchronously.
// Context values from ctxutil are attached to every record.
func NewWithOptions(level string, w io.Writer, opts Options) *Logger {
	logLevel := ParseLevel(level)

	var handler slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       logLevel,
		ReplaceAttr: replaceAttr,
	})

	var async *AsyncHandler
	if opts.BetterStackToken != "" {
		remote := slogbetterstack.Option{
			Level:    logLevel,
			Token:    opts.BetterStackToken,
			Endpoint: opts.BetterStackEndpoint,
		}.NewBetterstackHandler()
		async = NewAsyncHandler(remote, opts.Async)
		handler = NewMultiHandler(handler, async)
	}

	return &Logger{
		Logger: slog.New(NewContextHandler(handler)),
		async:  async,
	}
}

// ParseLevel maps a config string to a slog level. Unknown values are info.
func ParseLevel(level string) slog.Level {
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

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.TimeKey:
		a.Key = "timestamp"
	case slog.LevelKey:
		a.Key = "level"
		level := a.Value.String()
		if level == "WARN" {
			level = "warning"
		} else {
			level = strings.ToLower(level)
		}
		a.Value = slog.StringValue(level)
	case slog.MessageKey:
		a.Key = "message"
	}
	return a
}

func (l *Logger) derive(inner *slog.Logger) *Logger {
	return &Logger{Logger: inner, async: l.async}
}

// WithModule creates a new entry with module field
func (l *Logger) WithModule(module string) *Logger {
	return l.derive(l.With("module", module))
}

// WithRequestID creates a new entry with request ID field
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.derive(l.With("request_id", requestID))
}

// WithError creates a new entry with error field
func (l *Logger) WithError(err error) *Logger {
	return l.derive(l.With("error", err))
}

// WithField creates a new entry with a single field
func (l *Logger) WithField(key string, value any) *Logger {
	return l.derive(l.With(key, value))
}

// WithFields creates a new entry with multiple fields
func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return l.derive(l.With(args...))
}

// Shutdown flushes records still queued for remote shipping.
func (l *Logger) Shutdown(ctx context.Context) error {
	if l == nil || l.async == nil {
		return nil
	}
	return l.async.Shutdown(ctx)
}

// Infof logs a formatted message at info level.
func (l *Logger) Infof(format string, args ...any) {
	l.Info(fmt.Sprintf(format, args...))
}

// Warnf logs a formatted message at warn level.
func (l *Logger) Warnf(format string, args ...any) {
	l.Warn(fmt.Sprintf(format, args...))
}

// Errorf logs a formatted message at error level.
func (l *Logger) Errorf(format string, args ...any) {
	l.Error(fmt.Sprintf(format, args...))
}

// Debugf logs a formatted message at debug level.
func (l *Logger) Debugf(format string, args ...any) {
	l.Debug(fmt.Sprintf(format, args...))
}
