// Package observability provides structured logging for radiarr.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/m-mizutani/masq"

	"github.com/jmylchreest/radiarr/internal/config"
)

// contextKey is a type for context keys to avoid collisions.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// loggerKey is the context key for the logger.
	loggerKey contextKey = "logger"
)

// NewLogger creates a new slog.Logger based on the provided configuration.
// The logger supports JSON and text formats with configurable log levels.
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	return NewLoggerWithWriter(cfg, os.Stdout)
}

// NewLoggerWithWriter creates a new slog.Logger that writes to the provided writer.
// This is useful for testing or custom output destinations.
//
// Attributes carrying credentials are redacted: struct fields tagged
// masq:"secret" (the database DSN, for one) and anything named Password or
// Token never reach the log output.
func NewLoggerWithWriter(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	level := parseLevel(cfg.Level)

	redact := masq.New(
		masq.WithTag("secret"),
		masq.WithFieldName("Password"),
		masq.WithFieldName("Token"),
	)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && cfg.TimeFormat != "" {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(slog.TimeKey, t.Format(cfg.TimeFormat))
				}
			}
			return redact(groups, a)
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent adds a component name to the logger for identifying the source.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String("component", component))
}

// WithOperation adds an operation name to the logger for tracking specific operations.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String("operation", operation))
}

// WithRequestID adds a request ID to the logger.
func WithRequestID(logger *slog.Logger, requestID string) *slog.Logger {
	return logger.With(slog.String("request_id", requestID))
}

// WithError adds an error to the logger attributes.
func WithError(logger *slog.Logger, err error) *slog.Logger {
	if err == nil {
		return logger
	}
	return logger.With(slog.String("error", err.Error()))
}

// LoggerFromContext extracts a logger from the context.
// If no logger is found, returns the default logger.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// ContextWithLogger adds a logger to the context.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// RequestIDFromContext extracts a request ID from the context.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithRequestID adds a request ID to the context.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// SetDefault sets the provided logger as the default slog logger.
// This affects all code using slog.Info(), slog.Error(), etc. without a specific logger.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}

// TimedOperation logs the start and end of an operation with duration.
// Returns a function that should be deferred to log the completion.
//
// Usage:
//
//	done := observability.TimedOperation(ctx, logger, "probe_station")
//	defer done()
func TimedOperation(ctx context.Context, logger *slog.Logger, operation string) func() {
	start := time.Now()
	logger.DebugContext(ctx, "operation started", slog.String("operation", operation))

	return func() {
		logger.DebugContext(ctx, "operation completed",
			slog.String("operation", operation),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

// TimedOperationWithError is like TimedOperation but accepts an error pointer
// to determine success/failure status. The error pointer is required because
// the error value may be set after calling this function but before the
// returned done function is called.
//
// Usage:
//
//	var err error
//	done := observability.TimedOperationWithError(ctx, logger, "play", &err)
//	defer done()
//	err = doSomething()
func TimedOperationWithError(ctx context.Context, logger *slog.Logger, operation string, errPtr *error) func() {
	start := time.Now()
	logger.DebugContext(ctx, "operation started", slog.String("operation", operation))

	return func() {
		duration := time.Since(start)
		if errPtr != nil && *errPtr != nil {
			logger.ErrorContext(ctx, "operation failed",
				slog.String("operation", operation),
				slog.Duration("duration", duration),
				slog.String("error", (*errPtr).Error()),
			)
		} else {
			logger.DebugContext(ctx, "operation completed",
				slog.String("operation", operation),
				slog.Duration("duration", duration),
			)
		}
	}
}
