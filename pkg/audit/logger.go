package audit

import (
	"context"
)

// Logger is the sink for audit records. Callers treat logging as
// fire-and-forget: a failed write must never fail the operation that
// produced the record.
type Logger interface {
	// Log writes one audit record.
	Log(ctx context.Context, record *Record) error

	// Close flushes and releases the sink.
	Close() error
}

type contextKey string

const loggerKey contextKey = "audit_logger"

// WithLogger adds an audit logger to the context.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the audit logger from context, falling back to a
// no-op logger when none is set.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerKey).(Logger); ok {
		return logger
	}
	return NopLogger{}
}

// NopLogger discards all records.
type NopLogger struct{}

func (NopLogger) Log(ctx context.Context, record *Record) error { return nil }

func (NopLogger) Close() error { return nil }
