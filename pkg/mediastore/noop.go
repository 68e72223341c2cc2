package mediastore

import (
	"context"
	"log/slog"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) ObjectCreated(ctx context.Context, obj *Object) error { return nil }
func (n *NoopEventSink) ObjectUpdated(ctx context.Context, obj *Object) error { return nil }
func (n *NoopEventSink) ObjectDeleted(ctx context.Context, obj *Object) error { return nil }

// LogEventSink writes every event to a slog.Logger at info level.
// Useful for development and for the operator CLI.
type LogEventSink struct {
	logger *slog.Logger
}

// NewLogEventSink creates an event sink logging to logger (slog.Default when nil).
func NewLogEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEventSink{logger: logger}
}

func (l *LogEventSink) ObjectCreated(ctx context.Context, obj *Object) error {
	l.logger.InfoContext(ctx, "object created", "name", obj.Name, "content_type", obj.ContentType, "size", obj.SizeBytes)
	return nil
}

func (l *LogEventSink) ObjectUpdated(ctx context.Context, obj *Object) error {
	l.logger.InfoContext(ctx, "object updated", "name", obj.Name, "content_type", obj.ContentType, "size", obj.SizeBytes)
	return nil
}

func (l *LogEventSink) ObjectDeleted(ctx context.Context, obj *Object) error {
	l.logger.InfoContext(ctx, "object deleted", "name", obj.Name, "blob_ref", obj.BlobRef)
	return nil
}
