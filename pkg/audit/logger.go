package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/platinummonkey/aegis/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *Event) error

	// Close closes the logger and flushes any buffered logs
	Close() error
}

// NewEvent creates an event with the timestamp, actor and request id populated
// from the context.
func NewEvent(ctx context.Context, eventType EventType, status EventStatus) *Event {
	event := &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		RequestID: contextkeys.GetRequestID(ctx),
	}
	if actorID, ok := contextkeys.PrincipalID(ctx); ok {
		event.ActorID = &actorID
	}
	return event
}

// LogMutation logs a successful grant or entity mutation.
func LogMutation(ctx context.Context, logger Logger, eventType EventType, resourceType ResourceType, resourceID, message string) error {
	if logger == nil {
		return nil
	}
	event := NewEvent(ctx, eventType, EventStatusSuccess)
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = message
	return logger.Log(ctx, event)
}

// LogDenied logs a denied authorization decision.
func LogDenied(ctx context.Context, logger Logger, resourceType ResourceType, resourceID, reason string) error {
	if logger == nil {
		return nil
	}
	event := NewEvent(ctx, EventTypeAuthzAccessDenied, EventStatusDenied)
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = reason
	return logger.Log(ctx, event)
}

// SlogLogger writes audit events as structured log records. Events share the
// application log stream; a dedicated sink can implement Logger instead when
// retention requirements differ.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates an audit logger backed by the given slog logger.
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{logger: logger}
}

// Log writes the event as a single structured record.
func (l *SlogLogger) Log(ctx context.Context, event *Event) error {
	attrs := []slog.Attr{
		slog.Time("timestamp", event.Timestamp),
		slog.String("event_type", string(event.EventType)),
		slog.String("status", string(event.Status)),
	}
	if event.ActorID != nil {
		attrs = append(attrs, slog.Int64("actor_id", *event.ActorID))
	}
	if event.ResourceType != "" {
		attrs = append(attrs, slog.String("resource_type", string(event.ResourceType)))
	}
	if event.ResourceID != "" {
		attrs = append(attrs, slog.String("resource_id", event.ResourceID))
	}
	if event.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", event.RequestID))
	}
	if event.Method != "" {
		attrs = append(attrs, slog.String("method", event.Method))
	}
	if event.Path != "" {
		attrs = append(attrs, slog.String("path", event.Path))
	}
	if event.ErrorMessage != "" {
		attrs = append(attrs, slog.String("error", event.ErrorMessage))
	}
	l.logger.LogAttrs(ctx, slog.LevelInfo, event.Message, attrs...)
	return nil
}

// Close is a no-op; slog handlers flush synchronously.
func (l *SlogLogger) Close() error {
	return nil
}

// NopLogger discards all events (used when audit logging is disabled)
type NopLogger struct{}

// Log discards the event.
func (NopLogger) Log(ctx context.Context, event *Event) error { return nil }

// Close does nothing.
func (NopLogger) Close() error { return nil }
