package audit

import (
	"context"
	"errors"

	"github.com/platinummonkey/funnelpulse/pkg/observability"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *Event) error

	// Close flushes and releases the logger
	Close() error
}

// LogLogger writes audit events to the structured application log
type LogLogger struct {
	logger *observability.Logger
}

// NewLogLogger creates a logger that writes through logger
func NewLogLogger(logger *observability.Logger) *LogLogger {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &LogLogger{logger: logger.WithComponent("audit")}
}

// Log writes the event as one info line
func (l *LogLogger) Log(_ context.Context, event *Event) error {
	fields := map[string]interface{}{
		"event_type":  string(event.EventType),
		"status":      string(event.Status),
		"method":      event.Method,
		"path":        event.Path,
		"status_code": event.StatusCode,
		"duration_ms": event.DurationMS,
		"ip_address":  event.IPAddress,
	}
	if event.Subject != "" {
		fields["subject"] = event.Subject
	}
	if event.ResourceID != "" {
		fields["resource_id"] = event.ResourceID
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	l.logger.WithFields(fields).Info("Audit event")
	return nil
}

// Close is a no-op
func (l *LogLogger) Close() error { return nil }

// MultiLogger logs to multiple audit loggers
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a logger that writes to every destination in order
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log writes to every logger, continuing past failures
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	var errs []error
	for _, logger := range m.loggers {
		if err := logger.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every logger
func (m *MultiLogger) Close() error {
	var errs []error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
