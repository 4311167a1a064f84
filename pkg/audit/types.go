package audit

import (
	"net/http"
	"time"
)

// EventType identifies the admin action being audited
type EventType string

const (
	EventTypeAggregate        EventType = "metrics.aggregate"
	EventTypeMetricsRead      EventType = "metrics.read"
	EventTypeTrendsRead       EventType = "metrics.trends"
	EventTypeExport           EventType = "metrics.export"
	EventTypeAlertsRead       EventType = "alerts.read"
	EventTypeAlertAcknowledge EventType = "alerts.acknowledge"
)

// EventStatus is the outcome of an audited call
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// StatusFor maps an HTTP status code to an event status
func StatusFor(code int) EventStatus {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return EventStatusDenied
	case code >= 400:
		return EventStatusFailure
	default:
		return EventStatusSuccess
	}
}

// Event represents a single audit log entry
type Event struct {
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Subject is the verified admin identity; empty when authentication failed
	Subject    string `json:"subject,omitempty"`
	ResourceID string `json:"resource_id,omitempty"`

	// Request context
	IPAddress  string `json:"ip_address,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	Method     string `json:"method,omitempty"`
	Path       string `json:"path,omitempty"`
	Query      string `json:"query,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	DurationMS int64  `json:"duration_ms"`

	Message string `json:"message,omitempty"`
}
