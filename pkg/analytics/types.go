package analytics

import (
	"encoding/json"
	"strconv"
)

// EventType identifies what a raw telemetry event recorded
type EventType string

const (
	EventPageView   EventType = "page_view"
	EventScroll     EventType = "scroll"
	EventCTAClick   EventType = "cta_click"
	EventFormStart  EventType = "form_start"
	EventFieldFocus EventType = "field_focus"
	EventFieldError EventType = "field_error"
	EventFormSubmit EventType = "form_submit"
	EventPageUnload EventType = "page_unload"
)

// RawTelemetryEvent is a single client-side interaction. Events are immutable
// once recorded.
type RawTelemetryEvent struct {
	ID         string                 `json:"id"`
	Timestamp  int64                  `json:"timestamp"` // epoch milliseconds
	EventType  EventType              `json:"event_type"`
	SessionID  string                 `json:"session_id"`
	UserID     string                 `json:"user_id,omitempty"`
	City       string                 `json:"city,omitempty"`
	Offence    string                 `json:"offence,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	IPAddress  string                 `json:"ip_address,omitempty"`
	UserAgent  string                 `json:"user_agent,omitempty"`
}

// NumberProperty returns a numeric property. Numeric strings are accepted
// since some clients stringify everything.
func (e RawTelemetryEvent) NumberProperty(name string) (float64, bool) {
	raw, ok := e.Properties[name]
	if !ok || raw == nil {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// StringProperty returns a non-empty string property
func (e RawTelemetryEvent) StringProperty(name string) (string, bool) {
	s, ok := e.Properties[name].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// SessionMetrics summarizes visitor sessions for a day
type SessionMetrics struct {
	Total              int     `json:"total"`
	Unique             int     `json:"unique"`
	BounceRate         float64 `json:"bounce_rate"`
	AvgSessionDuration float64 `json:"avg_session_duration"` // milliseconds
}

// EngagementMetrics summarizes on-page engagement. The scroll fields are
// counts of scroll events past each depth, not percentages.
type EngagementMetrics struct {
	Scroll50Pct  int     `json:"scroll_50_pct"`
	Scroll75Pct  int     `json:"scroll_75_pct"`
	AvgDwellTime float64 `json:"avg_dwell_time"`
	PageViews    int     `json:"page_views"`
}

// CTAPerformance summarizes call-to-action clicks
type CTAPerformance struct {
	TotalClicks    int     `json:"total_clicks"`
	UniqueClicks   int     `json:"unique_clicks"`
	CTR            float64 `json:"ctr"`
	ConversionRate float64 `json:"conversion_rate"`
}

// FormMetrics summarizes the lead form funnel
type FormMetrics struct {
	Starts            int            `json:"starts"`
	Completions       int            `json:"completions"`
	CompletionRate    float64        `json:"completion_rate"`
	AvgCompletionTime float64        `json:"avg_completion_time"` // milliseconds
	DropoutPoints     map[string]int `json:"dropout_points"`
}

// CityStats is one bucket of the per-city breakdown
type CityStats struct {
	Sessions        int     `json:"sessions"`
	CTAClicks       int     `json:"cta_clicks"`
	FormCompletions int     `json:"form_completions"`
	CTR             float64 `json:"ctr"`
}

// OffenceStats is one bucket of the per-offence breakdown
type OffenceStats struct {
	Sessions        int `json:"sessions"`
	CTAClicks       int `json:"cta_clicks"`
	FormCompletions int `json:"form_completions"`
}

// DailyMetrics is the persisted summary of one calendar day
type DailyMetrics struct {
	Date             string                  `json:"date"`
	Sessions         SessionMetrics          `json:"sessions"`
	Engagement       EngagementMetrics       `json:"engagement"`
	CTAPerformance   CTAPerformance          `json:"cta_performance"`
	FormMetrics      FormMetrics             `json:"form_metrics"`
	CityBreakdown    map[string]CityStats    `json:"city_breakdown"`
	OffenceBreakdown map[string]OffenceStats `json:"offence_breakdown"`
	PerformanceScore int                     `json:"performance_score"`
	AlertsTriggered  int                     `json:"alerts_triggered"`
}

// ScrollEngagementRate is the share of sessions reaching half-page depth
func (m *DailyMetrics) ScrollEngagementRate() float64 {
	return float64(m.Engagement.Scroll50Pct) / float64(max(m.Sessions.Total, 1))
}

// Severity grades anomalies and alerts
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// TrendMetrics holds oldest-to-newest percentage changes
type TrendMetrics struct {
	SessionsTrend       float64 `json:"sessions_trend"`
	CTACTRTrend         float64 `json:"cta_ctr_trend"`
	FormCompletionTrend float64 `json:"form_completion_trend"`
	EngagementTrend     float64 `json:"engagement_trend"`
}

// Anomaly flags a day whose rate deviates from the window mean
type Anomaly struct {
	Metric    string   `json:"metric"`
	Date      string   `json:"date"`
	Deviation float64  `json:"deviation"`
	Severity  Severity `json:"severity"`
}

// TrendAnalysis is a multi-day report computed on demand. It is never persisted.
type TrendAnalysis struct {
	Period          string       `json:"period"`
	Metrics         TrendMetrics `json:"metrics"`
	Insights        []string     `json:"insights"`
	Recommendations []string     `json:"recommendations"`
	Anomalies       []Anomaly    `json:"anomalies"`
}
