package analytics

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ev(eventType EventType, session string, ts int64) RawTelemetryEvent {
	return RawTelemetryEvent{EventType: eventType, SessionID: session, Timestamp: ts}
}

func withProps(e RawTelemetryEvent, props map[string]interface{}) RawTelemetryEvent {
	e.Properties = props
	return e
}

func TestComputeDailyMetrics_FormCompletion(t *testing.T) {
	events := []RawTelemetryEvent{
		ev(EventFormStart, "s1", 1000),
		ev(EventFormSubmit, "s1", 5000),
	}

	m := ComputeDailyMetrics("2025-03-14", events, DefaultAggregationConfig())

	assert.Equal(t, FormMetrics{
		Starts:            1,
		Completions:       1,
		CompletionRate:    1,
		AvgCompletionTime: 4000,
		DropoutPoints:     map[string]int{},
	}, m.FormMetrics)
}

func TestComputeDailyMetrics_CityBreakdown(t *testing.T) {
	view := ev(EventPageView, "s1", 1000)
	view.City = "Calgary"
	click := ev(EventCTAClick, "s2", 2000)
	click.City = "Calgary"
	other := ev(EventPageView, "s3", 3000)

	m := ComputeDailyMetrics("2025-03-14", []RawTelemetryEvent{view, click, other}, DefaultAggregationConfig())

	assert.Equal(t, CityStats{Sessions: 2, CTAClicks: 1, FormCompletions: 0, CTR: 0.5}, m.CityBreakdown["Calgary"])
	assert.Equal(t, CityStats{Sessions: 1}, m.CityBreakdown["Unknown"])
	assert.Equal(t, OffenceStats{Sessions: 3, CTAClicks: 1}, m.OffenceBreakdown["Unknown"])
}

func TestComputeDailyMetrics_Empty(t *testing.T) {
	m := ComputeDailyMetrics("2025-03-14", nil, DefaultAggregationConfig())

	assert.Equal(t, "2025-03-14", m.Date)
	assert.Zero(t, m.Sessions)
	assert.Zero(t, m.Engagement)
	assert.Zero(t, m.CTAPerformance)
	assert.Empty(t, m.FormMetrics.DropoutPoints)
	assert.Empty(t, m.CityBreakdown)
	assert.Empty(t, m.OffenceBreakdown)
	assert.Equal(t, 20, m.PerformanceScore)
	assert.Equal(t, 0, m.AlertsTriggered)
}

func TestFoldSessions(t *testing.T) {
	first := ev(EventPageView, "s1", 1000)
	first.UserID = "u1"
	second := ev(EventPageView, "s2", 0)
	second.UserID = "u1"

	events := []RawTelemetryEvent{
		first,
		ev(EventScroll, "s1", 3000),
		second,
		ev(EventPageView, "s2", 5000),
		ev(EventCTAClick, "s3", 100),
	}

	s := foldSessions(events)

	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Unique)
	assert.InDelta(t, 1.0/3.0, s.BounceRate, 1e-9)
	assert.InDelta(t, 7000.0/3.0, s.AvgSessionDuration, 1e-9)
}

func TestFoldEngagement(t *testing.T) {
	events := []RawTelemetryEvent{
		withProps(ev(EventScroll, "s1", 1), map[string]interface{}{"percentage": 40.0}),
		withProps(ev(EventScroll, "s1", 2), map[string]interface{}{"percentage": 50.0}),
		withProps(ev(EventScroll, "s1", 3), map[string]interface{}{"percentage": "80"}),
		ev(EventScroll, "s1", 4),
		withProps(ev(EventPageUnload, "s1", 5), map[string]interface{}{"dwell_time": 1000.0}),
		withProps(ev(EventPageUnload, "s2", 6), map[string]interface{}{"dwell_time": 3000.0}),
		ev(EventPageView, "s1", 0),
		ev(EventPageView, "s2", 0),
	}

	e := foldEngagement(events)

	assert.Equal(t, EngagementMetrics{
		Scroll50Pct:  2,
		Scroll75Pct:  1,
		AvgDwellTime: 2000,
		PageViews:    2,
	}, e)
}

func TestFoldCTA(t *testing.T) {
	events := []RawTelemetryEvent{
		ev(EventCTAClick, "s1", 100),
		ev(EventFormStart, "s1", 200),
		ev(EventCTAClick, "s1", 400),
		ev(EventFormStart, "s2", 100),
		ev(EventCTAClick, "s2", 300),
		ev(EventPageView, "s3", 50),
	}

	c := foldCTA(events)

	assert.Equal(t, 3, c.TotalClicks)
	assert.Equal(t, 2, c.UniqueClicks)
	assert.InDelta(t, 2.0/3.0, c.CTR, 1e-9)
	assert.InDelta(t, 0.5, c.ConversionRate, 1e-9)
}

func TestFoldForms_UsesFirstStartInListOrder(t *testing.T) {
	events := []RawTelemetryEvent{
		ev(EventFormStart, "s1", 3000),
		ev(EventFormStart, "s1", 1000),
		ev(EventFormSubmit, "s1", 5000),
	}

	f := foldForms(events, 0)

	assert.Equal(t, 2, f.Starts)
	assert.Equal(t, 1, f.Completions)
	assert.InDelta(t, 0.5, f.CompletionRate, 1e-9)
	assert.InDelta(t, 2000, f.AvgCompletionTime, 1e-9)
}

func TestFoldForms_SubmitWithoutStart(t *testing.T) {
	f := foldForms([]RawTelemetryEvent{ev(EventFormSubmit, "s1", 5000)}, 0)

	assert.Equal(t, 1, f.Completions)
	assert.Zero(t, f.CompletionRate)
	assert.Zero(t, f.AvgCompletionTime)
}

func TestFoldForms_DropoutPoints(t *testing.T) {
	fieldErr := func(name interface{}) RawTelemetryEvent {
		e := ev(EventFieldError, "s1", 1)
		if name != nil {
			e.Properties = map[string]interface{}{"fieldName": name}
		}
		return e
	}
	events := []RawTelemetryEvent{
		fieldErr("email"),
		fieldErr("email"),
		fieldErr("phone"),
		fieldErr(nil),
	}

	t.Run("unbounded", func(t *testing.T) {
		f := foldForms(events, 0)
		assert.Equal(t, map[string]int{"email": 2, "phone": 1, "unknown": 1}, f.DropoutPoints)
	})

	t.Run("capped keeps most frequent", func(t *testing.T) {
		f := foldForms(events, 2)
		assert.Equal(t, map[string]int{"email": 2, "phone": 1}, f.DropoutPoints)
	})
}

func TestPerformanceScore(t *testing.T) {
	tests := []struct {
		name     string
		metrics  DailyMetrics
		expected int
	}{
		{
			name:     "empty day",
			metrics:  DailyMetrics{},
			expected: 20,
		},
		{
			name: "every target met",
			metrics: DailyMetrics{
				Sessions:       SessionMetrics{Total: 10},
				Engagement:     EngagementMetrics{Scroll50Pct: 7},
				CTAPerformance: CTAPerformance{CTR: 0.04},
				FormMetrics:    FormMetrics{CompletionRate: 0.35},
			},
			expected: 100,
		},
		{
			name: "half of every target",
			metrics: DailyMetrics{
				Sessions:       SessionMetrics{Total: 20, BounceRate: 0.3},
				Engagement:     EngagementMetrics{Scroll50Pct: 7},
				CTAPerformance: CTAPerformance{CTR: 0.02},
				FormMetrics:    FormMetrics{CompletionRate: 0.175},
			},
			expected: 50,
		},
		{
			name: "bounce above ceiling scores zero for bounce",
			metrics: DailyMetrics{
				Sessions: SessionMetrics{Total: 1, BounceRate: 1},
			},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PerformanceScore(&tt.metrics))
		})
	}
}

func TestComputeDailyMetrics_Deterministic(t *testing.T) {
	city := ev(EventCTAClick, "s2", 10)
	city.City = "Edmonton"
	city.Offence = "speeding"
	events := []RawTelemetryEvent{
		ev(EventPageView, "s1", 0),
		withProps(ev(EventFieldError, "s1", 5), map[string]interface{}{"fieldName": "email"}),
		city,
		ev(EventFormStart, "s2", 20),
		ev(EventFormSubmit, "s2", 90),
	}

	first, err := json.Marshal(ComputeDailyMetrics("2025-03-14", events, DefaultAggregationConfig()))
	require.NoError(t, err)
	second, err := json.Marshal(ComputeDailyMetrics("2025-03-14", events, DefaultAggregationConfig()))
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestRawTelemetryEvent_NumberProperty(t *testing.T) {
	e := RawTelemetryEvent{Properties: map[string]interface{}{
		"float":  12.5,
		"int":    7,
		"number": json.Number("3"),
		"string": "42",
		"bad":    "forty",
		"bool":   true,
	}}

	for name, expected := range map[string]float64{"float": 12.5, "int": 7, "number": 3, "string": 42} {
		v, ok := e.NumberProperty(name)
		assert.True(t, ok, name)
		assert.Equal(t, expected, v, name)
	}
	for _, name := range []string{"bad", "bool", "missing"} {
		_, ok := e.NumberProperty(name)
		assert.False(t, ok, name)
	}
}
