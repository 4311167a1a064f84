package analytics

import (
	"math"
	"sort"
)

const unknownBucket = "Unknown"

// unknownField buckets field_error events that carry no fieldName
const unknownField = "unknown"

// ComputeDailyMetrics folds one day of raw events into a summary. It touches
// no state, so identical input always produces identical output.
// AlertsTriggered is always 0 here; alerting runs separately.
func ComputeDailyMetrics(date string, events []RawTelemetryEvent, cfg AggregationConfig) *DailyMetrics {
	m := &DailyMetrics{
		Date:             date,
		Sessions:         foldSessions(events),
		Engagement:       foldEngagement(events),
		CTAPerformance:   foldCTA(events),
		FormMetrics:      foldForms(events, cfg.MaxDropoutFields),
		CityBreakdown:    foldCities(events),
		OffenceBreakdown: foldOffences(events),
	}
	m.PerformanceScore = PerformanceScore(m)
	return m
}

type sessionSpan struct {
	first     int64
	last      int64
	pageViews int
}

func foldSessions(events []RawTelemetryEvent) SessionMetrics {
	spans := make(map[string]*sessionSpan)
	users := make(map[string]struct{})

	for _, e := range events {
		span, ok := spans[e.SessionID]
		if !ok {
			span = &sessionSpan{first: e.Timestamp, last: e.Timestamp}
			spans[e.SessionID] = span
		}
		span.first = min(span.first, e.Timestamp)
		span.last = max(span.last, e.Timestamp)
		if e.EventType == EventPageView {
			span.pageViews++
		}
		if e.UserID != "" {
			users[e.UserID] = struct{}{}
		}
	}

	total := len(spans)
	var bounces int
	var duration float64
	for _, span := range spans {
		if span.pageViews == 1 {
			bounces++
		}
		duration += float64(span.last - span.first)
	}

	return SessionMetrics{
		Total:              total,
		Unique:             len(users),
		BounceRate:         ratio(float64(bounces), float64(total)),
		AvgSessionDuration: duration / float64(max(total, 1)),
	}
}

func foldEngagement(events []RawTelemetryEvent) EngagementMetrics {
	var out EngagementMetrics
	var dwellSum float64
	var unloads int

	for _, e := range events {
		switch e.EventType {
		case EventScroll:
			pct, ok := e.NumberProperty("percentage")
			if !ok {
				continue
			}
			if pct >= 50 {
				out.Scroll50Pct++
			}
			if pct >= 75 {
				out.Scroll75Pct++
			}
		case EventPageUnload:
			dwell, _ := e.NumberProperty("dwell_time")
			dwellSum += dwell
			unloads++
		case EventPageView:
			out.PageViews++
		}
	}

	out.AvgDwellTime = ratio(dwellSum, float64(unloads))
	return out
}

func foldCTA(events []RawTelemetryEvent) CTAPerformance {
	sessions := make(map[string]struct{})
	// earliest click per session; a form start converts if any click precedes it
	firstClick := make(map[string]int64)
	var clicks int

	for _, e := range events {
		sessions[e.SessionID] = struct{}{}
		if e.EventType != EventCTAClick {
			continue
		}
		clicks++
		if ts, ok := firstClick[e.SessionID]; !ok || e.Timestamp < ts {
			firstClick[e.SessionID] = e.Timestamp
		}
	}

	var conversions int
	for _, e := range events {
		if e.EventType != EventFormStart {
			continue
		}
		if ts, ok := firstClick[e.SessionID]; ok && ts < e.Timestamp {
			conversions++
		}
	}

	unique := len(firstClick)
	return CTAPerformance{
		TotalClicks:    clicks,
		UniqueClicks:   unique,
		CTR:            ratio(float64(unique), float64(len(sessions))),
		ConversionRate: ratio(float64(conversions), float64(unique)),
	}
}

func foldForms(events []RawTelemetryEvent, maxDropoutFields int) FormMetrics {
	out := FormMetrics{DropoutPoints: make(map[string]int)}
	// first form_start per session in event order, not the earliest timestamp
	firstStart := make(map[string]int64)
	var completionSum float64
	var completed int

	for _, e := range events {
		switch e.EventType {
		case EventFormStart:
			out.Starts++
			if _, ok := firstStart[e.SessionID]; !ok {
				firstStart[e.SessionID] = e.Timestamp
			}
		case EventFieldError:
			field, ok := e.StringProperty("fieldName")
			if !ok {
				field = unknownField
			}
			out.DropoutPoints[field]++
		}
	}

	for _, e := range events {
		if e.EventType != EventFormSubmit {
			continue
		}
		out.Completions++
		if start, ok := firstStart[e.SessionID]; ok {
			completionSum += float64(e.Timestamp - start)
			completed++
		}
	}

	out.CompletionRate = ratio(float64(out.Completions), float64(out.Starts))
	out.AvgCompletionTime = ratio(completionSum, float64(completed))
	if maxDropoutFields > 0 {
		out.DropoutPoints = topDropoutFields(out.DropoutPoints, maxDropoutFields)
	}
	return out
}

func topDropoutFields(points map[string]int, limit int) map[string]int {
	if len(points) <= limit {
		return points
	}
	fields := make([]string, 0, len(points))
	for f := range points {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool {
		if points[fields[i]] != points[fields[j]] {
			return points[fields[i]] > points[fields[j]]
		}
		return fields[i] < fields[j]
	})

	out := make(map[string]int, limit)
	for _, f := range fields[:limit] {
		out[f] = points[f]
	}
	return out
}

type bucket struct {
	sessions        map[string]struct{}
	ctaClicks       int
	formCompletions int
}

func foldBuckets(events []RawTelemetryEvent, keyOf func(RawTelemetryEvent) string) map[string]*bucket {
	buckets := make(map[string]*bucket)
	for _, e := range events {
		key := keyOf(e)
		if key == "" {
			key = unknownBucket
		}
		b, ok := buckets[key]
		if !ok {
			b = &bucket{sessions: make(map[string]struct{})}
			buckets[key] = b
		}
		b.sessions[e.SessionID] = struct{}{}
		switch e.EventType {
		case EventCTAClick:
			b.ctaClicks++
		case EventFormSubmit:
			b.formCompletions++
		}
	}
	return buckets
}

func foldCities(events []RawTelemetryEvent) map[string]CityStats {
	out := make(map[string]CityStats)
	for city, b := range foldBuckets(events, func(e RawTelemetryEvent) string { return e.City }) {
		out[city] = CityStats{
			Sessions:        len(b.sessions),
			CTAClicks:       b.ctaClicks,
			FormCompletions: b.formCompletions,
			CTR:             ratio(float64(b.ctaClicks), float64(len(b.sessions))),
		}
	}
	return out
}

func foldOffences(events []RawTelemetryEvent) map[string]OffenceStats {
	out := make(map[string]OffenceStats)
	for offence, b := range foldBuckets(events, func(e RawTelemetryEvent) string { return e.Offence }) {
		out[offence] = OffenceStats{
			Sessions:        len(b.sessions),
			CTAClicks:       b.ctaClicks,
			FormCompletions: b.formCompletions,
		}
	}
	return out
}

// PerformanceScore weights CTR (25), form completion (35), bounce (20) and
// scroll engagement (20) against fixed targets and rounds to 0..100.
func PerformanceScore(m *DailyMetrics) int {
	ctrScore := math.Min(m.CTAPerformance.CTR/0.04, 1) * 25
	formScore := math.Min(m.FormMetrics.CompletionRate/0.35, 1) * 35
	bounceScore := math.Max(0, (0.6-m.Sessions.BounceRate)/0.6) * 20
	engagementScore := math.Min(m.ScrollEngagementRate()/0.7, 1) * 20

	return int(math.Round(ctrScore + formScore + bounceScore + engagementScore))
}

// ratio divides, returning 0 for an empty denominator
func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
