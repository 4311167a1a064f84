package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultTrendDays   = 7
	anomalyThreshold   = 0.3
	highSeverityCutoff = 0.5
)

const insufficientData = "Insufficient data for trend analysis"

// GenerateTrendAnalysis compares the stored summaries of the last days days,
// counting today as the first. days <= 0 means 7.
func (a *Aggregator) GenerateTrendAnalysis(ctx context.Context, days int) *TrendAnalysis {
	if days <= 0 {
		days = defaultTrendDays
	}

	ctx, span := tracer.Start(ctx, "Aggregator.GenerateTrendAnalysis",
		trace.WithAttributes(attribute.Int("funnel.days", days)))
	defer span.End()

	today := a.today()
	metrics := make([]DailyMetrics, 0, days)
	for i := 0; i < days; i++ {
		date := today.AddDate(0, 0, -i).Format(DateLayout)
		if m, ok := a.loadDailyMetrics(ctx, date); ok {
			metrics = append(metrics, *m)
		}
	}
	span.SetAttributes(attribute.Int("funnel.days_found", len(metrics)))

	return AnalyzeTrends(metrics, days)
}

// AnalyzeTrends builds a report from summaries ordered newest first
func AnalyzeTrends(metrics []DailyMetrics, days int) *TrendAnalysis {
	report := &TrendAnalysis{
		Period:          fmt.Sprintf("%d days", days),
		Insights:        []string{},
		Recommendations: []string{},
		Anomalies:       []Anomaly{},
	}

	if len(metrics) < 2 {
		report.Insights = append(report.Insights, insufficientData)
		return report
	}

	report.Metrics = calculateTrends(metrics)
	report.Insights = generateInsights(metrics, report.Metrics)
	report.Recommendations = generateRecommendations(report.Metrics)
	report.Anomalies = detectAnomalies(metrics)
	return report
}

func calculateTrends(metrics []DailyMetrics) TrendMetrics {
	oldest := metrics[len(metrics)-1]
	newest := metrics[0]

	return TrendMetrics{
		SessionsTrend:       percentageChange(float64(oldest.Sessions.Total), float64(newest.Sessions.Total)),
		CTACTRTrend:         percentageChange(oldest.CTAPerformance.CTR, newest.CTAPerformance.CTR),
		FormCompletionTrend: percentageChange(oldest.FormMetrics.CompletionRate, newest.FormMetrics.CompletionRate),
		EngagementTrend:     percentageChange(oldest.ScrollEngagementRate(), newest.ScrollEngagementRate()),
	}
}

// percentageChange treats growth from zero as +100%
func percentageChange(oldValue, newValue float64) float64 {
	if oldValue == 0 {
		if newValue > 0 {
			return 100
		}
		return 0
	}
	return (newValue - oldValue) / oldValue * 100
}

func generateInsights(metrics []DailyMetrics, t TrendMetrics) []string {
	insights := []string{}

	switch {
	case t.SessionsTrend > 10:
		insights = append(insights, fmt.Sprintf("Sessions are trending upward significantly (+%.1f%%)", t.SessionsTrend))
	case t.SessionsTrend < -10:
		insights = append(insights, fmt.Sprintf("Sessions are declining (-%.1f%%)", math.Abs(t.SessionsTrend)))
	}

	switch {
	case t.CTACTRTrend > 5:
		insights = append(insights, fmt.Sprintf("CTA performance is improving (+%.1f%%)", t.CTACTRTrend))
	case t.CTACTRTrend < -5:
		insights = append(insights, fmt.Sprintf("CTA click-through rate is declining (-%.1f%%)", math.Abs(t.CTACTRTrend)))
	}

	switch {
	case t.FormCompletionTrend > 5:
		insights = append(insights, fmt.Sprintf("Form completion rate is improving (+%.1f%%)", t.FormCompletionTrend))
	case t.FormCompletionTrend < -5:
		insights = append(insights, fmt.Sprintf("Form abandonment is increasing (-%.1f%%)", math.Abs(t.FormCompletionTrend)))
	}

	if top := topCities(metrics[0].CityBreakdown, 3); len(top) > 0 {
		parts := make([]string, len(top))
		for i, city := range top {
			parts[i] = fmt.Sprintf("%s (%.1f%% CTR)", city, metrics[0].CityBreakdown[city].CTR*100)
		}
		insights = append(insights, "Top performing cities: "+strings.Join(parts, ", "))
	}

	return insights
}

// topCities ranks by CTR descending, breaking ties by name
func topCities(breakdown map[string]CityStats, limit int) []string {
	cities := make([]string, 0, len(breakdown))
	for city := range breakdown {
		cities = append(cities, city)
	}
	sort.Slice(cities, func(i, j int) bool {
		ci, cj := breakdown[cities[i]].CTR, breakdown[cities[j]].CTR
		if ci != cj {
			return ci > cj
		}
		return cities[i] < cities[j]
	})
	if len(cities) > limit {
		cities = cities[:limit]
	}
	return cities
}

func generateRecommendations(t TrendMetrics) []string {
	recs := []string{}

	if t.CTACTRTrend < -5 {
		recs = append(recs,
			"Review and A/B test CTA button copy and placement",
			"Analyze top-performing pages and replicate successful elements",
		)
	}
	if t.FormCompletionTrend < -5 {
		recs = append(recs,
			"Simplify form fields and reduce required information",
			"Implement progressive form disclosure",
			"Add form validation and progress indicators",
		)
	}
	if t.EngagementTrend < -10 {
		recs = append(recs,
			"Review page loading speed and content quality",
			"Optimize mobile experience and responsive design",
		)
	}
	if t.SessionsTrend > 20 {
		recs = append(recs,
			"Scale infrastructure to handle increased traffic",
			"Capitalize on growth by optimizing conversion funnels",
		)
	}

	return recs
}

type anomalyMetric struct {
	name  string
	value func(DailyMetrics) float64
}

var anomalyMetrics = []anomalyMetric{
	{name: "CTA CTR", value: func(m DailyMetrics) float64 { return m.CTAPerformance.CTR }},
	{name: "Form Completion Rate", value: func(m DailyMetrics) float64 { return m.FormMetrics.CompletionRate }},
	{name: "Bounce Rate", value: func(m DailyMetrics) float64 { return m.Sessions.BounceRate }},
}

// detectAnomalies flags days whose rate differs from the window mean by more
// than 30% of that mean. A zero mean never flags.
func detectAnomalies(metrics []DailyMetrics) []Anomaly {
	means := make([]float64, len(anomalyMetrics))
	for i, am := range anomalyMetrics {
		var sum float64
		for _, m := range metrics {
			sum += am.value(m)
		}
		means[i] = sum / float64(len(metrics))
	}

	anomalies := []Anomaly{}
	for _, m := range metrics {
		for i, am := range anomalyMetrics {
			if means[i] == 0 {
				continue
			}
			deviation := math.Abs(am.value(m)-means[i]) / means[i]
			if deviation <= anomalyThreshold {
				continue
			}
			severity := SeverityMedium
			if deviation > highSeverityCutoff {
				severity = SeverityHigh
			}
			anomalies = append(anomalies, Anomaly{
				Metric:    am.name,
				Date:      m.Date,
				Deviation: deviation,
				Severity:  severity,
			})
		}
	}

	sort.SliceStable(anomalies, func(i, j int) bool {
		return anomalies[i].Deviation > anomalies[j].Deviation
	})
	return anomalies
}
