package analytics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dayMetrics(date string, sessions int, ctr, completion, bounce float64, scroll50 int) DailyMetrics {
	return DailyMetrics{
		Date:           date,
		Sessions:       SessionMetrics{Total: sessions, BounceRate: bounce},
		Engagement:     EngagementMetrics{Scroll50Pct: scroll50},
		CTAPerformance: CTAPerformance{CTR: ctr},
		FormMetrics:    FormMetrics{CompletionRate: completion},
	}
}

func TestGenerateTrendAnalysis_InsufficientData(t *testing.T) {
	store := newTestStore(t)
	putJSON(t, store, DailyMetricsKey("2025-03-15"), dayMetrics("2025-03-15", 10, 0.05, 0.4, 0.4, 5))

	agg := newTestAggregator(t, store, testConfig())
	report := agg.GenerateTrendAnalysis(context.Background(), 7)

	assert.Equal(t, "7 days", report.Period)
	assert.Equal(t, TrendMetrics{}, report.Metrics)
	assert.Equal(t, []string{"Insufficient data for trend analysis"}, report.Insights)
	assert.Empty(t, report.Recommendations)
	assert.Empty(t, report.Anomalies)
}

func TestGenerateTrendAnalysis(t *testing.T) {
	store := newTestStore(t)

	newest := dayMetrics("2025-03-15", 150, 0.04, 0.3, 0.4, 60)
	newest.CityBreakdown = map[string]CityStats{
		"Calgary":    {CTR: 0.05},
		"Edmonton":   {CTR: 0.08},
		"Red Deer":   {CTR: 0.02},
		"Lethbridge": {CTR: 0.05},
	}
	putJSON(t, store, DailyMetricsKey("2025-03-15"), newest)
	putJSON(t, store, DailyMetricsKey("2025-03-14"), dayMetrics("2025-03-14", 120, 0.045, 0.35, 0.4, 60))
	putJSON(t, store, DailyMetricsKey("2025-03-13"), dayMetrics("2025-03-13", 100, 0.05, 0.4, 0.4, 60))
	// outside a three day window
	putJSON(t, store, DailyMetricsKey("2025-03-12"), dayMetrics("2025-03-12", 1000, 0.5, 0.9, 0.1, 900))

	agg := newTestAggregator(t, store, testConfig())
	report := agg.GenerateTrendAnalysis(context.Background(), 3)

	assert.Equal(t, "3 days", report.Period)
	assert.InDelta(t, 50, report.Metrics.SessionsTrend, 1e-9)
	assert.InDelta(t, -20, report.Metrics.CTACTRTrend, 1e-9)
	assert.InDelta(t, -25, report.Metrics.FormCompletionTrend, 1e-9)
	assert.InDelta(t, -100.0/3.0, report.Metrics.EngagementTrend, 1e-9)

	assert.Equal(t, []string{
		"Sessions are trending upward significantly (+50.0%)",
		"CTA click-through rate is declining (-20.0%)",
		"Form abandonment is increasing (-25.0%)",
		"Top performing cities: Edmonton (8.0% CTR), Calgary (5.0% CTR), Lethbridge (5.0% CTR)",
	}, report.Insights)

	assert.Equal(t, []string{
		"Review and A/B test CTA button copy and placement",
		"Analyze top-performing pages and replicate successful elements",
		"Simplify form fields and reduce required information",
		"Implement progressive form disclosure",
		"Add form validation and progress indicators",
		"Review page loading speed and content quality",
		"Optimize mobile experience and responsive design",
		"Scale infrastructure to handle increased traffic",
		"Capitalize on growth by optimizing conversion funnels",
	}, report.Recommendations)

	assert.Empty(t, report.Anomalies)
}

func TestGenerateTrendAnalysis_DefaultsToSevenDays(t *testing.T) {
	agg := newTestAggregator(t, newTestStore(t), testConfig())
	assert.Equal(t, "7 days", agg.GenerateTrendAnalysis(context.Background(), 0).Period)
}

func TestAnalyzeTrends_ImprovingInsights(t *testing.T) {
	metrics := []DailyMetrics{
		dayMetrics("2025-03-15", 50, 0.06, 0.5, 0.4, 40),
		dayMetrics("2025-03-14", 100, 0.05, 0.4, 0.4, 40),
	}

	report := AnalyzeTrends(metrics, 2)

	assert.Equal(t, []string{
		"Sessions are declining (-50.0%)",
		"CTA performance is improving (+20.0%)",
		"Form completion rate is improving (+25.0%)",
	}, report.Insights)
	assert.Empty(t, report.Recommendations)
}

func TestPercentageChange(t *testing.T) {
	assert.Equal(t, 100.0, percentageChange(0, 5))
	assert.Equal(t, 0.0, percentageChange(0, 0))
	assert.InDelta(t, -50, percentageChange(10, 5), 1e-9)
	assert.InDelta(t, 25, percentageChange(4, 5), 1e-9)
}

func TestDetectAnomalies(t *testing.T) {
	metrics := []DailyMetrics{
		dayMetrics("2025-03-15", 10, 0.03, 0.3, 0.4, 0),
		dayMetrics("2025-03-14", 10, 0.1, 0.3, 0.4, 0),
		dayMetrics("2025-03-13", 10, 0.02, 0.3, 0.4, 0),
	}

	anomalies := detectAnomalies(metrics)
	require.Len(t, anomalies, 3)

	assert.Equal(t, "CTA CTR", anomalies[0].Metric)
	assert.Equal(t, "2025-03-14", anomalies[0].Date)
	assert.InDelta(t, 1.0, anomalies[0].Deviation, 1e-9)
	assert.Equal(t, SeverityHigh, anomalies[0].Severity)

	assert.Equal(t, "2025-03-13", anomalies[1].Date)
	assert.InDelta(t, 0.6, anomalies[1].Deviation, 1e-9)
	assert.Equal(t, SeverityHigh, anomalies[1].Severity)

	assert.Equal(t, "2025-03-15", anomalies[2].Date)
	assert.InDelta(t, 0.4, anomalies[2].Deviation, 1e-9)
	assert.Equal(t, SeverityMedium, anomalies[2].Severity)
}

func TestDetectAnomalies_ZeroMeanNeverFlags(t *testing.T) {
	metrics := []DailyMetrics{
		dayMetrics("2025-03-15", 10, 0, 0, 0, 0),
		dayMetrics("2025-03-14", 10, 0, 0, 0, 0),
	}
	assert.Empty(t, detectAnomalies(metrics))
}
