// Package scheduler runs the periodic aggregation, alert and trend report
// jobs of funnel-aggregator on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/funnelpulse/pkg/analytics"
	"github.com/platinummonkey/funnelpulse/pkg/config"
	"github.com/platinummonkey/funnelpulse/pkg/observability"
)

// Scheduler owns the cron runner and the jobs registered on it
type Scheduler struct {
	cron       *cron.Cron
	aggregator *analytics.Aggregator
	alerter    *analytics.Alerter
	config     config.AggregationConfig
	logger     *observability.Logger
}

// New registers the aggregation and trend report jobs. alerter may be nil to
// aggregate without alert checks.
func New(aggregator *analytics.Aggregator, alerter *analytics.Alerter, cfg config.AggregationConfig, logger *observability.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	logger = logger.WithComponent("scheduler")

	cl := cronLogger{logger: logger}
	opts := []cron.Option{
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	}
	if cfg.Location != nil {
		opts = append(opts, cron.WithLocation(cfg.Location))
	}

	s := &Scheduler{
		cron:       cron.New(opts...),
		aggregator: aggregator,
		alerter:    alerter,
		config:     cfg,
		logger:     logger,
	}

	if _, err := s.cron.AddFunc(cfg.AggregateCron, s.aggregationJob); err != nil {
		return nil, fmt.Errorf("failed to schedule aggregation %q: %w", cfg.AggregateCron, err)
	}
	if cfg.TrendReportCron != "" {
		if _, err := s.cron.AddFunc(cfg.TrendReportCron, s.trendReportJob); err != nil {
			return nil, fmt.Errorf("failed to schedule trend report %q: %w", cfg.TrendReportCron, err)
		}
	}
	return s, nil
}

// Start runs the scheduler in its own goroutine
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.WithFields(map[string]interface{}{
		"aggregate_cron":    s.config.AggregateCron,
		"trend_report_cron": s.config.TrendReportCron,
		"schedule":          string(s.config.Schedule),
	}).Info("Scheduler started")
}

// Stop prevents new runs and waits for running jobs until ctx is done
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running jobs: %w", ctx.Err())
	}
}

// Jobs is the number of registered jobs
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// TargetDate is the date a scheduled run aggregates: yesterday for the daily
// schedule, today for the hourly one.
func (s *Scheduler) TargetDate() string {
	if s.config.Schedule == analytics.ScheduleHourly {
		return s.aggregator.Today()
	}
	return s.aggregator.Yesterday()
}

// RunAggregation aggregates date and checks the alert rules against the
// result and the day before it
func (s *Scheduler) RunAggregation(ctx context.Context, date string) (*analytics.DailyMetrics, []analytics.Alert, error) {
	metrics, err := s.aggregator.AggregateDaily(ctx, date)
	if err != nil {
		return nil, nil, err
	}
	if s.alerter == nil {
		return metrics, nil, nil
	}
	fired := s.alerter.EvaluateDay(ctx, s.aggregator, metrics)
	return metrics, fired, nil
}

// TrendReport builds the trend analysis over the configured window and logs it
func (s *Scheduler) TrendReport(ctx context.Context) *analytics.TrendAnalysis {
	report := s.aggregator.GenerateTrendAnalysis(ctx, s.config.TrendDays)
	s.logger.WithFields(map[string]interface{}{
		"period":          report.Period,
		"sessions_trend":  report.Metrics.SessionsTrend,
		"cta_ctr_trend":   report.Metrics.CTACTRTrend,
		"form_trend":      report.Metrics.FormCompletionTrend,
		"insights":        strings.Join(report.Insights, "; "),
		"recommendations": len(report.Recommendations),
		"anomalies":       len(report.Anomalies),
	}).Info("Trend report")
	return report
}

func (s *Scheduler) aggregationJob() {
	date := s.TargetDate()
	logger := s.logger.WithField("date", date)
	logger.Info("Starting scheduled aggregation")

	metrics, fired, err := s.RunAggregation(context.Background(), date)
	if err != nil {
		logger.WithError(err).Error("Scheduled aggregation failed")
		return
	}
	logger.WithFields(map[string]interface{}{
		"performance_score": metrics.PerformanceScore,
		"alerts":            len(fired),
	}).Info("Scheduled aggregation complete")
}

func (s *Scheduler) trendReportJob() {
	s.TrendReport(context.Background())
}

// cronLogger adapts the structured logger to cron.Logger
type cronLogger struct {
	logger *observability.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(pairs(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithError(err).WithFields(pairs(keysAndValues)).Error("cron: " + msg)
}

func pairs(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
