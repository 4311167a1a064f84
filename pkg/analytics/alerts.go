package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/funnelpulse/pkg/async"
	"github.com/platinummonkey/funnelpulse/pkg/observability"
)

// Channel names a notification destination
type Channel string

const (
	ChannelSlack   Channel = "slack"
	ChannelEmail   Channel = "email"
	ChannelWebhook Channel = "webhook"
)

// Comparison decides which side of the threshold fires a rule
type Comparison string

const (
	LessThan    Comparison = "less_than"
	GreaterThan Comparison = "greater_than"
)

// AlertMetric names the value a rule watches
type AlertMetric string

const (
	MetricCTACTR             AlertMetric = "cta_ctr"
	MetricFormCompletion     AlertMetric = "form_completion_rate"
	MetricBounceRate         AlertMetric = "bounce_rate"
	MetricScrollEngagement   AlertMetric = "scroll_engagement"
	MetricCityCTRRatio       AlertMetric = "city_ctr_ratio"
	MetricCTACTRDrop         AlertMetric = "cta_ctr_drop"
	MetricFormCompletionDrop AlertMetric = "form_completion_drop"
	MetricBounceRateRise     AlertMetric = "bounce_rate_rise"
)

// ErrAlertNotFound is returned when acknowledging an unknown or resolved alert
var ErrAlertNotFound = errors.New("alert not found")

const (
	defaultHistoryLimit = 100
	notifyTimeout       = 15 * time.Second
)

// AlertRule is a threshold check over one day's summary
type AlertRule struct {
	ID         string        `yaml:"id" json:"id"`
	Name       string        `yaml:"name" json:"name"`
	Metric     AlertMetric   `yaml:"metric" json:"metric"`
	Comparison Comparison    `yaml:"comparison" json:"comparison"`
	Threshold  float64       `yaml:"threshold" json:"threshold"`
	Severity   Severity      `yaml:"severity" json:"severity"`
	Cooldown   time.Duration `yaml:"cooldown" json:"cooldown"`
	Channels   []Channel     `yaml:"channels" json:"channels"`
}

// Validate reports rules the alerter cannot evaluate
func (r AlertRule) Validate() error {
	var errs []error
	if r.ID == "" {
		errs = append(errs, errors.New("rule id is required"))
	}
	if _, ok := metricLabels[r.Metric]; !ok {
		errs = append(errs, fmt.Errorf("rule %q: unknown metric %q", r.ID, r.Metric))
	}
	if r.Comparison != LessThan && r.Comparison != GreaterThan {
		errs = append(errs, fmt.Errorf("rule %q: unknown comparison %q", r.ID, r.Comparison))
	}
	switch r.Severity {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
	default:
		errs = append(errs, fmt.Errorf("rule %q: unknown severity %q", r.ID, r.Severity))
	}
	for _, ch := range r.Channels {
		if ch != ChannelSlack && ch != ChannelEmail && ch != ChannelWebhook {
			errs = append(errs, fmt.Errorf("rule %q: unknown channel %q", r.ID, ch))
		}
	}
	return errors.Join(errs...)
}

// DefaultAlertRules returns the stock conversion rules plus the
// day-over-day drop rules driven by thresholds
func DefaultAlertRules(thresholds AlertThresholds) []AlertRule {
	return []AlertRule{
		{ID: "low_cta_ctr", Name: "Low CTA Click-Through Rate", Metric: MetricCTACTR, Comparison: LessThan,
			Threshold: 0.025, Severity: SeverityMedium, Cooldown: 30 * time.Minute,
			Channels: []Channel{ChannelSlack, ChannelEmail}},
		{ID: "low_form_completion", Name: "Low Form Completion Rate", Metric: MetricFormCompletion, Comparison: LessThan,
			Threshold: 0.30, Severity: SeverityHigh, Cooldown: 15 * time.Minute,
			Channels: []Channel{ChannelSlack, ChannelEmail, ChannelWebhook}},
		{ID: "high_bounce_rate", Name: "High Bounce Rate", Metric: MetricBounceRate, Comparison: GreaterThan,
			Threshold: 0.65, Severity: SeverityMedium, Cooldown: time.Hour,
			Channels: []Channel{ChannelSlack}},
		{ID: "low_scroll_engagement", Name: "Low Scroll Engagement", Metric: MetricScrollEngagement, Comparison: LessThan,
			Threshold: 0.50, Severity: SeverityLow, Cooldown: 2 * time.Hour,
			Channels: []Channel{ChannelEmail}},
		{ID: "city_underperformance", Name: "City Performance Below Average", Metric: MetricCityCTRRatio, Comparison: LessThan,
			Threshold: 0.7, Severity: SeverityLow, Cooldown: 3 * time.Hour,
			Channels: []Channel{ChannelEmail}},
		{ID: "critical_form_drop", Name: "Critical Form Completion Drop", Metric: MetricFormCompletion, Comparison: LessThan,
			Threshold: 0.15, Severity: SeverityCritical, Cooldown: 5 * time.Minute,
			Channels: []Channel{ChannelSlack, ChannelEmail, ChannelWebhook}},
		{ID: "cta_ctr_drop", Name: "CTA Click-Through Rate Drop", Metric: MetricCTACTRDrop, Comparison: GreaterThan,
			Threshold: thresholds.CTRDrop, Severity: SeverityHigh, Cooldown: time.Hour,
			Channels: []Channel{ChannelSlack, ChannelWebhook}},
		{ID: "form_completion_drop", Name: "Form Completion Rate Drop", Metric: MetricFormCompletionDrop, Comparison: GreaterThan,
			Threshold: thresholds.FormCompletionDrop, Severity: SeverityHigh, Cooldown: time.Hour,
			Channels: []Channel{ChannelSlack, ChannelWebhook}},
		{ID: "bounce_rate_spike", Name: "Bounce Rate Spike", Metric: MetricBounceRateRise, Comparison: GreaterThan,
			Threshold: thresholds.BounceRateSpike, Severity: SeverityMedium, Cooldown: time.Hour,
			Channels: []Channel{ChannelSlack}},
	}
}

// Alert is one firing of a rule
type Alert struct {
	ID             string     `json:"id"`
	RuleID         string     `json:"rule_id"`
	Date           string     `json:"date"`
	Timestamp      time.Time  `json:"timestamp"`
	Severity       Severity   `json:"severity"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Value          float64    `json:"value"`
	Threshold      float64    `json:"threshold"`
	Resolved       bool       `json:"resolved"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
}

// Notifier delivers fired alerts to one channel
type Notifier interface {
	Channel() Channel
	Notify(ctx context.Context, alert Alert) error
}

// ResolutionNotifier is implemented by notifiers that also announce resolutions
type ResolutionNotifier interface {
	NotifyResolved(ctx context.Context, alert Alert) error
}

// Alerter evaluates rules against daily summaries and tracks alert state
type Alerter struct {
	mu           sync.Mutex
	rules        []AlertRule
	notifiers    map[Channel]Notifier
	active       map[string]*Alert // by rule id
	history      []Alert
	lastFired    map[string]time.Time
	historyLimit int

	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// AlerterOption configures an Alerter
type AlerterOption func(*Alerter)

// WithAlerterLogger sets the alerter logger
func WithAlerterLogger(logger *observability.Logger) AlerterOption {
	return func(a *Alerter) { a.logger = logger }
}

// WithAlerterMetrics records fired alerts and notification outcomes
func WithAlerterMetrics(metrics *observability.Metrics) AlerterOption {
	return func(a *Alerter) { a.metrics = metrics }
}

// WithAlerterClock overrides the clock used for cooldowns and timestamps
func WithAlerterClock(now func() time.Time) AlerterOption {
	return func(a *Alerter) { a.now = now }
}

// WithHistoryLimit bounds the retained alert history
func WithHistoryLimit(limit int) AlerterOption {
	return func(a *Alerter) { a.historyLimit = limit }
}

// WithNotifiers registers notifiers by their channel
func WithNotifiers(notifiers ...Notifier) AlerterOption {
	return func(a *Alerter) {
		for _, n := range notifiers {
			a.notifiers[n.Channel()] = n
		}
	}
}

// NewAlerter creates an alerter for rules
func NewAlerter(rules []AlertRule, opts ...AlerterOption) *Alerter {
	a := &Alerter{
		rules:        append([]AlertRule(nil), rules...),
		notifiers:    make(map[Channel]Notifier),
		active:       make(map[string]*Alert),
		lastFired:    make(map[string]time.Time),
		historyLimit: defaultHistoryLimit,
		logger:       observability.NopLogger(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.historyLimit <= 0 {
		a.historyLimit = defaultHistoryLimit
	}
	a.logger = a.logger.WithComponent("alerter")
	return a
}

// Rules returns a copy of the current rule set
func (a *Alerter) Rules() []AlertRule {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]AlertRule(nil), a.rules...)
}

// SetRules replaces the rule set. Active alerts for rules that no longer
// exist are dropped without a resolution notice.
func (a *Alerter) SetRules(rules []AlertRule) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.rules = append([]AlertRule(nil), rules...)
	keep := make(map[string]bool, len(rules))
	for _, r := range rules {
		keep[r.ID] = true
	}
	for id := range a.active {
		if !keep[id] {
			delete(a.active, id)
		}
	}
	a.updateActiveGauge()
}

type delivery struct {
	alert    Alert
	notifier Notifier
	resolved bool
}

// Evaluate checks every rule against current, using previous for the
// day-over-day rules (nil skips them). Rules inside their cooldown are not
// evaluated. It returns the alerts that fired.
func (a *Alerter) Evaluate(ctx context.Context, current, previous *DailyMetrics) []Alert {
	if current == nil {
		return nil
	}

	ctx, span := tracer.Start(ctx, "Alerter.Evaluate")
	defer span.End()

	now := a.now()
	var fired []Alert
	var deliveries []delivery

	a.mu.Lock()
	for _, rule := range a.rules {
		if last, ok := a.lastFired[rule.ID]; ok && now.Sub(last) < rule.Cooldown {
			continue
		}

		value, ok := observe(rule, current, previous)
		if ok && rule.breached(value) {
			if _, exists := a.active[rule.ID]; exists {
				continue
			}
			alert := Alert{
				ID:          uuid.NewString(),
				RuleID:      rule.ID,
				Date:        current.Date,
				Timestamp:   now,
				Severity:    rule.Severity,
				Title:       rule.Name,
				Description: describe(rule, value, current),
				Value:       value,
				Threshold:   rule.Threshold,
			}
			a.active[rule.ID] = &alert
			a.appendHistory(alert)
			a.lastFired[rule.ID] = now
			fired = append(fired, alert)
			deliveries = append(deliveries, a.deliveriesFor(alert, rule.Channels)...)
			if a.metrics != nil {
				a.metrics.AlertsFiredTotal.WithLabelValues(rule.ID, string(rule.Severity)).Inc()
			}
			continue
		}

		if active, exists := a.active[rule.ID]; exists {
			resolvedAt := now
			active.Resolved = true
			active.ResolvedAt = &resolvedAt
			a.markHistoryResolved(active.ID, resolvedAt)
			delete(a.active, rule.ID)
			deliveries = append(deliveries, a.resolutionDeliveries(*active)...)
		}
	}
	a.updateActiveGauge()
	a.mu.Unlock()

	a.deliver(ctx, deliveries)
	return fired
}

// MetricsSource reads stored daily summaries
type MetricsSource interface {
	GetDailyMetrics(ctx context.Context, date string) (*DailyMetrics, error)
}

// EvaluateDay evaluates current against the stored summary of the day
// before it. A missing previous day only disables the day-over-day rules.
func (a *Alerter) EvaluateDay(ctx context.Context, source MetricsSource, current *DailyMetrics) []Alert {
	if current == nil {
		return nil
	}

	var previous *DailyMetrics
	if day, err := ParseDate(current.Date, time.UTC); err == nil {
		prev, err := source.GetDailyMetrics(ctx, day.AddDate(0, 0, -1).Format(DateLayout))
		switch {
		case err == nil:
			previous = prev
		case !errors.Is(err, ErrMetricsNotFound):
			a.logger.WithError(err).WithField("date", current.Date).Warn("Failed to load previous day for alerting")
		}
	}

	return a.Evaluate(ctx, current, previous)
}

// CheckDate evaluates the stored summary for date
func (a *Alerter) CheckDate(ctx context.Context, source MetricsSource, date string) ([]Alert, error) {
	current, err := source.GetDailyMetrics(ctx, date)
	if err != nil {
		return nil, err
	}
	return a.EvaluateDay(ctx, source, current), nil
}

// ActiveAlerts returns unresolved alerts, most recent first
func (a *Alerter) ActiveAlerts() []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Alert, 0, len(a.active))
	for _, alert := range a.active {
		out = append(out, *alert)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].RuleID < out[j].RuleID
	})
	return out
}

// History returns up to limit of the most recent alerts, oldest first.
// limit <= 0 means the default of 100.
func (a *Alerter) History(limit int) []Alert {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	start := max(len(a.history)-limit, 0)
	return append([]Alert(nil), a.history[start:]...)
}

// Acknowledge marks an active alert as seen by subject
func (a *Alerter) Acknowledge(alertID, subject string) (Alert, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, alert := range a.active {
		if alert.ID != alertID {
			continue
		}
		ackAt := a.now()
		alert.AcknowledgedAt = &ackAt
		alert.AcknowledgedBy = subject
		for i := range a.history {
			if a.history[i].ID == alertID {
				a.history[i].AcknowledgedAt = &ackAt
				a.history[i].AcknowledgedBy = subject
			}
		}
		return *alert, nil
	}
	return Alert{}, fmt.Errorf("%w: %s", ErrAlertNotFound, alertID)
}

func (a *Alerter) appendHistory(alert Alert) {
	a.history = append(a.history, alert)
	if over := len(a.history) - a.historyLimit; over > 0 {
		a.history = append([]Alert(nil), a.history[over:]...)
	}
}

func (a *Alerter) markHistoryResolved(alertID string, at time.Time) {
	for i := range a.history {
		if a.history[i].ID == alertID {
			a.history[i].Resolved = true
			a.history[i].ResolvedAt = &at
		}
	}
}

func (a *Alerter) deliveriesFor(alert Alert, channels []Channel) []delivery {
	var out []delivery
	for _, ch := range channels {
		n, ok := a.notifiers[ch]
		if !ok {
			a.logger.WithFields(map[string]interface{}{
				"rule":    alert.RuleID,
				"channel": string(ch),
			}).Debug("Notification channel not configured")
			a.countNotification(ch, "unconfigured")
			continue
		}
		out = append(out, delivery{alert: alert, notifier: n})
	}
	return out
}

func (a *Alerter) resolutionDeliveries(alert Alert) []delivery {
	channels := make([]string, 0, len(a.notifiers))
	for ch := range a.notifiers {
		channels = append(channels, string(ch))
	}
	sort.Strings(channels)

	var out []delivery
	for _, ch := range channels {
		n := a.notifiers[Channel(ch)]
		if _, ok := n.(ResolutionNotifier); ok {
			out = append(out, delivery{alert: alert, notifier: n, resolved: true})
		}
	}
	return out
}

// deliver fans notifications out concurrently. Failures are logged and
// never affect alert state.
func (a *Alerter) deliver(ctx context.Context, deliveries []delivery) {
	if len(deliveries) == 0 {
		return
	}

	async.Batch(ctx, deliveries, len(deliveries), "alert notification", notifyTimeout,
		func(ctx context.Context, d delivery) error {
			var err error
			if d.resolved {
				err = d.notifier.(ResolutionNotifier).NotifyResolved(ctx, d.alert)
			} else {
				err = d.notifier.Notify(ctx, d.alert)
			}

			status := "success"
			if err != nil {
				status = "error"
				a.logger.WithError(err).WithFields(map[string]interface{}{
					"rule":     d.alert.RuleID,
					"channel":  string(d.notifier.Channel()),
					"resolved": d.resolved,
				}).Warn("Alert notification failed")
			}
			a.countNotification(d.notifier.Channel(), status)
			return err
		})
}

func (a *Alerter) countNotification(ch Channel, status string) {
	if a.metrics != nil {
		a.metrics.NotificationsTotal.WithLabelValues(string(ch), status).Inc()
	}
}

func (a *Alerter) updateActiveGauge() {
	if a.metrics != nil {
		a.metrics.AlertsActive.Set(float64(len(a.active)))
	}
}

func (r AlertRule) breached(value float64) bool {
	if r.Comparison == GreaterThan {
		return value > r.Threshold
	}
	return value < r.Threshold
}

var metricLabels = map[AlertMetric]string{
	MetricCTACTR:             "CTA click-through rate",
	MetricFormCompletion:     "Form completion rate",
	MetricBounceRate:         "Bounce rate",
	MetricScrollEngagement:   "Scroll engagement",
	MetricCityCTRRatio:       "City click-through rate",
	MetricCTACTRDrop:         "CTA click-through rate",
	MetricFormCompletionDrop: "Form completion rate",
	MetricBounceRateRise:     "Bounce rate",
}

// observe extracts the watched value. ok is false when the value is
// undefined, such as a day-over-day change without a previous day.
func observe(rule AlertRule, current, previous *DailyMetrics) (float64, bool) {
	switch rule.Metric {
	case MetricCTACTR:
		return current.CTAPerformance.CTR, true
	case MetricFormCompletion:
		return current.FormMetrics.CompletionRate, true
	case MetricBounceRate:
		return current.Sessions.BounceRate, true
	case MetricScrollEngagement:
		return current.ScrollEngagementRate(), true
	case MetricCityCTRRatio:
		mean, ok := meanCityCTR(current.CityBreakdown)
		if !ok {
			return 0, false
		}
		lowest := mean
		for _, stats := range current.CityBreakdown {
			lowest = min(lowest, stats.CTR)
		}
		return lowest / mean, true
	case MetricCTACTRDrop:
		if previous == nil || previous.CTAPerformance.CTR == 0 {
			return 0, false
		}
		return (previous.CTAPerformance.CTR - current.CTAPerformance.CTR) / previous.CTAPerformance.CTR, true
	case MetricFormCompletionDrop:
		if previous == nil || previous.FormMetrics.CompletionRate == 0 {
			return 0, false
		}
		return (previous.FormMetrics.CompletionRate - current.FormMetrics.CompletionRate) / previous.FormMetrics.CompletionRate, true
	case MetricBounceRateRise:
		if previous == nil || previous.Sessions.BounceRate == 0 {
			return 0, false
		}
		return (current.Sessions.BounceRate - previous.Sessions.BounceRate) / previous.Sessions.BounceRate, true
	default:
		return 0, false
	}
}

func meanCityCTR(breakdown map[string]CityStats) (float64, bool) {
	if len(breakdown) == 0 {
		return 0, false
	}
	var sum float64
	for _, stats := range breakdown {
		sum += stats.CTR
	}
	mean := sum / float64(len(breakdown))
	return mean, mean > 0
}

func describe(rule AlertRule, value float64, current *DailyMetrics) string {
	label := metricLabels[rule.Metric]
	switch rule.Metric {
	case MetricCityCTRRatio:
		mean, _ := meanCityCTR(current.CityBreakdown)
		var names []string
		for city, stats := range current.CityBreakdown {
			if stats.CTR < mean*rule.Threshold {
				names = append(names, city)
			}
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, city := range names {
			parts[i] = fmt.Sprintf("%s (%.1f%%)", city, current.CityBreakdown[city].CTR*100)
		}
		return "Cities underperforming: " + strings.Join(parts, ", ")
	case MetricCTACTRDrop, MetricFormCompletionDrop:
		return fmt.Sprintf("%s fell %.1f%% day over day, above threshold of %.1f%%", label, value*100, rule.Threshold*100)
	case MetricBounceRateRise:
		return fmt.Sprintf("%s rose %.1f%% day over day, above threshold of %.1f%%", label, value*100, rule.Threshold*100)
	}

	direction := "below"
	if rule.Comparison == GreaterThan {
		direction = "above"
	}
	return fmt.Sprintf("%s is %.1f%%, %s threshold of %.1f%%", label, value*100, direction, rule.Threshold*100)
}
