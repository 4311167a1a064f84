package analytics

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const overrideRules = `
defaults: true
thresholds:
  ctr_drop: 0.5
  form_completion_drop: 0.15
  bounce_rate_spike: 0.1
rules:
  - id: low_cta_ctr
    name: Low CTA Click-Through Rate
    metric: cta_ctr
    comparison: less_than
    threshold: 0.01
    severity: high
    cooldown: 45m
    channels: [slack]
  - id: high_scroll
    name: Suspiciously High Scroll Engagement
    metric: scroll_engagement
    comparison: greater_than
    threshold: 3
    severity: low
    cooldown: 1h
    channels: [webhook]
`

func findRule(rules []AlertRule, id string) (AlertRule, bool) {
	for _, r := range rules {
		if r.ID == id {
			return r, true
		}
	}
	return AlertRule{}, false
}

func TestParseRules_OverridesDefaults(t *testing.T) {
	rules, err := ParseRules([]byte(overrideRules), DefaultAggregationConfig().AlertThresholds)
	require.NoError(t, err)
	assert.Len(t, rules, len(DefaultAlertRules(AlertThresholds{}))+1)

	ctr, ok := findRule(rules, "low_cta_ctr")
	require.True(t, ok)
	assert.Equal(t, 0.01, ctr.Threshold)
	assert.Equal(t, SeverityHigh, ctr.Severity)
	assert.Equal(t, 45*time.Minute, ctr.Cooldown)
	assert.Equal(t, []Channel{ChannelSlack}, ctr.Channels)

	drop, ok := findRule(rules, "cta_ctr_drop")
	require.True(t, ok)
	assert.Equal(t, 0.5, drop.Threshold)

	custom, ok := findRule(rules, "high_scroll")
	require.True(t, ok)
	assert.Equal(t, MetricScrollEngagement, custom.Metric)
}

func TestParseRules_WithoutDefaults(t *testing.T) {
	rules, err := ParseRules([]byte(`
rules:
  - id: bounce
    name: Bounce
    metric: bounce_rate
    comparison: greater_than
    threshold: 0.7
    severity: medium
`), AlertThresholds{})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "bounce", rules[0].ID)
	assert.Zero(t, rules[0].Cooldown)
}

func TestParseRules_Invalid(t *testing.T) {
	_, err := ParseRules([]byte("rules: [unclosed"), AlertThresholds{})
	assert.Error(t, err)

	_, err = ParseRules([]byte(`
rules:
  - id: broken
    metric: nonsense
    comparison: less_than
    severity: low
`), AlertThresholds{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown metric "nonsense"`)
}

func TestRuleWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alerts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("defaults: true\n"), 0o644))

	alerter := NewAlerter(nil)
	watcher, err := NewRuleWatcher(path, DefaultAggregationConfig().AlertThresholds, alerter, nil)
	require.NoError(t, err)
	assert.Len(t, alerter.Rules(), len(DefaultAlertRules(AlertThresholds{})))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	// an invalid file keeps the previous rules
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - id: x\n    metric: nope\n"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, alerter.Rules(), len(DefaultAlertRules(AlertThresholds{})))

	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - id: only
    name: Only
    metric: cta_ctr
    comparison: less_than
    threshold: 0.01
    severity: low
`), 0o644))

	assert.Eventually(t, func() bool {
		rules := alerter.Rules()
		return len(rules) == 1 && rules[0].ID == "only"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestNewRuleWatcher_MissingFile(t *testing.T) {
	_, err := NewRuleWatcher(filepath.Join(t.TempDir(), "missing.yaml"), AlertThresholds{}, NewAlerter(nil), nil)
	assert.Error(t, err)
}

func TestParseRules_Empty(t *testing.T) {
	_, err := ParseRules(nil, AlertThresholds{})
	assert.Error(t, err)
}
