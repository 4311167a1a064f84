package analytics

import (
	"errors"
	"fmt"
	"time"
)

// Schedule names how often aggregation runs
type Schedule string

const (
	ScheduleDaily  Schedule = "daily"
	ScheduleHourly Schedule = "hourly"
)

// AlertThresholds are the relative day-over-day changes that raise drop alerts
type AlertThresholds struct {
	CTRDrop            float64 `json:"ctr_drop" yaml:"ctr_drop"`
	FormCompletionDrop float64 `json:"form_completion_drop" yaml:"form_completion_drop"`
	BounceRateSpike    float64 `json:"bounce_rate_spike" yaml:"bounce_rate_spike"`
}

// AggregationConfig controls the aggregator
type AggregationConfig struct {
	// Namespace is the key-value namespace shared by ingest and aggregation
	Namespace string
	// RetentionDays is how long raw events are kept after their day is aggregated
	RetentionDays int
	Schedule      Schedule
	// Location decides which calendar day "today" is. nil means time.Local.
	Location *time.Location
	// MaxDropoutFields caps dropout_points to the most frequent fields; 0 keeps all
	MaxDropoutFields int
	// MaxBackfillDays limits one backfill; 0 means MaxRangeDays
	MaxBackfillDays int
	AlertThresholds AlertThresholds
}

// DefaultAggregationConfig returns the production defaults
func DefaultAggregationConfig() AggregationConfig {
	return AggregationConfig{
		Namespace:     "funnel_telemetry",
		RetentionDays: 90,
		Schedule:      ScheduleDaily,
		AlertThresholds: AlertThresholds{
			CTRDrop:            0.2,
			FormCompletionDrop: 0.15,
			BounceRateSpike:    0.1,
		},
		MaxBackfillDays: MaxRangeDays,
	}
}

// Validate checks the configuration for values the aggregator cannot use
func (c AggregationConfig) Validate() error {
	var errs []error
	if c.RetentionDays < 1 {
		errs = append(errs, fmt.Errorf("retention days must be at least 1, got %d", c.RetentionDays))
	}
	if c.MaxDropoutFields < 0 {
		errs = append(errs, fmt.Errorf("max dropout fields cannot be negative, got %d", c.MaxDropoutFields))
	}
	if c.MaxBackfillDays < 0 {
		errs = append(errs, fmt.Errorf("max backfill days cannot be negative, got %d", c.MaxBackfillDays))
	}
	switch c.Schedule {
	case ScheduleDaily, ScheduleHourly, "":
	default:
		errs = append(errs, fmt.Errorf("unknown schedule %q", c.Schedule))
	}
	return errors.Join(errs...)
}

func (c AggregationConfig) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}
