package analytics

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the calendar-day format used in keys and summaries
const DateLayout = "2006-01-02"

const (
	rawEventsPrefix    = "raw_events_"
	dailyMetricsPrefix = "daily_metrics_"
)

// ErrInvalidDate is returned for dates not in YYYY-MM-DD form
var ErrInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")

// RawEventsKey is the key holding the JSON array of a day's raw events
func RawEventsKey(date string) string {
	return rawEventsPrefix + date
}

// DailyMetricsKey is the key holding a day's summary
func DailyMetricsKey(date string) string {
	return dailyMetricsPrefix + date
}

// ParseDate parses a YYYY-MM-DD date at midnight in loc
func ParseDate(date string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return t, nil
}

// MaxRangeDays is the default limit on the number of days a range may span
const MaxRangeDays = 366

// DateRange lists every date from start to end inclusive. An end before
// start yields an empty range. A range longer than maxDays days is an
// ErrInvalidDate; maxDays <= 0 means MaxRangeDays.
func DateRange(start, end string, loc *time.Location, maxDays int) ([]string, error) {
	from, err := ParseDate(start, loc)
	if err != nil {
		return nil, err
	}
	to, err := ParseDate(end, loc)
	if err != nil {
		return nil, err
	}
	if maxDays <= 0 {
		maxDays = MaxRangeDays
	}
	if !to.Before(from.AddDate(0, 0, maxDays)) {
		return nil, fmt.Errorf("%w: %s to %s spans more than %d days", ErrInvalidDate, start, end, maxDays)
	}

	var dates []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(DateLayout))
	}
	return dates, nil
}
