package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateRange(t *testing.T) {
	dates, err := DateRange("2024-02-27", "2024-03-01", time.UTC, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-02-27", "2024-02-28", "2024-02-29", "2024-03-01"}, dates)

	dates, err = DateRange("2024-03-02", "2024-03-01", time.UTC, 0)
	require.NoError(t, err)
	assert.Empty(t, dates)

	_, err = DateRange("2024-03-01", "tomorrow", time.UTC, 0)
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestDateRange_SpanLimit(t *testing.T) {
	tests := []struct {
		name    string
		start   string
		end     string
		maxDays int
		days    int
		wantErr bool
	}{
		{name: "default limit exactly", start: "2024-01-01", end: "2024-12-31", days: MaxRangeDays},
		{name: "default limit exceeded", start: "2024-01-01", end: "2025-01-01", wantErr: true},
		{name: "whole calendar", start: "0001-01-01", end: "9999-12-31", wantErr: true},
		{name: "custom limit", start: "2025-03-01", end: "2025-03-03", maxDays: 3, days: 3},
		{name: "custom limit exceeded", start: "2025-03-01", end: "2025-03-04", maxDays: 3, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dates, err := DateRange(tt.start, tt.end, time.UTC, tt.maxDays)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDate)
				assert.ErrorContains(t, err, "spans more than")
				assert.Nil(t, dates)
				return
			}
			require.NoError(t, err)
			assert.Len(t, dates, tt.days)
		})
	}
}
