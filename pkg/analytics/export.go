package analytics

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ExportFormat selects the serialization used by ExportMetrics
type ExportFormat string

const (
	FormatJSON   ExportFormat = "json"
	FormatCSV    ExportFormat = "csv"
	FormatNDJSON ExportFormat = "ndjson"
)

// ErrUnsupportedFormat is returned for unknown export formats
var ErrUnsupportedFormat = errors.New("unsupported export format")

var csvHeader = []string{"Date", "Sessions", "CTA CTR", "Form Completion Rate", "Bounce Rate", "Performance Score"}

// ParseExportFormat maps a user-supplied format name, defaulting to JSON
func ParseExportFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatCSV, FormatNDJSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// ContentType is the HTTP media type of the format
func (f ExportFormat) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatNDJSON:
		return "application/x-ndjson"
	default:
		return "application/json"
	}
}

// ExportMetrics serializes the stored summaries from start to end inclusive
func (a *Aggregator) ExportMetrics(ctx context.Context, start, end string, format ExportFormat) (string, error) {
	if _, err := ParseExportFormat(string(format)); err != nil {
		return "", err
	}
	metrics, err := a.GetMetricsRange(ctx, start, end)
	if err != nil {
		return "", err
	}
	return EncodeMetrics(metrics, format)
}

// EncodeMetrics serializes summaries in the given format
func EncodeMetrics(metrics []DailyMetrics, format ExportFormat) (string, error) {
	if metrics == nil {
		metrics = []DailyMetrics{}
	}
	switch format {
	case FormatJSON, "":
		return exportJSON(metrics)
	case FormatCSV:
		return exportCSV(metrics)
	case FormatNDJSON:
		return exportNDJSON(metrics)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func exportJSON(metrics []DailyMetrics) (string, error) {
	data, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metrics: %w", err)
	}
	return string(data), nil
}

func exportNDJSON(metrics []DailyMetrics) (string, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, m := range metrics {
		if err := encoder.Encode(m); err != nil {
			return "", fmt.Errorf("failed to encode metrics for %s: %w", m.Date, err)
		}
	}
	return buf.String(), nil
}

// exportCSV writes one row per day with rates as percentages to two
// decimals. There is no trailing newline after the last row.
func exportCSV(metrics []DailyMetrics) (string, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(csvHeader); err != nil {
		return "", fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, m := range metrics {
		row := []string{
			m.Date,
			strconv.Itoa(m.Sessions.Total),
			percent(m.CTAPerformance.CTR),
			percent(m.FormMetrics.CompletionRate),
			percent(m.Sessions.BounceRate),
			strconv.Itoa(m.PerformanceScore),
		}
		if err := writer.Write(row); err != nil {
			return "", fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("CSV writer error: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func percent(rate float64) string {
	return strconv.FormatFloat(rate*100, 'f', 2, 64)
}
