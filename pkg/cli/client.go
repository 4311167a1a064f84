package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/funnelpulse/pkg/analytics"
	"github.com/platinummonkey/funnelpulse/pkg/api"
	"github.com/platinummonkey/funnelpulse/pkg/httputil"
)

const defaultServerURL = "http://localhost:8080"

// APIError is a non-2xx response from the server
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client calls the admin endpoints of funnel-server
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *logrus.Logger
}

// NewClient creates a client. A nil httpClient gets a 30 second timeout and a
// nil logger discards output.
func NewClient(baseURL, token string, httpClient *http.Client, logger *logrus.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
		logger:  logger,
	}
}

// Aggregate runs the daily aggregation for date on the server
func (c *Client) Aggregate(ctx context.Context, date string) (*api.AggregateResponse, error) {
	query := url.Values{}
	if date != "" {
		query.Set("date", date)
	}
	body, err := c.do(ctx, http.MethodPost, "/api/v1/metrics/aggregate", query)
	if err != nil {
		return nil, err
	}
	var resp api.AggregateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode aggregate response: %w", err)
	}
	return &resp, nil
}

// Trends fetches the trend analysis for the last days days
func (c *Client) Trends(ctx context.Context, days int) (*analytics.TrendAnalysis, error) {
	query := url.Values{"days": {strconv.Itoa(days)}}
	body, err := c.do(ctx, http.MethodGet, "/api/v1/metrics/trends", query)
	if err != nil {
		return nil, err
	}
	var report analytics.TrendAnalysis
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, fmt.Errorf("failed to decode trend analysis: %w", err)
	}
	return &report, nil
}

// Export downloads the stored summaries from start to end in format
func (c *Client) Export(ctx context.Context, start, end string, format analytics.ExportFormat) ([]byte, error) {
	query := url.Values{
		"start":  {start},
		"end":    {end},
		"format": {string(format)},
	}
	return c.do(ctx, http.MethodGet, "/api/v1/metrics/export", query)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("API call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr httputil.ErrorResponse
		message := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			message = apiErr.Error
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: message}
	}
	return body, nil
}

// clientFlags are shared by every command that talks to the server
type clientFlags struct {
	server  *string
	token   *string
	timeout *time.Duration
	verbose *bool
}

func addClientFlags(fs *flag.FlagSet) *clientFlags {
	server := os.Getenv("FUNNEL_SERVER_URL")
	if server == "" {
		server = defaultServerURL
	}
	return &clientFlags{
		server:  fs.String("server", server, "funnel-server base URL (default FUNNEL_SERVER_URL)"),
		token:   fs.String("token", os.Getenv("FUNNEL_ADMIN_TOKEN"), "Admin bearer token (default FUNNEL_ADMIN_TOKEN)"),
		timeout: fs.Duration("timeout", 30*time.Second, "Per request timeout"),
		verbose: fs.Bool("v", false, "Log every API call"),
	}
}

func (f *clientFlags) client(logger *logrus.Logger) *Client {
	return NewClient(*f.server, *f.token, &http.Client{Timeout: *f.timeout}, logger)
}

func (f *clientFlags) logger() *logrus.Logger {
	return setupLogger(*f.verbose)
}

func setupLogger(verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetLevel(logrus.InfoLevel)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
