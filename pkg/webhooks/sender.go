package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// SignatureHeader carries the HMAC-SHA256 of the request body
const SignatureHeader = "X-Funnel-Signature"

// ErrDeliveryFailed wraps every notification that could not be delivered
var ErrDeliveryFailed = errors.New("notification delivery failed")

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request returned non-2xx status: %d", e.StatusCode)
}

// Sender posts JSON payloads with retries
type Sender struct {
	client *http.Client
	retry  *RetryPolicy
}

// NewSender creates a sender. A nil client gets a traced client with a
// 10 second timeout.
func NewSender(client *http.Client, retry *RetryPolicy) *Sender {
	if client == nil {
		client = &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if retry == nil {
		retry = NewRetryPolicy(DefaultRetryConfig())
	}
	return &Sender{client: client, retry: retry}
}

// PostJSON marshals payload and posts it to url. When secret is set the
// body is signed into SignatureHeader.
func (s *Sender) PostJSON(ctx context.Context, url string, payload interface{}, headers map[string]string, secret string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	err = s.retry.Do(ctx, func(ctx context.Context) error {
		return s.post(ctx, url, data, headers, secret)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	return nil
}

func (s *Sender) post(ctx context.Context, url string, data []byte, headers map[string]string, secret string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "funnelpulse-notifier/1.0")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if secret != "" {
		req.Header.Set(SignatureHeader, generateSignature(data, secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

// VerifySignature verifies the webhook signature
func VerifySignature(payload []byte, signature, secret string) bool {
	expected := generateSignature(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// generateSignature generates HMAC-SHA256 signature
func generateSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
