package webhooks

import (
	"context"

	"github.com/platinummonkey/funnelpulse/pkg/analytics"
)

// AlertEventType is the event name of every webhook envelope
const AlertEventType = "conversion_alert"

const alertSource = "funnelpulse_monitor"

// AlertEnvelope is the body posted to generic webhooks
type AlertEnvelope struct {
	Event string       `json:"event"`
	Alert AlertPayload `json:"alert"`
}

// AlertPayload is an alert tagged with its source
type AlertPayload struct {
	analytics.Alert
	Source string `json:"source"`
}

// WebhookConfig configures a generic JSON webhook
type WebhookConfig struct {
	URL     string
	Headers map[string]string
	// Secret signs each body into SignatureHeader when set
	Secret string
}

// WebhookNotifier posts alerts as JSON envelopes
type WebhookNotifier struct {
	config WebhookConfig
	sender *Sender
}

// NewWebhookNotifier creates a webhook notifier
func NewWebhookNotifier(config WebhookConfig, sender *Sender) *WebhookNotifier {
	if sender == nil {
		sender = NewSender(nil, nil)
	}
	return &WebhookNotifier{config: config, sender: sender}
}

// Channel implements analytics.Notifier
func (n *WebhookNotifier) Channel() analytics.Channel {
	return analytics.ChannelWebhook
}

// Notify implements analytics.Notifier
func (n *WebhookNotifier) Notify(ctx context.Context, alert analytics.Alert) error {
	return n.sender.PostJSON(ctx, n.config.URL, NewAlertEnvelope(alert), n.config.Headers, n.config.Secret)
}

// NewAlertEnvelope wraps alert for delivery
func NewAlertEnvelope(alert analytics.Alert) AlertEnvelope {
	return AlertEnvelope{
		Event: AlertEventType,
		Alert: AlertPayload{Alert: alert, Source: alertSource},
	}
}
