package webhooks

import (
	"context"
	"fmt"
	"strings"

	"github.com/platinummonkey/funnelpulse/pkg/analytics"
)

const slackFooter = "Funnel Conversion Monitor"

// SlackMessage represents a Slack webhook message
type SlackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment represents a Slack attachment
type SlackAttachment struct {
	Color  string       `json:"color,omitempty"`
	Title  string       `json:"title,omitempty"`
	Text   string       `json:"text,omitempty"`
	Fields []SlackField `json:"fields,omitempty"`
	Footer string       `json:"footer,omitempty"`
	Ts     int64        `json:"ts,omitempty"`
}

// SlackField represents a field in a Slack attachment
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// SlackConfig configures the Slack incoming webhook
type SlackConfig struct {
	WebhookURL string
	Channel    string
	Username   string
}

// SlackNotifier posts alerts to a Slack incoming webhook
type SlackNotifier struct {
	config SlackConfig
	sender *Sender
}

// NewSlackNotifier creates a Slack notifier
func NewSlackNotifier(config SlackConfig, sender *Sender) *SlackNotifier {
	if sender == nil {
		sender = NewSender(nil, nil)
	}
	return &SlackNotifier{config: config, sender: sender}
}

// Channel implements analytics.Notifier
func (n *SlackNotifier) Channel() analytics.Channel {
	return analytics.ChannelSlack
}

// Notify implements analytics.Notifier
func (n *SlackNotifier) Notify(ctx context.Context, alert analytics.Alert) error {
	msg := FormatSlackAlert(alert)
	msg.Channel = n.config.Channel
	msg.Username = n.config.Username
	return n.sender.PostJSON(ctx, n.config.WebhookURL, msg, nil, "")
}

// NotifyResolved implements analytics.ResolutionNotifier
func (n *SlackNotifier) NotifyResolved(ctx context.Context, alert analytics.Alert) error {
	msg := FormatSlackResolution(alert)
	msg.Channel = n.config.Channel
	msg.Username = n.config.Username
	return n.sender.PostJSON(ctx, n.config.WebhookURL, msg, nil, "")
}

// FormatSlackAlert formats a fired alert as a Slack message
func FormatSlackAlert(alert analytics.Alert) SlackMessage {
	return SlackMessage{
		Attachments: []SlackAttachment{
			{
				Color: severityColor(alert.Severity),
				Title: severityEmoji(alert.Severity) + " " + alert.Title,
				Text:  alert.Description,
				Fields: []SlackField{
					{Title: "Current Value", Value: formatPercent(alert.Value), Short: true},
					{Title: "Threshold", Value: formatPercent(alert.Threshold), Short: true},
					{Title: "Severity", Value: strings.ToUpper(string(alert.Severity)), Short: true},
					{Title: "Time", Value: alert.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"), Short: true},
				},
				Footer: slackFooter,
				Ts:     alert.Timestamp.Unix(),
			},
		},
	}
}

// FormatSlackResolution formats a resolved alert as a Slack message
func FormatSlackResolution(alert analytics.Alert) SlackMessage {
	ts := alert.Timestamp.Unix()
	if alert.ResolvedAt != nil {
		ts = alert.ResolvedAt.Unix()
	}
	return SlackMessage{
		Text: "✅ Alert resolved: " + alert.Title,
		Attachments: []SlackAttachment{
			{
				Color:  "good",
				Text:   "The condition that triggered this alert has been resolved.",
				Footer: slackFooter,
				Ts:     ts,
			},
		},
	}
}

func severityColor(s analytics.Severity) string {
	switch s {
	case analytics.SeverityCritical:
		return "danger"
	case analytics.SeverityHigh:
		return "warning"
	default:
		return "good"
	}
}

func severityEmoji(s analytics.Severity) string {
	switch s {
	case analytics.SeverityCritical:
		return "🚨"
	case analytics.SeverityHigh:
		return "🔴"
	case analytics.SeverityMedium:
		return "🟡"
	default:
		return "⚠️"
	}
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}
