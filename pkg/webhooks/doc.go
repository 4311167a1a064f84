// Package webhooks delivers conversion alerts to Slack and generic JSON
// webhooks.
//
// # Overview
//
// SlackNotifier and WebhookNotifier implement analytics.Notifier. Both post
// through a Sender, which retries transient failures with exponential
// backoff and treats any non-2xx response as a failure.
//
// # Usage Example
//
//	sender := webhooks.NewSender(nil, webhooks.NewRetryPolicy(webhooks.DefaultRetryConfig()))
//	slack := webhooks.NewSlackNotifier(webhooks.SlackConfig{
//		WebhookURL: os.Getenv("FUNNEL_SLACK_WEBHOOK_URL"),
//		Channel:    "#alerts",
//	}, sender)
//	alerter := analytics.NewAlerter(rules, analytics.WithNotifiers(slack))
//
// Verify signature (receiver side):
//
//	sig := r.Header.Get(webhooks.SignatureHeader)
//	if !webhooks.VerifySignature(body, sig, secret) {
//		return errors.New("invalid signature")
//	}
//
// # Retry Policy
//
// Exponential backoff: 500ms, 1s, 2s capped at 10s
// Max attempts: 3
// 4xx responses other than 429 are not retried
package webhooks
