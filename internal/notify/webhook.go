package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/silencesuzuka/playerd/internal/util"
)

// WebhookPayload represents the data sent to webhook endpoints.
type WebhookPayload struct {
	Event                  string  `json:"event"`
	Level                  float64 `json:"level,omitempty"`
	Threshold              float64 `json:"threshold,omitempty"`
	SilenceDurationSeconds float64 `json:"silence_duration_seconds,omitempty"`
	Message                string  `json:"message,omitempty"`
	Timestamp              string  `json:"timestamp"`
}

// SendSilenceWebhook notifies the configured webhook of sustained silence.
func SendSilenceWebhook(webhookURL string, level, threshold float64) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     "silence_detected",
		Level:     level,
		Threshold: threshold,
		Timestamp: timestampUTC(),
	})
}

// SendRecoveryWebhook notifies the configured webhook that audio resumed.
func SendRecoveryWebhook(webhookURL string, silenceFor time.Duration, level, threshold float64) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:                  "silence_recovered",
		Level:                  level,
		Threshold:              threshold,
		SilenceDurationSeconds: silenceFor.Seconds(),
		Message:                "Audio resumed after " + util.FormatDuration(silenceFor),
		Timestamp:              timestampUTC(),
	})
}

// SendTestWebhook sends a test webhook notification.
func SendTestWebhook(webhookURL string) error {
	if webhookURL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     "test",
		Message:   "This is a test notification from " + AppName + " sent " + util.HumanTime(),
		Timestamp: timestampUTC(),
	})
}

// sendWebhook delivers a notification to the configured webhook endpoint.
func sendWebhook(webhookURL string, payload *WebhookPayload) error {
	if !util.IsConfigured(webhookURL) {
		return nil // Silently skip if not configured
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return util.WrapError("send webhook request", err)
	}
	defer resp.Body.Close() //nolint:errcheck // Response body close error not actionable

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
