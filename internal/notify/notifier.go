// Package notify delivers silence notifications to the channels the
// user configured: an outbound webhook and a local JSON lines log.
// Notifications fire once per silence run, on the sustained-silence
// event, with a matching recovery message when audio resumes.
package notify

import (
	"sync"
	"time"

	"github.com/silencesuzuka/playerd/internal/audio"
	"github.com/silencesuzuka/playerd/internal/config"
	"github.com/silencesuzuka/playerd/internal/util"
)

// SilenceNotifier manages notifications for silence detection events.
type SilenceNotifier struct {
	cfg *config.Config

	now func() time.Time

	// mu protects the notification state fields below
	mu sync.Mutex

	// Track which notifications have been sent for current silence period
	webhookSent bool
	logSent     bool

	// silenceSince marks when the current silence run began.
	silenceSince time.Time
}

// NewSilenceNotifier returns a SilenceNotifier configured with the given config.
func NewSilenceNotifier(cfg *config.Config) *SilenceNotifier {
	return &SilenceNotifier{cfg: cfg, now: time.Now}
}

// HandleEvent processes a detector event and triggers notifications.
func (n *SilenceNotifier) HandleEvent(event audio.Event) {
	switch event.Kind {
	case audio.EventStateChange:
		if event.State == audio.Silent {
			n.mu.Lock()
			n.silenceSince = n.now()
			n.mu.Unlock()
			return
		}
		n.handleRecovery(event.Level)
	case audio.EventSustainedSilence:
		n.handleSustained(event.Level)
	}
}

// handleSustained triggers notifications when silence crosses the
// sustained threshold.
func (n *SilenceNotifier) handleSustained(level float64) {
	cfg := n.cfg.Snapshot()

	n.trySend(&n.webhookSent, cfg.HasWebhook(), func() { n.sendSilenceWebhook(cfg, level) })
	n.trySend(&n.logSent, cfg.HasLogPath(), func() { n.logSilenceStart(cfg, level) })
}

// trySend sends a notification if the condition is met and not already sent.
func (n *SilenceNotifier) trySend(sent *bool, condition bool, sender func()) {
	n.mu.Lock()
	shouldSend := !*sent && condition
	if shouldSend {
		*sent = true
	}
	n.mu.Unlock()
	if shouldSend {
		go sender()
	}
}

// handleRecovery triggers recovery notifications when audio resumes.
func (n *SilenceNotifier) handleRecovery(level float64) {
	cfg := n.cfg.Snapshot()

	// Only send recovery notifications if we sent the corresponding start notification
	n.mu.Lock()
	shouldSendWebhookRecovery := n.webhookSent
	shouldSendLogRecovery := n.logSent
	var silenceFor time.Duration
	if !n.silenceSince.IsZero() {
		silenceFor = n.now().Sub(n.silenceSince)
	}
	// Reset notification state for next silence period
	n.webhookSent = false
	n.logSent = false
	n.silenceSince = time.Time{}
	n.mu.Unlock()

	if shouldSendWebhookRecovery {
		go n.sendRecoveryWebhook(cfg, silenceFor, level)
	}

	if shouldSendLogRecovery {
		go n.logSilenceEnd(cfg, silenceFor, level)
	}
}

// Reset clears the notification state.
func (n *SilenceNotifier) Reset() {
	n.mu.Lock()
	n.webhookSent = false
	n.logSent = false
	n.silenceSince = time.Time{}
	n.mu.Unlock()
}

func (n *SilenceNotifier) sendSilenceWebhook(cfg config.Snapshot, level float64) {
	util.LogNotifyResult(
		func() error { return SendSilenceWebhook(cfg.WebhookURL, level, cfg.Detector.SilenceThreshold) },
		"Silence webhook",
	)
}

func (n *SilenceNotifier) sendRecoveryWebhook(cfg config.Snapshot, silenceFor time.Duration, level float64) {
	util.LogNotifyResult(
		func() error {
			return SendRecoveryWebhook(cfg.WebhookURL, silenceFor, level, cfg.Detector.SilenceThreshold)
		},
		"Recovery webhook",
	)
}

func (n *SilenceNotifier) logSilenceStart(cfg config.Snapshot, level float64) {
	util.LogNotifyResult(
		func() error { return LogSilenceStart(cfg.LogPath, level, cfg.Detector.SilenceThreshold) },
		"Silence log",
	)
}

func (n *SilenceNotifier) logSilenceEnd(cfg config.Snapshot, silenceFor time.Duration, level float64) {
	util.LogNotifyResult(
		func() error { return LogSilenceEnd(cfg.LogPath, silenceFor, level, cfg.Detector.SilenceThreshold) },
		"Recovery log",
	)
}
