package playback

import (
	"log/slog"
	"sync"
	"time"

	"github.com/silencesuzuka/playerd/internal/util"
)

// Policy constants, tuned for a desktop player where a stuck playlist is
// worse than a skipped track.
const (
	// MaxConsecutiveFailures trips the circuit breaker.
	MaxConsecutiveFailures = 3
	// BreakerCooldown is how long auto-advance stays paused after the
	// breaker trips.
	BreakerCooldown = 60 * time.Second

	// Retry backoff per item.
	initialRetryDelay = 1 * time.Second
	maxRetryDelay     = 30 * time.Second

	// errorHistoryLimit bounds the kept error records.
	errorHistoryLimit = 100
)

// Retry budgets per error class. Permanent failures are skipped rather
// than retried.
var maxRetries = map[ErrorClass]int{
	ClassNetwork:        3,
	ClassSystem:         2,
	ClassAuthentication: 0,
	ClassMediaNotFound:  0,
	ClassUnknown:        1,
}

// ErrorRecord is one recorded playback failure.
type ErrorRecord struct {
	Time    time.Time  `json:"time"`
	Class   ErrorClass `json:"class"`
	Message string     `json:"message"`
	URL     string     `json:"url"`
	Retry   int        `json:"retry"`
}

// Decision tells the engine what to do after a failure.
type Decision struct {
	Class ErrorClass
	// Retry is true when the same item should be tried again after Delay.
	Retry bool
	Delay time.Duration
	// BreakerTripped is true when this failure tripped the circuit
	// breaker.
	BreakerTripped bool
}

// Summary is a point-in-time view of the error state for the UI.
type Summary struct {
	TotalRecent         int                `json:"total_recent"`
	ByClass             map[ErrorClass]int `json:"by_class,omitempty"`
	ConsecutiveFailures int                `json:"consecutive_failures"`
	BreakerActive       bool               `json:"breaker_active"`
	BreakerRemaining    float64            `json:"breaker_remaining_seconds,omitempty"`
}

// Handler tracks playback failures and gates retries and auto-advance.
// It is a pure state machine over an injected clock and is safe for
// concurrent use.
type Handler struct {
	// Online, when set, is consulted during classification of otherwise
	// unmatched failures of remote URLs.
	Online func() bool

	now func() time.Time

	mu          sync.Mutex
	history     []ErrorRecord
	consecutive int
	retries     map[string]int           // url -> attempts so far
	backoffs    map[string]*util.Backoff // url -> retry delay state
	breakerAt   time.Time                // zero when the breaker is closed
}

// NewHandler creates a handler using the real clock.
func NewHandler() *Handler {
	return &Handler{
		now:      time.Now,
		retries:  make(map[string]int),
		backoffs: make(map[string]*util.Backoff),
	}
}

// RecordFailure records a playback failure and returns what to do next.
func (h *Handler) RecordFailure(message, url string) Decision {
	h.mu.Lock()
	defer h.mu.Unlock()

	class := Classify(message, url, h.Online)
	attempt := h.retries[url]

	h.history = append(h.history, ErrorRecord{
		Time:    h.now(),
		Class:   class,
		Message: message,
		URL:     url,
		Retry:   attempt,
	})
	if len(h.history) > errorHistoryLimit {
		h.history = h.history[len(h.history)-errorHistoryLimit:]
	}

	h.consecutive++
	h.retries[url] = attempt + 1

	tripped := false
	if h.consecutive >= MaxConsecutiveFailures && h.breakerAt.IsZero() {
		h.breakerAt = h.now()
		tripped = true
		slog.Warn("playback circuit breaker tripped",
			"consecutive_failures", h.consecutive, "cooldown", BreakerCooldown)
	}

	d := Decision{Class: class, BreakerTripped: tripped}
	if !h.breakerActiveLocked() && attempt < maxRetries[class] {
		d.Retry = true
		d.Delay = h.backoffLocked(url).Next()
	}
	return d
}

// backoffLocked returns the retry backoff for url, creating it on first
// use. Caller must hold h.mu.
func (h *Handler) backoffLocked(url string) *util.Backoff {
	b := h.backoffs[url]
	if b == nil {
		b = util.NewBackoff(initialRetryDelay, maxRetryDelay)
		h.backoffs[url] = b
	}
	return b
}

// RecordSuccess resets error tracking after a successful playback.
func (h *Handler) RecordSuccess(url string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutive = 0
	delete(h.retries, url)
	delete(h.backoffs, url)
	if !h.breakerAt.IsZero() {
		slog.Info("playback circuit breaker closed after successful playback")
		h.breakerAt = time.Time{}
	}
}

// AutoAdvanceAllowed reports whether the engine may advance the queue.
// The breaker re-closes on its own after the cooldown.
func (h *Handler) AutoAdvanceAllowed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.breakerActiveLocked()
}

// ResetBreaker closes the breaker on explicit user request.
func (h *Handler) ResetBreaker() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.breakerAt = time.Time{}
	h.consecutive = 0
}

// Summarize reports errors from the last hour plus breaker state.
func (h *Handler) Summarize() Summary {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := h.now().Add(-time.Hour)
	s := Summary{
		ConsecutiveFailures: h.consecutive,
		BreakerActive:       h.breakerActiveLocked(),
	}
	if s.BreakerActive {
		s.BreakerRemaining = (BreakerCooldown - h.now().Sub(h.breakerAt)).Seconds()
	}
	for _, rec := range h.history {
		if rec.Time.Before(cutoff) {
			continue
		}
		s.TotalRecent++
		if s.ByClass == nil {
			s.ByClass = make(map[ErrorClass]int)
		}
		s.ByClass[rec.Class]++
	}
	return s
}

func (h *Handler) breakerActiveLocked() bool {
	if h.breakerAt.IsZero() {
		return false
	}
	if h.now().Sub(h.breakerAt) > BreakerCooldown {
		slog.Info("playback circuit breaker cooldown expired, resuming auto-advance")
		h.breakerAt = time.Time{}
		h.consecutive = 0
		return false
	}
	return true
}
