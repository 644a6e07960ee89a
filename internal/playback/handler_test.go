package playback

import (
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		message string
		url     string
		want    ErrorClass
	}{
		{"dns failure", "Temporary failure in name resolution", "https://example.com/v", ClassNetwork},
		{"timeout", "Connection timeout after 30s", "", ClassNetwork},
		{"http 404", "HTTP error 404 Not Found", "https://example.com/v", ClassMediaNotFound},
		{"missing file", "No such file or directory", "/music/gone.mp3", ClassMediaNotFound},
		{"members only", "This video is members only", "https://example.com/v", ClassAuthentication},
		{"forbidden", "HTTP 403 Forbidden", "https://example.com/v", ClassAuthentication},
		{"codec", "Failed to initialize a decoder", "/music/odd.webm", ClassSystem},
		{"gibberish local", "mysterious failure", "/music/a.mp3", ClassUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.message, tt.url, nil); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.message, got, tt.want)
			}
		})
	}
}

func TestClassifyOfflineFallback(t *testing.T) {
	offline := func() bool { return false }
	if got := Classify("mysterious failure", "https://example.com/v", offline); got != ClassNetwork {
		t.Errorf("remote failure while offline = %v, want %v", got, ClassNetwork)
	}
	if got := Classify("mysterious failure", "/music/a.mp3", offline); got != ClassUnknown {
		t.Errorf("local failure while offline = %v, want %v", got, ClassUnknown)
	}
}

func newTestHandler() (*Handler, *time.Time) {
	now := time.Unix(1_700_000_000, 0)
	h := NewHandler()
	h.now = func() time.Time { return now }
	return h, &now
}

func TestHandlerRetryBudget(t *testing.T) {
	h, _ := newTestHandler()

	// Network failures get three retries with doubling delay.
	wantDelays := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for i, want := range wantDelays {
		d := h.RecordFailure("connection reset", "https://example.com/v")
		if !d.Retry || d.Delay != want {
			t.Fatalf("attempt %d: retry=%v delay=%v, want retry with %v", i, d.Retry, d.Delay, want)
		}
		h.RecordSuccess("https://example.com/other") // keep the breaker out of the way
	}
	// Budget exhausted on the fourth attempt.
	if d := h.RecordFailure("connection reset", "https://example.com/v"); d.Retry {
		t.Errorf("retry offered past the budget: %+v", d)
	}
}

func TestHandlerPermanentErrorsNotRetried(t *testing.T) {
	h, _ := newTestHandler()
	d := h.RecordFailure("video unavailable", "https://example.com/gone")
	if d.Retry {
		t.Error("media_not_found should not be retried")
	}
	d = h.RecordFailure("login required", "https://example.com/locked")
	if d.Retry {
		t.Error("authentication should not be retried")
	}
}

func TestHandlerCircuitBreaker(t *testing.T) {
	h, now := newTestHandler()

	var tripped bool
	for i := 0; i < MaxConsecutiveFailures; i++ {
		if !h.AutoAdvanceAllowed() {
			t.Fatalf("auto-advance blocked before the breaker tripped (failure %d)", i)
		}
		d := h.RecordFailure("connection reset", "https://example.com/v")
		tripped = d.BreakerTripped
	}
	if !tripped {
		t.Fatal("breaker did not trip on the configured consecutive failures")
	}
	if h.AutoAdvanceAllowed() {
		t.Fatal("auto-advance allowed while the breaker is open")
	}

	// While open, no retries are offered.
	if d := h.RecordFailure("connection reset", "https://example.com/w"); d.Retry {
		t.Error("retry offered while the breaker is open")
	}

	// The breaker re-closes after the cooldown.
	*now = now.Add(BreakerCooldown + time.Second)
	if !h.AutoAdvanceAllowed() {
		t.Error("auto-advance still blocked after the cooldown")
	}
}

func TestHandlerSuccessClosesBreaker(t *testing.T) {
	h, _ := newTestHandler()
	for i := 0; i < MaxConsecutiveFailures; i++ {
		h.RecordFailure("connection reset", "https://example.com/v")
	}
	if h.AutoAdvanceAllowed() {
		t.Fatal("breaker should be open")
	}
	h.RecordSuccess("https://example.com/v")
	if !h.AutoAdvanceAllowed() {
		t.Error("breaker still open after a successful playback")
	}
	// The item's retry budget is fresh again.
	if d := h.RecordFailure("connection reset", "https://example.com/v"); !d.Retry || d.Delay != time.Second {
		t.Errorf("after success: retry=%v delay=%v, want first-attempt retry", d.Retry, d.Delay)
	}
}

func TestHandlerSummarize(t *testing.T) {
	h, now := newTestHandler()
	h.RecordFailure("connection reset", "https://example.com/a")
	*now = now.Add(2 * time.Hour)
	h.RecordFailure("video unavailable", "https://example.com/b")

	s := h.Summarize()
	if s.TotalRecent != 1 {
		t.Errorf("TotalRecent = %d, want 1 (older error aged out)", s.TotalRecent)
	}
	if s.ByClass[ClassMediaNotFound] != 1 {
		t.Errorf("ByClass = %v, want one media_not_found", s.ByClass)
	}
}
