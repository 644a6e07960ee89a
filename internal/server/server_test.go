package server

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/silencesuzuka/playerd/internal/audio"
	"github.com/silencesuzuka/playerd/internal/config"
	"github.com/silencesuzuka/playerd/internal/engine"
)

func newTestHandler(t *testing.T) (*CommandHandler, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.New(filepath.Join(dir, "config.json"))
	if err := cfg.Load(); err != nil {
		t.Fatalf("config load: %v", err)
	}
	eng, err := engine.New(cfg, dir, func() (audio.Transport, error) {
		return nil, fmt.Errorf("%w: test", audio.ErrSubsystemUnavailable)
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return NewCommandHandler(cfg, eng), cfg
}

func command(t *testing.T, cmdType string, data any) WSCommand {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	return WSCommand{Type: cmdType, Data: raw}
}

// runCommand dispatches and returns the first response.
func runCommand(t *testing.T, h *CommandHandler, cmd WSCommand) map[string]any {
	t.Helper()
	send := make(chan any, 16)
	h.Handle(cmd, send, func() {})
	select {
	case msg := <-send:
		resp, ok := msg.(map[string]any)
		if !ok {
			t.Fatalf("response is %T, want map", msg)
		}
		return resp
	default:
		t.Fatal("no response sent")
		return nil
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:8765", true},
		{"http://[::1]:8765", true},
		{"http://192.168.1.20", true},
		{"https://example.com", false},
		{"http://8.8.8.8", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			r := httptest.NewRequest("GET", "http://127.0.0.1:8765/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestDetectorUpdateRejectsInvalidThreshold(t *testing.T) {
	h, cfg := newTestHandler(t)

	resp := runCommand(t, h, command(t, "detector/update", map[string]any{
		"silence_threshold": 2.0,
	}))
	if resp["success"] != false {
		t.Fatalf("response = %v, want validation failure", resp)
	}
	if got := cfg.Snapshot().Detector.SilenceThreshold; got != config.DefaultSilenceThreshold {
		t.Errorf("threshold changed to %v after rejected update", got)
	}
}

func TestDetectorUpdatePersistsPartialChange(t *testing.T) {
	h, cfg := newTestHandler(t)

	resp := runCommand(t, h, command(t, "detector/update", map[string]any{
		"silence_threshold": 0.05,
		"resume_threshold":  0.08,
	}))
	if resp["success"] != true {
		t.Fatalf("response = %v, want success", resp)
	}

	snap := cfg.Snapshot().Detector
	if snap.SilenceThreshold != 0.05 || snap.ResumeThreshold != 0.08 {
		t.Errorf("thresholds = %v/%v, want 0.05/0.08", snap.SilenceThreshold, snap.ResumeThreshold)
	}
	// Untouched fields keep their values.
	if snap.SilenceDurationSeconds != config.DefaultSilenceDurationSeconds {
		t.Errorf("SilenceDurationSeconds = %d, want default", snap.SilenceDurationSeconds)
	}
}

func TestQueueSuggestRejectsOutOfRangeIndex(t *testing.T) {
	h, _ := newTestHandler(t)

	resp := runCommand(t, h, command(t, "queue/suggest", map[string]any{
		"playlist":      []map[string]any{{"type": "local", "url": "/a.mp3"}},
		"current_index": 5,
	}))
	if resp["success"] != false {
		t.Errorf("response = %v, want failure for out-of-range index", resp)
	}
}

func TestPlaybackErrorReturnsDecision(t *testing.T) {
	h, _ := newTestHandler(t)

	resp := runCommand(t, h, command(t, "playback/error", map[string]any{
		"message": "connection reset",
		"url":     "https://youtu.be/x",
	}))
	if resp["success"] != true {
		t.Fatalf("response = %v, want success", resp)
	}
	data, ok := resp["data"].(map[string]any)
	if !ok {
		t.Fatalf("data = %T, want map", resp["data"])
	}
	if data["retry"] != true {
		t.Errorf("decision = %v, want retry for a network error", data)
	}
}

func TestEventLogReadEmpty(t *testing.T) {
	h, _ := newTestHandler(t)

	resp := runCommand(t, h, command(t, "eventlog/read", map[string]any{}))
	if resp["success"] != true {
		t.Fatalf("response = %v, want success", resp)
	}
	data := resp["data"].(map[string]any)
	if data["has_more"] != false {
		t.Errorf("has_more = %v for empty log", data["has_more"])
	}
}

func TestWebhookUpdateRejectsBadURL(t *testing.T) {
	h, _ := newTestHandler(t)

	resp := runCommand(t, h, command(t, "notifications/webhook/update", map[string]any{
		"url": "not a url",
	}))
	if resp["success"] != false {
		t.Errorf("response = %v, want validation failure", resp)
	}
}

func TestLogUpdateRejectsTraversalPath(t *testing.T) {
	h, cfg := newTestHandler(t)

	resp := runCommand(t, h, command(t, "notifications/log/update", map[string]any{
		"path": "../../etc/silence.log",
	}))
	if resp["success"] != false {
		t.Fatalf("response = %v, want failure for traversal path", resp)
	}
	if got := cfg.Snapshot().LogPath; got != "" {
		t.Errorf("log path set to %q after rejected update", got)
	}
}

func TestResponseAfterDisconnectDoesNotPanic(t *testing.T) {
	closed := make(chan any)
	close(closed)

	// Direct response on a closed channel is dropped.
	trySend(closed, "detector/devices", map[string]any{"success": true})

	// An async action finishing after the client went away must not take
	// the process down either.
	gate := make(chan struct{})
	returned := make(chan struct{})
	HandleActionAsync(WSCommand{Type: "detector/devices"}, closed, func() (any, error) {
		<-gate
		defer close(returned)
		return nil, nil
	})
	close(gate)
	<-returned
	time.Sleep(50 * time.Millisecond)
}

func TestHubBroadcastSkipsSlowClients(t *testing.T) {
	hub := NewHub()
	fast := make(chan any, 4)
	slow := make(chan any) // unbuffered and never read
	hub.Register(fast)
	hub.Register(slow)
	defer hub.Unregister(fast)
	defer hub.Unregister(slow)

	hub.Broadcast("ping") // must not block on the slow client

	select {
	case msg := <-fast:
		if msg != "ping" {
			t.Errorf("broadcast delivered %v", msg)
		}
	default:
		t.Error("fast client did not receive broadcast")
	}
	if hub.ClientCount() != 2 {
		t.Errorf("ClientCount() = %d, want 2", hub.ClientCount())
	}
}

func TestUnknownCommandTriggersStatus(t *testing.T) {
	h, _ := newTestHandler(t)
	send := make(chan any, 1)
	triggered := false
	h.Handle(WSCommand{Type: "bogus/thing"}, send, func() { triggered = true })
	if !triggered {
		t.Error("status update not triggered")
	}
}
