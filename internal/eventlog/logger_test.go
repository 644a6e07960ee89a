package eventlog

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	l, err := NewLogger(filepath.Join(t.TempDir(), "events.jsonl"))
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLogAndReadBack(t *testing.T) {
	l := newTestLogger(t)

	if err := l.LogSilence(SustainedSilence, 0.01, 0.03, 300*time.Second); err != nil {
		t.Fatalf("LogSilence() error = %v", err)
	}
	if err := l.LogCapture(CaptureOpened, "Monitor of Built-in Audio", ""); err != nil {
		t.Fatalf("LogCapture() error = %v", err)
	}
	if err := l.LogFetch("https://youtu.be/x", 245, "yt-dlp", ""); err != nil {
		t.Fatalf("LogFetch() error = %v", err)
	}

	events, hasMore, err := ReadLast(l.Path(), 10, 0, FilterAll)
	if err != nil {
		t.Fatalf("ReadLast() error = %v", err)
	}
	if hasMore {
		t.Error("hasMore = true with everything read")
	}
	if len(events) != 3 {
		t.Fatalf("read %d events, want 3", len(events))
	}
	// Newest first.
	if events[0].Type != FetchCompleted || events[2].Type != SustainedSilence {
		t.Errorf("order = %v, %v, %v; want newest first", events[0].Type, events[1].Type, events[2].Type)
	}
	if events[0].Timestamp.IsZero() {
		t.Error("timestamp not filled in")
	}
}

func TestReadLastFiltersAndPaginates(t *testing.T) {
	l := newTestLogger(t)
	for i := 0; i < 5; i++ {
		if err := l.LogPresence(UserIdle, time.Minute); err != nil {
			t.Fatal(err)
		}
		if err := l.LogCapture(CaptureError, "dev", "gone"); err != nil {
			t.Fatal(err)
		}
	}

	events, hasMore, err := ReadLast(l.Path(), 2, 0, FilterPresence)
	if err != nil {
		t.Fatalf("ReadLast() error = %v", err)
	}
	if len(events) != 2 || !hasMore {
		t.Fatalf("got %d events, hasMore=%v; want 2 with more available", len(events), hasMore)
	}
	for _, ev := range events {
		if ev.Type != UserIdle {
			t.Errorf("filtered read returned %v", ev.Type)
		}
	}

	events, hasMore, err = ReadLast(l.Path(), 10, 2, FilterPresence)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 || hasMore {
		t.Errorf("offset read got %d events, hasMore=%v; want the remaining 3", len(events), hasMore)
	}
}

func TestReadLastMissingFile(t *testing.T) {
	events, hasMore, err := ReadLast(filepath.Join(t.TempDir(), "nope.jsonl"), 10, 0, FilterAll)
	if err != nil {
		t.Fatalf("ReadLast() error = %v", err)
	}
	if len(events) != 0 || hasMore {
		t.Errorf("got %d events, hasMore=%v; want none", len(events), hasMore)
	}
}
