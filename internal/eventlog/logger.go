// Package eventlog provides unified event logging for the player
// engine. It captures silence events, capture lifecycle events, user
// presence changes and background fetch outcomes in a single JSON
// lines file.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType represents the type of event.
type EventType string

// Silence event types.
const (
	SilenceStart     EventType = "silence_start"
	SilenceEnd       EventType = "silence_end"
	SustainedSilence EventType = "sustained_silence"
)

// Capture event types.
const (
	CaptureOpened      EventType = "capture_opened"
	CaptureError       EventType = "capture_error"
	CaptureUnavailable EventType = "capture_unavailable"
)

// User presence event types.
const (
	UserIdle   EventType = "user_idle"
	UserActive EventType = "user_active"
)

// Fetch and playback event types.
const (
	FetchCompleted EventType = "fetch_completed"
	FetchFailed    EventType = "fetch_failed"
	PlaybackError  EventType = "playback_error"
	BreakerTripped EventType = "breaker_tripped"
)

// Event represents a single log entry with type-specific details.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Type      EventType `json:"type"`
	Message   string    `json:"msg,omitempty"`
	Details   any       `json:"details,omitempty"`
}

// SilenceDetails contains silence-specific event details.
type SilenceDetails struct {
	Level           float64 `json:"level"`
	Threshold       float64 `json:"threshold"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// CaptureDetails contains capture lifecycle event details.
type CaptureDetails struct {
	Device string `json:"device,omitempty"`
	Error  string `json:"error,omitempty"`
}

// PresenceDetails contains user presence event details.
type PresenceDetails struct {
	IdleSeconds float64 `json:"idle_seconds,omitempty"`
}

// FetchDetails contains duration fetch event details.
type FetchDetails struct {
	URL             string `json:"url"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	Source          string `json:"source,omitempty"`
	Error           string `json:"error,omitempty"`
}

// PlaybackDetails contains playback error event details.
type PlaybackDetails struct {
	URL   string `json:"url,omitempty"`
	Class string `json:"class,omitempty"`
	Error string `json:"error,omitempty"`
	Retry int    `json:"retry,omitempty"`
}

// Logger writes events to a JSON lines file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	encoder  *json.Encoder
}

// DefaultLogPath returns the event log location under the given config
// directory.
func DefaultLogPath(configDir string) string {
	return filepath.Join(configDir, "events.jsonl")
}

// NewLogger creates a new event logger at the specified path.
func NewLogger(filePath string) (*Logger, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &Logger{
		filePath: filePath,
		file:     file,
		encoder:  json.NewEncoder(file),
	}, nil
}

// Log writes an event to the log file.
func (l *Logger) Log(event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	return l.encoder.Encode(event)
}

// LogSilence logs a silence transition or sustained-silence event.
func (l *Logger) LogSilence(eventType EventType, level, threshold float64, duration time.Duration) error {
	return l.Log(&Event{
		Type: eventType,
		Details: &SilenceDetails{
			Level:           level,
			Threshold:       threshold,
			DurationSeconds: duration.Seconds(),
		},
	})
}

// LogCapture logs a capture lifecycle event.
func (l *Logger) LogCapture(eventType EventType, device, errMsg string) error {
	return l.Log(&Event{
		Type: eventType,
		Details: &CaptureDetails{
			Device: device,
			Error:  errMsg,
		},
	})
}

// LogPresence logs a user idle/active transition.
func (l *Logger) LogPresence(eventType EventType, idleFor time.Duration) error {
	return l.Log(&Event{
		Type:    eventType,
		Details: &PresenceDetails{IdleSeconds: idleFor.Seconds()},
	})
}

// LogFetch logs a duration fetch outcome.
func (l *Logger) LogFetch(url string, seconds int, source, errMsg string) error {
	eventType := FetchCompleted
	if errMsg != "" {
		eventType = FetchFailed
	}
	return l.Log(&Event{
		Type: eventType,
		Details: &FetchDetails{
			URL:             url,
			DurationSeconds: seconds,
			Source:          source,
			Error:           errMsg,
		},
	})
}

// LogPlayback logs a playback error event.
func (l *Logger) LogPlayback(eventType EventType, url, class, errMsg string, retry int) error {
	return l.Log(&Event{
		Type: eventType,
		Details: &PlaybackDetails{
			URL:   url,
			Class: class,
			Error: errMsg,
			Retry: retry,
		},
	})
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Path returns the path to the log file.
func (l *Logger) Path() string {
	return l.filePath
}

// TypeFilter specifies which event types to include when reading.
type TypeFilter string

// Filter constants for ReadLast.
const (
	FilterAll      TypeFilter = ""
	FilterSilence  TypeFilter = "silence"
	FilterCapture  TypeFilter = "capture"
	FilterPresence TypeFilter = "presence"
	FilterFetch    TypeFilter = "fetch"
	FilterPlayback TypeFilter = "playback"
)

// MaxReadLimit is the maximum number of events that can be read at once.
// This prevents denial-of-service via excessive memory allocation.
const MaxReadLimit = 500

// matchesFilter reports whether the event type belongs to the filter's
// category.
func matchesFilter(t EventType, filter TypeFilter) bool {
	switch filter {
	case FilterAll:
		return true
	case FilterSilence:
		return t == SilenceStart || t == SilenceEnd || t == SustainedSilence
	case FilterCapture:
		return t == CaptureOpened || t == CaptureError || t == CaptureUnavailable
	case FilterPresence:
		return t == UserIdle || t == UserActive
	case FilterFetch:
		return t == FetchCompleted || t == FetchFailed
	case FilterPlayback:
		return t == PlaybackError || t == BreakerTripped
	default:
		return false
	}
}

// ReadLast reads events from the log file with pagination support.
// Returns up to n events starting from offset, filtered by type.
// Events are returned in reverse chronological order (newest first).
// The n parameter is capped at MaxReadLimit to prevent excessive memory allocation.
func ReadLast(filePath string, n, offset int, filter TypeFilter) ([]Event, bool, error) {
	if n > MaxReadLimit {
		n = MaxReadLimit
	}
	if n <= 0 {
		return []Event{}, false, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, false, nil
		}
		return nil, false, err
	}
	defer file.Close() //nolint:errcheck // Read-only operation, close error not critical

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, false, err
	}

	// Parse in reverse order (newest first), applying filter and
	// pagination.
	events := make([]Event, 0, n)
	skipped := 0
	hasMore := false
	for i := len(lines) - 1; i >= 0; i-- {
		var event Event
		if err := json.Unmarshal([]byte(lines[i]), &event); err != nil {
			continue // Skip malformed lines
		}
		if !matchesFilter(event.Type, filter) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if len(events) >= n {
			hasMore = true
			break
		}
		events = append(events, event)
	}

	return events, hasMore, nil
}
