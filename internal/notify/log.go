package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/silencesuzuka/playerd/internal/util"
)

// SilenceLogEntry is one line in the silence notification log file.
type SilenceLogEntry struct {
	Timestamp       string  `json:"timestamp"`
	Event           string  `json:"event"`
	Level           float64 `json:"level,omitempty"`
	Threshold       float64 `json:"threshold,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// LogSilenceStart records a sustained-silence notification.
func LogSilenceStart(logPath string, level, threshold float64) error {
	return appendLogEntry(logPath, &SilenceLogEntry{
		Timestamp: timestampUTC(),
		Event:     "silence_detected",
		Level:     level,
		Threshold: threshold,
	})
}

// LogSilenceEnd records the recovery that ends a silence run.
func LogSilenceEnd(logPath string, silenceFor time.Duration, level, threshold float64) error {
	return appendLogEntry(logPath, &SilenceLogEntry{
		Timestamp:       timestampUTC(),
		Event:           "silence_recovered",
		Level:           level,
		Threshold:       threshold,
		DurationSeconds: silenceFor.Seconds(),
	})
}

// WriteTestLog writes a test log entry.
func WriteTestLog(logPath string) error {
	if logPath == "" {
		return fmt.Errorf("log file path not configured")
	}

	return appendLogEntry(logPath, &SilenceLogEntry{
		Timestamp: timestampUTC(),
		Event:     "test",
	})
}

// appendLogEntry appends a log entry to the file.
func appendLogEntry(logPath string, entry *SilenceLogEntry) error {
	if !util.IsConfigured(logPath) {
		return nil
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return util.WrapError("marshal log entry", err)
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return util.WrapError("open log file", err)
	}
	defer f.Close() //nolint:errcheck // Write errors are surfaced below

	if _, err := f.Write(jsonData); err != nil {
		return util.WrapError("write log entry", err)
	}
	if _, err := f.WriteString("\n"); err != nil {
		return util.WrapError("write newline", err)
	}

	return nil
}
