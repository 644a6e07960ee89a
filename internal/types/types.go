// Package types provides shared type definitions used across the player engine.
package types

import "time"

// EngineState represents the current state of the player engine.
type EngineState string

const (
	// EngineStopped indicates the engine is not running.
	EngineStopped EngineState = "stopped"
	// EngineRunning indicates the engine is actively monitoring.
	EngineRunning EngineState = "running"
	// EngineStopping indicates the engine is shutting down.
	EngineStopping EngineState = "stopping"
)

const (
	// CaptureRetryDelay is the fixed delay before reopening the capture
	// stream after a device-level failure.
	CaptureRetryDelay = 3000 * time.Millisecond
	// DetectorStopTimeout is how long Stop waits for the capture goroutine
	// to release the device before giving up.
	DetectorStopTimeout = 2000 * time.Millisecond
	// LevelEmitInterval throttles level notifications for UI meters.
	LevelEmitInterval = 100 * time.Millisecond
)

// FetchPriority orders background duration fetch requests.
type FetchPriority int

// Priority levels, highest first when dequeuing.
const (
	FetchLow    FetchPriority = 1
	FetchNormal FetchPriority = 2
	FetchHigh   FetchPriority = 3
	FetchUrgent FetchPriority = 4
)

// ItemKind identifies where a playlist item's media comes from.
type ItemKind string

// Supported item kinds.
const (
	KindLocal    ItemKind = "local"
	KindYouTube  ItemKind = "youtube"
	KindBilibili ItemKind = "bilibili"
)

// VersionInfo contains version comparison data.
type VersionInfo struct {
	Current     string `json:"current"`              // Current version
	Latest      string `json:"latest,omitempty"`     // Latest available version
	UpdateAvail bool   `json:"update_available"`     // Update is available
	Commit      string `json:"commit,omitempty"`     // Git commit hash
	BuildTime   string `json:"build_time,omitempty"` // Build timestamp
}

// PlaylistItem is the engine's view of a single playlist entry.
// The GUI owns playlist editing; the engine only reads items for
// duration resolution and queue suggestions.
type PlaylistItem struct {
	// Title is the display title, if known.
	Title string `json:"title,omitempty"`
	// Kind identifies the media source.
	Kind ItemKind `json:"type"`
	// URL is the media location (file path or remote URL).
	URL string `json:"url"`
	// DurationSeconds is the known duration, 0 if unresolved.
	DurationSeconds int `json:"duration_seconds,omitempty"`
}
