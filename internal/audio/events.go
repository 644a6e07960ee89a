package audio

import "time"

// EventKind identifies a detector notification.
type EventKind string

const (
	// EventLevel is a throttled smoothed-level update for UI meters.
	EventLevel EventKind = "level"
	// EventStateChange reports a silent/active transition, edge-triggered.
	EventStateChange EventKind = "state_change"
	// EventSustainedSilence fires once per qualifying continuous-silence run.
	EventSustainedSilence EventKind = "sustained_silence"
	// EventUnavailable reports, at most once per start attempt, that the
	// audio subsystem itself cannot be used.
	EventUnavailable EventKind = "unavailable"
	// EventCaptureOpened reports that a capture stream opened on a device.
	EventCaptureOpened EventKind = "capture_opened"
	// EventCaptureError reports a failed open or a stream fault. The
	// supervisor retries on its own; this is for diagnostics.
	EventCaptureError EventKind = "capture_error"
)

// Event is a detector notification. Events are delivered through a
// buffered channel so the capture callback never runs consumer code.
type Event struct {
	Kind EventKind
	// Level is the smoothed loudness at the time of the event.
	Level float64
	// Peak is the held peak level, set on EventLevel for meter ballistics.
	Peak float64
	// State is the new classification for EventStateChange.
	State Classification
	// SilenceFor is the silence accumulated so far, set on EventLevel.
	SilenceFor time.Duration
	// Device names the capture device for capture lifecycle events.
	Device string
	// Reason describes an unavailable subsystem or a capture error.
	Reason string
}
