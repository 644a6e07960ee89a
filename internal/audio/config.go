package audio

import "time"

// Detector configuration defaults, used when values are not specified.
const (
	// DefaultSilenceThreshold is the smoothed level below which audio is
	// considered silent.
	DefaultSilenceThreshold = 0.03
	// DefaultResumeThreshold is the level required to leave the silent
	// state. Kept above the silence threshold to prevent flicker at the
	// boundary; the historical default is 1.5x the silence threshold.
	DefaultResumeThreshold = 0.045
	// DefaultSilenceDuration is how long continuous silence must persist
	// before the sustained-silence event fires.
	DefaultSilenceDuration = 300 * time.Second
)

// AutoDevice selects automatic device discovery instead of an explicit id.
const AutoDevice = -1

// CaptureTarget selects which device the detector opens.
type CaptureTarget struct {
	// SystemOutput requests a loopback/monitor of system output rather
	// than a microphone.
	SystemOutput bool `json:"monitor_system_output"`
	// DeviceID is an explicit device index from enumeration, or
	// AutoDevice for automatic selection.
	DeviceID int `json:"device_id"`
}

// DetectorConfig is an immutable parameter snapshot for the detector.
// It is replaced wholesale on settings changes, never mutated in place;
// the processing loop observes replacements between blocks.
type DetectorConfig struct {
	// SilenceDuration is the continuous silence needed before the
	// sustained-silence event fires.
	SilenceDuration time.Duration
	// SilenceThreshold is the level below which, while active, the state
	// flips to silent.
	SilenceThreshold float64
	// ResumeThreshold is the level at or above which, while silent, the
	// state flips back to active. Conventionally >= SilenceThreshold;
	// when it is not, the pair degenerates to a single boundary.
	ResumeThreshold float64
	// Target selects the capture device.
	Target CaptureTarget
}

// DefaultDetectorConfig returns a config with all defaults applied.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		SilenceDuration:  DefaultSilenceDuration,
		SilenceThreshold: DefaultSilenceThreshold,
		ResumeThreshold:  DefaultResumeThreshold,
		Target:           CaptureTarget{SystemOutput: true, DeviceID: AutoDevice},
	}
}

// withDefaults fills unset fields with their defaults.
func (c DetectorConfig) withDefaults() DetectorConfig {
	if c.SilenceDuration <= 0 {
		c.SilenceDuration = DefaultSilenceDuration
	}
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = DefaultSilenceThreshold
	}
	if c.ResumeThreshold <= 0 {
		c.ResumeThreshold = c.SilenceThreshold * 1.5
	}
	return c
}
