package audio

import (
	"errors"
	"time"
)

// ErrSubsystemUnavailable indicates the audio subsystem itself could not
// be initialized. Unlike a device failure it is not retryable within a
// session; the detector degrades to doing nothing.
var ErrSubsystemUnavailable = errors.New("audio subsystem unavailable")

// ErrNoDevice is returned when no usable capture device exists.
var ErrNoDevice = errors.New("no usable audio input device")

// Block is one chunk of mono samples delivered by a capture stream.
type Block struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback time the block covers, derived from the
// sample count so silence accounting stays exact under scheduling jitter.
func (b Block) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(b.Samples)) / float64(b.SampleRate) * float64(time.Second))
}

// Device describes an audio device usable for capture.
type Device struct {
	// Index is the device's position in the enumeration, used as its
	// stable identifier in configuration.
	Index int `json:"index"`
	// ID is the backend-specific identifier, informational only.
	ID string `json:"id,omitempty"`
	// Name is the device display name.
	Name string `json:"name"`
	// IsDefault marks the backend's default device.
	IsDefault bool `json:"is_default,omitempty"`
	// Loopback marks a device that captures system output rather than a
	// microphone.
	Loopback bool `json:"loopback,omitempty"`
}

// Callbacks receive data and fault notifications from an open stream.
// Both run on the transport's delivery thread and must not block or
// perform I/O.
type Callbacks struct {
	OnBlock func(Block)
	OnError func(error)
}

// Stream is one open capture session. Close stops delivery and does not
// return until no further callbacks will run.
type Stream interface {
	Close() error
}

// Transport opens capture streams against audio devices. The production
// implementation wraps miniaudio; tests substitute a fake that delivers
// synthetic blocks on demand.
type Transport interface {
	// Devices enumerates input-capable devices.
	Devices() ([]Device, error)
	// Open starts capturing from the device.
	Open(dev Device, cb Callbacks) (Stream, error)
	// Close releases the transport.
	Close() error
}

// TransportFactory creates the capture transport when the detector
// starts. Returning an error wrapping ErrSubsystemUnavailable marks the
// whole audio subsystem as absent.
type TransportFactory func() (Transport, error)
