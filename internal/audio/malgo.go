package audio

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/silencesuzuka/playerd/internal/util"
)

// Capture format requested from miniaudio. Miniaudio converts from the
// device's native format, so mono float at a standard rate is always
// available regardless of hardware configuration.
const (
	captureSampleRate = 44100
	captureChannels   = 1
)

// MalgoTransport captures audio through the miniaudio library.
type MalgoTransport struct {
	ctx *malgo.AllocatedContext

	mu    sync.Mutex
	ids   []malgo.DeviceID   // backend ids by enumeration index
	kinds []malgo.DeviceType // how to open each enumerated device
}

// NewMalgoTransport initializes the miniaudio context. Failure here means
// the audio subsystem is unusable on this machine, not that a particular
// device is busy.
func NewMalgoTransport() (Transport, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubsystemUnavailable, err)
	}
	return &MalgoTransport{ctx: ctx}, nil
}

// Devices enumerates capture devices. On Windows, playback endpoints are
// appended as loopback candidates since WASAPI can open any render
// endpoint in loopback mode; elsewhere loopback relies on the driver
// exposing a monitor source (e.g. PulseAudio ".monitor" devices), which
// shows up in the regular capture list.
func (t *MalgoTransport) Devices() ([]Device, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	infos, err := t.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, util.WrapError("enumerate capture devices", err)
	}

	t.ids = t.ids[:0]
	t.kinds = t.kinds[:0]
	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, Device{
			Index:     len(devices),
			ID:        deviceIDString(info.ID),
			Name:      info.Name(),
			IsDefault: info.IsDefault != 0,
		})
		t.ids = append(t.ids, info.ID)
		t.kinds = append(t.kinds, malgo.Capture)
	}

	if runtime.GOOS == "windows" {
		playback, err := t.ctx.Devices(malgo.Playback)
		if err != nil {
			slog.Warn("failed to enumerate playback endpoints for loopback", "error", err)
		} else {
			for _, info := range playback {
				devices = append(devices, Device{
					Index:     len(devices),
					ID:        deviceIDString(info.ID),
					Name:      info.Name() + " (loopback)",
					IsDefault: info.IsDefault != 0,
					Loopback:  true,
				})
				t.ids = append(t.ids, info.ID)
				t.kinds = append(t.kinds, malgo.Loopback)
			}
		}
	}

	return devices, nil
}

// Open starts capturing from the device, delivering mono float blocks to
// cb.OnBlock on miniaudio's delivery thread.
func (t *MalgoTransport) Open(dev Device, cb Callbacks) (Stream, error) {
	t.mu.Lock()
	if dev.Index < 0 || dev.Index >= len(t.ids) {
		t.mu.Unlock()
		return nil, fmt.Errorf("device index %d not in current enumeration", dev.Index)
	}
	s := &malgoStream{id: t.ids[dev.Index]}
	kind := t.kinds[dev.Index]
	t.mu.Unlock()

	config := malgo.DefaultDeviceConfig(kind)
	config.SampleRate = captureSampleRate
	config.Capture.Format = malgo.FormatF32
	config.Capture.Channels = captureChannels
	config.Capture.DeviceID = s.id.Pointer()

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			if frameCount == 0 || cb.OnBlock == nil {
				return
			}
			samples := decodeF32(input, int(frameCount)*captureChannels)
			cb.OnBlock(Block{Samples: samples, SampleRate: captureSampleRate})
		},
		Stop: func() {
			// Fires on any device stop, including our own teardown.
			if s.isClosing() || cb.OnError == nil {
				return
			}
			cb.OnError(fmt.Errorf("capture device %q stopped delivering", dev.Name))
		},
	}

	device, err := malgo.InitDevice(t.ctx.Context, config, callbacks)
	if err != nil {
		return nil, util.WrapError("init capture device", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, util.WrapError("start capture device", err)
	}

	s.device = device
	return s, nil
}

// Close releases the miniaudio context.
func (t *MalgoTransport) Close() error {
	err := t.ctx.Uninit()
	t.ctx.Free()
	return err
}

// malgoStream is one open miniaudio capture session.
type malgoStream struct {
	device *malgo.Device
	id     malgo.DeviceID // kept alive for the DeviceID pointer passed to miniaudio

	mu      sync.Mutex
	closing bool
}

func (s *malgoStream) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Close tears the device down. Uninit blocks until the driver thread has
// stopped, so no callbacks run after Close returns.
func (s *malgoStream) Close() error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.device.Uninit()
	return nil
}

// decodeF32 converts little-endian float32 PCM bytes into samples.
func decodeF32(data []byte, n int) []float32 {
	samples := make([]float32, 0, n)
	for i := 0; i+3 < len(data) && len(samples) < n; i += 4 {
		bits := binary.LittleEndian.Uint32(data[i:])
		f := math.Float32frombits(bits)
		samples = append(samples, f)
	}
	return samples
}

// deviceIDString renders a backend device id as hex for logs and status.
func deviceIDString(id malgo.DeviceID) string {
	b := id[:]
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	if end == 0 {
		return ""
	}
	return hex.EncodeToString(b[:end])
}
