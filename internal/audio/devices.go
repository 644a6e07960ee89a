package audio

import (
	"log/slog"
	"strings"
)

// loopbackNameHints mark capture devices that monitor system output.
// Name matching is best-effort; drivers and locales vary.
var loopbackNameHints = []string{
	"loopback",
	"monitor",
	"stereo mix",
	"what u hear",
	"wave out",
}

// LoopbackMatcher reports whether a device looks like a system-output
// monitor.
type LoopbackMatcher func(Device) bool

// DefaultLoopbackMatcher matches devices the backend flags as loopback,
// plus well-known monitor device names.
func DefaultLoopbackMatcher(dev Device) bool {
	if dev.Loopback {
		return true
	}
	name := strings.ToLower(dev.Name)
	for _, hint := range loopbackNameHints {
		if strings.Contains(name, hint) {
			return true
		}
	}
	return false
}

// SelectDevice applies the capture-target policy over the enumerated
// devices: an explicitly configured device when requested and still
// present, otherwise a loopback/monitor of system output when one can be
// identified, otherwise the default input device, otherwise the first
// device. Each fallback step is an explicit decision so the policy stays
// testable without a real audio backend.
func SelectDevice(devices []Device, target CaptureTarget, isLoopback LoopbackMatcher) (Device, error) {
	if len(devices) == 0 {
		return Device{}, ErrNoDevice
	}
	if isLoopback == nil {
		isLoopback = DefaultLoopbackMatcher
	}

	if !target.SystemOutput && target.DeviceID >= 0 {
		if dev, ok := selectExplicit(devices, target.DeviceID); ok {
			return dev, nil
		}
		slog.Warn("configured audio device not present, falling back to discovery",
			"device_id", target.DeviceID)
	}

	if dev, ok := selectLoopback(devices, isLoopback); ok {
		return dev, nil
	}
	return selectDefault(devices), nil
}

// selectExplicit finds the device with the given enumeration index.
func selectExplicit(devices []Device, id int) (Device, bool) {
	for _, dev := range devices {
		if dev.Index == id {
			return dev, true
		}
	}
	return Device{}, false
}

// selectLoopback finds the first device that monitors system output,
// preferring the backend default among matches.
func selectLoopback(devices []Device, isLoopback LoopbackMatcher) (Device, bool) {
	var found *Device
	for i, dev := range devices {
		if !isLoopback(dev) {
			continue
		}
		if dev.IsDefault {
			return dev, true
		}
		if found == nil {
			found = &devices[i]
		}
	}
	if found != nil {
		return *found, true
	}
	return Device{}, false
}

// selectDefault returns the backend default device, or the first one.
func selectDefault(devices []Device) Device {
	for _, dev := range devices {
		if dev.IsDefault {
			return dev
		}
	}
	return devices[0]
}
