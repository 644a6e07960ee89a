package audio

import (
	"errors"
	"testing"
)

func TestDefaultLoopbackMatcher(t *testing.T) {
	tests := []struct {
		name string
		dev  Device
		want bool
	}{
		{"backend loopback flag", Device{Name: "Speakers", Loopback: true}, true},
		{"pulse monitor source", Device{Name: "Monitor of Built-in Audio"}, true},
		{"stereo mix", Device{Name: "Stereo Mix (Realtek)"}, true},
		{"plain microphone", Device{Name: "Blue Yeti"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultLoopbackMatcher(tt.dev); got != tt.want {
				t.Errorf("DefaultLoopbackMatcher(%q) = %v, want %v", tt.dev.Name, got, tt.want)
			}
		})
	}
}

func TestSelectDevice(t *testing.T) {
	mic := Device{Index: 0, Name: "USB Microphone", IsDefault: true}
	monitor := Device{Index: 1, Name: "Monitor of Built-in Audio"}
	line := Device{Index: 2, Name: "Line In"}
	defaultMonitor := Device{Index: 3, Name: "Speakers (loopback)", IsDefault: true, Loopback: true}

	tests := []struct {
		name    string
		devices []Device
		target  CaptureTarget
		want    Device
	}{
		{
			name:    "explicit device present",
			devices: []Device{mic, monitor, line},
			target:  CaptureTarget{DeviceID: 2},
			want:    line,
		},
		{
			name:    "explicit device missing falls back to loopback",
			devices: []Device{mic, monitor},
			target:  CaptureTarget{DeviceID: 7},
			want:    monitor,
		},
		{
			name:    "system output prefers monitor over default mic",
			devices: []Device{mic, monitor, line},
			target:  CaptureTarget{SystemOutput: true, DeviceID: AutoDevice},
			want:    monitor,
		},
		{
			name:    "default loopback preferred among monitors",
			devices: []Device{monitor, defaultMonitor},
			target:  CaptureTarget{SystemOutput: true, DeviceID: AutoDevice},
			want:    defaultMonitor,
		},
		{
			name:    "no monitor falls back to default input",
			devices: []Device{line, mic},
			target:  CaptureTarget{SystemOutput: true, DeviceID: AutoDevice},
			want:    mic,
		},
		{
			name:    "no default falls back to first",
			devices: []Device{line},
			target:  CaptureTarget{SystemOutput: true, DeviceID: AutoDevice},
			want:    line,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectDevice(tt.devices, tt.target, nil)
			if err != nil {
				t.Fatalf("SelectDevice() error = %v", err)
			}
			if got.Index != tt.want.Index {
				t.Errorf("SelectDevice() = %q (index %d), want %q (index %d)",
					got.Name, got.Index, tt.want.Name, tt.want.Index)
			}
		})
	}
}

func TestSelectDeviceEmpty(t *testing.T) {
	_, err := SelectDevice(nil, CaptureTarget{SystemOutput: true, DeviceID: AutoDevice}, nil)
	if !errors.Is(err, ErrNoDevice) {
		t.Errorf("error = %v, want ErrNoDevice", err)
	}
}
