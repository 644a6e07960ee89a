package audio

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeStream records the callbacks a detector registered so tests can
// push synthetic blocks and faults as if they came from a driver thread.
type fakeStream struct {
	cb Callbacks

	mu     sync.Mutex
	closed bool
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeTransport struct {
	devices []Device
	streams chan *fakeStream

	mu       sync.Mutex
	openErrs []error
	opens    int
	closed   bool
}

func newFakeTransport(devices ...Device) *fakeTransport {
	return &fakeTransport{
		devices: devices,
		streams: make(chan *fakeStream, 8),
	}
}

func (t *fakeTransport) Devices() ([]Device, error) {
	return t.devices, nil
}

func (t *fakeTransport) Open(_ Device, cb Callbacks) (Stream, error) {
	t.mu.Lock()
	call := t.opens
	t.opens++
	var err error
	if call < len(t.openErrs) {
		err = t.openErrs[call]
	}
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s := &fakeStream{cb: cb}
	t.streams <- s
	return s, nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) openCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

func (t *fakeTransport) waitStream(test *testing.T) *fakeStream {
	test.Helper()
	select {
	case s := <-t.streams:
		return s
	case <-time.After(2 * time.Second):
		test.Fatal("timed out waiting for a capture stream to open")
		return nil
	}
}

func monitorDevice() Device {
	return Device{Index: 0, Name: "Monitor of Built-in Audio", IsDefault: true}
}

// makeBlock builds 100ms of constant-amplitude mono audio.
func makeBlock(amp float32) Block {
	samples := make([]float32, 4410)
	for i := range samples {
		samples[i] = amp
	}
	return Block{Samples: samples, SampleRate: 44100}
}

func testConfig() DetectorConfig {
	return DetectorConfig{
		SilenceDuration:  time.Second,
		SilenceThreshold: 0.03,
		ResumeThreshold:  0.045,
		Target:           CaptureTarget{SystemOutput: true, DeviceID: AutoDevice},
	}
}

func newTestDetector(cfg DetectorConfig, transport Transport) *Detector {
	d := NewDetector(cfg, func() (Transport, error) { return transport, nil })
	d.retryDelay = time.Millisecond
	return d
}

// drainEvents collects everything currently buffered, dropping level
// updates unless keepLevels is set. Capture lifecycle events are always
// dropped; tests that care about them read the channel directly.
func drainEvents(d *Detector, keepLevels bool) []Event {
	var out []Event
	for {
		select {
		case ev := <-d.Events():
			if ev.Kind == EventLevel && !keepLevels {
				continue
			}
			if ev.Kind == EventCaptureOpened || ev.Kind == EventCaptureError {
				continue
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestDetectorSilenceLifecycle(t *testing.T) {
	ft := newFakeTransport(monitorDevice())
	d := newTestDetector(testConfig(), ft)
	d.Start()
	defer d.Stop()

	s := ft.waitStream(t)

	// 1s of silence, half a second of audio, then silence again.
	for i := 0; i < 10; i++ {
		s.cb.OnBlock(makeBlock(0))
	}
	for i := 0; i < 5; i++ {
		s.cb.OnBlock(makeBlock(0.1))
	}
	for i := 0; i < 10; i++ {
		s.cb.OnBlock(makeBlock(0))
	}

	events := drainEvents(d, false)
	want := []struct {
		kind  EventKind
		state Classification
	}{
		{EventSustainedSilence, ""},
		{EventStateChange, Active},
		{EventStateChange, Silent},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events %+v, want %d", len(events), events, len(want))
	}
	for i, w := range want {
		if events[i].Kind != w.kind {
			t.Errorf("event %d: kind = %v, want %v", i, events[i].Kind, w.kind)
		}
		if w.state != "" && events[i].State != w.state {
			t.Errorf("event %d: state = %v, want %v", i, events[i].State, w.state)
		}
	}

	status := d.Status()
	if !status.Running || status.Capture != CaptureStreaming || status.State != Silent {
		t.Errorf("status = %+v, want running, streaming, silent", status)
	}

	d.Stop()
	if !s.isClosed() {
		t.Error("stream not closed after Stop")
	}
}

func TestDetectorRetriesAfterOpenFailure(t *testing.T) {
	ft := newFakeTransport(monitorDevice())
	ft.openErrs = []error{
		errors.New("device busy"),
		errors.New("device busy"),
		nil,
	}
	d := newTestDetector(testConfig(), ft)
	d.Start()
	defer d.Stop()

	ft.waitStream(t)
	if got := ft.openCalls(); got != 3 {
		t.Errorf("open calls = %d, want 3", got)
	}
}

func TestDetectorReopensAfterStreamFault(t *testing.T) {
	ft := newFakeTransport(monitorDevice())
	d := newTestDetector(testConfig(), ft)
	d.Start()
	defer d.Stop()

	s1 := ft.waitStream(t)
	s1.cb.OnError(errors.New("device yanked"))

	s2 := ft.waitStream(t)
	if !s1.isClosed() {
		t.Error("faulted stream not closed")
	}
	if s2 == s1 {
		t.Error("expected a fresh stream after the fault")
	}
}

func TestDetectorReconfigureTargetReopens(t *testing.T) {
	ft := newFakeTransport(monitorDevice(), Device{Index: 1, Name: "Line In"})
	d := newTestDetector(testConfig(), ft)
	d.Start()
	defer d.Stop()

	s1 := ft.waitStream(t)

	cfg := testConfig()
	cfg.Target = CaptureTarget{SystemOutput: false, DeviceID: 1}
	d.Reconfigure(cfg)

	ft.waitStream(t)
	if !s1.isClosed() {
		t.Error("old stream not closed after target change")
	}
}

func TestDetectorReopenResetsSilenceClock(t *testing.T) {
	cfg := testConfig()
	cfg.SilenceDuration = 2 * time.Second
	ft := newFakeTransport(monitorDevice(), Device{Index: 1, Name: "Line In"})
	d := newTestDetector(cfg, ft)
	d.Start()
	defer d.Stop()

	// 1.5s of silence, then a forced reopen via a device change.
	s1 := ft.waitStream(t)
	for i := 0; i < 15; i++ {
		s1.cb.OnBlock(makeBlock(0))
	}

	cfg2 := cfg
	cfg2.Target = CaptureTarget{SystemOutput: false, DeviceID: 1}
	d.Reconfigure(cfg2)
	s2 := ft.waitStream(t)
	drainEvents(d, false)

	// The new session starts its silence clock at zero: half a second
	// must not fire even though 2s of silence elapsed across sessions.
	for i := 0; i < 5; i++ {
		s2.cb.OnBlock(makeBlock(0))
	}
	if events := drainEvents(d, false); len(events) != 0 {
		t.Fatalf("event fired on carried-over silence: %+v", events)
	}

	// A full new silence duration on the new stream fires exactly once.
	for i := 0; i < 15; i++ {
		s2.cb.OnBlock(makeBlock(0))
	}
	events := drainEvents(d, false)
	if len(events) != 1 || events[0].Kind != EventSustainedSilence {
		t.Fatalf("got %+v, want one sustained-silence event", events)
	}
}

func TestDetectorFencesStaleBlocks(t *testing.T) {
	ft := newFakeTransport(monitorDevice(), Device{Index: 1, Name: "Line In"})
	d := newTestDetector(testConfig(), ft)
	d.Start()
	defer d.Stop()

	s1 := ft.waitStream(t)

	cfg := testConfig()
	cfg.Target = CaptureTarget{SystemOutput: false, DeviceID: 1}
	d.Reconfigure(cfg)
	ft.waitStream(t)
	drainEvents(d, false)

	// Loud blocks raced in through the torn-down stream must not flip
	// the state.
	for i := 0; i < 30; i++ {
		s1.cb.OnBlock(makeBlock(0.5))
	}
	if events := drainEvents(d, true); len(events) != 0 {
		t.Errorf("stale blocks produced %d events: %+v", len(events), events)
	}
}

func TestDetectorThresholdChangeAppliesMidStream(t *testing.T) {
	ft := newFakeTransport(monitorDevice())
	d := newTestDetector(testConfig(), ft)
	d.Start()
	defer d.Stop()

	s := ft.waitStream(t)

	// Converge near full scale, then raise the thresholds above it.
	for i := 0; i < 40; i++ {
		s.cb.OnBlock(makeBlock(0.5))
	}
	drainEvents(d, false)

	cfg := testConfig()
	cfg.SilenceThreshold = 0.8
	cfg.ResumeThreshold = 0.9
	d.Reconfigure(cfg)

	s.cb.OnBlock(makeBlock(0.5))
	events := drainEvents(d, false)
	if len(events) != 1 || events[0].Kind != EventStateChange || events[0].State != Silent {
		t.Fatalf("got %+v, want one silent state change", events)
	}
	if s.isClosed() {
		t.Error("threshold-only change should not reopen the stream")
	}
}

// waitEventKind reads the raw event channel until the wanted kind shows
// up, failing after a bounded wait.
func waitEventKind(t *testing.T, d *Detector, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-d.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v event", kind)
			return Event{}
		}
	}
}

func TestDetectorCaptureLifecycleEvents(t *testing.T) {
	ft := newFakeTransport(monitorDevice())
	ft.openErrs = []error{errors.New("device busy"), nil}
	d := newTestDetector(testConfig(), ft)
	d.Start()
	defer d.Stop()

	failed := waitEventKind(t, d, EventCaptureError)
	if failed.Device != "Monitor of Built-in Audio" || failed.Reason == "" {
		t.Errorf("capture error event = %+v, want device and reason", failed)
	}

	opened := waitEventKind(t, d, EventCaptureOpened)
	if opened.Device != "Monitor of Built-in Audio" {
		t.Errorf("capture opened event = %+v, want device name", opened)
	}

	// A stream fault on the open session reports before the reopen.
	s := ft.waitStream(t)
	s.cb.OnError(errors.New("device yanked"))
	fault := waitEventKind(t, d, EventCaptureError)
	if fault.Reason != "device yanked" {
		t.Errorf("fault reason = %q, want the stream error", fault.Reason)
	}
}

func TestDetectorLevelEventCarriesHeldPeak(t *testing.T) {
	ft := newFakeTransport(monitorDevice())
	d := newTestDetector(testConfig(), ft)
	d.levelEvery = 0
	d.Start()
	defer d.Stop()

	s := ft.waitStream(t)
	for i := 0; i < 20; i++ {
		s.cb.OnBlock(makeBlock(0.5))
	}
	for i := 0; i < 20; i++ {
		s.cb.OnBlock(makeBlock(0))
	}

	var last Event
	for _, ev := range drainEvents(d, true) {
		if ev.Kind == EventLevel {
			last = ev
		}
	}
	if last.Kind != EventLevel {
		t.Fatal("no level events")
	}
	// The smoothed level decays during the quiet run while the peak is
	// still held from the loud one.
	if last.Level >= 0.1 {
		t.Errorf("level = %v, expected decay below 0.1", last.Level)
	}
	if last.Peak <= last.Level || last.Peak < 0.4 {
		t.Errorf("peak = %v with level %v, want the loud-run peak held", last.Peak, last.Level)
	}
	if st := d.Status(); st.Peak != last.Peak {
		t.Errorf("status peak = %v, want %v", st.Peak, last.Peak)
	}
}

func TestDetectorUnavailableSubsystem(t *testing.T) {
	d := NewDetector(testConfig(), func() (Transport, error) {
		return nil, ErrSubsystemUnavailable
	})
	d.stopTimeout = 500 * time.Millisecond
	d.Start()

	select {
	case ev := <-d.Events():
		if ev.Kind != EventUnavailable {
			t.Errorf("kind = %v, want %v", ev.Kind, EventUnavailable)
		}
		if ev.Reason == "" {
			t.Error("unavailable event carries no reason")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no unavailable event")
	}

	d.Stop()
	if st := d.Status(); st.Running || st.Capture != CaptureClosed {
		t.Errorf("status after Stop = %+v, want stopped and closed", st)
	}
}

func TestDetectorStopIdempotent(t *testing.T) {
	ft := newFakeTransport(monitorDevice())
	d := newTestDetector(testConfig(), ft)

	d.Stop() // never started

	d.Start()
	d.Start() // no-op while running
	ft.waitStream(t)

	d.Stop()
	d.Stop()
	if !ft.closed {
		t.Error("transport not closed after Stop")
	}
	if got := ft.openCalls(); got != 1 {
		t.Errorf("open calls = %d, want 1", got)
	}
}

func TestDetectorLevelThrottle(t *testing.T) {
	ft := newFakeTransport(monitorDevice())
	d := newTestDetector(testConfig(), ft)
	d.levelEvery = time.Hour
	d.Start()
	defer d.Stop()

	s := ft.waitStream(t)
	for i := 0; i < 50; i++ {
		s.cb.OnBlock(makeBlock(0))
	}

	levels := 0
	for _, ev := range drainEvents(d, true) {
		if ev.Kind == EventLevel {
			levels++
		}
	}
	if levels != 1 {
		t.Errorf("level events = %d, want exactly 1 under throttle", levels)
	}
}
