package engine

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/silencesuzuka/playerd/internal/audio"
	"github.com/silencesuzuka/playerd/internal/config"
	"github.com/silencesuzuka/playerd/internal/eventlog"
	"github.com/silencesuzuka/playerd/internal/types"
)

// fakeTransport enumerates canned devices and refuses to open streams.
type fakeTransport struct {
	devices []audio.Device
}

func (t *fakeTransport) Devices() ([]audio.Device, error) { return t.devices, nil }
func (t *fakeTransport) Open(audio.Device, audio.Callbacks) (audio.Stream, error) {
	return nil, audio.ErrNoDevice
}
func (t *fakeTransport) Close() error { return nil }

func unavailableFactory() (audio.Transport, error) {
	return nil, fmt.Errorf("%w: no backend", audio.ErrSubsystemUnavailable)
}

func newTestEngine(t *testing.T, factory audio.TransportFactory) *Engine {
	t.Helper()
	dir := t.TempDir()
	cfg := config.New(filepath.Join(dir, "config.json"))
	if err := cfg.Load(); err != nil {
		t.Fatalf("config load: %v", err)
	}
	e, err := New(cfg, dir, factory)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func waitForUpdate(t *testing.T, e *Engine, kind UpdateKind) Update {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case u := <-e.Updates():
			if u.Kind == kind {
				return u
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q update", kind)
		}
	}
}

func TestStartStopLifecycle(t *testing.T) {
	e := newTestEngine(t, unavailableFactory)

	if e.State() != types.EngineStopped {
		t.Fatalf("initial state = %v", e.State())
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := e.Start(); err != ErrAlreadyRunning {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
	if e.State() != types.EngineRunning {
		t.Errorf("state after Start = %v", e.State())
	}

	if err := e.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := e.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
	if e.State() != types.EngineStopped {
		t.Errorf("state after Stop = %v", e.State())
	}
}

func TestDetectorRequiresRunningEngine(t *testing.T) {
	e := newTestEngine(t, unavailableFactory)
	if err := e.StartDetector(); err != ErrNotRunning {
		t.Errorf("StartDetector() on stopped engine error = %v, want ErrNotRunning", err)
	}
}

func TestUnavailableNoticeIsOneShot(t *testing.T) {
	e := newTestEngine(t, unavailableFactory)
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	defer e.Stop() //nolint:errcheck

	if err := e.StartDetector(); err != nil {
		t.Fatalf("StartDetector() error = %v", err)
	}

	u := waitForUpdate(t, e, UpdateUnavailable)
	if u.Reason == "" {
		t.Error("unavailable update has no reason")
	}
	if got := e.Status().Unavailable; got == "" {
		t.Error("Status().Unavailable not set")
	}

	events, _, err := eventlog.ReadLast(e.EventLogPath(), 10, 0, eventlog.FilterCapture)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Type != eventlog.CaptureUnavailable {
		t.Errorf("capture log = %+v, want one capture_unavailable entry", events)
	}
}

func TestCaptureLifecycleIsLogged(t *testing.T) {
	e := newTestEngine(t, unavailableFactory)

	e.handleDetectorEvent(audio.Event{Kind: audio.EventCaptureOpened, Device: "Monitor of Built-in Audio"})
	e.handleDetectorEvent(audio.Event{Kind: audio.EventCaptureError, Device: "Monitor of Built-in Audio", Reason: "device busy"})

	events, _, err := eventlog.ReadLast(e.EventLogPath(), 10, 0, eventlog.FilterCapture)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("capture log has %d entries, want 2", len(events))
	}
	// Newest first.
	if events[0].Type != eventlog.CaptureError || events[1].Type != eventlog.CaptureOpened {
		t.Errorf("capture log order = %v, %v", events[0].Type, events[1].Type)
	}
}

func TestLevelUpdateCarriesPeak(t *testing.T) {
	e := newTestEngine(t, unavailableFactory)

	e.handleDetectorEvent(audio.Event{Kind: audio.EventLevel, Level: 0.02, Peak: 0.4, State: audio.Silent})

	u := waitForUpdate(t, e, UpdateLevel)
	if u.Level != 0.02 || u.Peak != 0.4 {
		t.Errorf("level update = %+v, want level 0.02 and peak 0.4", u)
	}
}

func TestSustainedSilenceRequestsAutoAdvance(t *testing.T) {
	e := newTestEngine(t, unavailableFactory)

	e.handleDetectorEvent(audio.Event{
		Kind:       audio.EventSustainedSilence,
		Level:      0.01,
		SilenceFor: 300 * time.Second,
	})

	u := waitForUpdate(t, e, UpdateAutoAdvance)
	if u.SilenceFor != 300 {
		t.Errorf("SilenceFor = %v, want 300", u.SilenceFor)
	}
}

func TestBreakerPausesAutoAdvance(t *testing.T) {
	e := newTestEngine(t, unavailableFactory)

	// Three consecutive failures trip the breaker.
	for i := 0; i < 3; i++ {
		e.ReportPlaybackFailure("some unknown failure", "file:///x.mp3")
	}
	if e.Status().Playback.BreakerActive != true {
		t.Fatal("breaker not active after three failures")
	}

	e.handleDetectorEvent(audio.Event{Kind: audio.EventSustainedSilence, Level: 0.01})
	select {
	case u := <-e.Updates():
		t.Errorf("got %q update while breaker active, want none", u.Kind)
	default:
	}

	e.ResetBreaker()
	e.handleDetectorEvent(audio.Event{Kind: audio.EventSustainedSilence, Level: 0.01})
	waitForUpdate(t, e, UpdateAutoAdvance)
}

func TestPlaybackFailureIsLogged(t *testing.T) {
	e := newTestEngine(t, unavailableFactory)

	decision := e.ReportPlaybackFailure("connection timed out", "https://youtu.be/x")
	if !decision.Retry {
		t.Errorf("network failure decision = %+v, want retry", decision)
	}

	events, _, err := eventlog.ReadLast(e.EventLogPath(), 10, 0, eventlog.FilterPlayback)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Type != eventlog.PlaybackError {
		t.Errorf("playback log = %+v, want one playback_error entry", events)
	}
}

func TestStateChangeIsLoggedAndPushed(t *testing.T) {
	e := newTestEngine(t, unavailableFactory)

	e.handleDetectorEvent(audio.Event{Kind: audio.EventStateChange, State: audio.Silent, Level: 0.01})
	e.handleDetectorEvent(audio.Event{Kind: audio.EventStateChange, State: audio.Active, Level: 0.2})

	u := waitForUpdate(t, e, UpdateState)
	if u.State != audio.Silent {
		t.Errorf("first state update = %v, want silent", u.State)
	}

	events, _, err := eventlog.ReadLast(e.EventLogPath(), 10, 0, eventlog.FilterSilence)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("silence log has %d entries, want 2", len(events))
	}
	// Newest first.
	if events[0].Type != eventlog.SilenceEnd || events[1].Type != eventlog.SilenceStart {
		t.Errorf("silence log order = %v, %v", events[0].Type, events[1].Type)
	}
}

func TestListDevices(t *testing.T) {
	devices := []audio.Device{
		{Index: 0, Name: "Built-in Microphone", IsDefault: true},
		{Index: 1, Name: "Monitor of Built-in Audio", Loopback: true},
	}
	e := newTestEngine(t, func() (audio.Transport, error) {
		return &fakeTransport{devices: devices}, nil
	})

	got, err := e.ListDevices()
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(got) != 2 || got[1].Name != devices[1].Name {
		t.Errorf("ListDevices() = %+v", got)
	}
}
