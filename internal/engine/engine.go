// Package engine composes the player subsystems: the silence detector,
// the AFK monitor, the background duration fetcher, the smart queue and
// the playback error policy. It pumps subsystem events into the event
// log and the notification channels, and exposes the status snapshot
// and update stream the local API serves to the GUI.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/silencesuzuka/playerd/internal/afk"
	"github.com/silencesuzuka/playerd/internal/audio"
	"github.com/silencesuzuka/playerd/internal/config"
	"github.com/silencesuzuka/playerd/internal/durations"
	"github.com/silencesuzuka/playerd/internal/eventlog"
	"github.com/silencesuzuka/playerd/internal/notify"
	"github.com/silencesuzuka/playerd/internal/playback"
	"github.com/silencesuzuka/playerd/internal/smartqueue"
	"github.com/silencesuzuka/playerd/internal/types"
)

// Sentinel errors for engine operations.
var (
	ErrAlreadyRunning = errors.New("engine already running")
	ErrNotRunning     = errors.New("engine not running")
)

// UpdateKind identifies a push update for the GUI.
type UpdateKind string

const (
	// UpdateLevel is a throttled loudness reading for meters.
	UpdateLevel UpdateKind = "level"
	// UpdateState reports a silent/active transition.
	UpdateState UpdateKind = "state"
	// UpdateAutoAdvance asks the GUI to advance to the next item after
	// sustained silence.
	UpdateAutoAdvance UpdateKind = "auto_advance"
	// UpdateUnavailable reports, once per detector start, that silence
	// detection is disabled because the audio subsystem is absent.
	UpdateUnavailable UpdateKind = "unavailable"
	// UpdatePresence reports a user idle/active transition.
	UpdatePresence UpdateKind = "presence"
	// UpdateFetch reports a resolved or failed duration fetch.
	UpdateFetch UpdateKind = "fetch"
)

// Update is one push message for the GUI.
type Update struct {
	Kind       UpdateKind           `json:"kind"`
	Level      float64              `json:"level,omitempty"`
	Peak       float64              `json:"peak,omitempty"`
	State      audio.Classification `json:"state,omitempty"`
	SilenceFor float64              `json:"silence_for_seconds,omitempty"`
	Presence   afk.State            `json:"presence,omitempty"`
	IdleFor    float64              `json:"idle_seconds,omitempty"`
	Fetch      *durations.Result    `json:"fetch,omitempty"`
	Reason     string               `json:"reason,omitempty"`
}

// Status is the point-in-time engine snapshot served over the API.
type Status struct {
	State       types.EngineState    `json:"state"`
	Detector    audio.DetectorStatus `json:"detector"`
	Presence    afk.State            `json:"presence"`
	IdleSeconds float64              `json:"idle_seconds"`
	Fetch       durations.FetchStats `json:"fetch"`
	Playback    playback.Summary     `json:"playback"`
	Unavailable string               `json:"unavailable,omitempty"`
}

// Engine wires the player subsystems together and runs the event pump
// between them.
type Engine struct {
	cfg     *config.Config
	factory audio.TransportFactory

	detector *audio.Detector
	afk      *afk.Monitor
	fetcher  *durations.Fetcher
	queue    *smartqueue.Manager
	errors   *playback.Handler
	notifier *notify.SilenceNotifier
	log      *eventlog.Logger

	updates chan Update

	mu          sync.Mutex
	state       types.EngineState
	stop        chan struct{}
	done        chan struct{}
	unavailable string // reason, set once per detector start
}

// New creates an engine from the loaded configuration. Persistent state
// (event log, duration cache, learned queue data) lives under dataDir.
// The factory opens the capture transport when the detector starts.
func New(cfg *config.Config, dataDir string, factory audio.TransportFactory) (*Engine, error) {
	snap := cfg.Snapshot()

	logger, err := eventlog.NewLogger(eventlog.DefaultLogPath(dataDir))
	if err != nil {
		return nil, fmt.Errorf("create event log: %w", err)
	}

	cache := durations.NewCache(
		filepath.Join(dataDir, "durations_cache.json"),
		snap.CacheMaxAge, snap.CacheMaxEntries,
	)
	prober := durations.NewExecProber(snap.FFprobePath, snap.YtdlpPath)

	e := &Engine{
		cfg:      cfg,
		factory:  factory,
		detector: audio.NewDetector(snap.DetectorConfig(), factory),
		afk:      afk.NewMonitor(snap.AFKTimeout),
		fetcher:  durations.NewFetcher(cache, prober, snap.FetchWorkers),
		queue:    smartqueue.NewManager(filepath.Join(dataDir, "smart_queue_learning.json"), snap.SmartQueue),
		errors:   playback.NewHandler(),
		notifier: notify.NewSilenceNotifier(cfg),
		log:      logger,
		updates:  make(chan Update, 64),
		state:    types.EngineStopped,
	}
	return e, nil
}

// Updates returns the GUI push channel. Never closed.
func (e *Engine) Updates() <-chan Update {
	return e.updates
}

// State returns the current engine state.
func (e *Engine) State() types.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start launches the event pump and the AFK monitor. The detector is
// started separately so the GUI controls silence detection on its own.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == types.EngineRunning {
		return ErrAlreadyRunning
	}

	e.state = types.EngineRunning
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	go e.run(e.stop, e.done)

	if e.cfg.Snapshot().AFKEnabled {
		e.afk.Start()
	}

	slog.Info("engine started")
	return nil
}

// Stop shuts down all subsystems. Idempotent.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state != types.EngineRunning {
		e.mu.Unlock()
		return nil
	}
	e.state = types.EngineStopping
	stop, done := e.stop, e.done
	e.mu.Unlock()

	var errs []error

	// Producers first so the pump drains their last events.
	e.detector.Stop()
	e.afk.Stop()
	e.fetcher.Stop()

	close(stop)
	<-done

	if err := e.queue.Save(); err != nil {
		errs = append(errs, fmt.Errorf("save queue learning: %w", err))
	}
	if err := e.log.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close event log: %w", err))
	}

	e.mu.Lock()
	e.state = types.EngineStopped
	e.mu.Unlock()

	slog.Info("engine stopped")
	return errors.Join(errs...)
}

// StartDetector begins silence detection.
func (e *Engine) StartDetector() error {
	e.mu.Lock()
	if e.state != types.EngineRunning {
		e.mu.Unlock()
		return ErrNotRunning
	}
	e.unavailable = ""
	e.mu.Unlock()

	e.notifier.Reset()
	e.detector.Start()
	return nil
}

// StopDetector halts silence detection. The engine keeps running.
func (e *Engine) StopDetector() {
	e.detector.Stop()
}

// ApplyConfig re-reads the configuration and pushes changes into the
// running subsystems.
func (e *Engine) ApplyConfig() {
	snap := e.cfg.Snapshot()
	e.detector.Reconfigure(snap.DetectorConfig())
	e.afk.SetThreshold(snap.AFKTimeout)
	e.queue.SetOptions(snap.SmartQueue)

	e.mu.Lock()
	running := e.state == types.EngineRunning
	e.mu.Unlock()
	if running {
		if snap.AFKEnabled {
			e.afk.Start()
		} else {
			e.afk.Stop()
		}
	}
}

// Status returns the engine snapshot served over the API.
func (e *Engine) Status() Status {
	e.mu.Lock()
	state := e.state
	unavailable := e.unavailable
	e.mu.Unlock()

	return Status{
		State:       state,
		Detector:    e.detector.Status(),
		Presence:    e.afk.State(),
		IdleSeconds: e.afk.IdleFor().Seconds(),
		Fetch:       e.fetcher.Stats(),
		Playback:    e.errors.Summarize(),
		Unavailable: unavailable,
	}
}

// ListDevices enumerates capture devices for the settings UI.
func (e *Engine) ListDevices() ([]audio.Device, error) {
	transport, err := e.factory()
	if err != nil {
		return nil, err
	}
	defer transport.Close() //nolint:errcheck // Enumeration-only transport

	return transport.Devices()
}

// Touch records user input for the AFK monitor.
func (e *Engine) Touch() {
	e.afk.Touch()
}

// EnqueueFetch queues playlist items for duration resolution.
func (e *Engine) EnqueueFetch(items []types.PlaylistItem, priority types.FetchPriority) {
	e.fetcher.Enqueue(items, priority)
}

// RecordInteraction feeds the smart queue's learning with a playback
// interaction from the GUI.
func (e *Engine) RecordInteraction(item types.PlaylistItem, action smartqueue.Action) {
	e.queue.RecordInteraction(item, action)
}

// Suggest returns smart queue suggestions for the current playlist.
func (e *Engine) Suggest(current *types.PlaylistItem, playlist []types.PlaylistItem, currentIndex int, upcoming []int) []smartqueue.Suggestion {
	return e.queue.Suggest(current, playlist, currentIndex, upcoming)
}

// ResetLearning clears the smart queue's learned data.
func (e *Engine) ResetLearning() error {
	return e.queue.ResetLearning()
}

// ReportPlaybackFailure records a playback failure reported by the GUI
// and returns the retry decision.
func (e *Engine) ReportPlaybackFailure(message, url string) playback.Decision {
	decision := e.errors.RecordFailure(message, url)

	e.logEvent(func() error {
		return e.log.LogPlayback(eventlog.PlaybackError, url, string(decision.Class), message, 0)
	})
	if decision.BreakerTripped {
		e.logEvent(func() error {
			return e.log.LogPlayback(eventlog.BreakerTripped, url, string(decision.Class), message, 0)
		})
	}
	return decision
}

// ReportPlaybackSuccess clears failure state for an item that played.
func (e *Engine) ReportPlaybackSuccess(url string) {
	e.errors.RecordSuccess(url)
}

// ResetBreaker re-enables auto-advance after a breaker trip.
func (e *Engine) ResetBreaker() {
	e.errors.ResetBreaker()
}

// TriggerTestWebhook sends a test webhook to verify configuration.
func (e *Engine) TriggerTestWebhook() error {
	return notify.SendTestWebhook(e.cfg.Snapshot().WebhookURL)
}

// TriggerTestLog writes a test entry to verify log file configuration.
func (e *Engine) TriggerTestLog() error {
	return notify.WriteTestLog(e.cfg.Snapshot().LogPath)
}

// EventLogPath returns the engine event log location, for API reads.
func (e *Engine) EventLogPath() string {
	return e.log.Path()
}

// run is the event pump: one goroutine fanning subsystem events into
// the notifier, the event log and the GUI update stream.
func (e *Engine) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case ev := <-e.detector.Events():
			e.handleDetectorEvent(ev)
		case ev := <-e.afk.Events():
			e.handlePresenceEvent(ev)
		case res := <-e.fetcher.Results():
			e.handleFetchResult(res)
		}
	}
}

func (e *Engine) handleDetectorEvent(ev audio.Event) {
	e.notifier.HandleEvent(ev)

	switch ev.Kind {
	case audio.EventLevel:
		e.emit(Update{
			Kind:       UpdateLevel,
			Level:      ev.Level,
			Peak:       ev.Peak,
			State:      ev.State,
			SilenceFor: ev.SilenceFor.Seconds(),
		})

	case audio.EventStateChange:
		logType := eventlog.SilenceEnd
		if ev.State == audio.Silent {
			logType = eventlog.SilenceStart
		}
		threshold := e.detector.Config().SilenceThreshold
		e.logEvent(func() error { return e.log.LogSilence(logType, ev.Level, threshold, 0) })
		e.emit(Update{Kind: UpdateState, State: ev.State, Level: ev.Level})

	case audio.EventSustainedSilence:
		cfg := e.detector.Config()
		e.logEvent(func() error {
			return e.log.LogSilence(eventlog.SustainedSilence, ev.Level, cfg.SilenceThreshold, ev.SilenceFor)
		})
		if !e.errors.AutoAdvanceAllowed() {
			slog.Warn("sustained silence but auto-advance is paused by the error breaker")
			return
		}
		slog.Info("sustained silence, requesting auto-advance", "after", ev.SilenceFor)
		e.emit(Update{Kind: UpdateAutoAdvance, SilenceFor: ev.SilenceFor.Seconds()})

	case audio.EventCaptureOpened:
		e.logEvent(func() error {
			return e.log.LogCapture(eventlog.CaptureOpened, ev.Device, "")
		})

	case audio.EventCaptureError:
		e.logEvent(func() error {
			return e.log.LogCapture(eventlog.CaptureError, ev.Device, ev.Reason)
		})

	case audio.EventUnavailable:
		e.mu.Lock()
		first := e.unavailable == ""
		e.unavailable = ev.Reason
		e.mu.Unlock()
		if !first {
			return
		}
		e.logEvent(func() error {
			return e.log.LogCapture(eventlog.CaptureUnavailable, "", ev.Reason)
		})
		e.emit(Update{Kind: UpdateUnavailable, Reason: ev.Reason})
	}
}

func (e *Engine) handlePresenceEvent(ev afk.Event) {
	logType := eventlog.UserActive
	if ev.State == afk.UserIdle {
		logType = eventlog.UserIdle
	}
	e.logEvent(func() error { return e.log.LogPresence(logType, ev.IdleFor) })
	e.emit(Update{Kind: UpdatePresence, Presence: ev.State, IdleFor: ev.IdleFor.Seconds()})
}

func (e *Engine) handleFetchResult(res durations.Result) {
	e.logEvent(func() error {
		return e.log.LogFetch(res.Item.URL, res.Duration, res.Source, res.Error)
	})
	e.emit(Update{Kind: UpdateFetch, Fetch: &res})
}

// emit delivers an update without blocking the pump. Level updates are
// dropped silently when the GUI lags; anything else is logged.
func (e *Engine) emit(u Update) {
	select {
	case e.updates <- u:
	default:
		if u.Kind != UpdateLevel {
			slog.Warn("engine update dropped, consumer not keeping up", "kind", u.Kind)
		}
	}
}

func (e *Engine) logEvent(fn func() error) {
	if err := fn(); err != nil {
		slog.Error("event log write failed", "error", err)
	}
}
