package audio

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/silencesuzuka/playerd/internal/types"
)

// CaptureState describes the supervisor's view of the capture stream.
type CaptureState string

const (
	// CaptureClosed means no stream is open and none is being opened.
	CaptureClosed CaptureState = "closed"
	// CaptureOpening means device selection or stream open is in progress.
	CaptureOpening CaptureState = "opening"
	// CaptureStreaming means blocks are being delivered.
	CaptureStreaming CaptureState = "streaming"
	// CaptureError means the last open or stream failed and a retry is
	// pending.
	CaptureError CaptureState = "error"
)

// Watchdog parameters for detecting a stream that stopped delivering
// blocks without reporting a fault.
const (
	watchdogInterval = 1 * time.Second
	blockStallLimit  = 5 * time.Second
)

// DetectorStatus is a point-in-time snapshot of the detector for status
// reporting.
type DetectorStatus struct {
	Running    bool           `json:"running"`
	Capture    CaptureState   `json:"capture"`
	State      Classification `json:"state"`
	Level      float64        `json:"level"`
	Peak       float64        `json:"peak"`
	SilenceFor float64        `json:"silence_for_seconds"`
	Device     string         `json:"device,omitempty"`
}

// Detector supervises system-audio capture and turns raw sample blocks
// into level, state-change and sustained-silence events. It owns one
// background goroutine between Start and Stop; all processing of a
// block happens on the transport's delivery thread and hands results to
// consumers through a buffered event channel.
type Detector struct {
	factory    TransportFactory
	isLoopback LoopbackMatcher

	// cfg is replaced wholesale by Reconfigure and read per block.
	cfg atomic.Pointer[DetectorConfig]

	// gen fences stale capture callbacks: each stream records the
	// generation it was opened under and blocks from older generations
	// are dropped.
	gen atomic.Uint64

	events chan Event
	reopen chan struct{}

	// Tunables, fixed in production and shortened by tests.
	retryDelay   time.Duration
	stopTimeout  time.Duration
	levelEvery   time.Duration
	watchdogTick time.Duration
	stallLimit   time.Duration
	now          func() time.Time

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}

	statusMu sync.Mutex
	status   DetectorStatus
}

// NewDetector creates a detector that opens capture streams through the
// given factory. The detector is idle until Start.
func NewDetector(cfg DetectorConfig, factory TransportFactory) *Detector {
	d := &Detector{
		factory:      factory,
		isLoopback:   DefaultLoopbackMatcher,
		events:       make(chan Event, 64),
		reopen:       make(chan struct{}, 1),
		retryDelay:   types.CaptureRetryDelay,
		stopTimeout:  types.DetectorStopTimeout,
		levelEvery:   types.LevelEmitInterval,
		watchdogTick: watchdogInterval,
		stallLimit:   blockStallLimit,
		now:          time.Now,
		status:       DetectorStatus{Capture: CaptureClosed, State: Silent},
	}
	applied := cfg.withDefaults()
	d.cfg.Store(&applied)
	return d
}

// Events returns the detector's notification channel. The channel is
// never closed; consumers stop reading after Stop returns.
func (d *Detector) Events() <-chan Event {
	return d.events
}

// Status returns a snapshot of the detector state.
func (d *Detector) Status() DetectorStatus {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()
	s := d.status
	d.mu.Lock()
	s.Running = d.running
	d.mu.Unlock()
	return s
}

// Config returns the current configuration snapshot.
func (d *Detector) Config() DetectorConfig {
	return *d.cfg.Load()
}

// Reconfigure swaps in a new configuration. Threshold and duration
// changes take effect on the next processed block; a capture target
// change additionally reopens the stream. Safe to call whether or not
// the detector is running.
func (d *Detector) Reconfigure(cfg DetectorConfig) {
	applied := cfg.withDefaults()
	prev := d.cfg.Swap(&applied)
	if prev != nil && prev.Target != applied.Target {
		select {
		case d.reopen <- struct{}{}:
		default:
		}
	}
}

// Start launches the capture supervisor. Calling Start while running is
// a no-op.
func (d *Detector) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.running = true
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.run(d.stop, d.done)
}

// Stop shuts the supervisor down and waits, bounded, for the capture
// device to be released. Idempotent; a second Stop returns immediately.
func (d *Detector) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	stop, done := d.stop, d.done
	d.mu.Unlock()

	close(stop)
	select {
	case <-done:
	case <-time.After(d.stopTimeout):
		slog.Warn("silence detector did not release capture device in time",
			"timeout", d.stopTimeout)
	}
}

func (d *Detector) setCapture(state CaptureState, device string) {
	d.statusMu.Lock()
	d.status.Capture = state
	d.status.Device = device
	d.statusMu.Unlock()
}

// run is the supervisor loop: create the transport, then open and
// re-open the capture stream until stopped.
func (d *Detector) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer d.setCapture(CaptureClosed, "")

	transport, err := d.factory()
	if err != nil {
		// An absent subsystem is not retryable within a run; report it
		// once and idle until Stop so the player keeps working without
		// silence detection.
		slog.Error("audio subsystem unavailable", "error", err)
		d.emit(Event{Kind: EventUnavailable, Reason: err.Error()})
		if !errors.Is(err, ErrSubsystemUnavailable) {
			slog.Warn("treating transport init failure as unavailable", "error", err)
		}
		<-stop
		return
	}
	defer func() {
		if err := transport.Close(); err != nil {
			slog.Warn("error closing audio transport", "error", err)
		}
	}()

	for {
		again := d.openStream(transport, stop)
		if !again {
			return
		}
	}
}

// openStream opens one capture session and services it until it ends.
// It returns false when the detector should shut down.
func (d *Detector) openStream(transport Transport, stop <-chan struct{}) bool {
	d.setCapture(CaptureOpening, "")

	devices, err := transport.Devices()
	if err == nil && len(devices) == 0 {
		err = ErrNoDevice
	}
	if err != nil {
		slog.Warn("audio device enumeration failed", "error", err)
		return d.retryOrStop(stop)
	}

	target := d.cfg.Load().Target
	dev, err := SelectDevice(devices, target, d.isLoopback)
	if err != nil {
		slog.Warn("no usable capture device", "error", err)
		return d.retryOrStop(stop)
	}

	gen := d.gen.Add(1)
	fault := make(chan error, 1)
	proc := d.newProcessor(gen)

	stream, err := transport.Open(dev, Callbacks{
		OnBlock: proc.handle,
		OnError: func(err error) {
			select {
			case fault <- err:
			default:
			}
		},
	})
	if err != nil {
		slog.Warn("failed to open capture device", "device", dev.Name, "error", err)
		d.setCapture(CaptureError, dev.Name)
		d.emit(Event{Kind: EventCaptureError, Device: dev.Name, Reason: err.Error()})
		return d.retryOrStop(stop)
	}

	slog.Info("capture stream open",
		"device", dev.Name,
		"loopback", d.isLoopback(dev),
		"system_output", target.SystemOutput)
	d.setCapture(CaptureStreaming, dev.Name)
	d.emit(Event{Kind: EventCaptureOpened, Device: dev.Name})

	outcome := d.streamUntil(stop, fault, proc)

	// Bump the generation before Close so blocks raced in by the driver
	// thread are dropped rather than processed against torn-down state.
	d.gen.Add(1)
	if err := stream.Close(); err != nil {
		slog.Warn("error closing capture stream", "device", dev.Name, "error", err)
	}

	switch outcome {
	case leaveStop:
		return false
	case leaveReopen:
		slog.Info("reopening capture stream after device change")
		return true
	default:
		d.setCapture(CaptureError, dev.Name)
		return d.retryOrStop(stop)
	}
}

type streamOutcome int

const (
	leaveStop streamOutcome = iota
	leaveReopen
	leaveFault
)

// streamUntil blocks while the stream is healthy, returning why it
// should be left. A watchdog treats a stream that stops delivering
// blocks without reporting an error as faulted.
func (d *Detector) streamUntil(stop <-chan struct{}, fault <-chan error, proc *processor) streamOutcome {
	watchdog := time.NewTicker(d.watchdogTick)
	defer watchdog.Stop()

	for {
		select {
		case <-stop:
			return leaveStop
		case <-d.reopen:
			return leaveReopen
		case err := <-fault:
			slog.Warn("capture stream fault", "error", err)
			d.emit(Event{Kind: EventCaptureError, Reason: err.Error()})
			return leaveFault
		case <-watchdog.C:
			if stalled, since := proc.stalled(d.now(), d.stallLimit); stalled {
				slog.Warn("capture stream stalled", "since", since)
				d.emit(Event{Kind: EventCaptureError, Reason: "stream stalled, no blocks arriving"})
				return leaveFault
			}
		}
	}
}

// retryOrStop waits out the retry delay. It returns false if the
// detector was stopped while waiting.
func (d *Detector) retryOrStop(stop <-chan struct{}) bool {
	timer := time.NewTimer(d.retryDelay)
	defer timer.Stop()
	select {
	case <-stop:
		return false
	case <-timer.C:
		return true
	}
}

// emit delivers an event without ever blocking the caller. Level events
// are dropped silently when the consumer lags; anything else is logged.
func (d *Detector) emit(ev Event) {
	select {
	case d.events <- ev:
	default:
		if ev.Kind != EventLevel {
			slog.Warn("detector event dropped, consumer not keeping up", "kind", ev.Kind)
		}
	}
}

// processor turns capture blocks into events for one stream session.
// handle runs on the transport's delivery thread; everything it touches
// is either owned by it or accessed atomically.
type processor struct {
	d   *Detector
	gen uint64

	meter       LevelMeter
	classifier  Classifier
	accumulator Accumulator
	peaks       *PeakHolder

	lastLevelEmit time.Time
	lastBlock     atomic.Int64 // unix nanos of the last processed block
}

func (d *Detector) newProcessor(gen uint64) *processor {
	p := &processor{d: d, gen: gen, peaks: NewPeakHolder()}
	p.lastBlock.Store(d.now().UnixNano())
	return p
}

// stalled reports whether no block has arrived within limit.
func (p *processor) stalled(now time.Time, limit time.Duration) (bool, time.Duration) {
	since := now.Sub(time.Unix(0, p.lastBlock.Load()))
	return since > limit, since
}

// handle processes one capture block: meter, classify, accumulate, emit.
func (p *processor) handle(block Block) {
	d := p.d
	if p.gen != d.gen.Load() {
		// Stale delivery from a stream being torn down.
		return
	}
	now := d.now()
	p.lastBlock.Store(now.UnixNano())

	cfg := d.cfg.Load()
	level := p.meter.Update(block.Samples)
	peak := p.peaks.Update(level, now)
	cls, changed := p.classifier.Observe(level, cfg.SilenceThreshold, cfg.ResumeThreshold)
	fired := p.accumulator.Observe(cls, block.Duration(), cfg.SilenceDuration)

	d.statusMu.Lock()
	d.status.State = cls
	d.status.Level = level
	d.status.Peak = peak
	d.status.SilenceFor = p.accumulator.Elapsed().Seconds()
	d.statusMu.Unlock()

	if changed {
		slog.Debug("audio state changed", "state", cls, "level", level)
		d.emit(Event{Kind: EventStateChange, State: cls, Level: level})
	}
	if fired {
		slog.Info("sustained silence detected",
			"threshold", cfg.SilenceDuration, "level", level)
		d.emit(Event{Kind: EventSustainedSilence, Level: level, SilenceFor: cfg.SilenceDuration})
	}
	if p.lastLevelEmit.IsZero() || now.Sub(p.lastLevelEmit) >= d.levelEvery {
		p.lastLevelEmit = now
		d.emit(Event{Kind: EventLevel, Level: level, Peak: peak, State: cls, SilenceFor: p.accumulator.Elapsed()})
	}
}
