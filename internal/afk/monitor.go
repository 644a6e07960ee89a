// Package afk tracks whether the user is at the keyboard. The GUI
// reports input activity over the local API; the monitor turns the last
// activity timestamp into edge-triggered idle/active events.
package afk

import (
	"log/slog"
	"sync"
	"time"
)

// State is the monitor's view of the user.
type State string

const (
	// UserActive means input was seen within the idle threshold.
	UserActive State = "active"
	// UserIdle means no input for at least the idle threshold.
	UserIdle State = "idle"
)

// DefaultIdleThreshold is how long without input counts as away.
const DefaultIdleThreshold = 5 * time.Minute

// Sweep cadence. Coarse on purpose; idle detection does not need
// sub-second resolution.
const sweepInterval = 1 * time.Second

// Event reports an idle/active transition.
type Event struct {
	State State
	// IdleFor is how long the user had been idle at the transition.
	IdleFor time.Duration
}

// Monitor watches the time since the last reported user input and emits
// an event on each idle/active transition. It is safe for concurrent
// use.
type Monitor struct {
	events chan Event

	// Injectable for tests.
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	threshold time.Duration
	lastInput time.Time
	state     State
	running   bool
	stop      chan struct{}
	done      chan struct{}
}

// NewMonitor creates a monitor with the given idle threshold. A zero or
// negative threshold falls back to the default.
func NewMonitor(threshold time.Duration) *Monitor {
	if threshold <= 0 {
		threshold = DefaultIdleThreshold
	}
	m := &Monitor{
		events:    make(chan Event, 16),
		interval:  sweepInterval,
		now:       time.Now,
		threshold: threshold,
		state:     UserActive,
	}
	m.lastInput = m.now()
	return m
}

// Events returns the transition channel. Never closed.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

// Touch records user input now. The GUI calls this on any interaction.
func (m *Monitor) Touch() {
	m.mu.Lock()
	m.lastInput = m.now()
	m.mu.Unlock()
}

// State returns the current classification.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IdleFor returns the time since the last reported input.
func (m *Monitor) IdleFor() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().Sub(m.lastInput)
}

// SetThreshold updates the idle threshold. Takes effect on the next
// sweep.
func (m *Monitor) SetThreshold(threshold time.Duration) {
	if threshold <= 0 {
		threshold = DefaultIdleThreshold
	}
	m.mu.Lock()
	m.threshold = threshold
	m.mu.Unlock()
}

// Start launches the sweep goroutine. No-op while running.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.lastInput = m.now()
	m.state = UserActive
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.run(m.stop, m.done)
}

// Stop halts the sweep goroutine. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stop, done := m.stop, m.done
	m.mu.Unlock()
	close(stop)
	<-done
}

func (m *Monitor) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep reclassifies and emits an event on the edge.
func (m *Monitor) sweep() {
	m.mu.Lock()
	idleFor := m.now().Sub(m.lastInput)
	next := UserActive
	if idleFor >= m.threshold {
		next = UserIdle
	}
	changed := next != m.state
	m.state = next
	m.mu.Unlock()

	if !changed {
		return
	}
	slog.Info("user presence changed", "state", next, "idle_for", idleFor)
	select {
	case m.events <- Event{State: next, IdleFor: idleFor}:
	default:
		slog.Warn("afk event dropped, consumer not keeping up", "state", next)
	}
}
