// Package smartqueue suggests what to queue next, combining
// time-of-day context, content similarity and completion rates learned
// from how the user treats items.
package smartqueue

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/silencesuzuka/playerd/internal/types"
	"github.com/silencesuzuka/playerd/internal/util"
)

// Action is a recorded user interaction with an item.
type Action string

const (
	ActionPlay     Action = "play"
	ActionSkip     Action = "skip"
	ActionComplete Action = "complete"
)

// Options control suggestion behavior.
type Options struct {
	Enabled           bool `json:"enabled"`
	TimeAware         bool `json:"time_aware"`
	ContentSimilarity bool `json:"content_similarity"`
	LearningEnabled   bool `json:"learning_enabled"`

	MaxSuggestions int `json:"max_suggestions"`

	// ShortVideoThreshold marks items worth suggesting as a break.
	ShortVideoThreshold time.Duration `json:"-"`
	// LongSessionThreshold is how long a session runs before short
	// items get preferred.
	LongSessionThreshold time.Duration `json:"-"`

	// MinLearningSamples gates pattern suggestions until enough
	// interactions accumulated.
	MinLearningSamples int `json:"min_learning_samples"`
}

// DefaultOptions returns the shipped defaults. Suggestions are opt-in.
func DefaultOptions() Options {
	return Options{
		Enabled:              false,
		TimeAware:            true,
		ContentSimilarity:    true,
		LearningEnabled:      true,
		MaxSuggestions:       3,
		ShortVideoThreshold:  5 * time.Minute,
		LongSessionThreshold: 30 * time.Minute,
		MinLearningSamples:   10,
	}
}

// Suggestion is one recommended playlist index with the reason it was
// picked.
type Suggestion struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// rateBucket counts events against opportunities for one key.
type rateBucket struct {
	Events int `json:"events"`
	Total  int `json:"total"`
}

func (b rateBucket) rate() float64 {
	if b.Total == 0 {
		return 0
	}
	return float64(b.Events) / float64(b.Total)
}

// learningData is the persisted behavior model, keyed by item type,
// source domain and hour-of-day.
type learningData struct {
	SkipRates       map[string]rateBucket `json:"skip_rates"`
	CompletionRates map[string]rateBucket `json:"completion_rates"`
	LastUpdated     int64                 `json:"last_updated"`
}

func emptyLearningData() learningData {
	return learningData{
		SkipRates:       make(map[string]rateBucket),
		CompletionRates: make(map[string]rateBucket),
	}
}

// Manager records interactions and produces queue suggestions. It is
// safe for concurrent use.
type Manager struct {
	path string
	now  func() time.Time

	mu           sync.Mutex
	opts         Options
	data         learningData
	sessionStart time.Time
	interactions int
}

// NewManager loads the learning model at path, starting fresh when the
// file is missing or unreadable.
func NewManager(path string, opts Options) *Manager {
	m := &Manager{
		path: path,
		now:  time.Now,
		opts: opts,
		data: emptyLearningData(),
	}
	m.sessionStart = m.now()
	m.load()
	return m
}

func (m *Manager) load() {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("failed to read smart queue data", "path", m.path, "error", err)
		}
		return
	}
	var data learningData
	if err := json.Unmarshal(raw, &data); err != nil {
		slog.Warn("discarding corrupt smart queue data", "path", m.path, "error", err)
		return
	}
	if data.SkipRates == nil {
		data.SkipRates = make(map[string]rateBucket)
	}
	if data.CompletionRates == nil {
		data.CompletionRates = make(map[string]rateBucket)
	}
	m.data = data
}

// Save writes the learning model atomically.
func (m *Manager) Save() error {
	m.mu.Lock()
	m.data.LastUpdated = m.now().Unix()
	raw, err := json.MarshalIndent(m.data, "", "  ")
	m.mu.Unlock()
	if err != nil {
		return util.WrapError("marshal smart queue data", err)
	}
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return util.WrapError("create smart queue directory", err)
		}
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return util.WrapError("write smart queue data", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return util.WrapError("replace smart queue data", err)
	}
	return nil
}

// SetOptions swaps in new options.
func (m *Manager) SetOptions(opts Options) {
	m.mu.Lock()
	m.opts = opts
	m.mu.Unlock()
}

// Options returns the current options.
func (m *Manager) Options() Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts
}

// RecordInteraction updates the behavior model with one user action.
func (m *Manager) RecordInteraction(item types.PlaylistItem, action Action) {
	m.mu.Lock()
	if !m.opts.LearningEnabled {
		m.mu.Unlock()
		return
	}

	keys := []string{
		string(item.Kind),
		sourceDomain(item.URL),
		hourKey(m.now().Hour()),
	}
	switch action {
	case ActionSkip:
		for _, key := range keys {
			b := m.data.SkipRates[key]
			b.Events++
			b.Total++
			m.data.SkipRates[key] = b
		}
	case ActionComplete:
		for _, key := range keys {
			b := m.data.CompletionRates[key]
			b.Events++
			b.Total++
			m.data.CompletionRates[key] = b
		}
	}
	m.interactions++
	flush := m.interactions%5 == 0
	m.mu.Unlock()

	if flush {
		if err := m.Save(); err != nil {
			slog.Warn("failed to save smart queue data", "error", err)
		}
	}
}

// ResetLearning discards the behavior model on explicit user request.
func (m *Manager) ResetLearning() error {
	m.mu.Lock()
	m.data = emptyLearningData()
	m.interactions = 0
	m.mu.Unlock()
	slog.Info("smart queue learning data reset")
	return m.Save()
}

// Suggest returns up to MaxSuggestions playlist indices worth queuing,
// excluding the current item and anything already queued.
func (m *Manager) Suggest(current *types.PlaylistItem, playlist []types.PlaylistItem, currentIndex int, upcoming []int) []Suggestion {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.opts.Enabled || len(playlist) == 0 {
		return nil
	}

	taken := make(map[int]bool, len(upcoming)+1)
	taken[currentIndex] = true
	for _, idx := range upcoming {
		taken[idx] = true
	}
	var available []int
	for i := range playlist {
		if !taken[i] {
			available = append(available, i)
		}
	}
	if len(available) == 0 {
		return nil
	}

	var all []Suggestion
	if m.opts.TimeAware {
		all = append(all, m.timeAwareLocked(playlist, available)...)
	}
	if m.opts.ContentSimilarity {
		all = append(all, m.similarityLocked(current, playlist, available)...)
	}
	if m.opts.LearningEnabled {
		all = append(all, m.patternsLocked(playlist, available)...)
	}

	seen := make(map[int]bool)
	var out []Suggestion
	for _, s := range all {
		if seen[s.Index] {
			continue
		}
		seen[s.Index] = true
		out = append(out, s)
		if len(out) >= m.opts.MaxSuggestions {
			break
		}
	}
	return out
}

// timeAwareLocked suggests items fitting the hour and session length.
func (m *Manager) timeAwareLocked(playlist []types.PlaylistItem, available []int) []Suggestion {
	var out []Suggestion
	hour := m.now().Hour()
	timeContext := contextForHour(hour)
	sessionLength := m.now().Sub(m.sessionStart)
	morningPicks := 0

	for _, idx := range available {
		duration := time.Duration(playlist[idx].DurationSeconds) * time.Second
		switch {
		case sessionLength > m.opts.LongSessionThreshold && duration > 0 && duration < m.opts.ShortVideoThreshold:
			out = append(out, Suggestion{Index: idx, Reason: "short video for a break"})
		case timeContext == "night" && duration > 0 && duration < 15*time.Minute:
			out = append(out, Suggestion{Index: idx, Reason: "good for night"})
		case timeContext == "morning" && morningPicks < 2:
			morningPicks++
			out = append(out, Suggestion{Index: idx, Reason: "morning pick"})
		}
	}
	return out
}

// similarityLocked suggests items resembling the current one. Type
// counts most, then source, then comparable length.
func (m *Manager) similarityLocked(current *types.PlaylistItem, playlist []types.PlaylistItem, available []int) []Suggestion {
	if current == nil {
		return nil
	}
	currentSource := sourceDomain(current.URL)

	var out []Suggestion
	for _, idx := range available {
		item := playlist[idx]
		score := 0
		var parts []string

		if item.Kind == current.Kind {
			score += 3
			parts = append(parts, "same type")
		}
		if sourceDomain(item.URL) == currentSource {
			score += 2
			parts = append(parts, "same source")
		}
		if current.DurationSeconds > 0 && item.DurationSeconds > 0 {
			diff := current.DurationSeconds - item.DurationSeconds
			if diff < 0 {
				diff = -diff
			}
			if float64(diff)/float64(current.DurationSeconds) < 0.5 {
				score++
				parts = append(parts, "similar length")
			}
		}

		if score >= 2 {
			out = append(out, Suggestion{
				Index:  idx,
				Reason: fmt.Sprintf("similar content (%s)", strings.Join(parts, ", ")),
			})
		}
	}
	return out
}

// patternsLocked suggests items the user historically finishes.
func (m *Manager) patternsLocked(playlist []types.PlaylistItem, available []int) []Suggestion {
	total := 0
	for _, b := range m.data.CompletionRates {
		total += b.Total
	}
	if total < m.opts.MinLearningSamples {
		return nil
	}

	hour := hourKey(m.now().Hour())
	var out []Suggestion
	for _, idx := range available {
		item := playlist[idx]
		score := 0.0

		if b := m.data.CompletionRates[string(item.Kind)]; b.Total >= 3 {
			score += b.rate() * 2
		}
		if b := m.data.CompletionRates[sourceDomain(item.URL)]; b.Total >= 3 {
			score += b.rate() * 1.5
		}
		if b := m.data.CompletionRates[hour]; b.Total >= 2 {
			score += b.rate()
		}

		if score >= 1.5 {
			out = append(out, Suggestion{Index: idx, Reason: "matches your listening patterns"})
		}
	}
	return out
}

// contextForHour buckets the day into coarse listening contexts.
func contextForHour(hour int) string {
	switch {
	case hour >= 6 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 18:
		return "afternoon"
	case hour >= 18 && hour < 22:
		return "evening"
	default:
		return "night"
	}
}

func hourKey(hour int) string {
	return fmt.Sprintf("hour_%d", hour)
}

// sourceDomain reduces a URL to a coarse source label for grouping.
func sourceDomain(rawURL string) string {
	if rawURL == "" {
		return "unknown"
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "unknown"
	}
	domain := strings.ToLower(parsed.Host)
	switch {
	case strings.Contains(domain, "youtube"), strings.Contains(domain, "youtu.be"):
		return "youtube"
	case strings.Contains(domain, "bilibili"):
		return "bilibili"
	case domain != "":
		return domain
	default:
		return "local"
	}
}
