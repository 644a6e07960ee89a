// Package config provides application configuration management.
package config

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/silencesuzuka/playerd/internal/audio"
	"github.com/silencesuzuka/playerd/internal/smartqueue"
	"github.com/silencesuzuka/playerd/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultPort                   = 8765
	DefaultSilenceThreshold       = audio.DefaultSilenceThreshold
	DefaultResumeThreshold        = audio.DefaultResumeThreshold
	DefaultSilenceDurationSeconds = 300
	DefaultAFKTimeoutSeconds      = 300
	DefaultFetchWorkers           = 2
	DefaultCacheMaxAgeDays        = 30
	DefaultCacheMaxEntries        = 10000
)

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	Port        int    `json:"port"`         // HTTP server port (loopback only)
	FFprobePath string `json:"ffprobe_path"` // Path to ffprobe binary (empty = use PATH)
	YtdlpPath   string `json:"ytdlp_path"`   // Path to yt-dlp binary (empty = use PATH)
}

// DetectorConfig holds silence detection thresholds and capture target.
type DetectorConfig struct {
	SilenceThreshold       float64 `json:"silence_threshold"`        // Level below which audio counts as silent
	ResumeThreshold        float64 `json:"resume_threshold"`         // Level required to leave the silent state
	SilenceDurationSeconds int     `json:"silence_duration_seconds"` // Continuous silence before the sustained event
	MonitorSystemOutput    bool    `json:"monitor_system_output"`    // Capture system output rather than a microphone
	DeviceID               int     `json:"device_id"`                // Explicit device index, -1 = auto
}

// AFKConfig holds idle-user monitoring settings.
type AFKConfig struct {
	Enabled            bool `json:"enabled"`
	IdleTimeoutSeconds int  `json:"idle_timeout_seconds"`
}

// DurationsConfig holds background duration fetch settings.
type DurationsConfig struct {
	AutoFetchEnabled bool `json:"auto_fetch_enabled"`
	Workers          int  `json:"workers"`
	CacheMaxAgeDays  int  `json:"cache_max_age_days"`
	CacheMaxEntries  int  `json:"cache_max_entries"`
}

// WebhookConfig holds webhook notification settings.
type WebhookConfig struct {
	URL string `json:"url"` // Webhook URL for silence alerts
}

// LogConfig holds log file notification settings.
type LogConfig struct {
	Path string `json:"path"` // Log file path for silence events
}

// NotificationsConfig holds all notification channel settings.
type NotificationsConfig struct {
	Webhook WebhookConfig `json:"webhook"`
	Log     LogConfig     `json:"log"`
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System        SystemConfig        `json:"system"`
	Detector      DetectorConfig      `json:"detector"`
	AFK           AFKConfig           `json:"afk"`
	Durations     DurationsConfig     `json:"durations"`
	SmartQueue    smartqueue.Options  `json:"smart_queue"`
	Notifications NotificationsConfig `json:"notifications"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		System: SystemConfig{
			Port: DefaultPort,
		},
		Detector: DetectorConfig{
			SilenceThreshold:       DefaultSilenceThreshold,
			ResumeThreshold:        DefaultResumeThreshold,
			SilenceDurationSeconds: DefaultSilenceDurationSeconds,
			MonitorSystemOutput:    true,
			DeviceID:               audio.AutoDevice,
		},
		AFK: AFKConfig{
			Enabled:            true,
			IdleTimeoutSeconds: DefaultAFKTimeoutSeconds,
		},
		Durations: DurationsConfig{
			AutoFetchEnabled: true,
			Workers:          DefaultFetchWorkers,
			CacheMaxAgeDays:  DefaultCacheMaxAgeDays,
			CacheMaxEntries:  DefaultCacheMaxEntries,
		},
		SmartQueue: smartqueue.DefaultOptions(),
		filePath:   filePath,
	}
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()

	return c.validate()
}

// validate checks all configuration fields for correctness.
func (c *Config) validate() error {
	if c.System.Port < 1 || c.System.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 1-65535", c.System.Port)
	}
	if c.Detector.SilenceThreshold <= 0 || c.Detector.SilenceThreshold > 1 {
		return fmt.Errorf("invalid silence_threshold %v: must be in (0, 1]", c.Detector.SilenceThreshold)
	}
	if c.Detector.ResumeThreshold <= 0 || c.Detector.ResumeThreshold > 1 {
		return fmt.Errorf("invalid resume_threshold %v: must be in (0, 1]", c.Detector.ResumeThreshold)
	}
	if c.Detector.SilenceDurationSeconds < 1 {
		return fmt.Errorf("invalid silence_duration_seconds %d: must be positive", c.Detector.SilenceDurationSeconds)
	}
	if c.Detector.DeviceID < audio.AutoDevice {
		return fmt.Errorf("invalid device_id %d: must be -1 (auto) or a device index", c.Detector.DeviceID)
	}
	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	if c.System.Port == 0 {
		c.System.Port = DefaultPort
	}
	if c.Detector.SilenceThreshold == 0 {
		c.Detector.SilenceThreshold = DefaultSilenceThreshold
	}
	if c.Detector.ResumeThreshold == 0 {
		c.Detector.ResumeThreshold = c.Detector.SilenceThreshold * 1.5
	}
	if c.Detector.SilenceDurationSeconds == 0 {
		c.Detector.SilenceDurationSeconds = DefaultSilenceDurationSeconds
	}
	if c.AFK.IdleTimeoutSeconds == 0 {
		c.AFK.IdleTimeoutSeconds = DefaultAFKTimeoutSeconds
	}
	if c.Durations.Workers == 0 {
		c.Durations.Workers = DefaultFetchWorkers
	}
	if c.Durations.CacheMaxAgeDays == 0 {
		c.Durations.CacheMaxAgeDays = DefaultCacheMaxAgeDays
	}
	if c.Durations.CacheMaxEntries == 0 {
		c.Durations.CacheMaxEntries = DefaultCacheMaxEntries
	}
	if c.SmartQueue.MaxSuggestions == 0 {
		defaults := smartqueue.DefaultOptions()
		c.SmartQueue.MaxSuggestions = defaults.MaxSuggestions
		c.SmartQueue.MinLearningSamples = defaults.MinLearningSamples
	}
	if c.SmartQueue.ShortVideoThreshold == 0 {
		c.SmartQueue.ShortVideoThreshold = smartqueue.DefaultOptions().ShortVideoThreshold
	}
	if c.SmartQueue.LongSessionThreshold == 0 {
		c.SmartQueue.LongSessionThreshold = smartqueue.DefaultOptions().LongSessionThreshold
	}
}

// saveLocked persists configuration atomically. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	tmp := c.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}
	if err := os.Rename(tmp, c.filePath); err != nil {
		os.Remove(tmp)
		return util.WrapError("replace config", err)
	}
	return nil
}

// --- Setters for individual settings ---

// SetDetector updates the detector section after validation and saves.
func (c *Config) SetDetector(d DetectorConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.Detector
	c.Detector = d
	if err := c.validate(); err != nil {
		c.Detector = old
		return err
	}
	return c.saveLocked()
}

// SetAFK updates the AFK section and saves.
func (c *Config) SetAFK(a AFKConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a.IdleTimeoutSeconds <= 0 {
		a.IdleTimeoutSeconds = DefaultAFKTimeoutSeconds
	}
	c.AFK = a
	return c.saveLocked()
}

// SetSmartQueue updates the smart queue options and saves.
func (c *Config) SetSmartQueue(opts smartqueue.Options) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SmartQueue = opts
	c.applyDefaults()
	return c.saveLocked()
}

// SetWebhookURL updates the webhook URL and saves the configuration.
func (c *Config) SetWebhookURL(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Webhook.URL = url
	return c.saveLocked()
}

// SetLogPath updates the log file path and saves the configuration.
func (c *Config) SetLogPath(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Log.Path = path
	return c.saveLocked()
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	// System
	Port        int
	FFprobePath string
	YtdlpPath   string

	// Detector
	Detector DetectorConfig

	// AFK
	AFKEnabled bool
	AFKTimeout time.Duration

	// Durations
	AutoFetchEnabled bool
	FetchWorkers     int
	CacheMaxAge      time.Duration
	CacheMaxEntries  int

	// Smart queue
	SmartQueue smartqueue.Options

	// Notifications
	WebhookURL string
	LogPath    string
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		Port:        cmp.Or(c.System.Port, DefaultPort),
		FFprobePath: c.System.FFprobePath,
		YtdlpPath:   c.System.YtdlpPath,

		Detector: c.Detector,

		AFKEnabled: c.AFK.Enabled,
		AFKTimeout: time.Duration(cmp.Or(c.AFK.IdleTimeoutSeconds, DefaultAFKTimeoutSeconds)) * time.Second,

		AutoFetchEnabled: c.Durations.AutoFetchEnabled,
		FetchWorkers:     cmp.Or(c.Durations.Workers, DefaultFetchWorkers),
		CacheMaxAge:      time.Duration(cmp.Or(c.Durations.CacheMaxAgeDays, DefaultCacheMaxAgeDays)) * 24 * time.Hour,
		CacheMaxEntries:  cmp.Or(c.Durations.CacheMaxEntries, DefaultCacheMaxEntries),

		SmartQueue: c.SmartQueue,

		WebhookURL: c.Notifications.Webhook.URL,
		LogPath:    c.Notifications.Log.Path,
	}
}

// DetectorConfig converts the detector section into the audio package's
// runtime shape.
func (s *Snapshot) DetectorConfig() audio.DetectorConfig {
	return audio.DetectorConfig{
		SilenceDuration:  time.Duration(s.Detector.SilenceDurationSeconds) * time.Second,
		SilenceThreshold: s.Detector.SilenceThreshold,
		ResumeThreshold:  s.Detector.ResumeThreshold,
		Target: audio.CaptureTarget{
			SystemOutput: s.Detector.MonitorSystemOutput,
			DeviceID:     s.Detector.DeviceID,
		},
	}
}

// HasWebhook reports whether a webhook URL is configured.
func (s *Snapshot) HasWebhook() bool {
	return s.WebhookURL != ""
}

// HasLogPath reports whether a log path is configured.
func (s *Snapshot) HasLogPath() bool {
	return s.LogPath != ""
}
