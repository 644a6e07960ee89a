package server

import "github.com/silencesuzuka/playerd/internal/types"

// Request types for WebSocket commands with validation tags.
// These types define the expected input for each command and use
// go-playground/validator struct tags for automatic validation.

// --- Detector settings ---

// DetectorUpdateRequest is the request body for detector/update. Nil
// fields keep their current value.
type DetectorUpdateRequest struct {
	SilenceThreshold       *float64 `json:"silence_threshold" validate:"omitempty,gt=0,lte=1"`
	ResumeThreshold        *float64 `json:"resume_threshold" validate:"omitempty,gt=0,lte=1"`
	SilenceDurationSeconds *int     `json:"silence_duration_seconds" validate:"omitempty,gte=1,lte=86400"`
	MonitorSystemOutput    *bool    `json:"monitor_system_output"`
	DeviceID               *int     `json:"device_id" validate:"omitempty,gte=-1"`
}

// --- AFK settings ---

// AFKUpdateRequest is the request body for afk/update.
type AFKUpdateRequest struct {
	Enabled            *bool `json:"enabled"`
	IdleTimeoutSeconds *int  `json:"idle_timeout_seconds" validate:"omitempty,gte=10,lte=86400"`
}

// --- Duration fetch ---

// FetchEnqueueRequest is the request body for fetch/enqueue.
type FetchEnqueueRequest struct {
	Items    []types.PlaylistItem `json:"items" validate:"required,min=1,max=1000"`
	Priority string               `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
}

// --- Playback error reporting ---

// PlaybackErrorRequest is the request body for playback/error.
type PlaybackErrorRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
	URL     string `json:"url" validate:"omitempty,max=4096"`
}

// PlaybackSuccessRequest is the request body for playback/success.
type PlaybackSuccessRequest struct {
	URL string `json:"url" validate:"omitempty,max=4096"`
}

// --- Smart queue ---

// InteractionRequest is the request body for queue/record.
type InteractionRequest struct {
	Item   types.PlaylistItem `json:"item" validate:"required"`
	Action string             `json:"action" validate:"required,oneof=play skip complete"`
}

// SuggestRequest is the request body for queue/suggest.
type SuggestRequest struct {
	Playlist     []types.PlaylistItem `json:"playlist" validate:"required,max=10000"`
	CurrentIndex int                  `json:"current_index" validate:"gte=0"`
	Upcoming     []int                `json:"upcoming" validate:"omitempty,max=1000"`
}

// QueueUpdateRequest is the request body for queue/update.
type QueueUpdateRequest struct {
	Enabled           *bool `json:"enabled"`
	TimeAware         *bool `json:"time_aware"`
	ContentSimilarity *bool `json:"content_similarity"`
	LearningEnabled   *bool `json:"learning_enabled"`
	MaxSuggestions    *int  `json:"max_suggestions" validate:"omitempty,gte=1,lte=10"`
}

// --- Notification settings ---

// WebhookUpdateRequest is the request body for notifications/webhook/update.
type WebhookUpdateRequest struct {
	URL string `json:"url" validate:"omitempty,url,max=2048"`
}

// LogUpdateRequest is the request body for notifications/log/update.
type LogUpdateRequest struct {
	Path string `json:"path" validate:"omitempty,max=4096"`
}

// --- Event log ---

// EventLogReadRequest is the request body for eventlog/read.
type EventLogReadRequest struct {
	Limit  int    `json:"limit" validate:"omitempty,gte=1,lte=500"`
	Offset int    `json:"offset" validate:"omitempty,gte=0"`
	Filter string `json:"filter" validate:"omitempty,oneof=silence capture presence fetch playback"`
}
