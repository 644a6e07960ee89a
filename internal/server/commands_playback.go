package server

import (
	"fmt"

	"github.com/silencesuzuka/playerd/internal/smartqueue"
	"github.com/silencesuzuka/playerd/internal/types"
)

// fetchPriorities maps the wire priority names to queue priorities.
var fetchPriorities = map[string]types.FetchPriority{
	"low":    types.FetchLow,
	"normal": types.FetchNormal,
	"high":   types.FetchHigh,
	"urgent": types.FetchUrgent,
}

// --- Duration fetch handlers ---

// handleFetchEnqueue processes a fetch/enqueue command.
func (h *CommandHandler) handleFetchEnqueue(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *FetchEnqueueRequest) error {
		priority, ok := fetchPriorities[req.Priority]
		if !ok {
			priority = types.FetchNormal
		}
		h.engine.EnqueueFetch(req.Items, priority)
		return nil
	})
}

// --- Playback error handlers ---

// handlePlaybackError processes a playback/error command. The response
// carries the retry decision the GUI acts on.
func (h *CommandHandler) handlePlaybackError(cmd WSCommand, send chan<- any) {
	var req PlaybackErrorRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}

	decision := h.engine.ReportPlaybackFailure(req.Message, req.URL)
	SendSuccess(send, cmd.Type, map[string]any{
		"class":           decision.Class,
		"retry":           decision.Retry,
		"delay_seconds":   decision.Delay.Seconds(),
		"breaker_tripped": decision.BreakerTripped,
	})
}

// handlePlaybackSuccess processes a playback/success command.
func (h *CommandHandler) handlePlaybackSuccess(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *PlaybackSuccessRequest) error {
		h.engine.ReportPlaybackSuccess(req.URL)
		return nil
	})
}

// handleResetBreaker processes a playback/reset-breaker command.
func (h *CommandHandler) handleResetBreaker(cmd WSCommand, send chan<- any) {
	h.engine.ResetBreaker()
	SendSuccess(send, cmd.Type, nil)
}

// --- Smart queue handlers ---

// handleQueueRecord processes a queue/record command.
func (h *CommandHandler) handleQueueRecord(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *InteractionRequest) error {
		h.engine.RecordInteraction(req.Item, smartqueue.Action(req.Action))
		return nil
	})
}

// handleQueueSuggest processes a queue/suggest command.
func (h *CommandHandler) handleQueueSuggest(cmd WSCommand, send chan<- any) {
	var req SuggestRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}
	if req.CurrentIndex >= len(req.Playlist) {
		SendError(send, cmd.Type, fmt.Errorf("current_index %d out of range", req.CurrentIndex))
		return
	}

	current := &req.Playlist[req.CurrentIndex]
	suggestions := h.engine.Suggest(current, req.Playlist, req.CurrentIndex, req.Upcoming)
	SendSuccess(send, cmd.Type, map[string]any{"suggestions": suggestions})
}

// handleQueueReset processes a queue/reset command.
func (h *CommandHandler) handleQueueReset(cmd WSCommand, send chan<- any) {
	if err := h.engine.ResetLearning(); err != nil {
		SendError(send, cmd.Type, err)
		return
	}
	SendSuccess(send, cmd.Type, nil)
}

// handleQueueUpdate processes a queue/update command.
func (h *CommandHandler) handleQueueUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *QueueUpdateRequest) error {
		opts := h.cfg.Snapshot().SmartQueue

		if req.Enabled != nil {
			opts.Enabled = *req.Enabled
		}
		if req.TimeAware != nil {
			opts.TimeAware = *req.TimeAware
		}
		if req.ContentSimilarity != nil {
			opts.ContentSimilarity = *req.ContentSimilarity
		}
		if req.LearningEnabled != nil {
			opts.LearningEnabled = *req.LearningEnabled
		}
		if req.MaxSuggestions != nil {
			opts.MaxSuggestions = *req.MaxSuggestions
		}

		if err := h.cfg.SetSmartQueue(opts); err != nil {
			return err
		}

		h.engine.ApplyConfig()
		return nil
	})
}
