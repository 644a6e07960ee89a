package server

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/silencesuzuka/playerd/internal/config"
	"github.com/silencesuzuka/playerd/internal/engine"
)

// MaxLogEntries is the default number of event log entries to return.
const MaxLogEntries = 100

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	cfg    *config.Config
	engine *engine.Engine
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(cfg *config.Config, eng *engine.Engine) *CommandHandler {
	return &CommandHandler{
		cfg:    cfg,
		engine: eng,
	}
}

// Handle processes a WebSocket command and performs the requested action.
// Commands use slash-style format: namespace/action (e.g., "detector/update")
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	parts := strings.SplitN(cmd.Type, "/", 3)
	namespace := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}
	subaction := ""
	if len(parts) > 2 {
		subaction = parts[2]
	}

	switch namespace {
	case "detector":
		h.handleDetector(action, cmd, send)
	case "afk":
		h.handleAFK(action, cmd, send)
	case "fetch":
		h.handleFetch(action, cmd, send)
	case "playback":
		h.handlePlayback(action, cmd, send)
	case "queue":
		h.handleQueue(action, cmd, send)
	case "notifications":
		h.handleNotifications(action, subaction, cmd, send)
	case "eventlog":
		h.handleEventLog(action, cmd, send)
	case "config":
		h.handleConfig(action, send)
	case "status":
		h.handleStatus(action)
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
	}

	triggerStatusUpdate()
}

// --- Namespace routers ---

// handleDetector routes detector/* commands
func (h *CommandHandler) handleDetector(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "start":
		h.handleDetectorStart(cmd, send)
	case "stop":
		h.handleDetectorStop(cmd, send)
	case "update":
		h.handleDetectorUpdate(cmd, send)
	case "get":
		h.handleDetectorGet(send)
	case "devices":
		h.handleDetectorDevices(cmd, send)
	default:
		slog.Warn("unknown detector action", "action", action)
	}
}

// handleAFK routes afk/* commands
func (h *CommandHandler) handleAFK(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "touch":
		h.handleAFKTouch(cmd, send)
	case "update":
		h.handleAFKUpdate(cmd, send)
	case "get":
		h.handleAFKGet(send)
	default:
		slog.Warn("unknown afk action", "action", action)
	}
}

// handleFetch routes fetch/* commands
func (h *CommandHandler) handleFetch(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "enqueue":
		h.handleFetchEnqueue(cmd, send)
	default:
		slog.Warn("unknown fetch action", "action", action)
	}
}

// handlePlayback routes playback/* commands
func (h *CommandHandler) handlePlayback(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "error":
		h.handlePlaybackError(cmd, send)
	case "success":
		h.handlePlaybackSuccess(cmd, send)
	case "reset-breaker":
		h.handleResetBreaker(cmd, send)
	default:
		slog.Warn("unknown playback action", "action", action)
	}
}

// handleQueue routes queue/* commands
func (h *CommandHandler) handleQueue(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "record":
		h.handleQueueRecord(cmd, send)
	case "suggest":
		h.handleQueueSuggest(cmd, send)
	case "reset":
		h.handleQueueReset(cmd, send)
	case "update":
		h.handleQueueUpdate(cmd, send)
	default:
		slog.Warn("unknown queue action", "action", action)
	}
}

// handleNotifications routes notifications/*/* commands
func (h *CommandHandler) handleNotifications(action, subaction string, cmd WSCommand, send chan<- any) {
	switch action {
	case "webhook":
		switch subaction {
		case "update":
			h.handleWebhookUpdate(cmd, send)
		case "test":
			h.handleWebhookTest(cmd, send)
		default:
			slog.Warn("unknown webhook action", "subaction", subaction)
		}
	case "log":
		switch subaction {
		case "update":
			h.handleLogUpdate(cmd, send)
		case "test":
			h.handleLogTest(cmd, send)
		default:
			slog.Warn("unknown log action", "subaction", subaction)
		}
	default:
		slog.Warn("unknown notifications action", "action", action)
	}
}

// handleEventLog routes eventlog/* commands
func (h *CommandHandler) handleEventLog(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "read":
		h.handleEventLogRead(cmd, send)
	default:
		slog.Warn("unknown eventlog action", "action", action)
	}
}

// handleConfig routes config/* commands
func (h *CommandHandler) handleConfig(action string, send chan<- any) {
	switch action {
	case "get":
		h.handleConfigGet(send)
	default:
		slog.Warn("unknown config action", "action", action)
	}
}

// handleStatus routes status/* commands
func (h *CommandHandler) handleStatus(action string) {
	switch action {
	case "get":
		// Status is sent automatically, but explicit get triggers immediate update
		slog.Debug("status/get received, status update will be triggered")
	default:
		slog.Warn("unknown status action", "action", action)
	}
}
