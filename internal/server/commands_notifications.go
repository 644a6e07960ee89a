package server

import (
	"github.com/silencesuzuka/playerd/internal/eventlog"
	"github.com/silencesuzuka/playerd/internal/util"
)

// --- Notification handlers ---

// handleWebhookUpdate processes a notifications/webhook/update command.
func (h *CommandHandler) handleWebhookUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *WebhookUpdateRequest) error {
		return h.cfg.SetWebhookURL(req.URL)
	})
}

// handleWebhookTest processes a notifications/webhook/test command.
func (h *CommandHandler) handleWebhookTest(cmd WSCommand, send chan<- any) {
	HandleActionAsync(cmd, send, func() (any, error) {
		return nil, h.engine.TriggerTestWebhook()
	})
}

// handleLogUpdate processes a notifications/log/update command. An empty
// path disables the silence log.
func (h *CommandHandler) handleLogUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *LogUpdateRequest) error {
		if req.Path != "" {
			if err := util.ValidatePath("path", req.Path); err != nil {
				return err
			}
		}
		return h.cfg.SetLogPath(req.Path)
	})
}

// handleLogTest processes a notifications/log/test command.
func (h *CommandHandler) handleLogTest(cmd WSCommand, send chan<- any) {
	HandleActionAsync(cmd, send, func() (any, error) {
		return nil, h.engine.TriggerTestLog()
	})
}

// --- Event log handlers ---

// handleEventLogRead processes an eventlog/read command with pagination.
func (h *CommandHandler) handleEventLogRead(cmd WSCommand, send chan<- any) {
	var req EventLogReadRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}

	limit := req.Limit
	if limit == 0 {
		limit = MaxLogEntries
	}

	events, hasMore, err := eventlog.ReadLast(
		h.engine.EventLogPath(), limit, req.Offset, eventlog.TypeFilter(req.Filter))
	if err != nil {
		SendError(send, cmd.Type, err)
		return
	}

	SendSuccess(send, cmd.Type, map[string]any{
		"events":   events,
		"has_more": hasMore,
	})
}

// --- Config handlers ---

// handleConfigGet processes a config/get command.
func (h *CommandHandler) handleConfigGet(send chan<- any) {
	snap := h.cfg.Snapshot()
	SendSuccess(send, "config/get", map[string]any{
		"port":     snap.Port,
		"detector": snap.Detector,
		"afk": map[string]any{
			"enabled":              snap.AFKEnabled,
			"idle_timeout_seconds": int(snap.AFKTimeout.Seconds()),
		},
		"durations": map[string]any{
			"auto_fetch_enabled": snap.AutoFetchEnabled,
			"workers":            snap.FetchWorkers,
		},
		"smart_queue": snap.SmartQueue,
		"notifications": map[string]any{
			"webhook_url": snap.WebhookURL,
			"log_path":    snap.LogPath,
		},
	})
}
