package server

import "github.com/silencesuzuka/playerd/internal/config"

// --- Detector handlers ---

// handleDetectorStart processes a detector/start command.
func (h *CommandHandler) handleDetectorStart(cmd WSCommand, send chan<- any) {
	if err := h.engine.StartDetector(); err != nil {
		SendError(send, cmd.Type, err)
		return
	}
	SendSuccess(send, cmd.Type, nil)
}

// handleDetectorStop processes a detector/stop command.
func (h *CommandHandler) handleDetectorStop(cmd WSCommand, send chan<- any) {
	h.engine.StopDetector()
	SendSuccess(send, cmd.Type, nil)
}

// handleDetectorUpdate processes a detector/update command. Absent
// fields keep their configured value; the whole section is validated
// and persisted in one step.
func (h *CommandHandler) handleDetectorUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *DetectorUpdateRequest) error {
		detector := h.cfg.Snapshot().Detector

		if req.SilenceThreshold != nil {
			detector.SilenceThreshold = *req.SilenceThreshold
		}
		if req.ResumeThreshold != nil {
			detector.ResumeThreshold = *req.ResumeThreshold
		}
		if req.SilenceDurationSeconds != nil {
			detector.SilenceDurationSeconds = *req.SilenceDurationSeconds
		}
		if req.MonitorSystemOutput != nil {
			detector.MonitorSystemOutput = *req.MonitorSystemOutput
		}
		if req.DeviceID != nil {
			detector.DeviceID = *req.DeviceID
		}

		if err := h.cfg.SetDetector(detector); err != nil {
			return err
		}

		h.engine.ApplyConfig()
		return nil
	})
}

// handleDetectorGet processes a detector/get command.
func (h *CommandHandler) handleDetectorGet(send chan<- any) {
	SendSuccess(send, "detector/get", h.cfg.Snapshot().Detector)
}

// handleDetectorDevices processes a detector/devices command. Device
// enumeration touches the audio backend, so it runs off the reader
// goroutine.
func (h *CommandHandler) handleDetectorDevices(cmd WSCommand, send chan<- any) {
	HandleActionAsync(cmd, send, func() (any, error) {
		return h.engine.ListDevices()
	})
}

// --- AFK handlers ---

// handleAFKTouch processes an afk/touch command. The GUI sends this on
// any user interaction.
func (h *CommandHandler) handleAFKTouch(cmd WSCommand, send chan<- any) {
	h.engine.Touch()
	SendSuccess(send, cmd.Type, nil)
}

// handleAFKUpdate processes an afk/update command.
func (h *CommandHandler) handleAFKUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *AFKUpdateRequest) error {
		snap := h.cfg.Snapshot()
		afkCfg := config.AFKConfig{
			Enabled:            snap.AFKEnabled,
			IdleTimeoutSeconds: int(snap.AFKTimeout.Seconds()),
		}

		if req.Enabled != nil {
			afkCfg.Enabled = *req.Enabled
		}
		if req.IdleTimeoutSeconds != nil {
			afkCfg.IdleTimeoutSeconds = *req.IdleTimeoutSeconds
		}

		if err := h.cfg.SetAFK(afkCfg); err != nil {
			return err
		}

		h.engine.ApplyConfig()
		return nil
	})
}

// handleAFKGet processes an afk/get command.
func (h *CommandHandler) handleAFKGet(send chan<- any) {
	snap := h.cfg.Snapshot()
	SendSuccess(send, "afk/get", map[string]any{
		"enabled":              snap.AFKEnabled,
		"idle_timeout_seconds": int(snap.AFKTimeout.Seconds()),
	})
}
