// Package main runs the Silence Suzuka player engine daemon: system
// audio silence detection, idle-user monitoring, background duration
// resolution and smart queue suggestions, exposed to the desktop GUI
// over a loopback WebSocket API.
//
// Usage:
//
//	playerd [-config path/to/config.json]
//
// If -config is not specified, the daemon uses config.json under the
// user config directory.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/silencesuzuka/playerd/internal/audio"
	"github.com/silencesuzuka/playerd/internal/config"
	"github.com/silencesuzuka/playerd/internal/engine"
	"github.com/silencesuzuka/playerd/internal/util"
)

// defaultConfigPath returns config.json under the platform config
// directory, falling back to the binary's directory.
func defaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "silence-suzuka-player", "config.json")
	}
	execPath, err := os.Executable()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(filepath.Dir(execPath), "config.json")
}

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json in the user config directory)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		*configPath = defaultConfigPath()
	}

	slog.Info("using config file", "path", *configPath)

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// External probe tools are optional; duration resolution degrades
	// per tool when one is missing.
	snap := cfg.Snapshot()
	if util.ResolveTool("ffprobe", snap.FFprobePath) == "" {
		slog.Warn("ffprobe not found - local file durations unavailable",
			"configured_path", snap.FFprobePath)
	}
	if util.ResolveTool("yt-dlp", snap.YtdlpPath) == "" {
		slog.Warn("yt-dlp not found - remote durations unavailable",
			"configured_path", snap.YtdlpPath)
	}

	dataDir := filepath.Dir(*configPath)
	eng, err := engine.New(cfg, dataDir, audio.NewMalgoTransport)
	if err != nil {
		slog.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	if err := eng.Start(); err != nil {
		slog.Error("failed to start engine", "error", err)
		os.Exit(1)
	}
	if err := eng.StartDetector(); err != nil {
		slog.Error("failed to start silence detector", "error", err)
	}

	srv := NewServer(cfg, eng)
	httpServer := srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")

	srv.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if err := eng.Stop(); err != nil {
		slog.Error("error stopping engine", "error", err)
	}

	slog.Info("shutdown complete")
}
