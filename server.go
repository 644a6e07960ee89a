package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/silencesuzuka/playerd/internal/config"
	"github.com/silencesuzuka/playerd/internal/engine"
	"github.com/silencesuzuka/playerd/internal/server"
	"github.com/silencesuzuka/playerd/internal/types"
)

// Server is the local HTTP and WebSocket surface the desktop GUI talks
// to. It binds to loopback only.
type Server struct {
	config   *config.Config
	engine   *engine.Engine
	commands *server.CommandHandler
	hub      *server.Hub
	version  *VersionChecker

	pumpStop chan struct{}
	pumpDone chan struct{}
}

// NewServer returns a new Server wired to the given config and engine.
func NewServer(cfg *config.Config, eng *engine.Engine) *Server {
	return &Server{
		config:   cfg,
		engine:   eng,
		commands: server.NewCommandHandler(cfg, eng),
		hub:      server.NewHub(),
		version:  NewVersionChecker(),
		pumpStop: make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
}

// wsStatus is the periodic status push.
type wsStatus struct {
	Type     string            `json:"type"`
	Engine   engine.Status     `json:"engine"`
	Platform string            `json:"platform"`
	Version  types.VersionInfo `json:"version"`
}

// wsUpdate wraps an engine update for the wire.
type wsUpdate struct {
	Type string `json:"type"`
	engine.Update
}

// runUpdatePump broadcasts engine updates to all connected clients.
func (s *Server) runUpdatePump() {
	defer close(s.pumpDone)
	for {
		select {
		case <-s.pumpStop:
			return
		case u := <-s.engine.Updates():
			s.hub.Broadcast(wsUpdate{Type: "update", Update: u})
		}
	}
}

// handleWebSocket handles bidirectional WebSocket communication for real-time updates.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	// Create buffered send channel for thread-safe writes.
	// Only the writer goroutine writes to the connection, preventing race conditions.
	send := make(chan any, 16)
	done := make(chan struct{})
	statusUpdate := make(chan struct{}, 1)

	s.hub.Register(send)

	// Writer goroutine - sole writer to the connection
	go s.runWebSocketWriter(conn, send)

	// Reader goroutine - handles incoming commands
	go s.runWebSocketReader(conn, send, done, statusUpdate)

	s.runWebSocketEventLoop(send, done, statusUpdate)
}

// runWebSocketWriter writes messages from the send channel to the connection.
func (s *Server) runWebSocketWriter(conn server.WebSocketConn, send <-chan any) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// runWebSocketReader reads commands from the connection and dispatches them.
func (s *Server) runWebSocketReader(conn server.WebSocketConn, send chan<- any, done, statusUpdate chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		var cmd server.WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		s.commands.Handle(cmd, send, func() {
			select {
			case statusUpdate <- struct{}{}:
			default:
			}
		})
	}
}

// runWebSocketEventLoop sends status snapshots on a timer and on demand.
// Levels and event pushes arrive through the hub instead of a poll.
func (s *Server) runWebSocketEventLoop(send chan any, done, statusUpdate <-chan struct{}) {
	statusTicker := time.NewTicker(3 * time.Second)
	defer statusTicker.Stop()

	// finish detaches the client from the hub before the writer's
	// channel is closed; the hub never sends after Unregister returns.
	finish := func() {
		s.hub.Unregister(send)
		close(send)
	}

	trySend := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	// Send initial status
	if !trySend(s.buildWSStatus()) {
		finish()
		return
	}

	for {
		select {
		case <-done:
			finish()
			return
		case <-statusUpdate:
			if !trySend(s.buildWSStatus()) {
				finish()
				return
			}
		case <-statusTicker.C:
			if !trySend(s.buildWSStatus()) {
				finish()
				return
			}
		}
	}
}

// buildWSStatus returns the current WebSocket status response.
func (s *Server) buildWSStatus() wsStatus {
	return wsStatus{
		Type:     "status",
		Engine:   s.engine.Status(),
		Platform: runtime.GOOS,
		Version:  s.version.Info(),
	}
}

// handleHealth serves a liveness probe for the GUI's startup handshake.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"version": Version,
	}); err != nil {
		slog.Error("failed to encode health response", "error", err)
	}
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", s.handleHealth)

	return securityHeaders(mux)
}

// securityHeaders returns middleware that wraps handlers with security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Start begins the HTTP server on loopback and the update pump.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf("127.0.0.1:%d", s.config.Snapshot().Port)
	slog.Info("starting local API server", "addr", addr)

	go s.runUpdatePump()

	srv := &http.Server{
		Addr:    addr,
		Handler: s.SetupRoutes(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}

// Close stops the version checker and the update pump.
func (s *Server) Close() {
	s.version.Stop()
	close(s.pumpStop)
	<-s.pumpDone
}
