package server

import (
	"log/slog"
	"sync"
)

// Hub fans engine updates out to every connected WebSocket client.
// Each client registers its send channel; broadcasts never block, a
// slow client just misses updates.
type Hub struct {
	mu    sync.Mutex
	conns map[chan any]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[chan any]struct{})}
}

// Register adds a client send channel to the broadcast set.
func (h *Hub) Register(send chan any) {
	h.mu.Lock()
	h.conns[send] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client send channel. The caller still owns the
// channel and closes it after unregistering.
func (h *Hub) Unregister(send chan any) {
	h.mu.Lock()
	delete(h.conns, send)
	h.mu.Unlock()
}

// Broadcast delivers a message to every registered client without
// blocking.
func (h *Hub) Broadcast(msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for send := range h.conns {
		select {
		case send <- msg:
		default:
			slog.Debug("broadcast dropped for slow client")
		}
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}
