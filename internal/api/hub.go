package api

import (
	"sync"

	"github.com/gofiber/websocket/v2"
	"github.com/medikeep/medikeep/internal/metrics"
	"go.uber.org/zap"
)

// Hub fans data-change events out to connected websocket clients so the
// UI refreshes without polling.
type Hub struct {
	conns  map[*websocket.Conn]struct{}
	mu     sync.Mutex
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		conns:  make(map[*websocket.Conn]struct{}),
		logger: logger,
	}
}

func (h *Hub) register(c *websocket.Conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	metrics.Default().IncrementActiveConnections()
}

func (h *Hub) unregister(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
	metrics.Default().DecrementActiveConnections()
}

// Broadcast sends an event to every connected client. Write failures
// drop the connection; the client reconnects on its own.
func (h *Hub) Broadcast(event string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.conns {
		if err := c.WriteJSON(map[string]string{"type": "change", "event": event}); err != nil {
			h.logger.Warn("WebSocket write failed, dropping client", zap.Error(err))
			c.Close()
			delete(h.conns, c)
		}
	}
}
