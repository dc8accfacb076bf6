package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Message type constants for pipeline events.
const (
	TypeConnection     = "connection"
	TypeBatchProgress  = "batch:progress"
	TypeBatchStaged    = "batch:staged"
	TypeBatchCommitted = "batch:committed"
)

// Message is the envelope broadcast to connected clients.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub maintains the set of active clients and broadcasts pipeline events to
// them. It implements augment.Notifier.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	logger *slog.Logger

	quit    chan struct{}
	running bool
}

// NewHub creates a new Hub instance with dependency injection
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		quit:       make(chan struct{}),
	}
}

// Start starts the hub's main loop.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.run()
}

// Stop shuts the hub down and disconnects all clients.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()
	close(h.quit)
}

func (h *Hub) run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("hub shut down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client connected", slog.Int("clients", count))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client disconnected", slog.Int("clients", count))

		case payload := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- payload:
				default:
					// Slow consumer; drop it rather than block the hub.
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends a typed message to every connected client.
func (h *Hub) Broadcast(msgType string, data interface{}) {
	payload, err := json.Marshal(Message{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast", slog.String("type", msgType), slog.String("error", err.Error()))
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		h.logger.Warn("broadcast buffer full, dropping message", slog.String("type", msgType))
	}
}

// AugmentProgress implements augment.Notifier, pushing fan-out completion
// counts to connected clients.
func (h *Hub) AugmentProgress(batchID string, done, total, failed int) {
	h.Broadcast(TypeBatchProgress, map[string]interface{}{
		"batch_id": batchID,
		"done":     done,
		"total":    total,
		"failed":   failed,
	})
}

// BatchStaged announces a newly staged batch.
func (h *Hub) BatchStaged(batchID, league string, rows int) {
	h.Broadcast(TypeBatchStaged, map[string]interface{}{
		"batch_id": batchID,
		"league":   league,
		"rows":     rows,
	})
}

// BatchCommitted announces a successful commit.
func (h *Hub) BatchCommitted(batchID, league string, rows int) {
	h.Broadcast(TypeBatchCommitted, map[string]interface{}{
		"batch_id": batchID,
		"league":   league,
		"rows":     rows,
	})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
