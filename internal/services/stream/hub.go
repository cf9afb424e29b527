package stream

import (
	"context"
	"errors"
	"sync"

	json "github.com/goccy/go-json"

	"MacroPull/internal/domain/models"
	"MacroPull/pkg/logger"
)

const MessageTypeSnapshot = "snapshot"

// Message is the envelope pushed to clients.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub tracks connected clients and fans snapshots out to them. It is also a
// snapshot sink, so the macro service publishes to it like any other sink.
type Hub struct {
	log *logger.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
	last    []byte
	closed  bool
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{log: log, clients: make(map[*Client]struct{})}
}

func (h *Hub) Name() string { return "websocket" }

// Register adds c and queues the latest snapshot for it.
func (h *Hub) Register(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.New("hub closed")
	}
	h.clients[c] = struct{}{}
	if h.last != nil {
		c.enqueue(h.last)
	}
	h.log.Info("websocket client connected", logger.Int("total_clients", len(h.clients)))
	return nil
}

// Unregister removes c. Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.log.Info("websocket client disconnected", logger.Int("total_clients", len(h.clients)))
}

// Publish broadcasts snap. Clients whose buffer is full are dropped.
func (h *Hub) Publish(_ context.Context, snap *models.MacroSnapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	payload, err := json.Marshal(Message{Type: MessageTypeSnapshot, Data: snap})
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = payload
	for c := range h.clients {
		if !c.enqueue(payload) {
			delete(h.clients, c)
			close(c.send)
			h.log.Warn("dropping slow websocket client")
		}
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	return nil
}
