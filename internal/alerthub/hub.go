// Package alerthub fans approved alerts out to websocket subscribers, optionally
// relaying them through Redis so every instance's subscribers receive them.
package alerthub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"restockbot/backend/internal/reports"
)

// Event is the message written to subscribers.
type Event struct {
	Type  string         `json:"type"`
	Alert *reports.Alert `json:"alert,omitempty"`
}

const EventAlert = "alert"

var errHubStopped = errors.New("alert hub stopped")

// Hub keeps the subscriber registry. Registration and delivery happen on the Run
// goroutine; the registry is guarded for readers.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]Client

	RegisterCh   chan Client
	UnregisterCh chan Client
	broadcastCh  chan []byte

	done   chan struct{}
	relay  *RedisRelay
	logger *slog.Logger
}

// NewHub creates a hub. Call Run before registering clients.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		clients:      make(map[string]Client),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		broadcastCh:  make(chan []byte, 64),
		done:         make(chan struct{}),
		logger:       log,
	}
}

// SetRelay routes published alerts through Redis instead of delivering them directly.
func (h *Hub) SetRelay(relay *RedisRelay) { h.relay = relay }

// ClientCount returns the number of registered subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run processes registrations and broadcasts until ctx is cancelled, then closes every
// remaining client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	if h.relay != nil {
		go h.relay.Listen(ctx, h)
	}
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, c := range h.clients {
				delete(h.clients, id)
				c.Close()
			}
			h.mu.Unlock()
			return

		case c := <-h.RegisterCh:
			h.mu.Lock()
			if old, ok := h.clients[c.ID()]; ok {
				old.Close()
			}
			h.clients[c.ID()] = c
			h.mu.Unlock()
			c.Run()
			h.logger.Debug("alert subscriber registered", slog.String("client_id", c.ID()))

		case c := <-h.UnregisterCh:
			h.mu.Lock()
			if cur, ok := h.clients[c.ID()]; ok && cur == c {
				delete(h.clients, c.ID())
				c.Close()
			}
			h.mu.Unlock()

		case data := <-h.broadcastCh:
			h.deliver(data)
		}
	}
}

func (h *Hub) deliver(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		select {
		case c.SendChannel() <- data:
		default:
			// Slow subscriber; drop it rather than block the hub.
			delete(h.clients, id)
			c.Close()
			h.logger.Warn("dropped slow alert subscriber", slog.String("client_id", id))
		}
	}
}

// Broadcast queues raw event bytes for local subscribers. It is a no-op once Run has
// returned.
func (h *Hub) Broadcast(data []byte) {
	select {
	case h.broadcastCh <- data:
	case <-h.done:
	}
}

// Register hands c to the hub. It returns false, after closing c, when the hub has
// stopped.
func (h *Hub) Register(c Client) bool {
	select {
	case h.RegisterCh <- c:
		return true
	case <-h.done:
		c.Close()
		return false
	}
}

func (h *Hub) unregister(c Client) {
	select {
	case h.UnregisterCh <- c:
	case <-h.done:
	}
}

// PublishAlert implements reports.AlertPublisher.
func (h *Hub) PublishAlert(ctx context.Context, alert reports.Alert) error {
	data, err := json.Marshal(Event{Type: EventAlert, Alert: &alert})
	if err != nil {
		return err
	}
	if h.relay != nil {
		return h.relay.Publish(ctx, data)
	}
	select {
	case h.broadcastCh <- data:
		return nil
	case <-h.done:
		return errHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
