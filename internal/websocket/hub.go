package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Message types sent to browsers.
const (
	TypeEntitlementsChanged = "entitlements_changed"
	TypeUsageChanged        = "usage_changed"
	TypeStreakChanged       = "streak_changed"
)

// Message is a notification pushed to one user's open tabs.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

func NewMessage(msgType string, data any) Message {
	return Message{Type: msgType, Data: data}
}

// Hub tracks connected clients per user and fans messages out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if set, ok := h.clients[c.userID]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			close(c.send)
		}
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()
}

// Broadcast sends msg to every connection the user has open. Slow clients
// with a full buffer miss the message.
func (h *Hub) Broadcast(userID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "type", msg.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[userID] {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("dropped message for slow client", "user_id", userID, "type", msg.Type)
		}
	}
}

// EntitlementsChanged tells the user's tabs to refetch their entitlements.
func (h *Hub) EntitlementsChanged(userID string) {
	h.Broadcast(userID, NewMessage(TypeEntitlementsChanged, nil))
}

// ClientCount returns the number of connections across all users.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// UserCount returns the number of users with at least one connection.
func (h *Hub) UserCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
