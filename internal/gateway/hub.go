package gateway

import (
	"sync"

	"github.com/google/uuid"

	"github.com/lushlocks/chat-service/internal/metrics"
	"github.com/lushlocks/chat-service/internal/models"
)

// Event type names sent to realtime clients.
const (
	EventConversationStarted = "conversation_started"
	EventConversation        = "conversation"
	EventMessageChunk        = "message_chunk"
	EventMessage             = "message"
	EventError               = "error"
)

// Event is the outbound envelope for all realtime traffic.
type Event struct {
	Type           string               `json:"type"`
	ConversationID uuid.UUID            `json:"conversation_id,omitempty"`
	Chunk          string               `json:"chunk,omitempty"`
	IsComplete     bool                 `json:"is_complete,omitempty"`
	Message        *models.Message      `json:"message,omitempty"`
	Conversation   *models.Conversation `json:"conversation,omitempty"`
	Error          string               `json:"error,omitempty"`
}

// Subscriber is one live client connection. Send must not block: slow or
// dead connections drop events rather than stalling a broadcast.
type Subscriber interface {
	Send(ev Event)
}

// Hub is the fan-out registry mapping a conversation to its live
// subscribers. A room is pure routing state: it holds nothing but the
// subscriber set and disappears when the last member leaves.
type Hub struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]map[Subscriber]struct{}
}

// NewHub creates an empty registry.
func NewHub() *Hub {
	return &Hub{rooms: make(map[uuid.UUID]map[Subscriber]struct{})}
}

// Join subscribes sub to a conversation's broadcasts.
func (h *Hub) Join(conversationID uuid.UUID, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[conversationID]
	if !ok {
		room = make(map[Subscriber]struct{})
		h.rooms[conversationID] = room
	}
	if _, joined := room[sub]; !joined {
		room[sub] = struct{}{}
		metrics.GatewaySubscribers.Inc()
	}
}

// Leave removes sub from a conversation's room, deleting the room when it
// empties. Safe to call for a sub that never joined.
func (h *Hub) Leave(conversationID uuid.UUID, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[conversationID]
	if !ok {
		return
	}
	if _, joined := room[sub]; !joined {
		return
	}
	delete(room, sub)
	metrics.GatewaySubscribers.Dec()
	if len(room) == 0 {
		delete(h.rooms, conversationID)
	}
}

// Broadcast sends ev to every subscriber of the conversation. Delivery to
// each subscriber is fire-and-forget; one slow member never blocks the
// rest or the producer.
func (h *Hub) Broadcast(conversationID uuid.UUID, ev Event) {
	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.rooms[conversationID]))
	for sub := range h.rooms[conversationID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		sub.Send(ev)
	}
}

// Subscribers returns the current size of a conversation's room.
func (h *Hub) Subscribers(conversationID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}
