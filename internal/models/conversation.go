package models

import (
	"time"

	"github.com/google/uuid"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	StatusActive   ConversationStatus = "active"
	StatusArchived ConversationStatus = "archived"
	StatusClosed   ConversationStatus = "closed"
)

// Conversation represents one visitor chat thread.
type Conversation struct {
	ID            uuid.UUID          `json:"id"`
	SessionID     string             `json:"session_id"`
	VisitorName   string             `json:"visitor_name,omitempty"`
	Status        ConversationStatus `json:"status"`
	MessageCount  int64              `json:"message_count"`
	CreatedAt     time.Time          `json:"created_at"`
	LastMessageAt time.Time          `json:"last_message_at"`
	Messages      []Message          `json:"messages,omitempty"`
}

// ConversationSummary is the admin listing shape: a conversation without
// its message log.
type ConversationSummary struct {
	ID            uuid.UUID          `json:"id"`
	VisitorName   string             `json:"visitor_name,omitempty"`
	Status        ConversationStatus `json:"status"`
	MessageCount  int64              `json:"message_count"`
	CreatedAt     time.Time          `json:"created_at"`
	LastMessageAt time.Time          `json:"last_message_at"`
}

// Stats aggregates conversation activity for the admin console.
type Stats struct {
	Total                      int64   `json:"total"`
	Active                     int64   `json:"active"`
	AvgMessagesPerConversation float64 `json:"avg_messages"`
	StartedToday               int64   `json:"started_today"`
}
