package models

import (
	"time"

	"github.com/google/uuid"
)

// SenderType identifies who produced a message.
type SenderType string

const (
	SenderVisitor   SenderType = "visitor"
	SenderAssistant SenderType = "assistant"
)

// Message is one entry in a conversation's append-only log.
// IDs are ULIDs so they sort in send order.
type Message struct {
	ID             string     `json:"id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	Sender         SenderType `json:"sender"`
	Content        string     `json:"content"`
	SentAt         time.Time  `json:"sent_at"`
	TokensUsed     *int       `json:"tokens_used,omitempty"` // assistant messages only
}
