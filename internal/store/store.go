package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lushlocks/chat-service/internal/models"
)

// ConversationStore defines the interface for durable conversation and
// message storage. PostgresStore, SQLiteStore and MemoryStore implement it.
//
// The message log is append-only: AppendMessage is the only write to the
// messages table and nothing ever mutates or deletes a stored message.
type ConversationStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Conversation operations
	CreateConversation(ctx context.Context, sessionID, visitorName string) (*models.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	UpdateConversationStatus(ctx context.Context, id uuid.UUID, status models.ConversationStatus) error
	ListConversations(ctx context.Context, limit, offset int) ([]models.ConversationSummary, error)

	// Message operations. GetMessages returns the most recent limit messages
	// ordered oldest first; limit <= 0 returns the full log.
	AppendMessage(ctx context.Context, msg *models.Message) error
	GetMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error)

	// Aggregates for the stats endpoint
	CountConversations(ctx context.Context) (int64, error)
	CountConversationsByStatus(ctx context.Context, status models.ConversationStatus) (int64, error)
	SumMessageCounts(ctx context.Context) (int64, error)
	CountStartedSince(ctx context.Context, since time.Time) (int64, error)
}
