package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/lushlocks/chat-service/internal/models"
)

// MemoryStore is an in-memory ConversationStore used by tests and local
// development without a database.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]*models.Conversation
	messages      map[uuid.UUID][]models.Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[uuid.UUID]*models.Conversation),
		messages:      make(map[uuid.UUID][]models.Message),
	}
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() {}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// CreateConversation creates a new active conversation.
func (s *MemoryStore) CreateConversation(ctx context.Context, sessionID, visitorName string) (*models.Conversation, error) {
	now := time.Now().UTC()
	conv := &models.Conversation{
		ID:            uuid.New(),
		SessionID:     sessionID,
		VisitorName:   visitorName,
		Status:        models.StatusActive,
		CreatedAt:     now,
		LastMessageAt: now,
	}

	s.mu.Lock()
	s.conversations[conv.ID] = conv
	s.mu.Unlock()

	copied := *conv
	return &copied, nil
}

// GetConversation retrieves a conversation by ID without its message log.
func (s *MemoryStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, nil
	}
	copied := *conv
	copied.Messages = nil
	return &copied, nil
}

// UpdateConversationStatus changes the lifecycle status of a conversation.
func (s *MemoryStore) UpdateConversationStatus(ctx context.Context, id uuid.UUID, status models.ConversationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.conversations[id]; ok {
		conv.Status = status
	}
	return nil
}

// ListConversations retrieves conversation summaries ordered by most recent
// activity.
func (s *MemoryStore) ListConversations(ctx context.Context, limit, offset int) ([]models.ConversationSummary, error) {
	s.mu.RLock()
	all := make([]*models.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		all = append(all, conv)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].LastMessageAt.After(all[j].LastMessageAt)
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}

	summaries := make([]models.ConversationSummary, 0, len(all))
	for _, conv := range all {
		summaries = append(summaries, models.ConversationSummary{
			ID:            conv.ID,
			VisitorName:   conv.VisitorName,
			Status:        conv.Status,
			MessageCount:  conv.MessageCount,
			CreatedAt:     conv.CreatedAt,
			LastMessageAt: conv.LastMessageAt,
		})
	}
	return summaries, nil
}

// AppendMessage inserts a message and bumps the owning conversation's
// message_count and last_message_at.
func (s *MemoryStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], *msg)
	if conv, ok := s.conversations[msg.ConversationID]; ok {
		conv.MessageCount++
		conv.LastMessageAt = msg.SentAt
	}
	return nil
}

// GetMessages retrieves the most recent limit messages of a conversation,
// ordered oldest first.
func (s *MemoryStore) GetMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	s.mu.RLock()
	log := s.messages[conversationID]
	messages := make([]models.Message, len(log))
	copy(messages, log)
	s.mu.RUnlock()

	sort.Slice(messages, func(i, j int) bool {
		if messages[i].SentAt.Equal(messages[j].SentAt) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].SentAt.Before(messages[j].SentAt)
	})

	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

// CountConversations returns the total number of conversations.
func (s *MemoryStore) CountConversations(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.conversations)), nil
}

// CountConversationsByStatus counts conversations in the given status.
func (s *MemoryStore) CountConversationsByStatus(ctx context.Context, status models.ConversationStatus) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, conv := range s.conversations {
		if conv.Status == status {
			count++
		}
	}
	return count, nil
}

// SumMessageCounts returns the total number of persisted messages.
func (s *MemoryStore) SumMessageCounts(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum int64
	for _, conv := range s.conversations {
		sum += conv.MessageCount
	}
	return sum, nil
}

// CountStartedSince counts conversations created at or after since.
func (s *MemoryStore) CountStartedSince(ctx context.Context, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, conv := range s.conversations {
		if !conv.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}
