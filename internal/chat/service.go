package chat

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lushlocks/chat-service/internal/events"
	"github.com/lushlocks/chat-service/internal/metrics"
	"github.com/lushlocks/chat-service/internal/models"
	"github.com/lushlocks/chat-service/internal/store"
)

var (
	// ErrNotFound means the referenced conversation does not exist.
	ErrNotFound = errors.New("conversation not found")

	// ErrUnauthorized means the caller's session does not own the
	// conversation.
	ErrUnauthorized = errors.New("session does not own this conversation")
)

// Service owns conversation lifecycle and message persistence. It is the
// only component that writes conversation or message state.
type Service struct {
	store  store.ConversationStore
	bus    events.Publisher
	logger zerolog.Logger
}

// NewService creates a conversation service.
func NewService(st store.ConversationStore, bus events.Publisher, logger zerolog.Logger) *Service {
	return &Service{store: st, bus: bus, logger: logger}
}

// CreateConversation starts a new conversation for the session and appends
// the initial visitor message. Returns the conversation with its single
// message attached.
func (s *Service) CreateConversation(ctx context.Context, sessionID, initialMessage, visitorName string) (*models.Conversation, error) {
	conv, err := s.store.CreateConversation(ctx, sessionID, visitorName)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		Sender:         models.SenderVisitor,
		Content:        initialMessage,
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("append initial message: %w", err)
	}

	conv.MessageCount = 1
	conv.LastMessageAt = msg.SentAt
	conv.Messages = []models.Message{*msg}

	metrics.ConversationsStarted.Inc()
	metrics.MessagesPersisted.WithLabelValues(string(models.SenderVisitor)).Inc()
	s.bus.ConversationStarted(ctx, conv.ID)
	s.bus.MessageSent(ctx, msg)

	s.logger.Info().
		Stringer("conversation_id", conv.ID).
		Msg("conversation started")

	return conv, nil
}

// GetConversation returns a conversation with its full ordered message log,
// or nil if it does not exist. Administrative callers only; there is no
// session check.
func (s *Service) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil || conv == nil {
		return nil, err
	}

	conv.Messages, err = s.store.GetMessages(ctx, id, 0)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// GetConversationForSession returns the conversation with its messages only
// when sessionID owns it. A missing conversation and a session mismatch are
// deliberately indistinguishable: both return nil.
func (s *Service) GetConversationForSession(ctx context.Context, id uuid.UUID, sessionID string) (*models.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil || conv == nil {
		return nil, err
	}
	if conv.SessionID != sessionID {
		return nil, nil
	}

	conv.Messages, err = s.store.GetMessages(ctx, id, 0)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// AddVisitorMessage appends a visitor message after verifying session
// ownership.
func (s *Service) AddVisitorMessage(ctx context.Context, conversationID uuid.UUID, sessionID, content string) (*models.Message, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrNotFound
	}
	if conv.SessionID != sessionID {
		return nil, ErrUnauthorized
	}

	msg := &models.Message{
		ConversationID: conversationID,
		Sender:         models.SenderVisitor,
		Content:        content,
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("append visitor message: %w", err)
	}

	metrics.MessagesPersisted.WithLabelValues(string(models.SenderVisitor)).Inc()
	s.bus.MessageSent(ctx, msg)

	return msg, nil
}

// AddAssistantMessage appends a completed assistant reply. It is
// system-originated, so there is no session check.
func (s *Service) AddAssistantMessage(ctx context.Context, conversationID uuid.UUID, content string, tokensUsed *int) (*models.Message, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrNotFound
	}

	msg := &models.Message{
		ConversationID: conversationID,
		Sender:         models.SenderAssistant,
		Content:        content,
		TokensUsed:     tokensUsed,
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("append assistant message: %w", err)
	}

	metrics.MessagesPersisted.WithLabelValues(string(models.SenderAssistant)).Inc()
	s.bus.MessageSent(ctx, msg)

	return msg, nil
}

// RecentMessages returns the most recent limit messages of a conversation
// ordered oldest first. The gateway re-reads the log through this method to
// build generation context, so resumed and parallel sessions stay
// consistent.
func (s *Service) RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	return s.store.GetMessages(ctx, conversationID, limit)
}

// ListConversations returns summaries for the admin console, ordered by
// most recent activity.
func (s *Service) ListConversations(ctx context.Context, skip, take int) ([]models.ConversationSummary, error) {
	if take <= 0 {
		take = 50
	}
	if take > 200 {
		take = 200
	}
	if skip < 0 {
		skip = 0
	}
	return s.store.ListConversations(ctx, take, skip)
}

// UpdateStatus changes a conversation's lifecycle status.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ConversationStatus) error {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	if conv == nil {
		return ErrNotFound
	}
	return s.store.UpdateConversationStatus(ctx, id, status)
}

// GetStats aggregates conversation activity. The average is rounded to one
// decimal place and is zero for an empty store.
func (s *Service) GetStats(ctx context.Context) (*models.Stats, error) {
	total, err := s.store.CountConversations(ctx)
	if err != nil {
		return nil, err
	}

	active, err := s.store.CountConversationsByStatus(ctx, models.StatusActive)
	if err != nil {
		return nil, err
	}

	totalMessages, err := s.store.SumMessageCounts(ctx)
	if err != nil {
		return nil, err
	}

	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	startedToday, err := s.store.CountStartedSince(ctx, midnight)
	if err != nil {
		return nil, err
	}

	var avg float64
	if total > 0 {
		avg = math.Round(float64(totalMessages)/float64(total)*10) / 10
	}

	return &models.Stats{
		Total:                      total,
		Active:                     active,
		AvgMessagesPerConversation: avg,
		StartedToday:               startedToday,
	}, nil
}
