package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lushlocks/chat-service/internal/metrics"
	"github.com/lushlocks/chat-service/internal/models"
)

// Event type names published on the domain channel.
const (
	TypeConversationStarted = "conversation.started"
	TypeMessageSent         = "message.sent"
)

// domainChannel is the Redis channel carrying domain events for downstream
// consumers (admin console, analytics).
const domainChannel = "chat:events"

// Envelope is the wire shape of a published domain event.
type Envelope struct {
	Type           string          `json:"type"`
	ConversationID uuid.UUID       `json:"conversation_id"`
	Message        *models.Message `json:"message,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// Publisher publishes domain events. Publication is best-effort: the store
// append that precedes it is the source of truth, so implementations must
// never fail the calling operation.
type Publisher interface {
	ConversationStarted(ctx context.Context, conversationID uuid.UUID)
	MessageSent(ctx context.Context, msg *models.Message)
}

// RedisPublisher publishes events via Redis PUBLISH.
type RedisPublisher struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisPublisher creates a publisher on an existing Redis client.
func NewRedisPublisher(client *redis.Client, logger zerolog.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, logger: logger}
}

// ConversationStarted publishes a conversation started event.
func (p *RedisPublisher) ConversationStarted(ctx context.Context, conversationID uuid.UUID) {
	p.publish(ctx, Envelope{
		Type:           TypeConversationStarted,
		ConversationID: conversationID,
		OccurredAt:     time.Now().UTC(),
	})
}

// MessageSent publishes a message sent event.
func (p *RedisPublisher) MessageSent(ctx context.Context, msg *models.Message) {
	p.publish(ctx, Envelope{
		Type:           TypeMessageSent,
		ConversationID: msg.ConversationID,
		Message:        msg,
		OccurredAt:     time.Now().UTC(),
	})
}

// publish is fire-and-forget: failures are logged and counted, never
// returned. There is no retry and no outbox; a dropped event widens the
// documented inconsistency window between store and bus.
func (p *RedisPublisher) publish(ctx context.Context, ev Envelope) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error().Err(err).Str("type", ev.Type).Msg("failed to encode domain event")
		metrics.EventPublishFailures.Inc()
		return
	}
	if err := p.client.Publish(ctx, domainChannel, data).Err(); err != nil {
		p.logger.Warn().Err(err).Str("type", ev.Type).Msg("failed to publish domain event")
		metrics.EventPublishFailures.Inc()
		return
	}
	metrics.EventsPublished.WithLabelValues(ev.Type).Inc()
}

// NopPublisher discards all events. Used when Redis is not configured and
// in tests that don't assert on events.
type NopPublisher struct{}

func (NopPublisher) ConversationStarted(ctx context.Context, conversationID uuid.UUID) {}
func (NopPublisher) MessageSent(ctx context.Context, msg *models.Message)              {}
