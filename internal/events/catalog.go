package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lushlocks/chat-service/internal/models"
)

// catalogChannel carries catalog-change notifications from the commerce
// services. Each message replaces a full snapshot, never a delta.
const catalogChannel = "catalog:updates"

// catalogUpdate is the wire shape of a catalog notification.
type catalogUpdate struct {
	Kind     string           `json:"kind"` // "products" or "origins"
	Products []models.Product `json:"products,omitempty"`
	Origins  []models.Origin  `json:"origins,omitempty"`
}

// CatalogSink receives catalog snapshot replacements. The system prompt
// builder implements it.
type CatalogSink interface {
	UpdateProducts(products []models.Product)
	UpdateOrigins(origins []models.Origin)
}

// CatalogListener subscribes to catalog-change notifications and applies
// snapshots to the sink.
type CatalogListener struct {
	client *redis.Client
	sink   CatalogSink
	logger zerolog.Logger
}

// NewCatalogListener creates a listener on an existing Redis client.
func NewCatalogListener(client *redis.Client, sink CatalogSink, logger zerolog.Logger) *CatalogListener {
	return &CatalogListener{client: client, sink: sink, logger: logger}
}

// Run subscribes and applies updates until ctx is cancelled.
func (l *CatalogListener) Run(ctx context.Context) {
	sub := l.client.Subscribe(ctx, catalogChannel)
	defer sub.Close()

	l.logger.Info().Str("channel", catalogChannel).Msg("listening for catalog updates")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			l.apply(msg.Payload)
		}
	}
}

func (l *CatalogListener) apply(payload string) {
	var update catalogUpdate
	if err := json.Unmarshal([]byte(payload), &update); err != nil {
		l.logger.Warn().Err(err).Msg("discarding malformed catalog update")
		return
	}

	switch update.Kind {
	case "products":
		l.sink.UpdateProducts(update.Products)
		l.logger.Info().Int("count", len(update.Products)).Msg("product snapshot replaced")
	case "origins":
		l.sink.UpdateOrigins(update.Origins)
		l.logger.Info().Int("count", len(update.Origins)).Msg("origin snapshot replaced")
	default:
		l.logger.Warn().Str("kind", update.Kind).Msg("unknown catalog update kind")
	}
}
