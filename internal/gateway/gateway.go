package gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lushlocks/chat-service/internal/chat"
	"github.com/lushlocks/chat-service/internal/llm"
	"github.com/lushlocks/chat-service/internal/metrics"
	"github.com/lushlocks/chat-service/internal/models"
)

// contextWindow is how many persisted messages are re-read from the log to
// build generation context. Re-reading, rather than keeping a running
// buffer, keeps resumed and parallel sessions consistent.
const contextWindow = 50

// retryHint is the generic message broadcast when a generation cycle fails.
const retryHint = "Something went wrong while answering. Please try sending your message again."

// Generator produces a streamed reply for a conversation turn.
type Generator interface {
	GenerateResponse(ctx context.Context, history []models.Message, visitorMessage string) *llm.Stream
}

// Gateway is the realtime entry point. It orchestrates persistence and
// generation per conversation without owning either: the conversation
// service holds all durable state, the hub holds all routing state.
type Gateway struct {
	hub    *Hub
	svc    *chat.Service
	gen    Generator
	logger zerolog.Logger
}

// New creates a gateway.
func New(hub *Hub, svc *chat.Service, gen Generator, logger zerolog.Logger) *Gateway {
	return &Gateway{hub: hub, svc: svc, gen: gen, logger: logger}
}

// Leave detaches sub from a conversation's room. Transports call it on
// disconnect and before switching rooms.
func (g *Gateway) Leave(conversationID uuid.UUID, sub Subscriber) {
	g.hub.Leave(conversationID, sub)
}

// StartConversation creates a conversation for the caller, joins them to
// its room, acknowledges with the new id and runs a generation cycle for
// the initial message. Returns the conversation id and whether the caller
// is now subscribed.
func (g *Gateway) StartConversation(ctx context.Context, sub Subscriber, sessionID, visitorName, initialMessage string) (uuid.UUID, bool) {
	conv, err := g.svc.CreateConversation(ctx, sessionID, initialMessage, visitorName)
	if err != nil {
		g.logger.Error().Err(err).Msg("failed to start conversation")
		sub.Send(Event{Type: EventError, Error: "could not start conversation"})
		return uuid.Nil, false
	}

	g.hub.Join(conv.ID, sub)
	sub.Send(Event{Type: EventConversationStarted, ConversationID: conv.ID})

	g.runGenerationCycle(ctx, conv.ID, initialMessage)
	return conv.ID, true
}

// SendMessage persists a visitor message and runs a generation cycle.
// NotFound and session errors go to the caller only, never the room.
func (g *Gateway) SendMessage(ctx context.Context, sub Subscriber, conversationID uuid.UUID, sessionID, content string) {
	_, err := g.svc.AddVisitorMessage(ctx, conversationID, sessionID, content)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrNotFound):
			sub.Send(Event{Type: EventError, ConversationID: conversationID, Error: "conversation not found"})
		case errors.Is(err, chat.ErrUnauthorized):
			sub.Send(Event{Type: EventError, ConversationID: conversationID, Error: "conversation not found"})
		default:
			g.logger.Error().Err(err).Stringer("conversation_id", conversationID).Msg("failed to persist visitor message")
			sub.Send(Event{Type: EventError, ConversationID: conversationID, Error: "could not send message"})
		}
		return
	}

	g.runGenerationCycle(ctx, conversationID, content)
}

// ResumeConversation joins the caller to an existing conversation's room
// and sends them the full snapshot. A missing conversation and a session
// mismatch produce the same error, so existence never leaks to a wrong
// session. Returns the conversation id and whether the caller joined.
func (g *Gateway) ResumeConversation(ctx context.Context, sub Subscriber, conversationID uuid.UUID, sessionID string) (uuid.UUID, bool) {
	conv, err := g.svc.GetConversationForSession(ctx, conversationID, sessionID)
	if err != nil {
		g.logger.Error().Err(err).Stringer("conversation_id", conversationID).Msg("failed to load conversation")
		sub.Send(Event{Type: EventError, ConversationID: conversationID, Error: "could not resume conversation"})
		return uuid.Nil, false
	}
	if conv == nil {
		sub.Send(Event{Type: EventError, ConversationID: conversationID, Error: "conversation not found"})
		return uuid.Nil, false
	}

	g.hub.Join(conv.ID, sub)
	sub.Send(Event{Type: EventConversation, ConversationID: conv.ID, Conversation: conv})
	return conv.ID, true
}

// runGenerationCycle streams one assistant reply to the whole room:
// re-read recent history, broadcast each fragment in arrival order,
// persist the accumulated text, then signal completion. Fallback output is
// broadcast but never persisted. Any failure after
// the visitor message was persisted becomes one group-wide error event;
// chunks already delivered for a failed cycle are never persisted.
func (g *Gateway) runGenerationCycle(ctx context.Context, conversationID uuid.UUID, visitorMessage string) {
	history, err := g.svc.RecentMessages(ctx, conversationID, contextWindow)
	if err != nil {
		g.failCycle(conversationID, "load history", err)
		return
	}

	// The triggering message is already in the log; strip it so the
	// generator sends it exactly once, as the final user turn.
	if n := len(history); n > 0 &&
		history[n-1].Sender == models.SenderVisitor &&
		history[n-1].Content == visitorMessage {
		history = history[:n-1]
	}

	stream := g.gen.GenerateResponse(ctx, history, visitorMessage)
	defer stream.Close()

	var reply strings.Builder
	for stream.Next() {
		fragment := stream.Current()
		reply.WriteString(fragment)
		g.hub.Broadcast(conversationID, Event{
			Type:           EventMessageChunk,
			ConversationID: conversationID,
			Chunk:          fragment,
		})
		metrics.ChunksStreamed.Inc()
	}
	if err := stream.Err(); err != nil {
		g.failCycle(conversationID, "read stream", err)
		return
	}

	if reply.Len() == 0 {
		// Zero content deltas: no assistant output, not an error.
		metrics.GenerationCycles.WithLabelValues("empty").Inc()
		return
	}

	if stream.Fallback() {
		// Substitute text, not a real reply. The visitor saw it as chunks;
		// it stays out of the log and out of future generation context.
		g.hub.Broadcast(conversationID, Event{
			Type:           EventMessageChunk,
			ConversationID: conversationID,
			IsComplete:     true,
		})
		metrics.GenerationCycles.WithLabelValues("fallback").Inc()
		return
	}

	msg, err := g.svc.AddAssistantMessage(ctx, conversationID, reply.String(), nil)
	if err != nil {
		g.failCycle(conversationID, "persist reply", err)
		return
	}

	g.hub.Broadcast(conversationID, Event{
		Type:           EventMessageChunk,
		ConversationID: conversationID,
		IsComplete:     true,
	})
	g.hub.Broadcast(conversationID, Event{
		Type:           EventMessage,
		ConversationID: conversationID,
		Message:        msg,
	})
	metrics.GenerationCycles.WithLabelValues("completed").Inc()
}

// failCycle reports a failed cycle to the whole room. Every subscriber is
// waiting on the same in-flight reply, so unlike session errors this does
// fan out.
func (g *Gateway) failCycle(conversationID uuid.UUID, stage string, err error) {
	g.logger.Error().
		Err(err).
		Str("stage", stage).
		Stringer("conversation_id", conversationID).
		Msg("generation cycle failed")
	metrics.GenerationCycles.WithLabelValues("failed").Inc()
	g.hub.Broadcast(conversationID, Event{
		Type:           EventError,
		ConversationID: conversationID,
		Error:          retryHint,
	})
}
