package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lushlocks/chat-service/internal/chat"
	"github.com/lushlocks/chat-service/internal/events"
	"github.com/lushlocks/chat-service/internal/llm"
	"github.com/lushlocks/chat-service/internal/models"
	"github.com/lushlocks/chat-service/internal/store"
)

// fakeGenerator serves pre-baked streams and records what it was asked.
type fakeGenerator struct {
	history        []models.Message
	visitorMessage string
	next           func() *llm.Stream
}

func (g *fakeGenerator) GenerateResponse(ctx context.Context, history []models.Message, visitorMessage string) *llm.Stream {
	g.history = append([]models.Message(nil), history...)
	g.visitorMessage = visitorMessage
	return g.next()
}

func newTestGateway(gen *fakeGenerator) (*Gateway, *chat.Service) {
	svc := chat.NewService(store.NewMemoryStore(), events.NopPublisher{}, zerolog.Nop())
	return New(NewHub(), svc, gen, zerolog.Nop()), svc
}

func eventTypes(events []Event) []string {
	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

func TestStartConversationStreamsReply(t *testing.T) {
	gen := &fakeGenerator{next: func() *llm.Stream { return llm.NewTextStream("Hel", "lo") }}
	gw, svc := newTestGateway(gen)
	sub := &recordingSub{}

	id, ok := gw.StartConversation(context.Background(), sub, "sess-1", "Ava", "what do you carry?")
	if !ok {
		t.Fatal("expected the caller to be subscribed")
	}

	got := sub.all()
	want := []string{EventConversationStarted, EventMessageChunk, EventMessageChunk, EventMessageChunk, EventMessage}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), eventTypes(got))
	}
	for i, ty := range want {
		if got[i].Type != ty {
			t.Fatalf("event %d: expected %q, got %q", i, ty, got[i].Type)
		}
	}

	if got[0].ConversationID != id {
		t.Fatal("ack must carry the new conversation id")
	}
	if got[1].Chunk != "Hel" || got[2].Chunk != "lo" {
		t.Fatalf("chunks out of order: %q, %q", got[1].Chunk, got[2].Chunk)
	}
	if !got[3].IsComplete || got[3].Chunk != "" {
		t.Fatalf("expected the completion marker, got %+v", got[3])
	}
	if got[4].Message == nil || got[4].Message.Content != "Hello" {
		t.Fatalf("expected the persisted reply, got %+v", got[4].Message)
	}

	// The reply is durable
	conv, err := svc.GetConversation(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if conv.MessageCount != 2 {
		t.Fatalf("expected visitor message and reply persisted, got %d", conv.MessageCount)
	}
	if conv.Messages[1].Sender != models.SenderAssistant || conv.Messages[1].Content != "Hello" {
		t.Fatalf("unexpected persisted reply: %+v", conv.Messages[1])
	}

	// The triggering message is sent once, as the visitor message, never
	// duplicated through history
	if gen.visitorMessage != "what do you carry?" {
		t.Fatalf("unexpected visitor message: %q", gen.visitorMessage)
	}
	if len(gen.history) != 0 {
		t.Fatalf("expected empty history for a new conversation, got %d", len(gen.history))
	}
}

func TestSendMessageFansOutToAllSubscribers(t *testing.T) {
	gen := &fakeGenerator{next: func() *llm.Stream { return llm.NewTextStream("sure", "!") }}
	gw, _ := newTestGateway(gen)
	first := &recordingSub{}

	id, ok := gw.StartConversation(context.Background(), first, "sess-1", "", "hello")
	if !ok {
		t.Fatal("start failed")
	}

	// Second device resumes the same conversation
	second := &recordingSub{}
	if _, ok := gw.ResumeConversation(context.Background(), second, id, "sess-1"); !ok {
		t.Fatal("resume failed")
	}

	gw.SendMessage(context.Background(), first, id, "sess-1", "which lengths?")

	firstEvents := first.all()
	cycle := firstEvents[len(firstEvents)-4:]
	secondEvents := second.all()
	if secondEvents[0].Type != EventConversation {
		t.Fatalf("expected the resume snapshot first, got %q", secondEvents[0].Type)
	}
	mirrored := secondEvents[1:]

	if len(mirrored) != len(cycle) {
		t.Fatalf("expected both subscribers to see the cycle, got %d vs %d", len(mirrored), len(cycle))
	}
	for i := range cycle {
		if cycle[i].Type != mirrored[i].Type || cycle[i].Chunk != mirrored[i].Chunk {
			t.Fatalf("event %d diverged: %+v vs %+v", i, cycle[i], mirrored[i])
		}
	}

	// Generation context came from the shared log, minus the new message
	if len(gen.history) != 2 {
		t.Fatalf("expected 2 history messages, got %d", len(gen.history))
	}
	if gen.visitorMessage != "which lengths?" {
		t.Fatalf("unexpected visitor message: %q", gen.visitorMessage)
	}
}

func TestSendMessageUnknownConversation(t *testing.T) {
	gen := &fakeGenerator{next: func() *llm.Stream { return llm.NewTextStream("never") }}
	gw, _ := newTestGateway(gen)
	sub := &recordingSub{}

	gw.SendMessage(context.Background(), sub, uuid.New(), "sess-1", "hi")

	got := sub.all()
	if len(got) != 1 || got[0].Type != EventError || got[0].Error != "conversation not found" {
		t.Fatalf("expected a caller-only not-found error, got %v", got)
	}
}

func TestSendMessageWrongSession(t *testing.T) {
	gen := &fakeGenerator{next: func() *llm.Stream { return llm.NewTextStream("reply") }}
	gw, _ := newTestGateway(gen)
	owner := &recordingSub{}

	id, _ := gw.StartConversation(context.Background(), owner, "sess-1", "", "hello")

	intruder := &recordingSub{}
	gw.SendMessage(context.Background(), intruder, id, "other-session", "let me in")

	got := intruder.all()
	// Indistinguishable from a missing conversation
	if len(got) != 1 || got[0].Error != "conversation not found" {
		t.Fatalf("expected the not-found error, got %v", got)
	}
}

func TestResumeWrongSession(t *testing.T) {
	gen := &fakeGenerator{next: func() *llm.Stream { return llm.NewTextStream("reply") }}
	gw, _ := newTestGateway(gen)
	owner := &recordingSub{}

	id, _ := gw.StartConversation(context.Background(), owner, "sess-1", "", "hello")

	intruder := &recordingSub{}
	if _, ok := gw.ResumeConversation(context.Background(), intruder, id, "other-session"); ok {
		t.Fatal("wrong session must not join")
	}
	got := intruder.all()
	if len(got) != 1 || got[0].Type != EventError || got[0].Error != "conversation not found" {
		t.Fatalf("expected the not-found error, got %v", got)
	}
}

func TestGenerationFailureFansOutError(t *testing.T) {
	gen := &fakeGenerator{next: func() *llm.Stream { return llm.NewErrorStream(errors.New("upstream died")) }}
	gw, svc := newTestGateway(gen)
	sub := &recordingSub{}

	id, _ := gw.StartConversation(context.Background(), sub, "sess-1", "", "hello")

	got := sub.all()
	last := got[len(got)-1]
	if last.Type != EventError {
		t.Fatalf("expected an error event, got %q", last.Type)
	}
	if last.Error == "" || last.Error == "conversation not found" {
		t.Fatalf("expected the retry hint, got %q", last.Error)
	}

	// Nothing from the failed cycle was persisted
	conv, err := svc.GetConversation(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if conv.MessageCount != 1 {
		t.Fatalf("failed cycle must not persist a reply, got %d messages", conv.MessageCount)
	}
}

func TestMidStreamFailureDiscardsPartialReply(t *testing.T) {
	gen := &fakeGenerator{next: func() *llm.Stream {
		// Stream interface surfaces the error only after its fragments
		return llm.NewTextStream("partial")
	}}
	gw, svc := newTestGateway(gen)
	sub := &recordingSub{}

	// First verify the baseline: fragments then clean end persists
	id, _ := gw.StartConversation(context.Background(), sub, "sess-1", "", "hello")
	conv, _ := svc.GetConversation(context.Background(), id)
	if conv.MessageCount != 2 {
		t.Fatalf("expected clean stream persisted, got %d", conv.MessageCount)
	}

	// Now an erroring stream after the same setup
	gen.next = func() *llm.Stream { return llm.NewErrorStream(errors.New("cut off")) }
	gw.SendMessage(context.Background(), sub, id, "sess-1", "and closures?")

	conv, _ = svc.GetConversation(context.Background(), id)
	// visitor(1) + reply(1) + visitor(1): the failed cycle added nothing
	if conv.MessageCount != 3 {
		t.Fatalf("failed cycle must not persist partial output, got %d", conv.MessageCount)
	}
}

type staticPrompt string

func (p staticPrompt) Build() string { return string(p) }

func TestUpstreamFailureApologyNotPersisted(t *testing.T) {
	// An upstream that is already gone: the real client yields its
	// fallback apology
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := llm.NewClient(llm.Config{
		APIURL:    srv.URL,
		APIKey:    "test-key",
		Model:     "test-model",
		MaxTokens: 256,
	}, staticPrompt("system"), zerolog.Nop())

	svc := chat.NewService(store.NewMemoryStore(), events.NopPublisher{}, zerolog.Nop())
	gw := New(NewHub(), svc, client, zerolog.Nop())
	sub := &recordingSub{}

	id, ok := gw.StartConversation(context.Background(), sub, "sess-1", "", "hello")
	if !ok {
		t.Fatal("start failed")
	}

	got := sub.all()
	want := []string{EventConversationStarted, EventMessageChunk, EventMessageChunk}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, eventTypes(got))
	}
	if got[1].Chunk != llm.FallbackApology {
		t.Fatalf("expected the apology chunk, got %q", got[1].Chunk)
	}
	if !got[2].IsComplete {
		t.Fatal("expected the completion marker after the apology")
	}
	for _, ev := range got {
		if ev.Type == EventMessage {
			t.Fatal("the apology must not be delivered as a persisted message")
		}
	}

	// Only the visitor message is in the log; the apology never enters
	// future generation context
	conv, err := svc.GetConversation(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if conv.MessageCount != 1 {
		t.Fatalf("apology was persisted: message count = %d, expected 1", conv.MessageCount)
	}
	if len(conv.Messages) != 1 || conv.Messages[0].Sender != models.SenderVisitor {
		t.Fatalf("unexpected log contents: %+v", conv.Messages)
	}
}

func TestFallbackStreamSkipsPersistence(t *testing.T) {
	gen := &fakeGenerator{next: func() *llm.Stream { return llm.NewFallbackStream(llm.FallbackApology) }}
	gw, svc := newTestGateway(gen)
	sub := &recordingSub{}

	id, _ := gw.StartConversation(context.Background(), sub, "sess-1", "", "hello")

	got := sub.all()
	// Ack, apology chunk, completion marker; no message event
	want := []string{EventConversationStarted, EventMessageChunk, EventMessageChunk}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, eventTypes(got))
	}
	if !got[2].IsComplete {
		t.Fatal("expected the completion marker")
	}

	conv, err := svc.GetConversation(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if conv.MessageCount != 1 {
		t.Fatalf("fallback output must not be persisted, got %d messages", conv.MessageCount)
	}
}

func TestEmptyStreamPersistsNothing(t *testing.T) {
	gen := &fakeGenerator{next: func() *llm.Stream { return llm.NewTextStream() }}
	gw, svc := newTestGateway(gen)
	sub := &recordingSub{}

	id, _ := gw.StartConversation(context.Background(), sub, "sess-1", "", "hello")

	got := sub.all()
	// Just the ack: no chunks, no completion, no error
	if len(got) != 1 || got[0].Type != EventConversationStarted {
		t.Fatalf("expected only the ack for an empty stream, got %v", eventTypes(got))
	}

	conv, err := svc.GetConversation(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if conv.MessageCount != 1 {
		t.Fatalf("empty stream must not persist a reply, got %d", conv.MessageCount)
	}
}

func TestResumeSendsSnapshot(t *testing.T) {
	gen := &fakeGenerator{next: func() *llm.Stream { return llm.NewTextStream("reply") }}
	gw, _ := newTestGateway(gen)
	owner := &recordingSub{}

	id, _ := gw.StartConversation(context.Background(), owner, "sess-1", "", "hello")

	sub := &recordingSub{}
	joined, ok := gw.ResumeConversation(context.Background(), sub, id, "sess-1")
	if !ok || joined != id {
		t.Fatal("expected resume to join the room")
	}

	got := sub.all()
	if len(got) != 1 || got[0].Type != EventConversation {
		t.Fatalf("expected one snapshot event, got %v", eventTypes(got))
	}
	snap := got[0].Conversation
	if snap == nil || len(snap.Messages) != 2 {
		t.Fatalf("expected the full message log in the snapshot, got %+v", snap)
	}
}
