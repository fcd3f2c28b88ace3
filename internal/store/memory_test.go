package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lushlocks/chat-service/internal/models"
)

func newTestConversation(t *testing.T, s *MemoryStore) *models.Conversation {
	t.Helper()
	conv, err := s.CreateConversation(context.Background(), "sess-1", "Ava")
	if err != nil {
		t.Fatal(err)
	}
	return conv
}

func TestCreateAndGetConversation(t *testing.T) {
	s := NewMemoryStore()
	conv := newTestConversation(t, s)

	got, err := s.GetConversation(context.Background(), conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("expected conversation, got nil")
	}
	if got.SessionID != "sess-1" || got.VisitorName != "Ava" {
		t.Fatalf("unexpected conversation: %+v", got)
	}
	if got.Status != models.StatusActive {
		t.Fatalf("expected active status, got %q", got.Status)
	}
}

func TestGetConversationMissing(t *testing.T) {
	s := NewMemoryStore()

	got, err := s.GetConversation(context.Background(), uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing conversation, got %+v", got)
	}
}

func TestAppendMessageBumpsConversation(t *testing.T) {
	s := NewMemoryStore()
	conv := newTestConversation(t, s)

	for i := 0; i < 3; i++ {
		msg := &models.Message{
			ConversationID: conv.ID,
			Sender:         models.SenderVisitor,
			Content:        fmt.Sprintf("message %d", i),
		}
		if err := s.AppendMessage(context.Background(), msg); err != nil {
			t.Fatal(err)
		}
		if msg.ID == "" {
			t.Fatal("expected message ID to be assigned")
		}
	}

	got, err := s.GetConversation(context.Background(), conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.MessageCount != 3 {
		t.Fatalf("expected message count 3, got %d", got.MessageCount)
	}
}

func TestGetMessagesOrderAndWindow(t *testing.T) {
	s := NewMemoryStore()
	conv := newTestConversation(t, s)

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		msg := &models.Message{
			ConversationID: conv.ID,
			Sender:         models.SenderVisitor,
			Content:        fmt.Sprintf("message %d", i),
			SentAt:         base.Add(time.Duration(i) * time.Second),
		}
		if err := s.AppendMessage(context.Background(), msg); err != nil {
			t.Fatal(err)
		}
	}

	// Full log, oldest first
	all, err := s.GetMessages(context.Background(), conv.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(all))
	}
	for i, msg := range all {
		if msg.Content != fmt.Sprintf("message %d", i) {
			t.Fatalf("message %d out of order: %q", i, msg.Content)
		}
	}

	// Bounded window keeps the most recent, still oldest first
	recent, err := s.GetMessages(context.Background(), conv.ID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(recent))
	}
	if recent[0].Content != "message 3" || recent[1].Content != "message 4" {
		t.Fatalf("unexpected window: %q, %q", recent[0].Content, recent[1].Content)
	}
}

func TestListConversationsOrderedByActivity(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, _ := s.CreateConversation(ctx, "sess-1", "")
	second, _ := s.CreateConversation(ctx, "sess-2", "")

	// Activity on the first conversation moves it to the front
	err := s.AppendMessage(ctx, &models.Message{
		ConversationID: first.ID,
		Sender:         models.SenderVisitor,
		Content:        "hello again",
		SentAt:         time.Now().UTC().Add(time.Minute),
	})
	if err != nil {
		t.Fatal(err)
	}

	list, err := s.ListConversations(ctx, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(list))
	}
	if list[0].ID != first.ID {
		t.Fatalf("expected most recently active conversation first, got %s", list[0].ID)
	}
	if list[1].ID != second.ID {
		t.Fatalf("expected %s second, got %s", second.ID, list[1].ID)
	}
}

func TestListConversationsPagination(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := s.CreateConversation(ctx, fmt.Sprintf("sess-%d", i), ""); err != nil {
			t.Fatal(err)
		}
	}

	page, err := s.ListConversations(ctx, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page))
	}

	empty, err := s.ListConversations(ctx, 10, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty page past the end, got %d", len(empty))
	}
}

func TestCounts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	a, _ := s.CreateConversation(ctx, "sess-1", "")
	b, _ := s.CreateConversation(ctx, "sess-2", "")
	if err := s.UpdateConversationStatus(ctx, b.ID, models.StatusClosed); err != nil {
		t.Fatal(err)
	}

	s.AppendMessage(ctx, &models.Message{ConversationID: a.ID, Sender: models.SenderVisitor, Content: "hi"})
	s.AppendMessage(ctx, &models.Message{ConversationID: a.ID, Sender: models.SenderAssistant, Content: "hello"})

	total, _ := s.CountConversations(ctx)
	if total != 2 {
		t.Fatalf("expected 2 conversations, got %d", total)
	}

	active, _ := s.CountConversationsByStatus(ctx, models.StatusActive)
	if active != 1 {
		t.Fatalf("expected 1 active conversation, got %d", active)
	}

	msgs, _ := s.SumMessageCounts(ctx)
	if msgs != 2 {
		t.Fatalf("expected 2 messages, got %d", msgs)
	}

	today, _ := s.CountStartedSince(ctx, time.Now().UTC().Add(-time.Hour))
	if today != 2 {
		t.Fatalf("expected 2 started since an hour ago, got %d", today)
	}

	none, _ := s.CountStartedSince(ctx, time.Now().UTC().Add(time.Hour))
	if none != 0 {
		t.Fatalf("expected 0 started in the future, got %d", none)
	}
}
