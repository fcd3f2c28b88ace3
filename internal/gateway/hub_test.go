package gateway

import (
	"sync"
	"testing"

	"github.com/google/uuid"
)

// recordingSub collects events for assertions.
type recordingSub struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSub) Send(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSub) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestHubJoinBroadcastLeave(t *testing.T) {
	h := NewHub()
	id := uuid.New()
	a := &recordingSub{}
	b := &recordingSub{}

	h.Join(id, a)
	h.Join(id, b)
	if got := h.Subscribers(id); got != 2 {
		t.Fatalf("expected 2 subscribers, got %d", got)
	}

	h.Broadcast(id, Event{Type: EventMessageChunk, Chunk: "hi"})
	if len(a.all()) != 1 || len(b.all()) != 1 {
		t.Fatal("expected both subscribers to receive the broadcast")
	}

	h.Leave(id, a)
	h.Broadcast(id, Event{Type: EventMessageChunk, Chunk: "again"})
	if len(a.all()) != 1 {
		t.Fatal("a left and must not receive further events")
	}
	if len(b.all()) != 2 {
		t.Fatal("b is still subscribed")
	}

	h.Leave(id, b)
	if got := h.Subscribers(id); got != 0 {
		t.Fatalf("expected empty room, got %d", got)
	}
}

func TestHubJoinIsIdempotent(t *testing.T) {
	h := NewHub()
	id := uuid.New()
	sub := &recordingSub{}

	h.Join(id, sub)
	h.Join(id, sub)
	if got := h.Subscribers(id); got != 1 {
		t.Fatalf("expected 1 subscriber after double join, got %d", got)
	}

	h.Broadcast(id, Event{Type: EventMessageChunk, Chunk: "once"})
	if len(sub.all()) != 1 {
		t.Fatal("double join must not duplicate delivery")
	}
}

func TestHubLeaveUnknown(t *testing.T) {
	h := NewHub()

	// Leaving a room never joined must not panic
	h.Leave(uuid.New(), &recordingSub{})
}

func TestHubBroadcastToEmptyRoom(t *testing.T) {
	h := NewHub()

	h.Broadcast(uuid.New(), Event{Type: EventMessageChunk, Chunk: "void"})
}

func TestHubRoomsAreIndependent(t *testing.T) {
	h := NewHub()
	roomA, roomB := uuid.New(), uuid.New()
	a := &recordingSub{}
	b := &recordingSub{}

	h.Join(roomA, a)
	h.Join(roomB, b)

	h.Broadcast(roomA, Event{Type: EventMessageChunk, Chunk: "for a"})
	if len(a.all()) != 1 {
		t.Fatal("expected a to receive its room's broadcast")
	}
	if len(b.all()) != 0 {
		t.Fatal("b must not receive another room's broadcast")
	}
}
