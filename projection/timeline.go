// Package projection builds local read models from observed events.
// Handles ordering and capping per room. Does not emit events or touch
// the delivery path.
package projection

import (
	"context"
	"sync"

	"chat-relay/domain"
	"chat-relay/domain/event"
)

// Timeline keeps the most recent relayed messages per room, capped so a
// busy room cannot grow without bound. Exposed through the debug server.
type Timeline struct {
	mu       sync.Mutex
	capacity int
	rooms    map[domain.RoomCode][]domain.Message
}

func NewTimeline(capacity int) *Timeline {
	return &Timeline{
		capacity: capacity,
		rooms:    make(map[domain.RoomCode][]domain.Message),
	}
}

func (t *Timeline) Consume(_ context.Context, e event.ChatEvent) error {
	evt, ok := e.(event.MessageReceived)
	if !ok {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	messages := append(t.rooms[evt.Room], fromEvent(evt))
	if len(messages) > t.capacity {
		messages = messages[len(messages)-t.capacity:]
	}
	t.rooms[evt.Room] = messages
	return nil
}

// Messages returns a snapshot of the room's recent messages, oldest first.
func (t *Timeline) Messages(room domain.RoomCode) []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	messages := t.rooms[room]
	out := make([]domain.Message, len(messages))
	copy(out, messages)
	return out
}

// Rooms returns the codes of every room with at least one projected message.
func (t *Timeline) Rooms() []domain.RoomCode {
	t.mu.Lock()
	defer t.mu.Unlock()
	codes := make([]domain.RoomCode, 0, len(t.rooms))
	for code := range t.rooms {
		codes = append(codes, code)
	}
	return codes
}

func fromEvent(evt event.MessageReceived) domain.Message {
	return domain.Message{
		ID:         evt.ID,
		Room:       evt.Room,
		SenderID:   evt.SenderID,
		SenderName: evt.SenderName,
		Content:    evt.Content,
		CreatedAt:  evt.At,
	}
}
