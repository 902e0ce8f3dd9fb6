package projection

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"chat-relay/domain"
	"chat-relay/domain/event"
)

func received(room, content string) event.MessageReceived {
	return event.MessageReceived{
		ID:       uuid.New(),
		Room:     domain.RoomCode(room),
		SenderID: "alice",
		Content:  content,
		At:       time.Now().UTC(),
	}
}

func TestTimeline_KeepsArrivalOrder(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(10)
	ctx := context.Background()

	req.NoError(timeline.Consume(ctx, received("ABC123", "first")))
	req.NoError(timeline.Consume(ctx, received("ABC123", "second")))

	messages := timeline.Messages("ABC123")
	req.Len(messages, 2)
	req.Equal("first", messages[0].Content)
	req.Equal("second", messages[1].Content)
}

func TestTimeline_CapDropsOldest(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		req.NoError(timeline.Consume(ctx, received("ABC123", fmt.Sprintf("msg-%d", i))))
	}

	messages := timeline.Messages("ABC123")
	req.Len(messages, 3)
	req.Equal("msg-2", messages[0].Content)
	req.Equal("msg-4", messages[2].Content)
}

func TestTimeline_RoomsAreIsolated(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(10)
	ctx := context.Background()

	req.NoError(timeline.Consume(ctx, received("AAA111", "here")))
	req.NoError(timeline.Consume(ctx, received("BBB222", "there")))

	req.Len(timeline.Messages("AAA111"), 1)
	req.Len(timeline.Messages("BBB222"), 1)
	req.ElementsMatch([]domain.RoomCode{"AAA111", "BBB222"}, timeline.Rooms())
}

func TestTimeline_IgnoresNonMessageEvents(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(10)

	req.NoError(timeline.Consume(context.Background(), event.MemberJoined{Room: "ABC123", UserID: "alice"}))
	req.Empty(timeline.Messages("ABC123"))
	req.Empty(timeline.Rooms())
}

func TestTimeline_SnapshotIsACopy(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline(10)

	req.NoError(timeline.Consume(context.Background(), received("ABC123", "original")))

	snapshot := timeline.Messages("ABC123")
	snapshot[0].Content = "mutated"
	req.Equal("original", timeline.Messages("ABC123")[0].Content)
}
