package search

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"chat-relay/domain"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	index, err := Open("", slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	return index
}

func indexedMessage(t *testing.T, index *Index, room, sender, content string) domain.Message {
	t.Helper()
	msg := domain.Message{
		ID:         uuid.New(),
		Room:       domain.RoomCode(room),
		SenderID:   sender,
		SenderName: sender,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, index.IndexMessage(msg))
	return msg
}

func TestSearch_MatchesContent(t *testing.T) {
	req := require.New(t)
	index := openTestIndex(t)

	want := indexedMessage(t, index, "ABC123", "alice", "the quarterly invoice is ready")
	indexedMessage(t, index, "ABC123", "bob", "lunch at noon")

	hits, total, err := index.Search(context.Background(), NewQuery("invoice"))
	req.NoError(err)
	req.Equal(uint64(1), total)
	req.Len(hits, 1)
	req.Equal(want.ID, hits[0].MessageID)
	req.Equal(want.Content, hits[0].Content)
	req.Equal(domain.RoomCode("ABC123"), hits[0].Room)
	req.Equal("alice", hits[0].SenderID)
}

func TestSearch_RoomFilter(t *testing.T) {
	req := require.New(t)
	index := openTestIndex(t)

	indexedMessage(t, index, "ABC123", "alice", "invoice here")
	indexedMessage(t, index, "XYZ789", "alice", "invoice there")

	hits, total, err := index.Search(context.Background(), NewQuery("invoice --room abc123"))
	req.NoError(err)
	req.Equal(uint64(1), total)
	req.Len(hits, 1)
	req.Equal(domain.RoomCode("ABC123"), hits[0].Room)
}

func TestSearch_SenderFilter(t *testing.T) {
	req := require.New(t)
	index := openTestIndex(t)

	indexedMessage(t, index, "ABC123", "alice", "invoice from alice")
	indexedMessage(t, index, "ABC123", "bob", "invoice from bob")

	hits, _, err := index.Search(context.Background(), NewQuery("invoice --from bob"))
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal("bob", hits[0].SenderID)
}

func TestSearch_LimitCapsResults(t *testing.T) {
	req := require.New(t)
	index := openTestIndex(t)

	for i := 0; i < 5; i++ {
		indexedMessage(t, index, "ABC123", "alice", "invoice again")
	}

	hits, total, err := index.Search(context.Background(), NewQuery("invoice --limit 2"))
	req.NoError(err)
	req.Len(hits, 2)
	// Total still reflects every match, not just the returned page.
	req.Equal(uint64(5), total)
}

func TestSearch_ReindexSameID(t *testing.T) {
	req := require.New(t)
	index := openTestIndex(t)

	msg := indexedMessage(t, index, "ABC123", "alice", "draft wording")
	msg.Content = "final wording"
	req.NoError(index.IndexMessage(msg))

	hits, _, err := index.Search(context.Background(), NewQuery("wording"))
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal("final wording", hits[0].Content)
}

func TestNewQuery_ParsesFlags(t *testing.T) {
	req := require.New(t)

	query := NewQuery("/find invoice due --room abc123 --from alice --limit 20")
	req.Equal("invoice due", query.Terms)
	req.Equal(domain.RoomCode("ABC123"), query.Room)
	req.Equal("alice", query.Sender)
	req.Equal(20, query.Limit)
}

func TestNewQuery_Defaults(t *testing.T) {
	req := require.New(t)

	query := NewQuery("hello world")
	req.Equal("hello world", query.Terms)
	req.Empty(query.Room)
	req.Empty(query.Sender)
	req.Equal(defaultLimit, query.Limit)

	// A bogus limit falls back to the default.
	query = NewQuery("hello --limit zero")
	req.Equal(defaultLimit, query.Limit)
}
