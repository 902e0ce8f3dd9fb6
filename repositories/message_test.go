package repositories

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"chat-relay/domain"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func diskMessage(room, author, content string, at time.Time) DiskMessage {
	return DiskMessage{
		ID:         uuid.New(),
		Room:       room,
		Author:     author,
		AuthorName: author,
		Content:    content,
		At:         at,
	}
}

func Test_Record_Multiple_Messages(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	room := "ABC123"
	// Truncate strips the monotonic clock so round-tripped values compare equal.
	at := time.Now().UTC().Truncate(time.Millisecond)
	stored := []DiskMessage{
		diskMessage(room, "alice", "first", at),
		diskMessage(room, "bob", "second", at.Add(1*time.Minute)),
		diskMessage(room, "clara", "third", at.Add(2*time.Minute)),
	}
	for _, dm := range stored {
		req.NoError(repository.StoreMessage(dm))
	}

	fetched, _, err := repository.GetMessages(domain.RoomCode(room), nil)
	req.NoError(err)
	req.Len(fetched, len(stored))

	// Most recent first.
	req.Equal(stored[2], fetched[0])
	req.Equal(stored[1], fetched[1])
	req.Equal(stored[0], fetched[2])
}

func Test_Messages_Isolated_By_Room(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	at := time.Now().UTC().Truncate(time.Millisecond)
	req.NoError(repository.StoreMessage(diskMessage("AAA111", "alice", "here", at)))
	req.NoError(repository.StoreMessage(diskMessage("BBB222", "bob", "there", at)))

	fetched, _, err := repository.GetMessages("AAA111", nil)
	req.NoError(err)
	req.Len(fetched, 1)
	req.Equal("here", fetched[0].Content)
}

func Test_Recent_Honors_Limit(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	room := "ABC123"
	at := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 10; i++ {
		dm := diskMessage(room, "alice", fmt.Sprintf("msg-%d", i), at.Add(time.Duration(i)*time.Second))
		req.NoError(repository.StoreMessage(dm))
	}

	recent, err := repository.Recent(domain.RoomCode(room), 3)
	req.NoError(err)
	req.Len(recent, 3)
	req.Equal("msg-9", recent[0].Content)
	req.Equal("msg-7", recent[2].Content)
}

func Test_GetMessages_Pagination(t *testing.T) {
	req := require.New(t)
	limit := 4
	repository := NewMessageRepository(openTestDB(t), slog.Default(), &limit)

	room := "ABC123"
	at := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 10; i++ {
		dm := diskMessage(room, "alice", fmt.Sprintf("msg-%d", i), at.Add(time.Duration(i)*time.Second))
		req.NoError(repository.StoreMessage(dm))
	}

	var all []DiskMessage
	var cursor *string
	for {
		page, next, err := repository.GetMessages(domain.RoomCode(room), cursor)
		req.NoError(err)
		if len(page) == 0 {
			break
		}
		req.LessOrEqual(len(page), limit)
		all = append(all, page...)
		cursor = next
	}

	req.Len(all, 10)
	for i, dm := range all {
		req.Equal(fmt.Sprintf("msg-%d", 9-i), dm.Content, "pages must walk newest to oldest without gaps")
	}
}

func Test_GetMessages_Empty_Room(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	fetched, _, err := repository.GetMessages("NOPE99", nil)
	req.NoError(err)
	req.Empty(fetched)
}

func Test_Message_Conversion_Round_Trip(t *testing.T) {
	req := require.New(t)

	msg := domain.Message{
		ID:         uuid.New(),
		Room:       "ABC123",
		SenderID:   "alice",
		SenderName: "Alice",
		Content:    "hello",
		CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
	req.Equal(msg, ToMessage(FromMessage(msg)))
}
