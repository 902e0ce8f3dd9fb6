//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"chat-relay/domain"
)

type IMessageRepository interface {
	StoreMessage(message DiskMessage) error
	Recent(room domain.RoomCode, limit int) ([]DiskMessage, error)
	GetMessages(room domain.RoomCode, cursor *string) ([]DiskMessage, *string, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// DiskMessage is the storage-level representation of a message.
type DiskMessage struct {
	ID         uuid.UUID `json:"id"`
	Room       string    `json:"room"`
	Author     string    `json:"author"`
	AuthorName string    `json:"author_name"`
	Content    string    `json:"content"`
	At         time.Time `json:"at"`
}

// StoreMessage persists a message in BadgerDB.
// The key is formatted as "msg:{room_code}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two messages
//     arrive at the same nanosecond.
func (m MessageRepository) StoreMessage(message DiskMessage) error {
	key := fmt.Sprintf("msg:%s:%019d:%s",
		message.Room,
		message.At.UnixNano(),
		message.ID,
	)
	bytes, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// Recent returns up to limit messages of a room, most recent first.
// It backs the backlog handed to a joining connection.
func (m MessageRepository) Recent(room domain.RoomCode, limit int) ([]DiskMessage, error) {
	messages, _, err := m.scan(room, nil, &limit)
	return messages, err
}

// GetMessages retrieves one page of messages for a room using a prefix scan.
// Thanks to the padded timestamp in the key, messages are naturally sorted by time.
// It stops collecting messages once the configured limitMessages is reached and
// returns an opaque cursor for the next page.
func (m MessageRepository) GetMessages(room domain.RoomCode, cursor *string) ([]DiskMessage, *string, error) {
	return m.scan(room, cursor, m.limitMessages)
}

func (m MessageRepository) scan(room domain.RoomCode, cursor *string, limit *int) ([]DiskMessage, *string, error) {
	var rawMessages [][]byte
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:%s:", room)
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible key for this room,
			// then walk backwards through its messages.
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if limit != nil && len(rawMessages) == *limit {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *limit))
				break
			}
			item := it.Item()
			// Memorize cursor part of the actual key
			lastKey = string(item.Key()[prefixLen:])
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			rawMessages = append(rawMessages, value)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var diskMessages []DiskMessage
	for _, b := range rawMessages {
		var message DiskMessage
		if err = json.Unmarshal(b, &message); err != nil {
			return nil, nil, err
		}
		diskMessages = append(diskMessages, message)
	}
	return diskMessages, &lastKey, nil
}

// ToMessage converts the storage representation back to the domain entity.
func ToMessage(dm DiskMessage) domain.Message {
	return domain.Message{
		ID:         dm.ID,
		Room:       domain.RoomCode(dm.Room),
		SenderID:   dm.Author,
		SenderName: dm.AuthorName,
		Content:    dm.Content,
		CreatedAt:  dm.At.UTC(),
	}
}

// FromMessage converts a domain message to its storage representation.
func FromMessage(msg domain.Message) DiskMessage {
	return DiskMessage{
		ID:         msg.ID,
		Room:       string(msg.Room),
		Author:     msg.SenderID,
		AuthorName: msg.SenderName,
		Content:    msg.Content,
		At:         msg.CreatedAt,
	}
}
