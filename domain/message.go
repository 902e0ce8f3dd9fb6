// Package domain contains core concepts of the chat relay.
// Messages are immutable once persisted; the relay never mutates them after creation.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents one persisted chat message.
// ID and CreatedAt are server-assigned before the durable write.
type Message struct {
	ID         uuid.UUID
	Room       RoomCode
	SenderID   string
	SenderName string
	Content    string
	CreatedAt  time.Time
}
