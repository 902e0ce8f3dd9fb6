// Package event defines the notifications the relay pushes to connected members.
package event

import (
	"time"

	"github.com/google/uuid"

	"chat-relay/domain"
)

// ChatEvent is anything the relay broadcasts to the members of a room.
type ChatEvent interface {
	RoomCode() domain.RoomCode
}

// MessageReceived mirrors the persisted message, including its
// server-assigned identifier and timestamp.
type MessageReceived struct {
	ID         uuid.UUID
	Room       domain.RoomCode
	SenderID   string
	SenderName string
	Content    string
	At         time.Time
}

func (e MessageReceived) RoomCode() domain.RoomCode { return e.Room }

type MemberJoined struct {
	Room     domain.RoomCode
	UserID   string
	Username string
}

func (e MemberJoined) RoomCode() domain.RoomCode { return e.Room }

type MemberLeft struct {
	Room     domain.RoomCode
	UserID   string
	Username string
}

func (e MemberLeft) RoomCode() domain.RoomCode { return e.Room }

// PresenceChanged is derived from session store mutations, never persisted.
type PresenceChanged struct {
	Room   domain.RoomCode
	UserID string
	Online bool
}

func (e PresenceChanged) RoomCode() domain.RoomCode { return e.Room }

// MemberTyping is fire-and-forget, no acknowledgement.
type MemberTyping struct {
	Room     domain.RoomCode
	UserID   string
	Username string
	IsTyping bool
}

func (e MemberTyping) RoomCode() domain.RoomCode { return e.Room }
