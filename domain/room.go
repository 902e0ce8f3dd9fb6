// Package domain contains core concepts of the chat relay.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

// RoomCode is the short shareable identifier users type to enter a room.
// It is the key for both persisted rooms and in-memory membership.
type RoomCode string

// Room is the persisted room record. The Participants list is the
// authorization source of truth for joining the live relay.
type Room struct {
	ID              string
	Code            RoomCode
	Name            string
	CreatorID       string
	Participants    []string
	MaxParticipants int
	CreatedAt       time.Time
	LastActivity    time.Time
}

// HasParticipant reports whether the user appears in the persisted participant list.
func (r Room) HasParticipant(userID string) bool {
	for _, p := range r.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// IsFull reports whether the room reached its participant capacity.
func (r Room) IsFull() bool {
	return r.MaxParticipants > 0 && len(r.Participants) >= r.MaxParticipants
}
