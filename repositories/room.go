//go:generate go run go.uber.org/mock/mockgen -source=room.go -destination=../mocks/mock_room_repository.go -package=mocks
package repositories

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"chat-relay/domain"
	"chat-relay/errors"
)

// Room codes avoid ambiguous characters (0/O, 1/I) so they survive being
// read out loud or typed from a phone screen.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

type IRoomRepository interface {
	Create(creatorID, name string) (domain.Room, error)
	FindByCode(code domain.RoomCode) (domain.Room, error)
	AddParticipant(code domain.RoomCode, userID string) (domain.Room, error)
	RemoveParticipant(code domain.RoomCode, userID string) (domain.Room, error)
}

// RoomRepository persists rooms in BadgerDB under "room:{CODE}" keys.
// The participant list it stores is the authorization source of truth
// for joining the live relay.
type RoomRepository struct {
	db              *badger.DB
	codeLength      int
	maxParticipants int
}

func NewRoomRepository(db *badger.DB, codeLength, maxParticipants int) RoomRepository {
	return RoomRepository{db: db, codeLength: codeLength, maxParticipants: maxParticipants}
}

type diskRoom struct {
	ID              string    `json:"id"`
	Code            string    `json:"code"`
	Name            string    `json:"name"`
	CreatorID       string    `json:"creator_id"`
	Participants    []string  `json:"participants"`
	MaxParticipants int       `json:"max_participants"`
	CreatedAt       time.Time `json:"created_at"`
	LastActivity    time.Time `json:"last_activity"`
}

// Create persists a new room under a freshly generated unique code.
// The creator is recorded as the first participant.
func (r RoomRepository) Create(creatorID, name string) (domain.Room, error) {
	now := time.Now().UTC()
	room := diskRoom{
		ID:              uuid.NewString(),
		Name:            name,
		CreatorID:       creatorID,
		Participants:    []string{creatorID},
		MaxParticipants: r.maxParticipants,
		CreatedAt:       now,
		LastActivity:    now,
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		// Regenerate on the rare collision instead of failing the request.
		for {
			code, err := r.generateCode()
			if err != nil {
				return err
			}
			if _, err = txn.Get(roomKey(code)); err == nil {
				continue
			}
			room.Code = code
			break
		}
		data, err := json.Marshal(room)
		if err != nil {
			return err
		}
		return txn.Set(roomKey(room.Code), data)
	})
	if err != nil {
		return domain.Room{}, err
	}
	return toRoom(room), nil
}

// FindByCode retrieves a persisted room, or ErrRoomNotFound.
func (r RoomRepository) FindByCode(code domain.RoomCode) (domain.Room, error) {
	var room diskRoom
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roomKey(string(code)))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &room)
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.Room{}, errors.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, err
	}
	return toRoom(room), nil
}

// AddParticipant appends a user to the persisted participant list.
// Already-present is not an error; a full room is.
func (r RoomRepository) AddParticipant(code domain.RoomCode, userID string) (domain.Room, error) {
	return r.mutate(code, func(room *diskRoom) error {
		for _, p := range room.Participants {
			if p == userID {
				return nil
			}
		}
		if room.MaxParticipants > 0 && len(room.Participants) >= room.MaxParticipants {
			return errors.ErrRoomFull
		}
		room.Participants = append(room.Participants, userID)
		return nil
	})
}

// RemoveParticipant drops a user from the persisted list. This is the
// explicit-leave path only; transient disconnects never reach it.
func (r RoomRepository) RemoveParticipant(code domain.RoomCode, userID string) (domain.Room, error) {
	return r.mutate(code, func(room *diskRoom) error {
		kept := room.Participants[:0]
		for _, p := range room.Participants {
			if p != userID {
				kept = append(kept, p)
			}
		}
		room.Participants = kept
		return nil
	})
}

// mutate applies fn to the stored room inside a single read-modify-write
// transaction and refreshes LastActivity.
func (r RoomRepository) mutate(code domain.RoomCode, fn func(room *diskRoom) error) (domain.Room, error) {
	var room diskRoom
	err := r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(roomKey(string(code)))
		if err != nil {
			return err
		}
		if err = item.Value(func(val []byte) error {
			return json.Unmarshal(val, &room)
		}); err != nil {
			return err
		}
		if err = fn(&room); err != nil {
			return err
		}
		room.LastActivity = time.Now().UTC()
		data, err := json.Marshal(room)
		if err != nil {
			return err
		}
		return txn.Set(roomKey(room.Code), data)
	})
	if err == badger.ErrKeyNotFound {
		return domain.Room{}, errors.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, err
	}
	return toRoom(room), nil
}

func (r RoomRepository) generateCode() (string, error) {
	code := make([]byte, r.codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}

func roomKey(code string) []byte {
	return []byte(fmt.Sprintf("room:%s", code))
}

func toRoom(room diskRoom) domain.Room {
	return domain.Room{
		ID:              room.ID,
		Code:            domain.RoomCode(room.Code),
		Name:            room.Name,
		CreatorID:       room.CreatorID,
		Participants:    room.Participants,
		MaxParticipants: room.MaxParticipants,
		CreatedAt:       room.CreatedAt,
		LastActivity:    room.LastActivity,
	}
}
