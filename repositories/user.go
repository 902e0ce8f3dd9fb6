//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"chat-relay/domain"
	"chat-relay/errors"
)

type IUserRepository interface {
	CreateUser(email, username, hashedPassword string) (string, error)
	GetUserByEmail(email string) (domain.User, error)
	GetUserByID(id string) (domain.User, error)
	SetOnline(id string, online bool) error
}

// UserRepository persists accounts in BadgerDB. The primary record lives
// under "user:{email}"; "uid:{id}" indexes it for handshake lookups.
type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) UserRepository {
	return UserRepository{db: db}
}

type diskUser struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Roles        []string  `json:"roles"`
	IsOnline     bool      `json:"is_online"`
	LastSeen     time.Time `json:"last_seen"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateUser persists the user and returns the newly generated user ID.
// The password is expected to be hashed already; plain passwords never
// reach this layer.
func (u UserRepository) CreateUser(email, username, hashedPassword string) (string, error) {
	user := diskUser{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: hashedPassword,
		Roles:        []string{"user"},
		CreatedAt:    time.Now().UTC(),
	}

	data, err := json.Marshal(user)
	if err != nil {
		return "", fmt.Errorf("marshal failed: %w", err)
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		key := userKey(email)
		if _, err = txn.Get(key); err == nil {
			return errors.ErrUserAlreadyExists
		}
		if err = txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(uidKey(user.ID), []byte(email))
	})

	return user.ID, err
}

// GetUserByEmail retrieves a user by its login identifier.
func (u UserRepository) GetUserByEmail(email string) (domain.User, error) {
	var user diskUser
	err := u.db.View(func(txn *badger.Txn) error {
		return readUser(txn, email, &user)
	})
	if err == badger.ErrKeyNotFound {
		return domain.User{}, errors.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return toUser(user), nil
}

// GetUserByID resolves the id index first, then loads the primary record.
func (u UserRepository) GetUserByID(id string) (domain.User, error) {
	var user diskUser
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(uidKey(id))
		if err != nil {
			return err
		}
		var email string
		if err = item.Value(func(val []byte) error {
			email = string(val)
			return nil
		}); err != nil {
			return err
		}
		return readUser(txn, email, &user)
	})
	if err == badger.ErrKeyNotFound {
		return domain.User{}, errors.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return toUser(user), nil
}

// SetOnline flips the persisted presence flag and stamps LastSeen when
// the user goes offline. Used by login/logout, not by transient drops.
func (u UserRepository) SetOnline(id string, online bool) error {
	return u.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(uidKey(id))
		if err != nil {
			return err
		}
		var email string
		if err = item.Value(func(val []byte) error {
			email = string(val)
			return nil
		}); err != nil {
			return err
		}
		var user diskUser
		if err = readUser(txn, email, &user); err != nil {
			return err
		}
		user.IsOnline = online
		if !online {
			user.LastSeen = time.Now().UTC()
		}
		data, err := json.Marshal(user)
		if err != nil {
			return err
		}
		return txn.Set(userKey(email), data)
	})
}

func readUser(txn *badger.Txn, email string, user *diskUser) error {
	item, err := txn.Get(userKey(email))
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, user)
	})
}

func userKey(email string) []byte {
	return []byte("user:" + email)
}

func uidKey(id string) []byte {
	return []byte("uid:" + id)
}

func toUser(user diskUser) domain.User {
	return domain.User{
		ID:           user.ID,
		Email:        user.Email,
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		Roles:        user.Roles,
		IsOnline:     user.IsOnline,
		LastSeen:     user.LastSeen,
		CreatedAt:    user.CreatedAt,
	}
}
