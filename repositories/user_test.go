package repositories

import (
	"testing"

	"github.com/stretchr/testify/require"

	"chat-relay/errors"
)

func Test_CreateUser_And_Lookup(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openTestDB(t))

	id, err := repository.CreateUser("alice@example.com", "alice", "$argon2id$hash")
	req.NoError(err)
	req.NotEmpty(id)

	byEmail, err := repository.GetUserByEmail("alice@example.com")
	req.NoError(err)
	req.Equal(id, byEmail.ID)
	req.Equal("alice", byEmail.Username)
	req.Equal([]string{"user"}, byEmail.Roles)
	req.False(byEmail.IsOnline)

	byID, err := repository.GetUserByID(id)
	req.NoError(err)
	req.Equal(byEmail, byID)
}

func Test_CreateUser_DuplicateEmail(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openTestDB(t))

	_, err := repository.CreateUser("alice@example.com", "alice", "hash1")
	req.NoError(err)

	_, err = repository.CreateUser("alice@example.com", "other", "hash2")
	req.ErrorIs(err, errors.ErrUserAlreadyExists)

	// The original record is untouched.
	user, err := repository.GetUserByEmail("alice@example.com")
	req.NoError(err)
	req.Equal("alice", user.Username)
}

func Test_GetUser_Unknown(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openTestDB(t))

	_, err := repository.GetUserByEmail("ghost@example.com")
	req.ErrorIs(err, errors.ErrUserNotFound)

	_, err = repository.GetUserByID("no-such-id")
	req.ErrorIs(err, errors.ErrUserNotFound)
}

func Test_SetOnline_StampsLastSeenOnLogout(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openTestDB(t))

	id, err := repository.CreateUser("alice@example.com", "alice", "hash")
	req.NoError(err)

	req.NoError(repository.SetOnline(id, true))
	user, err := repository.GetUserByID(id)
	req.NoError(err)
	req.True(user.IsOnline)
	req.True(user.LastSeen.IsZero())

	req.NoError(repository.SetOnline(id, false))
	user, err = repository.GetUserByID(id)
	req.NoError(err)
	req.False(user.IsOnline)
	req.False(user.LastSeen.IsZero())
}
