package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionStore_RegisterReturnsSuperseded(t *testing.T) {
	req := require.New(t)
	store := NewSessionStore()

	first := newTestConn("alice", "Alice")
	req.Nil(store.Register(first))

	second := newTestConn("alice", "Alice")
	prior := store.Register(second)
	req.NotNil(prior)
	req.Equal(first.ID(), prior.ID())

	current, ok := store.Get("alice")
	req.True(ok)
	req.Equal(second.ID(), current.ID())
}

func TestSessionStore_RegisterSameConnIsNoop(t *testing.T) {
	req := require.New(t)
	store := NewSessionStore()

	conn := newTestConn("alice", "Alice")
	req.Nil(store.Register(conn))
	req.Nil(store.Register(conn))
	req.Equal(1, store.Len())
}

func TestSessionStore_RemoveGuardsAgainstSupersede(t *testing.T) {
	req := require.New(t)
	store := NewSessionStore()

	old := newTestConn("alice", "Alice")
	store.Register(old)
	fresh := newTestConn("alice", "Alice")
	store.Register(fresh)

	// The dead connection's cleanup must not evict the new session.
	req.False(store.Remove(old))
	req.True(store.IsCurrent(fresh))

	req.True(store.Remove(fresh))
	req.Equal(0, store.Len())
}

func TestSessionStore_RemoveUnknownUser(t *testing.T) {
	store := NewSessionStore()
	require.False(t, store.Remove(newTestConn("ghost", "Ghost")))
}
