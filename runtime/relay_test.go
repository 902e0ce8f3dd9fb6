package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/observability"
	"chat-relay/repositories"
)

// testConn is an in-memory Conn recording everything delivered to it.
type testConn struct {
	id       string
	userID   string
	username string

	mu      sync.Mutex
	events  []event.ChatEvent
	failing bool
	closed  bool
}

func newTestConn(userID, username string) *testConn {
	return &testConn{id: uuid.NewString(), userID: userID, username: username}
}

func (c *testConn) ID() string       { return c.id }
func (c *testConn) UserID() string   { return c.userID }
func (c *testConn) Username() string { return c.username }

func (c *testConn) Consume(_ context.Context, e event.ChatEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return fmt.Errorf("sink failure")
	}
	c.events = append(c.events, e)
	return nil
}

func (c *testConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *testConn) Events() []event.ChatEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]event.ChatEvent, len(c.events))
	copy(out, c.events)
	return out
}

func (c *testConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type relayFixture struct {
	relay    *Relay
	sessions *SessionStore
	registry *Registry
	rooms    *mocks.MockIRoomRepository
	messages *mocks.MockIMessageRepository
}

func newRelayFixture(t *testing.T) relayFixture {
	ctrl := gomock.NewController(t)
	rooms := mocks.NewMockIRoomRepository(ctrl)
	messages := mocks.NewMockIMessageRepository(ctrl)
	sessions := NewSessionStore()
	registry := NewRegistry()
	relay := NewRelay(
		slog.Default(), sessions, registry,
		rooms, messages,
		nil, observability.NewMonitor(slog.Default()),
		1000, 50, 64,
	)
	return relayFixture{relay: relay, sessions: sessions, registry: registry, rooms: rooms, messages: messages}
}

func testRoom(code domain.RoomCode, participants ...string) domain.Room {
	return domain.Room{
		ID:              uuid.NewString(),
		Code:            code,
		Name:            "general",
		CreatorID:       participants[0],
		Participants:    participants,
		MaxParticipants: 2,
		CreatedAt:       time.Now().UTC(),
	}
}

// join connects a conn and joins it to the room, failing the test on error.
func (f relayFixture) join(t *testing.T, conn *testConn, code domain.RoomCode) {
	t.Helper()
	f.relay.Connect(conn)
	_, err := f.relay.Join(context.Background(), conn, code)
	require.NoError(t, err)
}

func TestRelay_Join_ReturnsMembersAndBacklog(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)

	room := testRoom("ABC123", "alice", "bob")
	backlog := []repositories.DiskMessage{
		{ID: uuid.New(), Room: "ABC123", Author: "bob", AuthorName: "Bob", Content: "hello", At: time.Now().UTC()},
	}
	f.rooms.EXPECT().FindByCode(domain.RoomCode("ABC123")).Return(room, nil)
	f.messages.EXPECT().Recent(domain.RoomCode("ABC123"), 50).Return(backlog, nil)

	alice := newTestConn("alice", "Alice")
	f.relay.Connect(alice)

	result, err := f.relay.Join(context.Background(), alice, "ABC123")
	req.NoError(err)
	req.Equal(room.Code, result.Room.Code)
	req.Equal([]string{"alice"}, result.Members)
	req.Len(result.Backlog, 1)
	req.Equal("hello", result.Backlog[0].Content)
}

func TestRelay_Join_RejectsNonParticipant(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)

	f.rooms.EXPECT().FindByCode(domain.RoomCode("ABC123")).Return(testRoom("ABC123", "alice"), nil)

	mallory := newTestConn("mallory", "Mallory")
	f.relay.Connect(mallory)

	_, err := f.relay.Join(context.Background(), mallory, "ABC123")
	req.ErrorIs(err, errors.ErrNotParticipant)
	req.Empty(f.registry.Members("ABC123"))
}

func TestRelay_Join_UnknownRoom(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)

	f.rooms.EXPECT().FindByCode(domain.RoomCode("NOPE99")).Return(domain.Room{}, errors.ErrRoomNotFound)

	alice := newTestConn("alice", "Alice")
	f.relay.Connect(alice)

	_, err := f.relay.Join(context.Background(), alice, "NOPE99")
	req.ErrorIs(err, errors.ErrRoomNotFound)
}

func TestRelay_Join_NotifiesExistingMembers(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)

	room := testRoom("ABC123", "alice", "bob")
	f.rooms.EXPECT().FindByCode(domain.RoomCode("ABC123")).Return(room, nil).Times(2)
	f.messages.EXPECT().Recent(domain.RoomCode("ABC123"), 50).Return(nil, nil).Times(2)

	alice := newTestConn("alice", "Alice")
	bob := newTestConn("bob", "Bob")
	f.join(t, alice, "ABC123")
	f.join(t, bob, "ABC123")

	events := alice.Events()
	req.Len(events, 1)
	joined, ok := events[0].(event.MemberJoined)
	req.True(ok)
	req.Equal("bob", joined.UserID)

	// The joiner gets the snapshot in the result, not a notification.
	req.Empty(bob.Events())
}

func TestRelay_Join_Idempotent(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)

	room := testRoom("ABC123", "alice", "bob")
	f.rooms.EXPECT().FindByCode(domain.RoomCode("ABC123")).Return(room, nil).Times(3)
	f.messages.EXPECT().Recent(domain.RoomCode("ABC123"), 50).Return(nil, nil).Times(3)

	alice := newTestConn("alice", "Alice")
	bob := newTestConn("bob", "Bob")
	f.join(t, alice, "ABC123")
	f.join(t, bob, "ABC123")

	// Re-joining must not duplicate membership or re-notify.
	_, err := f.relay.Join(context.Background(), bob, "ABC123")
	req.NoError(err)
	req.ElementsMatch([]string{"alice", "bob"}, f.registry.Members("ABC123"))
	req.Len(alice.Events(), 1)
}

func TestRelay_Join_BacklogFailure(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)

	room := testRoom("ABC123", "alice")
	f.rooms.EXPECT().FindByCode(domain.RoomCode("ABC123")).Return(room, nil)
	f.messages.EXPECT().Recent(domain.RoomCode("ABC123"), 50).Return(nil, fmt.Errorf("disk on fire"))

	alice := newTestConn("alice", "Alice")
	f.relay.Connect(alice)

	_, err := f.relay.Join(context.Background(), alice, "ABC123")
	req.ErrorIs(err, errors.ErrPersistence)

	// A failed join must not leave a half-member behind.
	req.Empty(f.registry.Members("ABC123"))
	_, bound := f.registry.BindingOf(alice.ID())
	req.False(bound)
}

func TestRelay_Send_PersistsThenBroadcasts(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)

	room := testRoom("ABC123", "alice", "bob")
	f.rooms.EXPECT().FindByCode(domain.RoomCode("ABC123")).Return(room, nil).Times(2)
	f.messages.EXPECT().Recent(domain.RoomCode("ABC123"), 50).Return(nil, nil).Times(2)

	alice := newTestConn("alice", "Alice")
	bob := newTestConn("bob", "Bob")
	f.join(t, alice, "ABC123")
	f.join(t, bob, "ABC123")

	var stored repositories.DiskMessage
	f.messages.EXPECT().StoreMessage(gomock.Any()).DoAndReturn(func(dm repositories.DiskMessage) error {
		stored = dm
		return nil
	})

	result, err := f.relay.Send(context.Background(), alice, "hello bob")
	req.NoError(err)
	req.Equal(stored.ID, result.MessageID)
	req.Equal("hello bob", stored.Content)
	req.Equal("alice", stored.Author)

	// Sender included in the broadcast.
	for _, conn := range []*testConn{alice, bob} {
		events := conn.Events()
		var got event.MessageReceived
		for _, e := range events {
			if msg, ok := e.(event.MessageReceived); ok {
				got = msg
			}
		}
		req.Equal(result.MessageID, got.ID, "missing broadcast for %s", conn.UserID())
		req.Equal("hello bob", got.Content)
	}
}

func TestRelay_Send_ContentTooLong(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)

	alice := newTestConn("alice", "Alice")
	f.relay.Connect(alice)

	long := make([]rune, 1001)
	for i := range long {
		long[i] = 'é' // rune count matters, not byte length
	}
	_, err := f.relay.Send(context.Background(), alice, string(long))
	req.ErrorIs(err, errors.ErrContentTooLong)
}

func TestRelay_Send_NotInRoom(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)

	alice := newTestConn("alice", "Alice")
	f.relay.Connect(alice)

	_, err := f.relay.Send(context.Background(), alice, "hello?")
	req.ErrorIs(err, errors.ErrNotInRoom)
}

func TestRelay_Send_PersistenceFailureSuppressesBroadcast(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)

	room := testRoom("ABC123", "alice", "bob")
	f.rooms.EXPECT().FindByCode(domain.RoomCode("ABC123")).Return(room, nil).Times(2)
	f.messages.EXPECT().Recent(domain.RoomCode("ABC123"), 50).Return(nil, nil).Times(2)

	alice := newTestConn("alice", "Alice")
	bob := newTestConn("bob", "Bob")
	f.join(t, alice, "ABC123")
	f.join(t, bob, "ABC123")

	f.messages.EXPECT().StoreMessage(gomock.Any()).Return(fmt.Errorf("disk on fire"))

	_, err := f.relay.Send(context.Background(), alice, "will not arrive")
	req.ErrorIs(err, errors.ErrPersistence)

	for _, e := range bob.Events() {
		_, isMessage := e.(event.MessageReceived)
		req.False(isMessage, "no message may be broadcast when persistence fails")
	}
}

func TestRelay_Send_OrderingPerRoom(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)

	room := testRoom("ABC123", "alice", "bob")
	f.rooms.EXPECT().FindByCode(domain.RoomCode("ABC123")).Return(room, nil).Times(2)
	f.messages.EXPECT().Recent(domain.RoomCode("ABC123"), 50).Return(nil, nil).Times(2)
	f.messages.EXPECT().StoreMessage(gomock.Any()).Return(nil).AnyTimes()

	alice := newTestConn("alice", "Alice")
	bob := newTestConn("bob", "Bob")
	f.join(t, alice, "ABC123")
	f.join(t, bob, "ABC123")

	// Concurrent senders: everyone must still observe one total order.
	errs := make(chan error, 20)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sender := alice
			if n%2 == 1 {
				sender = bob
			}
			_, err := f.relay.Send(context.Background(), sender, fmt.Sprintf("msg-%d", n))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	extract := func(conn *testConn) []uuid.UUID {
		var ids []uuid.UUID
		for _, e := range conn.Events() {
			if msg, ok := e.(event.MessageReceived); ok {
				ids = append(ids, msg.ID)
			}
		}
		return ids
	}
	aliceOrder := extract(alice)
	bobOrder := extract(bob)
	req.Len(aliceOrder, 20)
	req.Equal(aliceOrder, bobOrder)
}

func TestRelay_Disconnect_EmitsLeftThenOffline(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)

	room := testRoom("ABC123", "alice", "bob")
	f.rooms.EXPECT().FindByCode(domain.RoomCode("ABC123")).Return(room, nil).Times(2)
	f.messages.EXPECT().Recent(domain.RoomCode("ABC123"), 50).Return(nil, nil).Times(2)

	alice := newTestConn("alice", "Alice")
	bob := newTestConn("bob", "Bob")
	f.join(t, alice, "ABC123")
	f.join(t, bob, "ABC123")

	f.relay.Disconnect(bob)

	events := alice.Events()
	req.Len(events, 3) // memberJoined, memberLeft, presenceChanged
	left, ok := events[1].(event.MemberLeft)
	req.True(ok)
	req.Equal("bob", left.UserID)
	presence, ok := events[2].(event.PresenceChanged)
	req.True(ok)
	req.Equal("bob", presence.UserID)
	req.False(presence.Online)

	req.Equal([]string{"alice"}, f.registry.Members("ABC123"))
}

func TestRelay_Disconnect_Idempotent(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)

	room := testRoom("ABC123", "alice", "bob")
	f.rooms.EXPECT().FindByCode(domain.RoomCode("ABC123")).Return(room, nil).Times(2)
	f.messages.EXPECT().Recent(domain.RoomCode("ABC123"), 50).Return(nil, nil).Times(2)

	alice := newTestConn("alice", "Alice")
	bob := newTestConn("bob", "Bob")
	f.join(t, alice, "ABC123")
	f.join(t, bob, "ABC123")

	f.relay.Disconnect(bob)
	f.relay.Disconnect(bob)

	req.Len(alice.Events(), 3)
	req.Equal(1, f.sessions.Len())
}

func TestRelay_Connect_SupersedesPriorSession(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)

	room := testRoom("ABC123", "alice", "bob")
	f.rooms.EXPECT().FindByCode(domain.RoomCode("ABC123")).Return(room, nil).Times(2)
	f.messages.EXPECT().Recent(domain.RoomCode("ABC123"), 50).Return(nil, nil).Times(2)

	alice := newTestConn("alice", "Alice")
	bobOld := newTestConn("bob", "Bob")
	f.join(t, alice, "ABC123")
	f.join(t, bobOld, "ABC123")

	bobNew := newTestConn("bob", "Bob")
	f.relay.Connect(bobNew)

	// The old transport is closed and detached from the room.
	req.True(bobOld.Closed())
	req.Equal([]string{"alice"}, f.registry.Members("ABC123"))

	// A supersede is not a real departure: no offline presence is emitted.
	for _, e := range alice.Events() {
		if presence, ok := e.(event.PresenceChanged); ok {
			req.True(presence.Online, "supersede must not emit an offline presence")
		}
	}

	// A late cleanup from the dead connection must not evict the new session.
	f.relay.Disconnect(bobOld)
	current, ok := f.sessions.Get("bob")
	req.True(ok)
	req.Equal(bobNew.ID(), current.ID())
}

func TestRelay_Leave_ReleasesPersistedSeat(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)

	room := testRoom("ABC123", "alice", "bob")
	f.rooms.EXPECT().FindByCode(domain.RoomCode("ABC123")).Return(room, nil).Times(2)
	f.messages.EXPECT().Recent(domain.RoomCode("ABC123"), 50).Return(nil, nil).Times(2)

	alice := newTestConn("alice", "Alice")
	bob := newTestConn("bob", "Bob")
	f.join(t, alice, "ABC123")
	f.join(t, bob, "ABC123")

	f.rooms.EXPECT().RemoveParticipant(domain.RoomCode("ABC123"), "bob").Return(room, nil)

	f.relay.Leave(bob)
	req.Equal([]string{"alice"}, f.registry.Members("ABC123"))

	// Session survives an explicit leave; only the room membership goes.
	_, ok := f.sessions.Get("bob")
	req.True(ok)
}

func TestRelay_Typing_RelayedToOthersOnly(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)

	room := testRoom("ABC123", "alice", "bob")
	f.rooms.EXPECT().FindByCode(domain.RoomCode("ABC123")).Return(room, nil).Times(2)
	f.messages.EXPECT().Recent(domain.RoomCode("ABC123"), 50).Return(nil, nil).Times(2)

	alice := newTestConn("alice", "Alice")
	bob := newTestConn("bob", "Bob")
	f.join(t, alice, "ABC123")
	f.join(t, bob, "ABC123")

	f.relay.Typing(bob, true)

	var typed bool
	for _, e := range alice.Events() {
		if typing, ok := e.(event.MemberTyping); ok {
			typed = true
			req.Equal("bob", typing.UserID)
			req.True(typing.IsTyping)
		}
	}
	req.True(typed)

	for _, e := range bob.Events() {
		_, isTyping := e.(event.MemberTyping)
		req.False(isTyping, "typing must not echo back to the sender")
	}
}

func TestRelay_DeliveryFailureDoesNotBlockOthers(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)

	room := testRoom("ABC123", "alice", "bob")
	f.rooms.EXPECT().FindByCode(domain.RoomCode("ABC123")).Return(room, nil).Times(2)
	f.messages.EXPECT().Recent(domain.RoomCode("ABC123"), 50).Return(nil, nil).Times(2)
	f.messages.EXPECT().StoreMessage(gomock.Any()).Return(nil)

	alice := newTestConn("alice", "Alice")
	bob := newTestConn("bob", "Bob")
	f.join(t, alice, "ABC123")
	f.join(t, bob, "ABC123")

	bob.mu.Lock()
	bob.failing = true
	bob.mu.Unlock()

	result, err := f.relay.Send(context.Background(), alice, "still delivered to alice")
	req.NoError(err)

	var got bool
	for _, e := range alice.Events() {
		if msg, ok := e.(event.MessageReceived); ok && msg.ID == result.MessageID {
			got = true
		}
	}
	req.True(got)
}

func TestRelay_EmptyRoomDropsLiveEntry(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)

	room := testRoom("ABC123", "alice")
	f.rooms.EXPECT().FindByCode(domain.RoomCode("ABC123")).Return(room, nil)
	f.messages.EXPECT().Recent(domain.RoomCode("ABC123"), 50).Return(nil, nil)

	alice := newTestConn("alice", "Alice")
	f.join(t, alice, "ABC123")
	req.Equal(1, f.registry.Len())

	f.relay.Disconnect(alice)
	req.Equal(0, f.registry.Len())
}
