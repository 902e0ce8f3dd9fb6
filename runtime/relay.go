// Package runtime is the coordination core of the relay: sessions, room
// membership, presence, and message fan-out. One Relay owns all volatile
// state; everything else talks to it through the contract interfaces.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
)

// Ensure *Relay implements the contract at compile time.
var _ contract.IRelay = (*Relay)(nil)

type Relay struct {
	log       *slog.Logger
	sessions  *SessionStore
	registry  *Registry
	rooms     repositories.IRoomRepository
	messages  repositories.IMessageRepository
	moderator *moderation.Moderator
	monitor   *observability.Monitor

	maxMessageLength int
	backlogLimit     int

	// events feeds the auxiliary sinks (timeline, search index) through the
	// fanout worker. Delivery to room members never goes through here.
	events chan event.ChatEvent
}

func NewRelay(
	log *slog.Logger,
	sessions *SessionStore,
	registry *Registry,
	rooms repositories.IRoomRepository,
	messages repositories.IMessageRepository,
	moderator *moderation.Moderator,
	monitor *observability.Monitor,
	maxMessageLength, backlogLimit, bufferSize int,
) *Relay {
	return &Relay{
		log:              log,
		sessions:         sessions,
		registry:         registry,
		rooms:            rooms,
		messages:         messages,
		moderator:        moderator,
		monitor:          monitor,
		maxMessageLength: maxMessageLength,
		backlogLimit:     backlogLimit,
		events:           make(chan event.ChatEvent, bufferSize),
	}
}

// Events exposes the auxiliary event stream consumed by the fanout worker.
func (r *Relay) Events() chan event.ChatEvent {
	return r.events
}

// Registry exposes live membership, used by the idle sweeper and stats.
func (r *Relay) Registry() *Registry {
	return r.registry
}

// Connect installs the connection as its identity's session. Any prior
// connection for the same identity is detached from its room and its
// transport closed before the new one proceeds, so there is never a window
// with two live connections for one identity.
func (r *Relay) Connect(conn contract.Conn) {
	prior := r.sessions.Register(conn)
	if prior != nil {
		r.detach(context.Background(), prior, false)
		prior.Close()
		r.log.Info("Session superseded by reconnect", "user_id", conn.UserID())
	}
	r.presenceOnline(context.Background(), conn)
}

// Disconnect tears down whatever the connection still holds. Idempotent:
// network loss is expected and frequent, and cleanup may race a supersede,
// so both the session removal and the membership removal are guarded.
func (r *Relay) Disconnect(conn contract.Conn) {
	removed := r.sessions.Remove(conn)
	r.detach(context.Background(), conn, removed)
}

// Join validates the identity against the persisted participant list, adds
// it to the room's live member set, and returns the member snapshot plus a
// recent message backlog. Re-joining is idempotent.
func (r *Relay) Join(ctx context.Context, conn contract.Conn, code domain.RoomCode) (contract.JoinResult, error) {
	room, err := r.rooms.FindByCode(code)
	if err != nil {
		return contract.JoinResult{}, err
	}
	if !room.HasParticipant(conn.UserID()) {
		return contract.JoinResult{}, errors.ErrNotParticipant
	}

	// A connection belongs to one room at a time.
	if prior, bound := r.registry.BindingOf(conn.ID()); bound && prior != code {
		r.detach(ctx, conn, false)
	}

	st := r.registry.acquire(code)
	defer st.mu.Unlock()

	// A disconnect observed mid-join must not leave a member without a
	// session: abandon before mutating any state.
	if !r.sessions.IsCurrent(conn) {
		if len(st.members) == 0 {
			r.registry.dropLocked(code, st)
		}
		return contract.JoinResult{}, errors.ErrNotInRoom
	}

	_, already := st.members[conn.UserID()]
	st.members[conn.UserID()] = struct{}{}
	st.lastActivity = time.Now().UTC()
	r.registry.Bind(conn.ID(), code)

	backlog, err := r.messages.Recent(code, r.backlogLimit)
	if err != nil {
		if !already {
			delete(st.members, conn.UserID())
			r.registry.Unbind(conn.ID())
			if len(st.members) == 0 {
				r.registry.dropLocked(code, st)
			}
		}
		return contract.JoinResult{}, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}

	if !already {
		r.deliverLocked(ctx, st, event.MemberJoined{
			Room:     code,
			UserID:   conn.UserID(),
			Username: conn.Username(),
		}, conn.UserID())
	}

	return contract.JoinResult{
		Room:    room,
		Members: membersLocked(st),
		Backlog: lo.Map(backlog, func(dm repositories.DiskMessage, _ int) domain.Message {
			return repositories.ToMessage(dm)
		}),
	}, nil
}

// Leave removes the connection from its bound room and, unlike a transient
// disconnect, also releases the persisted participant seat.
func (r *Relay) Leave(conn contract.Conn) {
	code, bound := r.registry.BindingOf(conn.ID())
	if !bound {
		return
	}
	r.detach(context.Background(), conn, false)
	if _, err := r.rooms.RemoveParticipant(code, conn.UserID()); err != nil {
		r.log.Warn("Failed to release persisted participant",
			"room", code, "user_id", conn.UserID(), "err", err)
	}
}

// Send validates membership, persists the message, then broadcasts the
// persisted message to every connected member, sender included. The room
// lock is held across persist and broadcast, so within a room broadcast
// order equals persistence order.
func (r *Relay) Send(ctx context.Context, conn contract.Conn, content string) (contract.SendResult, error) {
	if utf8.RuneCountInString(content) > r.maxMessageLength {
		return contract.SendResult{}, errors.ErrContentTooLong
	}

	code, bound := r.registry.BindingOf(conn.ID())
	if !bound {
		return contract.SendResult{}, errors.ErrNotInRoom
	}
	st, ok := r.registry.acquireExisting(code)
	if !ok {
		return contract.SendResult{}, errors.ErrNotInRoom
	}
	defer st.mu.Unlock()
	if _, member := st.members[conn.UserID()]; !member {
		return contract.SendResult{}, errors.ErrNotInRoom
	}

	sanitized := content
	if r.moderator != nil {
		var censored []string
		sanitized, censored = r.moderator.Censor(content)
		if len(censored) > 0 {
			info := whatlanggo.Detect(content)
			r.log.Warn("Censored message content",
				"user_id", conn.UserID(),
				"room", code,
				"words", len(censored),
				"lang", info.Lang.Iso6391())
		}
	}

	msg := domain.Message{
		ID:         uuid.New(),
		Room:       code,
		SenderID:   conn.UserID(),
		SenderName: conn.Username(),
		Content:    sanitized,
		CreatedAt:  time.Now().UTC(),
	}
	if err := r.messages.StoreMessage(repositories.FromMessage(msg)); err != nil {
		// Room state is untouched; the caller may resubmit.
		return contract.SendResult{}, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	st.lastActivity = msg.CreatedAt

	evt := event.MessageReceived{
		ID:         msg.ID,
		Room:       msg.Room,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Content:    msg.Content,
		At:         msg.CreatedAt,
	}
	r.deliverLocked(ctx, st, evt, "")
	r.publish(evt)
	r.monitor.MessageRelayed()

	return contract.SendResult{MessageID: msg.ID, CreatedAt: msg.CreatedAt}, nil
}

// Typing relays a typing indicator to the other members. Fire-and-forget:
// no acknowledgement, no error to the caller.
func (r *Relay) Typing(conn contract.Conn, isTyping bool) {
	code, bound := r.registry.BindingOf(conn.ID())
	if !bound {
		return
	}
	st, ok := r.registry.acquireExisting(code)
	if !ok {
		return
	}
	defer st.mu.Unlock()
	if _, member := st.members[conn.UserID()]; !member {
		return
	}
	r.deliverLocked(context.Background(), st, event.MemberTyping{
		Room:     code,
		UserID:   conn.UserID(),
		Username: conn.Username(),
		IsTyping: isTyping,
	}, conn.UserID())
}

// detach removes the connection from its bound room and notifies the
// remaining members. When offline is set (the session itself was removed),
// a presence change follows the member-left notification in the same
// critical section. The persisted participant list is never touched here.
func (r *Relay) detach(ctx context.Context, conn contract.Conn, offline bool) {
	code, bound := r.registry.Unbind(conn.ID())
	if !bound {
		return
	}
	st, ok := r.registry.acquireExisting(code)
	if !ok {
		return
	}
	defer st.mu.Unlock()

	if _, member := st.members[conn.UserID()]; !member {
		return
	}
	delete(st.members, conn.UserID())
	st.lastActivity = time.Now().UTC()

	left := event.MemberLeft{Room: code, UserID: conn.UserID(), Username: conn.Username()}
	r.deliverLocked(ctx, st, left, conn.UserID())
	r.publish(left)
	if offline {
		r.deliverLocked(ctx, st, event.PresenceChanged{
			Room:   code,
			UserID: conn.UserID(),
			Online: false,
		}, conn.UserID())
	}

	if len(st.members) == 0 {
		r.registry.dropLocked(code, st)
	}
}

// deliverLocked pushes an event to the session of every member except the
// excluded identity. The caller holds the room lock. A failing sink only
// loses its own delivery; it never affects the other members.
func (r *Relay) deliverLocked(ctx context.Context, st *roomState, evt event.ChatEvent, exclude string) {
	for userID := range st.members {
		if userID == exclude {
			continue
		}
		member, ok := r.sessions.Get(userID)
		if !ok {
			continue
		}
		if err := member.Consume(ctx, evt); err != nil {
			r.monitor.DeliveryDropped()
			r.log.Warn("Event delivery failed", "user_id", userID, "err", err)
		}
	}
}

// publish hands the event to the auxiliary sinks without ever blocking the
// delivery path.
func (r *Relay) publish(evt event.ChatEvent) {
	select {
	case r.events <- evt:
	default:
		r.log.Debug("Auxiliary event channel full, dropping event")
	}
}
