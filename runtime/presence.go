package runtime

import (
	"context"

	"chat-relay/contract"
	"chat-relay/domain/event"
)

// presenceOnline announces the identity as online to every room it is
// currently a member of. On a fresh connect the member set is empty and
// this is a no-op; after a supersede the new connection inherits no
// binding, but other rooms may still list the identity if a live entry
// survived, so the walk stays general.
func (r *Relay) presenceOnline(ctx context.Context, conn contract.Conn) {
	for _, code := range r.registry.RoomsOf(conn.UserID()) {
		st, ok := r.registry.acquireExisting(code)
		if !ok {
			continue
		}
		r.deliverLocked(ctx, st, event.PresenceChanged{
			Room:   code,
			UserID: conn.UserID(),
			Online: true,
		}, conn.UserID())
		st.mu.Unlock()
	}
}
