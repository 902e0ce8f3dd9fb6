package runtime

import (
	"sync"
	"time"

	"chat-relay/domain"
)

// roomState is the in-memory membership of one live room. Its mutex is the
// per-room critical section: membership changes and persist-then-broadcast
// sequences for the room run under it, so sends within a room are serialized
// while unrelated rooms proceed freely.
type roomState struct {
	mu           sync.Mutex
	members      map[string]struct{}
	lastActivity time.Time
}

// Registry holds the live membership of every room plus the room binding of
// every connection. The member set of a room must always be a subset of the
// persisted participant list; the relay enforces that on join.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[domain.RoomCode]*roomState
	bindings map[string]domain.RoomCode // connection ID -> bound room
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[domain.RoomCode]*roomState),
		bindings: make(map[string]domain.RoomCode),
	}
}

// state returns the live entry for a room, creating it on first join.
func (r *Registry) state(code domain.RoomCode) *roomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.rooms[code]
	if !ok {
		st = &roomState{members: make(map[string]struct{}), lastActivity: time.Now().UTC()}
		r.rooms[code] = st
	}
	return st
}

// lookup returns the live entry without creating one.
func (r *Registry) lookup(code domain.RoomCode) (*roomState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.rooms[code]
	return st, ok
}

// acquire returns the room's live entry with its lock held, creating the
// entry on first join. The re-check closes the race against a concurrent
// removal between the map lookup and the lock acquisition.
func (r *Registry) acquire(code domain.RoomCode) *roomState {
	for {
		st := r.state(code)
		st.mu.Lock()
		if cur, ok := r.lookup(code); ok && cur == st {
			return st
		}
		st.mu.Unlock()
	}
}

// acquireExisting is acquire without the create-on-miss behavior.
func (r *Registry) acquireExisting(code domain.RoomCode) (*roomState, bool) {
	for {
		st, ok := r.lookup(code)
		if !ok {
			return nil, false
		}
		st.mu.Lock()
		if cur, ok := r.lookup(code); ok && cur == st {
			return st, true
		}
		st.mu.Unlock()
	}
}

// dropLocked removes a room entry. The caller must hold st.mu; the map
// entry is deleted only if it still points at st.
func (r *Registry) dropLocked(code domain.RoomCode, st *roomState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.rooms[code]; ok && cur == st {
		delete(r.rooms, code)
	}
}

// Bind records the single room a connection currently belongs to,
// replacing any prior binding.
func (r *Registry) Bind(connID string, code domain.RoomCode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[connID] = code
}

// Unbind clears a connection's room binding and returns what it was bound to.
func (r *Registry) Unbind(connID string) (domain.RoomCode, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.bindings[connID]
	if ok {
		delete(r.bindings, connID)
	}
	return code, ok
}

// BindingOf returns the room a connection is currently bound to.
func (r *Registry) BindingOf(connID string) (domain.RoomCode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	code, ok := r.bindings[connID]
	return code, ok
}

// Members returns a snapshot of the room's current member identities.
func (r *Registry) Members(code domain.RoomCode) []string {
	st, ok := r.lookup(code)
	if !ok {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return membersLocked(st)
}

// RoomsOf returns every room the identity is currently a member of.
// With single-room bindings this is at most one, but presence derivation
// does not rely on that.
func (r *Registry) RoomsOf(userID string) []domain.RoomCode {
	r.mu.RLock()
	snapshot := make(map[domain.RoomCode]*roomState, len(r.rooms))
	for code, st := range r.rooms {
		snapshot[code] = st
	}
	r.mu.RUnlock()

	var codes []domain.RoomCode
	for code, st := range snapshot {
		st.mu.Lock()
		_, member := st.members[userID]
		st.mu.Unlock()
		if member {
			codes = append(codes, code)
		}
	}
	return codes
}

// EvictIdle deletes room entries whose member set is empty and whose last
// activity is older than threshold. It returns the evicted codes. Purely a
// memory-reclamation pass: emptiness correctness is handled synchronously
// when the last member leaves.
func (r *Registry) EvictIdle(threshold time.Duration) []domain.RoomCode {
	r.mu.RLock()
	snapshot := make(map[domain.RoomCode]*roomState, len(r.rooms))
	for code, st := range r.rooms {
		snapshot[code] = st
	}
	r.mu.RUnlock()

	now := time.Now().UTC()
	var evicted []domain.RoomCode
	for code, st := range snapshot {
		st.mu.Lock()
		if len(st.members) == 0 && now.Sub(st.lastActivity) > threshold {
			r.dropLocked(code, st)
			evicted = append(evicted, code)
		}
		st.mu.Unlock()
	}
	return evicted
}

// Len returns the number of live room entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func membersLocked(st *roomState) []string {
	members := make([]string, 0, len(st.members))
	for userID := range st.members {
		members = append(members, userID)
	}
	return members
}
