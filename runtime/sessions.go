package runtime

import (
	"sync"

	"chat-relay/contract"
)

// SessionStore maps a user identity to its single current live connection.
// A second connection for an already-sessioned identity supersedes the
// prior one; at most one session per identity exists at any time.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]contract.Conn // userID -> current connection
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]contract.Conn)}
}

// Register installs conn as the identity's current connection and returns
// the superseded connection, if any. The caller is responsible for closing
// the superseded transport before letting the new connection proceed.
func (s *SessionStore) Register(conn contract.Conn) contract.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()

	prior := s.sessions[conn.UserID()]
	s.sessions[conn.UserID()] = conn
	if prior == nil || prior.ID() == conn.ID() {
		return nil
	}
	return prior
}

// Remove deletes the session only if it still points at conn. The guard
// keeps a late disconnect cleanup from evicting the session installed by
// a racing supersede. Reports whether the session was actually removed.
func (s *SessionStore) Remove(conn contract.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[conn.UserID()]
	if !ok || current.ID() != conn.ID() {
		return false
	}
	delete(s.sessions, conn.UserID())
	return true
}

// Get returns the identity's current connection.
func (s *SessionStore) Get(userID string) (contract.Conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.sessions[userID]
	return conn, ok
}

// IsCurrent reports whether conn is still the identity's live connection.
func (s *SessionStore) IsCurrent(conn contract.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[conn.UserID()]
	return ok && current.ID() == conn.ID()
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
