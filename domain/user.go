package domain

import "time"

// User is the persisted account record. The relay core only reads
// ID and Username; the rest belongs to the account endpoints.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Roles        []string
	IsOnline     bool
	LastSeen     time.Time
	CreatedAt    time.Time
}

// Identity is what the verifier resolves from a handshake credential.
type Identity struct {
	UserID   string
	Username string
}
