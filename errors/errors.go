package errors

import "fmt"

var (
	// Relay errors, returned to the caller of the failing request only.
	ErrRoomNotFound   = fmt.Errorf("room not found")
	ErrNotParticipant = fmt.Errorf("not a room participant")
	ErrNotInRoom      = fmt.Errorf("not in a room")
	ErrContentTooLong = fmt.Errorf("message content too long")
	ErrPersistence    = fmt.Errorf("persistence failure")
	ErrRoomFull       = fmt.Errorf("room is full")

	// Authentication errors. A failed handshake terminates the connection attempt.
	ErrAuthenticationFailed = fmt.Errorf("authentication failed")
	ErrInvalidCredentials   = fmt.Errorf("invalid credentials")
	ErrInvalidPassword      = fmt.Errorf("password does not meet complexity rules")
	ErrUserAlreadyExists    = fmt.Errorf("user already exists")
	ErrUserNotFound         = fmt.Errorf("user not found")
	ErrTokenGeneration      = fmt.Errorf("token generation failed")

	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no words have been found")
)
