package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	stderrors "errors"
)

// Client frame types.
const (
	frameJoin   = "join"
	frameLeave  = "leave"
	frameSend   = "send"
	frameTyping = "typing"
)

// Server frame types.
const (
	frameJoined          = "joined"
	frameSent            = "sent"
	frameError           = "error"
	frameMemberJoined    = "memberJoined"
	frameMemberLeft      = "memberLeft"
	framePresenceChanged = "presenceChanged"
	frameMemberTyping    = "memberTyping"
	frameMessageReceived = "messageReceived"
)

// clientFrame is the single inbound frame shape. Type selects which of the
// other fields are meaningful.
type clientFrame struct {
	Type     string `json:"type"`
	Room     string `json:"room,omitempty"`
	Content  string `json:"content,omitempty"`
	IsTyping bool   `json:"isTyping,omitempty"`
}

type serverFrame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type wireMessage struct {
	ID         string    `json:"id"`
	Room       string    `json:"room"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

type joinedPayload struct {
	Room    string        `json:"room"`
	Name    string        `json:"name"`
	Members []string      `json:"members"`
	Backlog []wireMessage `json:"backlog"`
}

type sentPayload struct {
	MessageID string    `json:"messageId"`
	CreatedAt time.Time `json:"createdAt"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type memberPayload struct {
	Room     string `json:"room"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type presencePayload struct {
	Room   string `json:"room"`
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

type typingPayload struct {
	Room     string `json:"room"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

func toWireMessage(msg domain.Message) wireMessage {
	return wireMessage{
		ID:         msg.ID.String(),
		Room:       string(msg.Room),
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Content:    msg.Content,
		CreatedAt:  msg.CreatedAt,
	}
}

// encodeEvent maps a relay event to its outbound frame.
func encodeEvent(e event.ChatEvent) ([]byte, error) {
	var frame serverFrame
	switch evt := e.(type) {
	case event.MessageReceived:
		frame = serverFrame{Type: frameMessageReceived, Payload: wireMessage{
			ID:         evt.ID.String(),
			Room:       string(evt.Room),
			SenderID:   evt.SenderID,
			SenderName: evt.SenderName,
			Content:    evt.Content,
			CreatedAt:  evt.At,
		}}
	case event.MemberJoined:
		frame = serverFrame{Type: frameMemberJoined, Payload: memberPayload{
			Room: string(evt.Room), UserID: evt.UserID, Username: evt.Username,
		}}
	case event.MemberLeft:
		frame = serverFrame{Type: frameMemberLeft, Payload: memberPayload{
			Room: string(evt.Room), UserID: evt.UserID, Username: evt.Username,
		}}
	case event.PresenceChanged:
		frame = serverFrame{Type: framePresenceChanged, Payload: presencePayload{
			Room: string(evt.Room), UserID: evt.UserID, Online: evt.Online,
		}}
	case event.MemberTyping:
		frame = serverFrame{Type: frameMemberTyping, Payload: typingPayload{
			Room: string(evt.Room), UserID: evt.UserID, Username: evt.Username, IsTyping: evt.IsTyping,
		}}
	default:
		return nil, fmt.Errorf("unmapped event type %T", e)
	}
	return json.Marshal(frame)
}

// errorCode maps the relay error taxonomy to stable wire codes.
func errorCode(err error) string {
	switch {
	case stderrors.Is(err, errors.ErrRoomNotFound):
		return "NOT_FOUND"
	case stderrors.Is(err, errors.ErrNotParticipant):
		return "NOT_AUTHORIZED"
	case stderrors.Is(err, errors.ErrNotInRoom):
		return "NOT_IN_ROOM"
	case stderrors.Is(err, errors.ErrContentTooLong):
		return "CONTENT_TOO_LONG"
	case stderrors.Is(err, errors.ErrPersistence):
		return "PERSISTENCE_FAILURE"
	case stderrors.Is(err, errors.ErrAuthenticationFailed):
		return "AUTH_FAILED"
	default:
		return "INTERNAL"
	}
}
