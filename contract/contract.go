//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"github.com/google/uuid"

	"chat-relay/domain"
	"chat-relay/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives relay events. Connection sinks deliver to one socket;
// auxiliary sinks (timeline, search index) observe the same stream.
type EventSink interface {
	Consume(ctx context.Context, e event.ChatEvent) error
}

// Conn is one live authenticated transport link. The relay owns its room
// binding; the transport layer owns the socket itself.
type Conn interface {
	EventSink
	ID() string
	UserID() string
	Username() string
	// Close force-closes the underlying transport. Used when a newer
	// connection for the same identity supersedes this one.
	Close()
}

// JoinResult is returned to a joining connection: the current member set
// and a recent message backlog, most recent first.
type JoinResult struct {
	Room    domain.Room
	Members []string
	Backlog []domain.Message
}

// SendResult carries the server-assigned identity of the persisted message.
type SendResult struct {
	MessageID uuid.UUID
	CreatedAt time.Time
}

// IRelay is the coordination core: sessions, room membership, presence,
// message fan-out. One implementation owns all volatile state.
type IRelay interface {
	Connect(conn Conn)
	Disconnect(conn Conn)
	Join(ctx context.Context, conn Conn, code domain.RoomCode) (JoinResult, error)
	Leave(conn Conn)
	Send(ctx context.Context, conn Conn, content string) (SendResult, error)
	Typing(conn Conn, isTyping bool)
}
