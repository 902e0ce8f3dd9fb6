package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second
	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Generous upper bound; content length is enforced by the relay.
	maxFrameSize = 8192
)

// Connection adapts one websocket to the relay's Conn contract. The relay
// pushes events through Consume into the buffered send channel; writePump
// drains it onto the socket so event delivery never blocks on the network.
type Connection struct {
	id       string
	identity domain.Identity
	ws       *websocket.Conn
	relay    contract.IRelay
	log      *slog.Logger

	send chan []byte
	done chan struct{}
	once sync.Once
}

func NewConnection(ws *websocket.Conn, identity domain.Identity, relay contract.IRelay, log *slog.Logger, bufferSize int) *Connection {
	return &Connection{
		id:       uuid.NewString(),
		identity: identity,
		ws:       ws,
		relay:    relay,
		log:      log,
		send:     make(chan []byte, bufferSize),
		done:     make(chan struct{}),
	}
}

func (c *Connection) ID() string       { return c.id }
func (c *Connection) UserID() string   { return c.identity.UserID }
func (c *Connection) Username() string { return c.identity.Username }

// Consume queues an event frame for delivery. A full buffer drops this
// connection's copy rather than stalling the relay.
func (c *Connection) Consume(_ context.Context, e event.ChatEvent) error {
	data, err := encodeEvent(e)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return fmt.Errorf("connection %s closed", c.id)
	default:
		return fmt.Errorf("send buffer full for connection %s", c.id)
	}
}

// Close force-closes the transport. Safe to call more than once; used when
// a newer connection for the same identity supersedes this one.
func (c *Connection) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// readPump reads client frames until the socket dies, dispatching each to
// the relay. Runs on the goroutine that accepted the connection; its return
// triggers full teardown.
func (c *Connection) readPump(ctx context.Context) {
	defer func() {
		c.relay.Disconnect(c)
		c.Close()
	}()

	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("Unexpected socket close", "conn", c.id, "err", err)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.reply(serverFrame{Type: frameError, Payload: errorPayload{
				Code: "BAD_FRAME", Message: "malformed frame",
			}})
			continue
		}
		c.dispatch(ctx, frame)
	}
}

func (c *Connection) dispatch(ctx context.Context, frame clientFrame) {
	switch frame.Type {
	case frameJoin:
		result, err := c.relay.Join(ctx, c, domain.RoomCode(frame.Room))
		if err != nil {
			c.replyError(err)
			return
		}
		c.reply(serverFrame{Type: frameJoined, Payload: joinedPayload{
			Room:    string(result.Room.Code),
			Name:    result.Room.Name,
			Members: result.Members,
			Backlog: lo.Map(result.Backlog, func(m domain.Message, _ int) wireMessage {
				return toWireMessage(m)
			}),
		}})

	case frameLeave:
		c.relay.Leave(c)

	case frameSend:
		result, err := c.relay.Send(ctx, c, frame.Content)
		if err != nil {
			c.replyError(err)
			return
		}
		c.reply(serverFrame{Type: frameSent, Payload: sentPayload{
			MessageID: result.MessageID.String(),
			CreatedAt: result.CreatedAt,
		}})

	case frameTyping:
		c.relay.Typing(c, frame.IsTyping)

	default:
		c.reply(serverFrame{Type: frameError, Payload: errorPayload{
			Code: "BAD_FRAME", Message: fmt.Sprintf("unknown frame type %q", frame.Type),
		}})
	}
}

func (c *Connection) replyError(err error) {
	c.reply(serverFrame{Type: frameError, Payload: errorPayload{
		Code:    errorCode(err),
		Message: err.Error(),
	}})
}

// reply queues a direct response frame. Drops on a full buffer like any
// other delivery.
func (c *Connection) reply(frame serverFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		c.log.Error("Failed to marshal reply frame", "err", err)
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
		c.log.Warn("Reply dropped, send buffer full", "conn", c.id)
	}
}

// writePump owns all writes to the socket: queued frames plus keepalive
// pings. Exactly one writePump runs per connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
