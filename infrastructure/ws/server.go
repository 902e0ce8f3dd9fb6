// Package ws is the realtime gateway: it authenticates websocket
// handshakes, adapts sockets to relay connections, and runs the per-socket
// read/write pumps.
package ws

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/observability"
)

// Gateway upgrades authenticated HTTP requests to relay connections.
type Gateway struct {
	log        *slog.Logger
	relay      contract.IRelay
	tokens     auth.TokenManager
	monitor    *observability.Monitor
	upgrader   websocket.Upgrader
	bufferSize int
}

func NewGateway(log *slog.Logger, relay contract.IRelay, tokens auth.TokenManager, monitor *observability.Monitor, bufferSize int) *Gateway {
	return &Gateway{
		log:     log,
		relay:   relay,
		tokens:  tokens,
		monitor: monitor,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The token is the access control; origins are not restricted.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		bufferSize: bufferSize,
	}
}

// ServeHTTP is the websocket endpoint. The handshake credential comes from
// the "token" query parameter or a Bearer Authorization header; a bad or
// missing token rejects the request before the upgrade.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := g.tokens.Verify(credentialFrom(r))
	if err != nil {
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	socket, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("Websocket upgrade failed", "err", err)
		return
	}

	conn := NewConnection(socket, identity, g.relay, g.log, g.bufferSize)
	g.monitor.ConnectionOpened()
	g.log.Info("Connection established", "conn", conn.ID(), "user_id", identity.UserID)

	go conn.writePump()
	g.relay.Connect(conn)

	conn.readPump(r.Context())

	g.monitor.ConnectionClosed()
	g.log.Info("Connection closed", "conn", conn.ID(), "user_id", identity.UserID)
}

func credentialFrom(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	return ""
}
