// Package httpapi exposes the account and room management endpoints. The
// realtime path lives in the ws gateway; everything here is plain
// request/response JSON.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/domain/search"
	"chat-relay/repositories"
	"chat-relay/services"
)

type ctxKey int

const identityKey ctxKey = 0

type API struct {
	log      *slog.Logger
	authSvc  services.IAuthService
	tokens   auth.TokenManager
	users    repositories.IUserRepository
	rooms    repositories.IRoomRepository
	messages repositories.IMessageRepository
	index    *search.Index
}

func NewAPI(
	log *slog.Logger,
	authSvc services.IAuthService,
	tokens auth.TokenManager,
	users repositories.IUserRepository,
	rooms repositories.IRoomRepository,
	messages repositories.IMessageRepository,
	index *search.Index,
) *API {
	return &API{
		log:      log,
		authSvc:  authSvc,
		tokens:   tokens,
		users:    users,
		rooms:    rooms,
		messages: messages,
		index:    index,
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/register", a.register)
	mux.HandleFunc("POST /api/login", a.login)
	mux.HandleFunc("POST /api/logout", a.authenticated(a.logout))
	mux.HandleFunc("GET /api/me", a.authenticated(a.me))
	mux.HandleFunc("POST /api/rooms", a.authenticated(a.createRoom))
	mux.HandleFunc("POST /api/rooms/{code}/join", a.authenticated(a.joinRoom))
	mux.HandleFunc("GET /api/rooms/{code}/messages", a.authenticated(a.roomMessages))
	mux.HandleFunc("GET /api/search", a.authenticated(a.searchMessages))
	return mux
}

// authenticated resolves the Bearer token to an identity before calling
// the wrapped handler.
func (a *API) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		identity, err := a.tokens.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication failed")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, identity)
		next(w, r.WithContext(ctx))
	}
}

func identityFrom(r *http.Request) domain.Identity {
	identity, _ := r.Context().Value(identityKey).(domain.Identity)
	return identity
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
