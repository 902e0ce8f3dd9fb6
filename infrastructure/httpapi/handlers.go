package httpapi

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"github.com/samber/lo"

	"chat-relay/domain"
	"chat-relay/domain/search"
	"chat-relay/errors"
	"chat-relay/repositories"
)

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type roomRequest struct {
	Name string `json:"name"`
}

type messageResponse struct {
	ID         string    `json:"id"`
	Room       string    `json:"room"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	token, err := a.authSvc.Register(req.Email, req.Username, req.Password)
	if err != nil {
		switch {
		case stderrors.Is(err, errors.ErrUserAlreadyExists):
			writeError(w, http.StatusConflict, "email already registered")
		case stderrors.Is(err, errors.ErrInvalidPassword):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			a.log.Error("Registration failed", "err", err)
			writeError(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"token": token.String()})
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	token, user, err := a.authSvc.Login(req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := a.users.SetOnline(user.ID, true); err != nil {
		a.log.Warn("Failed to flag user online", "user_id", user.ID, "err", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":    token.String(),
		"userId":   user.ID,
		"username": user.Username,
	})
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	if err := a.users.SetOnline(identity.UserID, false); err != nil {
		a.log.Warn("Failed to flag user offline", "user_id", identity.UserID, "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	user, err := a.users.GetUserByID(identity.UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userId":   user.ID,
		"username": user.Username,
		"email":    user.Email,
		"online":   user.IsOnline,
		"lastSeen": user.LastSeen,
	})
}

func (a *API) createRoom(w http.ResponseWriter, r *http.Request) {
	var req roomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "room name is required")
		return
	}

	room, err := a.rooms.Create(identityFrom(r).UserID, req.Name)
	if err != nil {
		a.log.Error("Room creation failed", "err", err)
		writeError(w, http.StatusInternalServerError, "room creation failed")
		return
	}
	writeJSON(w, http.StatusCreated, roomBody(room))
}

func (a *API) joinRoom(w http.ResponseWriter, r *http.Request) {
	code := domain.RoomCode(r.PathValue("code"))
	room, err := a.rooms.AddParticipant(code, identityFrom(r).UserID)
	if err != nil {
		switch {
		case stderrors.Is(err, errors.ErrRoomNotFound):
			writeError(w, http.StatusNotFound, "room not found")
		case stderrors.Is(err, errors.ErrRoomFull):
			writeError(w, http.StatusConflict, "room is full")
		default:
			a.log.Error("Join failed", "room", code, "err", err)
			writeError(w, http.StatusInternalServerError, "join failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, roomBody(room))
}

func (a *API) roomMessages(w http.ResponseWriter, r *http.Request) {
	code := domain.RoomCode(r.PathValue("code"))
	room, err := a.rooms.FindByCode(code)
	if err != nil {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	if !room.HasParticipant(identityFrom(r).UserID) {
		writeError(w, http.StatusForbidden, "not a participant")
		return
	}

	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		cursor = &c
	}
	page, next, err := a.messages.GetMessages(code, cursor)
	if err != nil {
		a.log.Error("Message page fetch failed", "room", code, "err", err)
		writeError(w, http.StatusInternalServerError, "fetch failed")
		return
	}

	body := map[string]any{
		"messages": lo.Map(page, func(dm repositories.DiskMessage, _ int) messageResponse {
			return toMessageResponse(repositories.ToMessage(dm))
		}),
	}
	if next != nil {
		body["nextCursor"] = *next
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *API) searchMessages(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	query := search.NewQuery(params.Get("q"))
	if room := params.Get("room"); room != "" {
		query.Room = domain.RoomCode(room)
	}
	if sender := params.Get("from"); sender != "" {
		query.Sender = sender
	}
	if limit, err := strconv.Atoi(params.Get("limit")); err == nil && limit > 0 {
		query.Limit = limit
	}
	if query.Terms == "" {
		writeError(w, http.StatusBadRequest, "query terms are required")
		return
	}

	// Search only covers rooms the caller belongs to.
	if query.Room != "" {
		room, err := a.rooms.FindByCode(query.Room)
		if err != nil || !room.HasParticipant(identityFrom(r).UserID) {
			writeError(w, http.StatusForbidden, "not a participant")
			return
		}
	}

	hits, total, err := a.index.Search(r.Context(), query)
	if err != nil {
		a.log.Error("Search failed", "err", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total": total,
		"hits": lo.Map(hits, func(h search.Hit, _ int) map[string]any {
			return map[string]any{
				"messageId":  h.MessageID.String(),
				"room":       string(h.Room),
				"senderId":   h.SenderID,
				"senderName": h.SenderName,
				"content":    h.Content,
				"at":         h.At,
				"score":      h.Score,
			}
		}),
	})
}

func roomBody(room domain.Room) map[string]any {
	return map[string]any{
		"code":         string(room.Code),
		"name":         room.Name,
		"creatorId":    room.CreatorID,
		"participants": room.Participants,
		"createdAt":    room.CreatedAt,
	}
}

func toMessageResponse(msg domain.Message) messageResponse {
	return messageResponse{
		ID:         msg.ID.String(),
		Room:       string(msg.Room),
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Content:    msg.Content,
		CreatedAt:  msg.CreatedAt,
	}
}
