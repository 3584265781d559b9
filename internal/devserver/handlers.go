package devserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-chatclient/internal/types"
)

const maxMessageLimit = 500

type CreateRoomRequest struct {
	Name        string `json:"name" validate:"required,min=3,max=50"`
	Description string `json:"description" validate:"max=500"`
	IsPrivate   bool   `json:"is_private"`
}

type DMRequest struct {
	TargetUserId string `json:"target_user_id" validate:"required"`
}

type DeleteMessageRequest struct {
	DeletionType types.DeletionType `json:"deletion_type" validate:"omitempty,oneof=for_me for_everyone"`
}

type StatusResponse struct {
	Message      string             `json:"message"`
	DeletionType types.DeletionType `json:"deletion_type,omitempty"`
}

func (s *Server) writeJson(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("json encode")
	}
}

func (s *Server) writeRepoError(w http.ResponseWriter, err error, notFound string) {
	var errResp *ApiError
	if errors.Is(err, ErrNotFound) {
		errResp = NewNotFoundError().WithMessage(notFound)
	} else {
		errResp = NewInternalServerError(err)
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

// roomForUser loads a room the user may read. Private rooms need
// membership.
func (s *Server) roomForUser(w http.ResponseWriter, roomId string, user User) (Room, bool) {
	room, err := s.repo.GetRoom(roomId)
	if err != nil {
		s.writeRepoError(w, err, "Room not found")
		return Room{}, false
	}

	if room.IsPrivate && !s.repo.IsMember(room.Id, user.Id) {
		errResp := NewForbiddenError().WithMessage("You don't have permission to access this private room")
		s.writeJson(w, errResp.StatusCode, errResp)
		return Room{}, false
	}

	return room, true
}

func (s *Server) wireRoom(room Room) types.Room {
	members, err := s.repo.ListMembers(room.Id)
	if err != nil {
		s.log.Warn().Err(err).Str("room_id", room.Id).Msg("list members")
	}

	return toWireRoom(room, len(members))
}

func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	rooms, err := s.repo.ListRoomsForUser(user.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	out := make([]types.Room, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, s.wireRoom(room))
	}

	s.writeJson(w, http.StatusOK, out)
}

func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		errResp := NewBadRequestError().WithMessage(err.Error())
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	code, err := s.generateJoinCode()
	if err != nil {
		s.log.Error().Err(err).Msg("generate join code")
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.repo.CreateRoom(CreateRoomParams{
		Name:        req.Name,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
		OwnerId:     user.Id,
		JoinCode:    code,
	})
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, ErrConflict) {
			errResp = NewConflictError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, toWireRoom(room, 1))
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	room, ok := s.roomForUser(w, chi.URLParam(r, "room_id"), user)
	if !ok {
		return
	}

	members, err := s.repo.ListMembers(room.Id)
	if err != nil {
		s.writeRepoError(w, err, "Room not found")
		return
	}

	detail := types.RoomDetail{
		Room:    toWireRoom(room, len(members)),
		Members: make([]types.RoomMember, 0, len(members)),
	}
	for _, m := range members {
		rm := types.RoomMember{RoomId: m.RoomId, UserId: m.UserId, Role: m.Role}
		if u, err := s.repo.GetAccountById(m.UserId); err == nil {
			wu := toWireUser(u)
			rm.User = &wu
		}
		detail.Members = append(detail.Members, rm)
	}

	s.writeJson(w, http.StatusOK, detail)
}

func (s *Server) joinRoom(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	room, err := s.repo.GetRoomByJoinCode(chi.URLParam(r, "code"))
	if err != nil {
		s.writeRepoError(w, err, "Invalid join code")
		return
	}

	if err := s.repo.AddMember(room.Id, user.Id, types.RoleMember); err != nil {
		s.writeRepoError(w, err, "Room not found")
		return
	}

	s.log.Info().Str("user", user.Username).Str("room_id", room.Id).Msg("user joined room")
	s.writeJson(w, http.StatusOK, s.wireRoom(room))
}

func (s *Server) openDM(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	var req DMRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if err := s.validate.Struct(req); err != nil || req.TargetUserId == user.Id {
		errResp := NewBadRequestError().WithMessage("invalid target user")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.repo.GetOrCreateDM(user.Id, req.TargetUserId)
	if err != nil {
		s.writeRepoError(w, err, "User not found")
		return
	}

	s.writeJson(w, http.StatusOK, s.wireRoom(room))
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	room, ok := s.roomForUser(w, chi.URLParam(r, "room_id"), user)
	if !ok {
		return
	}

	limit := defaultMessageLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}
	limit = min(limit, maxMessageLimit)

	msgs, err := s.repo.GetMessages(room.Id, user.Id, limit)
	if err != nil {
		s.writeRepoError(w, err, "Room not found")
		return
	}

	senders := make(map[string]*User)
	out := make([]types.Message, 0, len(msgs))
	for _, msg := range msgs {
		sender, seen := senders[msg.UserId]
		if !seen {
			if u, err := s.repo.GetAccountById(msg.UserId); err == nil {
				sender = &u
			}
			senders[msg.UserId] = sender
		}
		out = append(out, toWireMessage(msg, sender))
	}

	s.writeJson(w, http.StatusOK, out)
}

// deleteMessage hides a message for the caller ("for_me", the default) or
// removes it for the whole room ("for_everyone"). Only the sender and
// the room owner may do the latter.
func (s *Server) deleteMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	var req DeleteMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		errResp := NewBadRequestError().WithMessage(err.Error())
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if req.DeletionType == "" {
		req.DeletionType = types.DeleteForMe
	}

	msg, err := s.repo.GetMessage(chi.URLParam(r, "message_id"))
	if err != nil {
		s.writeRepoError(w, err, "Message not found")
		return
	}

	room, ok := s.roomForUser(w, msg.RoomId, user)
	if !ok {
		return
	}

	if req.DeletionType == types.DeleteForMe {
		if err := s.repo.HideMessage(user.Id, msg.Id); err != nil {
			s.writeRepoError(w, err, "Message not found")
			return
		}
		s.hub.SendToUser(room.Id, user.Id, NewMessageDeletedFrame(msg.Id, types.DeleteForMe, ""))
	} else {
		if msg.UserId != user.Id && room.OwnerId != user.Id {
			errResp := NewForbiddenError().WithMessage("You don't have permission to delete this message for everyone")
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		if err := s.repo.DeleteMessage(msg.Id); err != nil {
			s.writeRepoError(w, err, "Message not found")
			return
		}
		s.hub.Broadcast(room.Id, NewMessageDeletedFrame(msg.Id, types.DeleteForEveryone, user.Id))
	}

	s.writeJson(w, http.StatusOK, StatusResponse{
		Message:      "Message deleted successfully",
		DeletionType: req.DeletionType,
	})
}

// clearRoom hides the room's current messages from the caller.
func (s *Server) clearRoom(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	room, ok := s.roomForUser(w, chi.URLParam(r, "room_id"), user)
	if !ok {
		return
	}

	if err := s.repo.ClearRoom(user.Id, room.Id); err != nil {
		s.writeRepoError(w, err, "Room not found")
		return
	}

	s.writeJson(w, http.StatusOK, StatusResponse{Message: "Messages cleared successfully"})
}

// serveWs upgrades a connection for one room. The token comes from the
// query string since browsers cannot set headers on websocket requests.
func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	user, err := s.authenticate(r.URL.Query().Get("token"))
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket auth failed")
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, ok := s.roomForUser(w, chi.URLParam(r, "room_id"), user)
	if !ok {
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("error upgrading connection")
		return
	}

	client := NewClient(user, room.Id, conn, s.hub, s.log)
	if err := s.hub.Register(client); err != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, err.Error())
		conn.WriteMessage(websocket.CloseMessage, msg)
		conn.Close()
		return
	}

	go client.Write()
	go client.Read()
}
