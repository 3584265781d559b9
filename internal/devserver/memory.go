package devserver

import (
	"cmp"
	"crypto/rand"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/go-chatclient/internal/types"
	"github.com/oklog/ulid/v2"
)

const defaultMessageLimit = 100

// MemoryRepository keeps everything in process memory. Message ids are
// ULIDs so they sort in creation order.
type MemoryRepository struct {
	mu        sync.RWMutex
	entropy   io.Reader
	users     map[string]User
	logins    map[string]string
	rooms     map[string]Room
	joinCodes map[string]string
	dms       map[string]string
	members   map[string]map[string]Member
	messages  map[string][]Message
	msgRoom   map[string]string
	hidden    map[string]map[string]struct{}
	// memberSeq orders members who joined within the same millisecond
	memberSeq uint64
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		entropy:   ulid.Monotonic(rand.Reader, 0),
		users:     make(map[string]User),
		logins:    make(map[string]string),
		rooms:     make(map[string]Room),
		joinCodes: make(map[string]string),
		dms:       make(map[string]string),
		members:   make(map[string]map[string]Member),
		messages:  make(map[string][]Message),
		msgRoom:   make(map[string]string),
		hidden:    make(map[string]map[string]struct{}),
	}
}

func now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

func loginKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (m *MemoryRepository) CreateAccount(params CreateAccountParams) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.logins[loginKey(params.Username)]; ok {
		return User{}, fmt.Errorf("username %q: %w", params.Username, ErrConflict)
	}
	if params.Email != "" {
		if _, ok := m.logins[loginKey(params.Email)]; ok {
			return User{}, fmt.Errorf("email %q: %w", params.Email, ErrConflict)
		}
	}

	u := User{
		Id:           uuid.NewString(),
		Username:     params.Username,
		Email:        params.Email,
		PasswordHash: params.PasswordHash,
		CreatedAt:    now(),
	}
	m.users[u.Id] = u
	m.logins[loginKey(u.Username)] = u.Id
	if u.Email != "" {
		m.logins[loginKey(u.Email)] = u.Id
	}

	return u, nil
}

func (m *MemoryRepository) GetAccountById(id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}

	return u, nil
}

func (m *MemoryRepository) GetAccountByLogin(login string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.logins[loginKey(login)]
	if !ok {
		return User{}, ErrNotFound
	}

	return m.users[id], nil
}

func (m *MemoryRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[params.OwnerId]; !ok {
		return Room{}, fmt.Errorf("owner %s: %w", params.OwnerId, ErrNotFound)
	}
	if params.JoinCode != "" {
		if _, ok := m.joinCodes[params.JoinCode]; ok {
			return Room{}, fmt.Errorf("join code %s: %w", params.JoinCode, ErrConflict)
		}
	}

	ts := now()
	r := Room{
		Id:           uuid.NewString(),
		Name:         params.Name,
		Description:  params.Description,
		IsPrivate:    params.IsPrivate,
		JoinCode:     params.JoinCode,
		OwnerId:      params.OwnerId,
		CreatedAt:    ts,
		LastActivity: ts,
	}
	m.rooms[r.Id] = r
	if r.JoinCode != "" {
		m.joinCodes[r.JoinCode] = r.Id
	}
	m.addMemberLocked(r.Id, r.OwnerId, types.RoleOwner)

	return r, nil
}

func (m *MemoryRepository) GetRoom(id string) (Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rooms[id]
	if !ok {
		return Room{}, ErrNotFound
	}

	return r, nil
}

func (m *MemoryRepository) GetRoomByJoinCode(code string) (Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.joinCodes[code]
	if !ok {
		return Room{}, ErrNotFound
	}

	return m.rooms[id], nil
}

func dmKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

func (m *MemoryRepository) GetOrCreateDM(userId, targetId string) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userId]
	if !ok {
		return Room{}, fmt.Errorf("user %s: %w", userId, ErrNotFound)
	}
	target, ok := m.users[targetId]
	if !ok {
		return Room{}, fmt.Errorf("user %s: %w", targetId, ErrNotFound)
	}

	key := dmKey(userId, targetId)
	if id, ok := m.dms[key]; ok {
		return m.rooms[id], nil
	}

	ts := now()
	r := Room{
		Id:           uuid.NewString(),
		Name:         user.Username + ", " + target.Username,
		IsPrivate:    true,
		IsDirect:     true,
		OwnerId:      userId,
		CreatedAt:    ts,
		LastActivity: ts,
	}
	m.rooms[r.Id] = r
	m.dms[key] = r.Id
	m.addMemberLocked(r.Id, userId, types.RoleMember)
	m.addMemberLocked(r.Id, targetId, types.RoleMember)

	return r, nil
}

func (m *MemoryRepository) ListRoomsForUser(userId string) ([]Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := []Room{}
	for roomId, members := range m.members {
		if _, ok := members[userId]; ok {
			rooms = append(rooms, m.rooms[roomId])
		}
	}

	slices.SortFunc(rooms, func(a, b Room) int {
		if c := b.LastActivity.Compare(a.LastActivity); c != 0 {
			return c
		}
		return strings.Compare(a.Id, b.Id)
	})

	return rooms, nil
}

func (m *MemoryRepository) AddMember(roomId, userId string, role types.MemberRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[roomId]; !ok {
		return fmt.Errorf("room %s: %w", roomId, ErrNotFound)
	}
	if _, ok := m.users[userId]; !ok {
		return fmt.Errorf("user %s: %w", userId, ErrNotFound)
	}
	if _, ok := m.members[roomId][userId]; ok {
		return nil
	}

	m.addMemberLocked(roomId, userId, role)
	return nil
}

func (m *MemoryRepository) addMemberLocked(roomId, userId string, role types.MemberRole) {
	if m.members[roomId] == nil {
		m.members[roomId] = make(map[string]Member)
	}
	m.memberSeq++
	m.members[roomId][userId] = Member{
		RoomId:   roomId,
		UserId:   userId,
		Role:     role,
		JoinedAt: now(),
		seq:      m.memberSeq,
	}
}

func (m *MemoryRepository) IsMember(roomId, userId string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.members[roomId][userId]
	return ok
}

func (m *MemoryRepository) ListMembers(roomId string) ([]Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.rooms[roomId]; !ok {
		return nil, ErrNotFound
	}

	members := make([]Member, 0, len(m.members[roomId]))
	for _, mem := range m.members[roomId] {
		members = append(members, mem)
	}
	slices.SortFunc(members, func(a, b Member) int {
		return cmp.Compare(a.seq, b.seq)
	})

	return members, nil
}

func (m *MemoryRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[params.RoomId]
	if !ok {
		return Message{}, fmt.Errorf("room %s: %w", params.RoomId, ErrNotFound)
	}

	ts := now()
	msgs := m.messages[params.RoomId]
	if n := len(msgs); n > 0 && ts.Before(msgs[n-1].CreatedAt) {
		ts = msgs[n-1].CreatedAt
	}

	id, err := ulid.New(ulid.Timestamp(ts), m.entropy)
	if err != nil {
		return Message{}, fmt.Errorf("new message id: %w", err)
	}

	mt := params.Type
	if mt == "" {
		mt = types.MessageTypeText
	}

	msg := Message{
		Id:        id.String(),
		RoomId:    params.RoomId,
		UserId:    params.UserId,
		Content:   params.Content,
		Type:      mt,
		FileUrl:   params.FileUrl,
		CreatedAt: ts,
	}
	m.messages[params.RoomId] = append(msgs, msg)
	m.msgRoom[msg.Id] = msg.RoomId

	room.LastActivity = ts
	m.rooms[room.Id] = room

	return msg, nil
}

func (m *MemoryRepository) GetMessage(id string) (Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	roomId, ok := m.msgRoom[id]
	if !ok {
		return Message{}, ErrNotFound
	}

	i := slices.IndexFunc(m.messages[roomId], func(msg Message) bool { return msg.Id == id })
	if i < 0 {
		return Message{}, ErrNotFound
	}

	return m.messages[roomId][i], nil
}

func (m *MemoryRepository) GetMessages(roomId, userId string, limit int) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.rooms[roomId]; !ok {
		return nil, ErrNotFound
	}
	if limit <= 0 {
		limit = defaultMessageLimit
	}

	hidden := m.hidden[userId]
	msgs := m.messages[roomId]
	out := make([]Message, 0, min(limit, len(msgs)))
	for i := len(msgs) - 1; i >= 0 && len(out) < limit; i-- {
		if _, ok := hidden[msgs[i].Id]; ok {
			continue
		}
		out = append(out, msgs[i])
	}

	return out, nil
}

func (m *MemoryRepository) DeleteMessage(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	roomId, ok := m.msgRoom[id]
	if !ok {
		return ErrNotFound
	}

	m.messages[roomId] = slices.DeleteFunc(m.messages[roomId], func(msg Message) bool { return msg.Id == id })
	delete(m.msgRoom, id)

	return nil
}

func (m *MemoryRepository) HideMessage(userId, messageId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.msgRoom[messageId]; !ok {
		return ErrNotFound
	}

	m.hideLocked(userId, messageId)
	return nil
}

func (m *MemoryRepository) hideLocked(userId, messageId string) {
	if m.hidden[userId] == nil {
		m.hidden[userId] = make(map[string]struct{})
	}
	m.hidden[userId][messageId] = struct{}{}
}

// ClearRoom hides every current message of roomId from userId. Other
// members keep seeing them.
func (m *MemoryRepository) ClearRoom(userId, roomId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[roomId]; !ok {
		return ErrNotFound
	}

	for _, msg := range m.messages[roomId] {
		m.hideLocked(userId, msg.Id)
	}

	return nil
}
