package devserver

import (
	"errors"
	"time"

	"github.com/npezzotti/go-chatclient/internal/types"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

type User struct {
	Id           string
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type Room struct {
	Id           string
	Name         string
	Description  string
	IsPrivate    bool
	IsDirect     bool
	JoinCode     string
	OwnerId      string
	CreatedAt    time.Time
	LastActivity time.Time
}

type Member struct {
	RoomId   string
	UserId   string
	Role     types.MemberRole
	JoinedAt time.Time

	seq uint64
}

type Message struct {
	Id        string
	RoomId    string
	UserId    string
	Content   string
	Type      types.MessageType
	FileUrl   string
	CreatedAt time.Time
}

type CreateAccountParams struct {
	Username     string
	Email        string
	PasswordHash string
}

type CreateRoomParams struct {
	Name        string
	Description string
	IsPrivate   bool
	OwnerId     string
	JoinCode    string
}

type CreateMessageParams struct {
	RoomId  string
	UserId  string
	Content string
	Type    types.MessageType
	FileUrl string
}

// Repository is the storage behind the development server.
type Repository interface {
	CreateAccount(params CreateAccountParams) (User, error)
	GetAccountById(id string) (User, error)
	// GetAccountByLogin looks a user up by username or email address.
	GetAccountByLogin(login string) (User, error)
	CreateRoom(params CreateRoomParams) (Room, error)
	GetRoom(id string) (Room, error)
	GetRoomByJoinCode(code string) (Room, error)
	GetOrCreateDM(userId, targetId string) (Room, error)
	ListRoomsForUser(userId string) ([]Room, error)
	AddMember(roomId, userId string, role types.MemberRole) error
	IsMember(roomId, userId string) bool
	ListMembers(roomId string) ([]Member, error)
	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessage(id string) (Message, error)
	// GetMessages returns up to limit messages of a room, newest first,
	// leaving out the ones userId has hidden.
	GetMessages(roomId, userId string, limit int) ([]Message, error)
	DeleteMessage(id string) error
	HideMessage(userId, messageId string) error
	ClearRoom(userId, roomId string) error
}
