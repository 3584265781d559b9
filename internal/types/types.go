package types

import (
	"time"
)

type MessageType string

const (
	MessageTypeText      MessageType = "text"
	MessageTypeImage     MessageType = "image"
	MessageTypeVideo     MessageType = "video"
	MessageTypeAudio     MessageType = "audio"
	MessageTypeFile      MessageType = "file"
	MessageTypeEmbed     MessageType = "embed"
	MessageTypeSystem    MessageType = "system"
	MessageTypeEncrypted MessageType = "encrypted"
	MessageTypeBroadcast MessageType = "broadcast"
)

type MemberRole string

const (
	RoleMember    MemberRole = "member"
	RoleAdmin     MemberRole = "admin"
	RoleModerator MemberRole = "moderator"
	RoleOwner     MemberRole = "owner"
)

type DeletionType string

const (
	DeleteForMe       DeletionType = "for_me"
	DeleteForEveryone DeletionType = "for_everyone"
)

type User struct {
	Id        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	AvatarUrl string `json:"avatar_url,omitempty"`
}

type Message struct {
	Id         string      `json:"id"`
	RoomId     string      `json:"room_id"`
	UserId     string      `json:"user_id"`
	Content    string      `json:"content"`
	Type       MessageType `json:"message_type"`
	FileUrl    string      `json:"file_url,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	EditedAt   *time.Time  `json:"edited_at,omitempty"`
	SenderName string      `json:"sender_name,omitempty"`
	User       *User       `json:"user,omitempty"`
}

type Room struct {
	Id           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	IsPrivate    bool      `json:"is_private"`
	JoinCode     string    `json:"join_code,omitempty"`
	MemberCount  int       `json:"member_count"`
	CreatedBy    string    `json:"created_by,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	LastActivity time.Time `json:"last_activity,omitempty"`
	HasUnread    bool      `json:"has_unread"`
}

type RoomMember struct {
	RoomId string     `json:"room_id"`
	UserId string     `json:"user_id"`
	Role   MemberRole `json:"role"`
	User   *User      `json:"user,omitempty"`
}

// RoomDetail is a room together with its membership list.
type RoomDetail struct {
	Room
	Members []RoomMember `json:"members"`
}
