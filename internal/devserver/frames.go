package devserver

import (
	"time"

	"github.com/npezzotti/go-chatclient/internal/types"
)

const (
	frameMessage        = "message"
	frameMessageDeleted = "message_deleted"
	frameUserJoined     = "user_joined"
	frameUserLeft       = "user_left"
	frameTypingStatus   = "typing_status"
	frameError          = "error"
	frameTyping         = "typing"
)

// ClientFrame is anything a websocket client sends.
type ClientFrame struct {
	Type        string            `json:"type"`
	Content     string            `json:"content,omitempty"`
	MessageType types.MessageType `json:"message_type,omitempty"`
	FileUrl     string            `json:"file_url,omitempty"`
	IsTyping    bool              `json:"is_typing,omitempty"`
}

type MessageFrame struct {
	Type        string            `json:"type"`
	MessageId   string            `json:"message_id"`
	Content     string            `json:"content"`
	UserId      string            `json:"user_id"`
	SenderName  string            `json:"sender_name"`
	User        *types.User       `json:"user,omitempty"`
	MessageType types.MessageType `json:"message_type"`
	FileUrl     string            `json:"file_url,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

type MessageDeletedFrame struct {
	Type         string             `json:"type"`
	MessageId    string             `json:"message_id"`
	DeletionType types.DeletionType `json:"deletion_type"`
	DeletedBy    string             `json:"deleted_by,omitempty"`
}

type PresenceFrame struct {
	Type      string    `json:"type"`
	UserId    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

type TypingStatusFrame struct {
	Type        string   `json:"type"`
	UsersTyping []string `json:"users_typing"`
}

type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewMessageFrame(msg Message, sender User) *MessageFrame {
	u := toWireUser(sender)
	return &MessageFrame{
		Type:        frameMessage,
		MessageId:   msg.Id,
		Content:     msg.Content,
		UserId:      msg.UserId,
		SenderName:  sender.Username,
		User:        &u,
		MessageType: msg.Type,
		FileUrl:     msg.FileUrl,
		CreatedAt:   msg.CreatedAt,
	}
}

func NewMessageDeletedFrame(messageId string, dt types.DeletionType, deletedBy string) *MessageDeletedFrame {
	return &MessageDeletedFrame{
		Type:         frameMessageDeleted,
		MessageId:    messageId,
		DeletionType: dt,
		DeletedBy:    deletedBy,
	}
}

func NewErrorFrame(msg string) *ErrorFrame {
	return &ErrorFrame{Type: frameError, Message: msg}
}

func newPresenceFrame(frameType, userId string) *PresenceFrame {
	return &PresenceFrame{Type: frameType, UserId: userId, Timestamp: now()}
}

func toWireUser(u User) types.User {
	return types.User{
		Id:       u.Id,
		Username: u.Username,
		Email:    u.Email,
	}
}

func toWireRoom(r Room, memberCount int) types.Room {
	return types.Room{
		Id:           r.Id,
		Name:         r.Name,
		Description:  r.Description,
		IsPrivate:    r.IsPrivate,
		JoinCode:     r.JoinCode,
		MemberCount:  memberCount,
		CreatedBy:    r.OwnerId,
		CreatedAt:    r.CreatedAt,
		LastActivity: r.LastActivity,
	}
}

func toWireMessage(msg Message, sender *User) types.Message {
	out := types.Message{
		Id:        msg.Id,
		RoomId:    msg.RoomId,
		UserId:    msg.UserId,
		Content:   msg.Content,
		Type:      msg.Type,
		FileUrl:   msg.FileUrl,
		CreatedAt: msg.CreatedAt,
	}
	if sender != nil {
		u := toWireUser(*sender)
		out.User = &u
		out.SenderName = sender.Username
	}

	return out
}
