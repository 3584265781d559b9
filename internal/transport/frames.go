package transport

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/npezzotti/go-chatclient/internal/types"
)

type FrameType string

const (
	FrameMessage        FrameType = "message"
	FrameMessageDeleted FrameType = "message_deleted"
	FrameUserJoined     FrameType = "user_joined"
	FrameUserLeft       FrameType = "user_left"
	FrameTypingStatus   FrameType = "typing_status"
	FrameError          FrameType = "error"
	FrameTyping         FrameType = "typing"
)

var (
	ErrUnknownFrame   = errors.New("unknown frame type")
	ErrMalformedFrame = errors.New("malformed frame")
)

// OutboundMessage is the frame a client sends to post a message.
type OutboundMessage struct {
	Type        FrameType         `json:"type"`
	Content     string            `json:"content"`
	RoomId      string            `json:"room_id"`
	UserId      string            `json:"user_id"`
	MessageType types.MessageType `json:"message_type"`
	FileUrl     string            `json:"file_url,omitempty"`
}

type OutboundTyping struct {
	Type     FrameType `json:"type"`
	IsTyping bool      `json:"is_typing"`
}

func NewOutboundMessage(roomId, userId, content string, mt types.MessageType, fileUrl string) OutboundMessage {
	if mt == "" {
		mt = types.MessageTypeText
	}

	return OutboundMessage{
		Type:        FrameMessage,
		Content:     content,
		RoomId:      roomId,
		UserId:      userId,
		MessageType: mt,
		FileUrl:     fileUrl,
	}
}

func NewOutboundTyping(isTyping bool) OutboundTyping {
	return OutboundTyping{Type: FrameTyping, IsTyping: isTyping}
}

// Inbound is one decoded server frame.
type Inbound interface {
	FrameType() FrameType
}

// MessageFrame carries a newly created message. Servers send the id as
// either message_id or id.
type MessageFrame struct {
	Message types.Message
}

func (MessageFrame) FrameType() FrameType { return FrameMessage }

type MessageDeletedFrame struct {
	MessageId    string             `json:"message_id"`
	RoomId       string             `json:"room_id,omitempty"`
	DeletionType types.DeletionType `json:"deletion_type"`
	DeletedBy    string             `json:"deleted_by,omitempty"`
}

func (MessageDeletedFrame) FrameType() FrameType { return FrameMessageDeleted }

// PresenceFrame is a user_joined or user_left notice.
type PresenceFrame struct {
	Type   FrameType `json:"type"`
	UserId string    `json:"user_id"`
	RoomId string    `json:"room_id,omitempty"`
}

func (f PresenceFrame) FrameType() FrameType { return f.Type }

type TypingFrame struct {
	UsersTyping []string `json:"users_typing"`
}

func (TypingFrame) FrameType() FrameType { return FrameTypingStatus }

type ErrorFrame struct {
	Message string `json:"message"`
}

func (ErrorFrame) FrameType() FrameType { return FrameError }

func (f ErrorFrame) Error() string {
	return f.Message
}

// DecodeFrame parses one text frame. It returns ErrMalformedFrame for
// invalid JSON and ErrUnknownFrame for types it does not handle.
func DecodeFrame(raw []byte) (Inbound, error) {
	var head struct {
		Type FrameType `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch head.Type {
	case FrameMessage:
		return decodeMessage(raw)
	case FrameMessageDeleted:
		var f MessageDeletedFrame
		if err := unmarshalFrame(raw, &f); err != nil {
			return nil, err
		}
		if f.MessageId == "" {
			return nil, fmt.Errorf("%w: message_deleted without message_id", ErrMalformedFrame)
		}
		return f, nil
	case FrameUserJoined, FrameUserLeft:
		var f PresenceFrame
		if err := unmarshalFrame(raw, &f); err != nil {
			return nil, err
		}
		return f, nil
	case FrameTypingStatus:
		var f TypingFrame
		if err := unmarshalFrame(raw, &f); err != nil {
			return nil, err
		}
		return f, nil
	case FrameError:
		var f ErrorFrame
		if err := unmarshalFrame(raw, &f); err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, head.Type)
	}
}

func decodeMessage(raw []byte) (Inbound, error) {
	var msg types.Message
	if err := unmarshalFrame(raw, &msg); err != nil {
		return nil, err
	}

	if msg.Type == "" {
		msg.Type = types.MessageTypeText
	}
	if msg.SenderName == "" && msg.User != nil {
		msg.SenderName = msg.User.Username
	}

	return MessageFrame{Message: msg}, nil
}

func unmarshalFrame(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	return nil
}
