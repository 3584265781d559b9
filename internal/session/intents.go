package session

import (
	"context"
	"fmt"
	"io"

	"github.com/npezzotti/go-chatclient/internal/api"
	"github.com/npezzotti/go-chatclient/internal/transport"
	"github.com/npezzotti/go-chatclient/internal/types"
)

type messageIntent struct {
	Content     string            `validate:"required"`
	MessageType types.MessageType `validate:"required,oneof=text image video audio file embed system encrypted broadcast"`
}

type deleteIntent struct {
	MessageId    string             `validate:"required"`
	DeletionType types.DeletionType `validate:"required,oneof=for_me for_everyone"`
}

func (c *Controller) request(ctx context.Context, ev any, reply <-chan error) error {
	if err := c.post(ctx, ev); err != nil {
		return err
	}

	err, werr := await(ctx, c, reply)
	if werr != nil {
		return werr
	}

	return err
}

// SelectRoom switches to roomId. It returns once the switch has started;
// watch Updates for the room becoming active.
func (c *Controller) SelectRoom(ctx context.Context, roomId string) error {
	reply := make(chan error, 1)
	return c.request(ctx, selectRoomReq{roomId: roomId, reply: reply}, reply)
}

// LoadRooms fetches the room list. After the first load following sign-in
// the last visited room is selected again if it still exists.
func (c *Controller) LoadRooms(ctx context.Context) error {
	rooms, err := c.api.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}
	if rooms == nil {
		rooms = []types.Room{}
	}

	var restore string
	if c.prefs != nil {
		restore, err = c.prefs.LastVisitedRoom(ctx, c.user.UserId)
		if err != nil {
			c.log.Warn().Err(err).Msg("failed to read last visited room")
		}
	}

	reply := make(chan error, 1)
	return c.request(ctx, roomsLoaded{rooms: rooms, restore: restore, reply: reply}, reply)
}

// CreateRoom creates a room and selects it.
func (c *Controller) CreateRoom(ctx context.Context, req api.CreateRoomRequest) (*types.Room, error) {
	room, err := c.api.CreateRoom(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}

	reply := make(chan error, 1)
	ev := roomsLoaded{selectId: room.Id, fallback: room, reply: reply}
	if err := c.request(ctx, ev, reply); err != nil {
		return nil, err
	}

	return room, nil
}

// JoinRoom joins by code, reloads the room list and selects the room
// whose join code matches.
func (c *Controller) JoinRoom(ctx context.Context, code string) error {
	if err := c.api.JoinRoom(ctx, code); err != nil {
		return fmt.Errorf("join room: %w", err)
	}

	rooms, err := c.api.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}

	reply := make(chan error, 1)
	return c.request(ctx, roomsLoaded{rooms: rooms, joinCode: code, reply: reply}, reply)
}

// OpenDM opens the direct message room with targetUserId and selects it.
func (c *Controller) OpenDM(ctx context.Context, targetUserId string) (*types.Room, error) {
	room, err := c.api.CreateOrGetDM(ctx, targetUserId)
	if err != nil {
		return nil, fmt.Errorf("open dm: %w", err)
	}

	rooms, err := c.api.ListRooms(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to reload rooms after opening dm")
		rooms = nil
	}

	reply := make(chan error, 1)
	ev := roomsLoaded{rooms: rooms, selectId: room.Id, fallback: room, reply: reply}
	if err := c.request(ctx, ev, reply); err != nil {
		return nil, err
	}

	return room, nil
}

// Send transmits a message on the active channel. Nothing is added to the
// store; the server echo is the only way a message appears.
func (c *Controller) Send(ctx context.Context, content string, mt types.MessageType, fileUrl string) error {
	return c.sendMessage(ctx, "", content, mt, fileUrl)
}

func (c *Controller) sendMessage(ctx context.Context, roomId, content string, mt types.MessageType, fileUrl string) error {
	if mt == "" {
		mt = types.MessageTypeText
	}
	if err := c.validate.Struct(messageIntent{Content: content, MessageType: mt}); err != nil {
		return api.NewBadRequestError(err)
	}

	build := func(roomId string) any {
		return transport.NewOutboundMessage(roomId, c.user.UserId, content, mt, fileUrl)
	}

	reply := make(chan error, 1)
	return c.request(ctx, sendReq{roomId: roomId, build: build, reply: reply}, reply)
}

func (c *Controller) SetTyping(ctx context.Context, isTyping bool) error {
	reply := make(chan error, 1)
	build := func(string) any { return transport.NewOutboundTyping(isTyping) }
	return c.request(ctx, sendReq{build: build, reply: reply}, reply)
}

// SendFile uploads r and sends its URL as an image or file message to the
// room selected when the upload started. It returns ErrRoomChanged when
// another room was selected in the meantime.
func (c *Controller) SendFile(ctx context.Context, filename string, r io.Reader) error {
	roomId, err := c.CurrentRoom(ctx)
	if err != nil {
		return err
	}
	if roomId == "" {
		return ErrNoRoomSelected
	}

	res, err := c.api.Upload(ctx, filename, r)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	mt := types.MessageTypeFile
	if res.IsImage() {
		mt = types.MessageTypeImage
	}

	return c.sendMessage(ctx, roomId, res.FileUrl, mt, res.FileUrl)
}

// DeleteMessage deletes a message. "for_me" removes it locally at once and
// then calls the server; a failed call is returned but not rolled back.
// "for_everyone" only calls the server and the message disappears when
// the deletion broadcast arrives.
func (c *Controller) DeleteMessage(ctx context.Context, messageId string, dt types.DeletionType) error {
	if err := c.validate.Struct(deleteIntent{MessageId: messageId, DeletionType: dt}); err != nil {
		return api.NewBadRequestError(err)
	}

	if dt == types.DeleteForMe {
		reply := make(chan roomResult, 1)
		if err := c.post(ctx, deleteLocalReq{messageId: messageId, reply: reply}); err != nil {
			return err
		}
		res, err := await(ctx, c, reply)
		if err != nil {
			return err
		}
		if res.err != nil {
			return res.err
		}
	}

	if err := c.api.DeleteMessage(ctx, messageId, dt); err != nil {
		if dt == types.DeleteForMe {
			c.log.Warn().Err(err).Str("message_id", messageId).Msg("delete failed after local removal")
		}
		return fmt.Errorf("delete message: %w", err)
	}

	return nil
}

// ClearRoom empties the selected room locally and then on the server. A
// failed server call is returned but not rolled back.
func (c *Controller) ClearRoom(ctx context.Context) error {
	reply := make(chan roomResult, 1)
	if err := c.post(ctx, clearLocalReq{reply: reply}); err != nil {
		return err
	}

	res, err := await(ctx, c, reply)
	if err != nil {
		return err
	}
	if res.err != nil {
		return res.err
	}

	if err := c.api.ClearRoomMessages(ctx, res.roomId); err != nil {
		c.log.Warn().Err(err).Str("room_id", res.roomId).Msg("clear failed after local clear")
		return fmt.Errorf("clear room: %w", err)
	}

	return nil
}

// RefreshMembers reloads the member list of the selected room.
func (c *Controller) RefreshMembers(ctx context.Context) error {
	roomId, err := c.CurrentRoom(ctx)
	if err != nil {
		return err
	}
	if roomId == "" {
		return ErrNoRoomSelected
	}

	detail, err := c.api.GetRoom(ctx, roomId)
	if err != nil {
		return fmt.Errorf("refresh members: %w", err)
	}

	return c.post(ctx, membersLoaded{roomId: roomId, detail: detail})
}

// CurrentRoom returns the selected room id, or "" when none is selected.
func (c *Controller) CurrentRoom(ctx context.Context) (string, error) {
	reply := make(chan string, 1)
	if err := c.post(ctx, currentRoomReq{reply: reply}); err != nil {
		return "", err
	}

	return await(ctx, c, reply)
}

// Logout closes the channel, drops all cached state and clears the token.
func (c *Controller) Logout(ctx context.Context) error {
	reply := make(chan struct{})
	if err := c.post(ctx, logoutReq{reply: reply}); err != nil {
		return err
	}

	_, err := await(ctx, c, reply)
	return err
}
