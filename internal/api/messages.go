package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/npezzotti/go-chatclient/internal/types"
)

const DefaultHistoryLimit = 100

type deleteMessageRequest struct {
	DeletionType types.DeletionType `json:"deletion_type" validate:"required,oneof=for_me for_everyone"`
}

// ListMessages returns up to limit messages of a room, newest first.
func (c *Client) ListMessages(ctx context.Context, roomId string, limit int) ([]types.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	path := "/messages/rooms/" + url.PathEscape(roomId) + "/messages?limit=" + strconv.Itoa(limit)

	var msgs []types.Message
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}

	for i := range msgs {
		if msgs[i].RoomId == "" {
			msgs[i].RoomId = roomId
		}
	}

	return msgs, nil
}

func (c *Client) DeleteMessage(ctx context.Context, messageId string, dt types.DeletionType) error {
	req := deleteMessageRequest{DeletionType: dt}
	if err := c.validateRequest(req); err != nil {
		return err
	}

	return c.doJSON(ctx, http.MethodDelete, "/messages/messages/"+url.PathEscape(messageId), req, nil)
}

func (c *Client) ClearRoomMessages(ctx context.Context, roomId string) error {
	return c.doJSON(ctx, http.MethodDelete, "/messages/rooms/"+url.PathEscape(roomId)+"/messages/clear", nil, nil)
}
