package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/npezzotti/go-chatclient/internal/types"
)

type CreateRoomRequest struct {
	Name        string `json:"name" validate:"required,min=3,max=50"`
	Description string `json:"description,omitempty" validate:"max=500"`
	IsPrivate   bool   `json:"is_private"`
}

type createDMRequest struct {
	TargetUserId string `json:"target_user_id" validate:"required"`
}

type joinCodeRequest struct {
	Code string `validate:"required,alphanum"`
}

func (c *Client) ListRooms(ctx context.Context) ([]types.Room, error) {
	var rooms []types.Room
	if err := c.doJSON(ctx, http.MethodGet, "/rooms/", nil, &rooms); err != nil {
		return nil, err
	}

	return rooms, nil
}

func (c *Client) GetRoom(ctx context.Context, roomId string) (*types.RoomDetail, error) {
	var detail types.RoomDetail
	if err := c.doJSON(ctx, http.MethodGet, "/rooms/"+url.PathEscape(roomId), nil, &detail); err != nil {
		return nil, err
	}

	return &detail, nil
}

func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (*types.Room, error) {
	if err := c.validateRequest(req); err != nil {
		return nil, err
	}

	var room types.Room
	if err := c.doJSON(ctx, http.MethodPost, "/rooms/", req, &room); err != nil {
		return nil, err
	}

	return &room, nil
}

// JoinRoom joins the room behind code. The response carries no room, so
// callers reload the room list to find it.
func (c *Client) JoinRoom(ctx context.Context, code string) error {
	if err := c.validateRequest(joinCodeRequest{Code: code}); err != nil {
		return err
	}

	return c.doJSON(ctx, http.MethodPost, "/rooms/join/"+url.PathEscape(code), nil, nil)
}

// CreateOrGetDM returns the direct-message room shared with targetUserId,
// creating it if needed.
func (c *Client) CreateOrGetDM(ctx context.Context, targetUserId string) (*types.Room, error) {
	req := createDMRequest{TargetUserId: targetUserId}
	if err := c.validateRequest(req); err != nil {
		return nil, err
	}

	var room types.Room
	if err := c.doJSON(ctx, http.MethodPost, "/rooms/dm", req, &room); err != nil {
		return nil, err
	}

	return &room, nil
}
