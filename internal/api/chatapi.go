package api

import (
	"context"
	"io"

	"github.com/npezzotti/go-chatclient/internal/types"
)

// ChatAPI is the set of REST operations the session controller depends on.
type ChatAPI interface {
	ListRooms(ctx context.Context) ([]types.Room, error)
	GetRoom(ctx context.Context, roomId string) (*types.RoomDetail, error)
	CreateRoom(ctx context.Context, req CreateRoomRequest) (*types.Room, error)
	JoinRoom(ctx context.Context, code string) error
	CreateOrGetDM(ctx context.Context, targetUserId string) (*types.Room, error)
	ListMessages(ctx context.Context, roomId string, limit int) ([]types.Message, error)
	DeleteMessage(ctx context.Context, messageId string, dt types.DeletionType) error
	ClearRoomMessages(ctx context.Context, roomId string) error
	Upload(ctx context.Context, filename string, r io.Reader) (*UploadResult, error)
}

var _ ChatAPI = (*Client)(nil)
