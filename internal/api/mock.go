package api

import (
	"context"
	"io"

	"github.com/npezzotti/go-chatclient/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockChatAPI struct {
	mock.Mock
}

func (m *MockChatAPI) ListRooms(ctx context.Context) ([]types.Room, error) {
	args := m.Called(ctx)
	rooms, _ := args.Get(0).([]types.Room)
	return rooms, args.Error(1)
}

func (m *MockChatAPI) GetRoom(ctx context.Context, roomId string) (*types.RoomDetail, error) {
	args := m.Called(ctx, roomId)
	detail, _ := args.Get(0).(*types.RoomDetail)
	return detail, args.Error(1)
}

func (m *MockChatAPI) CreateRoom(ctx context.Context, req CreateRoomRequest) (*types.Room, error) {
	args := m.Called(ctx, req)
	room, _ := args.Get(0).(*types.Room)
	return room, args.Error(1)
}

func (m *MockChatAPI) JoinRoom(ctx context.Context, code string) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}

func (m *MockChatAPI) CreateOrGetDM(ctx context.Context, targetUserId string) (*types.Room, error) {
	args := m.Called(ctx, targetUserId)
	room, _ := args.Get(0).(*types.Room)
	return room, args.Error(1)
}

func (m *MockChatAPI) ListMessages(ctx context.Context, roomId string, limit int) ([]types.Message, error) {
	args := m.Called(ctx, roomId, limit)
	msgs, _ := args.Get(0).([]types.Message)
	return msgs, args.Error(1)
}

func (m *MockChatAPI) DeleteMessage(ctx context.Context, messageId string, dt types.DeletionType) error {
	args := m.Called(ctx, messageId, dt)
	return args.Error(0)
}

func (m *MockChatAPI) ClearRoomMessages(ctx context.Context, roomId string) error {
	args := m.Called(ctx, roomId)
	return args.Error(0)
}

func (m *MockChatAPI) Upload(ctx context.Context, filename string, r io.Reader) (*UploadResult, error) {
	args := m.Called(ctx, filename, r)
	res, _ := args.Get(0).(*UploadResult)
	return res, args.Error(1)
}
