package devserver

import (
	"github.com/npezzotti/go-chatclient/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

var _ Repository = (*MockRepository)(nil)

func (m *MockRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetAccountById(id string) (User, error) {
	args := m.Called(id)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetAccountByLogin(login string) (User, error) {
	args := m.Called(login)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRepository) GetRoom(id string) (Room, error) {
	args := m.Called(id)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRepository) GetRoomByJoinCode(code string) (Room, error) {
	args := m.Called(code)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRepository) GetOrCreateDM(userId, targetId string) (Room, error) {
	args := m.Called(userId, targetId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRepository) ListRoomsForUser(userId string) ([]Room, error) {
	args := m.Called(userId)
	rooms, _ := args.Get(0).([]Room)
	return rooms, args.Error(1)
}
func (m *MockRepository) AddMember(roomId, userId string, role types.MemberRole) error {
	args := m.Called(roomId, userId, role)
	return args.Error(0)
}
func (m *MockRepository) IsMember(roomId, userId string) bool {
	args := m.Called(roomId, userId)
	return args.Bool(0)
}
func (m *MockRepository) ListMembers(roomId string) ([]Member, error) {
	args := m.Called(roomId)
	members, _ := args.Get(0).([]Member)
	return members, args.Error(1)
}
func (m *MockRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRepository) GetMessage(id string) (Message, error) {
	args := m.Called(id)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRepository) GetMessages(roomId, userId string, limit int) ([]Message, error) {
	args := m.Called(roomId, userId, limit)
	msgs, _ := args.Get(0).([]Message)
	return msgs, args.Error(1)
}
func (m *MockRepository) DeleteMessage(id string) error {
	args := m.Called(id)
	return args.Error(0)
}
func (m *MockRepository) HideMessage(userId, messageId string) error {
	args := m.Called(userId, messageId)
	return args.Error(0)
}
func (m *MockRepository) ClearRoom(userId, roomId string) error {
	args := m.Called(userId, roomId)
	return args.Error(0)
}
