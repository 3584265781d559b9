package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/npezzotti/go-chatclient/internal/api"
	"github.com/npezzotti/go-chatclient/internal/session"
	"github.com/npezzotti/go-chatclient/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockSession struct {
	mock.Mock
}

func (m *mockSession) Snapshot(ctx context.Context) (session.View, error) {
	args := m.Called(ctx)
	return args.Get(0).(session.View), args.Error(1)
}
func (m *mockSession) LoadRooms(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
func (m *mockSession) SelectRoom(ctx context.Context, roomId string) error {
	return m.Called(ctx, roomId).Error(0)
}
func (m *mockSession) CreateRoom(ctx context.Context, req api.CreateRoomRequest) (*types.Room, error) {
	args := m.Called(ctx, req)
	room, _ := args.Get(0).(*types.Room)
	return room, args.Error(1)
}
func (m *mockSession) JoinRoom(ctx context.Context, code string) error {
	return m.Called(ctx, code).Error(0)
}
func (m *mockSession) OpenDM(ctx context.Context, targetUserId string) (*types.Room, error) {
	args := m.Called(ctx, targetUserId)
	room, _ := args.Get(0).(*types.Room)
	return room, args.Error(1)
}
func (m *mockSession) Send(ctx context.Context, content string, mt types.MessageType, fileUrl string) error {
	return m.Called(ctx, content, mt, fileUrl).Error(0)
}
func (m *mockSession) SendFile(ctx context.Context, filename string, r io.Reader) error {
	return m.Called(ctx, filename, r).Error(0)
}
func (m *mockSession) DeleteMessage(ctx context.Context, messageId string, dt types.DeletionType) error {
	return m.Called(ctx, messageId, dt).Error(0)
}
func (m *mockSession) ClearRoom(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
func (m *mockSession) RefreshMembers(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
func (m *mockSession) Logout(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

var testView = session.View{
	State:  session.StateActive,
	RoomId: "r1",
	Rooms: []types.Room{
		{Id: "r1", Name: "general", MemberCount: 2},
		{Id: "r2", Name: "Random", MemberCount: 1, HasUnread: true},
	},
	Members: []types.RoomMember{
		{UserId: "u1", Role: types.RoleOwner, User: &types.User{Id: "u1", Username: "alice"}},
		{UserId: "u2", Role: types.RoleMember},
	},
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	upload := io.NopCloser(strings.NewReader("data"))

	tcases := []struct {
		name      string
		line      string
		setup     func(m *mockSession)
		quit      bool
		err       error
		errText   string
		expectOut string
	}{
		{
			name: "blank line",
			line: "   ",
		},
		{
			name: "plain text sends",
			line: "hello there",
			setup: func(m *mockSession) {
				m.On("Send", ctx, "hello there", types.MessageTypeText, "").Return(nil).Once()
			},
		},
		{
			name: "send error",
			line: "hello",
			setup: func(m *mockSession) {
				m.On("Send", ctx, "hello", types.MessageTypeText, "").Return(session.ErrNotConnected).Once()
			},
			err: session.ErrNotConnected,
		},
		{
			name:      "help",
			line:      "/help",
			expectOut: "/join <code>",
		},
		{
			name: "quit",
			line: "/quit",
			quit: true,
		},
		{
			name: "rooms",
			line: "/rooms",
			setup: func(m *mockSession) {
				m.On("LoadRooms", ctx).Return(nil).Once()
				m.On("Snapshot", ctx).Return(testView, nil).Once()
			},
			expectOut: "> r1  general (2 members)\n  r2  Random (1 members) *\n",
		},
		{
			name: "open by name",
			line: "/open random",
			setup: func(m *mockSession) {
				m.On("Snapshot", ctx).Return(testView, nil).Once()
				m.On("SelectRoom", ctx, "r2").Return(nil).Once()
			},
		},
		{
			name: "open unknown",
			line: "/open nowhere",
			setup: func(m *mockSession) {
				m.On("Snapshot", ctx).Return(testView, nil).Once()
			},
			err: session.ErrRoomNotFound,
		},
		{
			name: "open without argument",
			line: "/open",
			err:  errUsage,
		},
		{
			name: "create private",
			line: "/create book club -p",
			setup: func(m *mockSession) {
				m.On("CreateRoom", ctx, api.CreateRoomRequest{Name: "book club", IsPrivate: true}).
					Return(&types.Room{Id: "r3", Name: "book club", JoinCode: "abc123"}, nil).Once()
			},
			expectOut: "created book club, join code abc123\n",
		},
		{
			name: "create without name",
			line: "/create -p",
			err:  errUsage,
		},
		{
			name: "join",
			line: "/join abc123",
			setup: func(m *mockSession) {
				m.On("JoinRoom", ctx, "abc123").Return(nil).Once()
			},
		},
		{
			name: "dm",
			line: "/dm u2",
			setup: func(m *mockSession) {
				m.On("OpenDM", ctx, "u2").Return(&types.Room{Id: "dm1"}, nil).Once()
			},
		},
		{
			name: "delete for me",
			line: "/delete m1",
			setup: func(m *mockSession) {
				m.On("DeleteMessage", ctx, "m1", types.DeleteForMe).Return(nil).Once()
			},
		},
		{
			name: "delete for everyone",
			line: "/delete m1 -all",
			setup: func(m *mockSession) {
				m.On("DeleteMessage", ctx, "m1", types.DeleteForEveryone).Return(nil).Once()
			},
		},
		{
			name: "delete bad flag",
			line: "/delete m1 -everyone",
			err:  errUsage,
		},
		{
			name: "clear",
			line: "/clear",
			setup: func(m *mockSession) {
				m.On("ClearRoom", ctx).Return(nil).Once()
			},
		},
		{
			name: "upload",
			line: "/upload /tmp/pics/cat.png",
			setup: func(m *mockSession) {
				m.On("SendFile", ctx, "cat.png", upload).Return(nil).Once()
			},
		},
		{
			name: "members",
			line: "/members",
			setup: func(m *mockSession) {
				m.On("RefreshMembers", ctx).Return(nil).Once()
				m.On("Snapshot", ctx).Return(testView, nil).Once()
			},
			expectOut: "  alice (owner)\n  u2 (member)\n",
		},
		{
			name: "logout",
			line: "/logout",
			setup: func(m *mockSession) {
				m.On("Logout", ctx).Return(nil).Once()
			},
			quit: true,
		},
		{
			name:    "unknown command",
			line:    "/shout hi",
			errText: "unknown command /shout",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			m := &mockSession{}
			defer m.AssertExpectations(t)
			if tc.setup != nil {
				tc.setup(m)
			}

			out := &bytes.Buffer{}
			c := &commander{
				s:   m,
				out: out,
				open: func(name string) (io.ReadCloser, error) {
					assert.Equal(t, "/tmp/pics/cat.png", name)
					return upload, nil
				},
			}

			quit, err := c.dispatch(ctx, tc.line)
			assert.Equal(t, tc.quit, quit, "quit")
			switch {
			case tc.err != nil:
				assert.ErrorIs(t, err, tc.err)
			case tc.errText != "":
				assert.ErrorContains(t, err, tc.errText)
			default:
				assert.NoError(t, err)
			}
			if tc.expectOut != "" {
				assert.Contains(t, out.String(), tc.expectOut)
			}
		})
	}
}

func TestUploadOpenError(t *testing.T) {
	m := &mockSession{}
	defer m.AssertExpectations(t)

	openErr := errors.New("no such file")
	c := &commander{
		s:    m,
		out:  io.Discard,
		open: func(string) (io.ReadCloser, error) { return nil, openErr },
	}

	_, err := c.dispatch(context.Background(), "/upload missing.png")
	assert.ErrorIs(t, err, openErr)
	m.AssertNotCalled(t, "SendFile", mock.Anything, mock.Anything, mock.Anything)
}

func TestMembersWithoutRoom(t *testing.T) {
	m := &mockSession{}
	defer m.AssertExpectations(t)
	m.On("RefreshMembers", mock.Anything).Return(nil).Once()
	m.On("Snapshot", mock.Anything).Return(session.View{}, nil).Once()

	c := &commander{s: m, out: io.Discard}
	_, err := c.dispatch(context.Background(), "/members")
	assert.ErrorIs(t, err, session.ErrNoRoomSelected)
}
