package devserver

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/npezzotti/go-chatclient/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustAccount(t *testing.T, repo Repository, username string) User {
	t.Helper()
	u, err := repo.CreateAccount(CreateAccountParams{Username: username, Email: username + "@example.com", PasswordHash: "x"})
	require.NoError(t, err, "create account %s", username)
	return u
}

func forEachRepository(t *testing.T, fn func(t *testing.T, repo Repository)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryRepository())
	})
	t.Run("sqlite", func(t *testing.T) {
		repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "devserver.db"))
		require.NoError(t, err)
		t.Cleanup(func() { repo.Close() })
		fn(t, repo)
	})
}

func TestRepositoryAccounts(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo Repository) {
		alice := mustAccount(t, repo, "alice")

		tcases := []struct {
			name   string
			params CreateAccountParams
			err    error
		}{
			{
				name:   "duplicate username",
				params: CreateAccountParams{Username: "Alice"},
				err:    ErrConflict,
			},
			{
				name:   "duplicate email",
				params: CreateAccountParams{Username: "alice2", Email: "ALICE@example.com"},
				err:    ErrConflict,
			},
			{
				name:   "new account",
				params: CreateAccountParams{Username: "bob"},
			},
		}

		for _, tc := range tcases {
			t.Run(tc.name, func(t *testing.T) {
				u, err := repo.CreateAccount(tc.params)
				if tc.err != nil {
					assert.ErrorIs(t, err, tc.err)
					return
				}
				assert.NoError(t, err)
				assert.NotEmpty(t, u.Id, "expected an id")
			})
		}

		for _, login := range []string{"alice", "ALICE", "alice@example.com"} {
			u, err := repo.GetAccountByLogin(login)
			assert.NoError(t, err, "login %s", login)
			assert.Equal(t, alice.Id, u.Id, "login %s", login)
		}

		_, err := repo.GetAccountById("missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRepositoryRooms(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo Repository) {
		alice := mustAccount(t, repo, "alice")
		bob := mustAccount(t, repo, "bob")

		room, err := repo.CreateRoom(CreateRoomParams{Name: "general", OwnerId: alice.Id, JoinCode: "abc123"})
		require.NoError(t, err)

		members, err := repo.ListMembers(room.Id)
		require.NoError(t, err)
		require.Len(t, members, 1)
		assert.Equal(t, types.RoleOwner, members[0].Role, "expected creator to own the room")

		_, err = repo.CreateRoom(CreateRoomParams{Name: "other", OwnerId: alice.Id, JoinCode: "abc123"})
		assert.ErrorIs(t, err, ErrConflict, "expected join codes to be unique")

		_, err = repo.CreateRoom(CreateRoomParams{Name: "orphan", OwnerId: "missing"})
		assert.ErrorIs(t, err, ErrNotFound)

		found, err := repo.GetRoomByJoinCode("abc123")
		require.NoError(t, err)
		assert.Equal(t, room.Id, found.Id)

		assert.False(t, repo.IsMember(room.Id, bob.Id))
		require.NoError(t, repo.AddMember(room.Id, bob.Id, types.RoleMember))
		require.NoError(t, repo.AddMember(room.Id, bob.Id, types.RoleAdmin), "expected re-adding a member to succeed")
		assert.True(t, repo.IsMember(room.Id, bob.Id))

		members, err = repo.ListMembers(room.Id)
		require.NoError(t, err)
		require.Len(t, members, 2)
		assert.Equal(t, types.RoleMember, members[1].Role, "expected the first role to stick")

		assert.ErrorIs(t, repo.AddMember("missing", bob.Id, types.RoleMember), ErrNotFound)
		assert.ErrorIs(t, repo.AddMember(room.Id, "missing", types.RoleMember), ErrNotFound)
	})
}

func TestRepositoryListRoomsByActivity(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo Repository) {
		alice := mustAccount(t, repo, "alice")

		older, err := repo.CreateRoom(CreateRoomParams{Name: "older", OwnerId: alice.Id})
		require.NoError(t, err)
		newer, err := repo.CreateRoom(CreateRoomParams{Name: "newer", OwnerId: alice.Id})
		require.NoError(t, err)

		time.Sleep(2 * time.Millisecond)
		_, err = repo.CreateMessage(CreateMessageParams{RoomId: older.Id, UserId: alice.Id, Content: "bump"})
		require.NoError(t, err)

		rooms, err := repo.ListRoomsForUser(alice.Id)
		require.NoError(t, err)
		require.Len(t, rooms, 2)
		assert.Equal(t, older.Id, rooms[0].Id, "expected the most active room first")
		assert.Equal(t, newer.Id, rooms[1].Id)

		rooms, err = repo.ListRoomsForUser("nobody")
		assert.NoError(t, err)
		assert.NotNil(t, rooms, "expected an empty list, not nil")
		assert.Empty(t, rooms)
	})
}

func TestRepositoryDirectMessages(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo Repository) {
		alice := mustAccount(t, repo, "alice")
		bob := mustAccount(t, repo, "bob")

		dm, err := repo.GetOrCreateDM(alice.Id, bob.Id)
		require.NoError(t, err)
		assert.True(t, dm.IsPrivate)
		assert.True(t, dm.IsDirect)
		assert.Equal(t, "alice, bob", dm.Name)
		assert.True(t, repo.IsMember(dm.Id, alice.Id))
		assert.True(t, repo.IsMember(dm.Id, bob.Id))

		again, err := repo.GetOrCreateDM(bob.Id, alice.Id)
		require.NoError(t, err)
		assert.Equal(t, dm.Id, again.Id, "expected one room per pair")

		_, err = repo.GetOrCreateDM(alice.Id, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRepositoryMessages(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo Repository) {
		alice := mustAccount(t, repo, "alice")
		bob := mustAccount(t, repo, "bob")
		room, err := repo.CreateRoom(CreateRoomParams{Name: "general", OwnerId: alice.Id})
		require.NoError(t, err)

		var sent []Message
		for _, content := range []string{"one", "two", "three"} {
			msg, err := repo.CreateMessage(CreateMessageParams{RoomId: room.Id, UserId: alice.Id, Content: content})
			require.NoError(t, err)
			assert.Equal(t, types.MessageTypeText, msg.Type, "expected text by default")
			sent = append(sent, msg)
		}
		assert.Less(t, sent[0].Id, sent[1].Id, "expected ids to sort by creation")
		assert.False(t, sent[2].CreatedAt.Before(sent[1].CreatedAt), "expected non-decreasing timestamps")

		_, err = repo.CreateMessage(CreateMessageParams{RoomId: "missing", UserId: alice.Id, Content: "x"})
		assert.ErrorIs(t, err, ErrNotFound)

		msgs, err := repo.GetMessages(room.Id, alice.Id, 0)
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, "three", msgs[0].Content, "expected newest first")
		assert.Equal(t, "one", msgs[2].Content)

		msgs, err = repo.GetMessages(room.Id, alice.Id, 2)
		require.NoError(t, err)
		assert.Len(t, msgs, 2)

		require.NoError(t, repo.HideMessage(bob.Id, sent[0].Id))
		msgs, err = repo.GetMessages(room.Id, bob.Id, 0)
		require.NoError(t, err)
		assert.Len(t, msgs, 2, "expected hidden message to be left out")
		msgs, err = repo.GetMessages(room.Id, alice.Id, 0)
		require.NoError(t, err)
		assert.Len(t, msgs, 3, "expected hiding to affect one user only")

		require.NoError(t, repo.DeleteMessage(sent[1].Id))
		_, err = repo.GetMessage(sent[1].Id)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, repo.DeleteMessage(sent[1].Id), ErrNotFound)
		assert.ErrorIs(t, repo.HideMessage(alice.Id, sent[1].Id), ErrNotFound)

		require.NoError(t, repo.ClearRoom(alice.Id, room.Id))
		msgs, err = repo.GetMessages(room.Id, alice.Id, 0)
		require.NoError(t, err)
		assert.Empty(t, msgs, "expected clear to hide everything")

		later, err := repo.CreateMessage(CreateMessageParams{RoomId: room.Id, UserId: bob.Id, Content: "after"})
		require.NoError(t, err)
		msgs, err = repo.GetMessages(room.Id, alice.Id, 0)
		require.NoError(t, err)
		require.Len(t, msgs, 1, "expected new messages after a clear")
		assert.Equal(t, later.Id, msgs[0].Id)

		msgs, err = repo.GetMessages(room.Id, bob.Id, 0)
		require.NoError(t, err)
		assert.Len(t, msgs, 2)

		assert.True(t, errors.Is(repo.ClearRoom(alice.Id, "missing"), ErrNotFound))
	})
}
