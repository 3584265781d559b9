package devserver

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLiteRepository(t *testing.T) {
	_, err := NewSQLiteRepository("  ")
	assert.Error(t, err, "expected an empty path to be rejected")

	repo, err := NewSQLiteRepository(":memory:")
	require.NoError(t, err)
	assert.NoError(t, repo.Close())
}

func TestSQLiteRepositoryPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devserver.db")

	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)

	users, general, err := Seed(repo, SeedAccount{Username: "alice", Password: "password1"}, SeedAccount{Username: "bob", Password: "password2"})
	require.NoError(t, err)
	msg, err := repo.CreateMessage(CreateMessageParams{RoomId: general.Id, UserId: users[1].Id, Content: "still here"})
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	repo, err = NewSQLiteRepository(path)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	alice, err := repo.GetAccountByLogin("alice")
	require.NoError(t, err)
	assert.Equal(t, users[0].Id, alice.Id)
	assert.True(t, verifyPassword(alice.PasswordHash, "password1"), "expected the password hash to survive")

	room, err := repo.GetRoomByJoinCode(general.JoinCode)
	require.NoError(t, err)
	assert.Equal(t, general.Id, room.Id)
	assert.True(t, msg.CreatedAt.Equal(room.LastActivity), "expected last activity to follow the last message")

	msgs, err := repo.GetMessages(general.Id, alice.Id, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.Id, msgs[0].Id)
	assert.Equal(t, "still here", msgs[0].Content)
	assert.True(t, msg.CreatedAt.Equal(msgs[0].CreatedAt))

	_, _, err = Seed(repo, SeedAccount{Username: "alice", Password: "password1"})
	assert.ErrorIs(t, err, ErrConflict, "expected reseeding to report the existing account")
}

func TestSQLiteRepositoryEmptyJoinCode(t *testing.T) {
	repo, err := NewSQLiteRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	alice := mustAccount(t, repo, "alice")
	_, err = repo.CreateRoom(CreateRoomParams{Name: "first", OwnerId: alice.Id})
	require.NoError(t, err)
	_, err = repo.CreateRoom(CreateRoomParams{Name: "second", OwnerId: alice.Id})
	require.NoError(t, err, "expected rooms without a join code to coexist")

	_, err = repo.GetRoomByJoinCode("")
	assert.ErrorIs(t, err, ErrNotFound)
}
