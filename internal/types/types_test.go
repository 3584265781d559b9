package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	tcases := []struct {
		name     string
		input    string
		expected time.Time
		err      bool
	}{
		{
			name:     "rfc3339 with zone",
			input:    "2025-03-01T10:00:00+02:00",
			expected: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
		},
		{
			name:     "naive iso is utc",
			input:    "2025-03-01T10:00:00.123456",
			expected: time.Date(2025, 3, 1, 10, 0, 0, 123456000, time.UTC),
		},
		{
			name:     "space separated",
			input:    "2025-03-01 10:00:00",
			expected: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			name:     "empty",
			input:    "",
			expected: time.Time{},
		},
		{
			name:  "garbage",
			input: "yesterday",
			err:   true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseTime(tc.input)
			if tc.err {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.True(t, tc.expected.Equal(got), "expected %v, got %v", tc.expected, got)
		})
	}
}

func TestMessageUnmarshal(t *testing.T) {
	raw := `{
		"id": "m1",
		"room_id": "r1",
		"user_id": "u1",
		"content": "hi",
		"message_type": "text",
		"created_at": "2025-03-01T10:00:00.5",
		"edited_at": null,
		"sender_name": "alice",
		"user": {"id": "u1", "username": "alice"}
	}`

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	assert.Equal(t, "m1", msg.Id)
	assert.Equal(t, MessageTypeText, msg.Type)
	assert.Equal(t, "alice", msg.User.Username)
	assert.Nil(t, msg.EditedAt)
	assert.True(t, time.Date(2025, 3, 1, 10, 0, 0, 500000000, time.UTC).Equal(msg.CreatedAt))
}

func TestMessageUnmarshalIds(t *testing.T) {
	tcases := []struct {
		name     string
		raw      string
		expected []string
		err      bool
	}{
		{
			name:     "string and numeric ids",
			raw:      `[{"id":"m1","content":"a"},{"id":3,"content":"b"}]`,
			expected: []string{"m1", "3"},
		},
		{
			name:     "message_id wins over id",
			raw:      `[{"id":1,"message_id":"m7","content":"a"}]`,
			expected: []string{"m7"},
		},
		{
			name:     "missing and null ids",
			raw:      `[{"content":"a"},{"id":null,"content":"b"}]`,
			expected: []string{"", ""},
		},
		{
			name: "object id",
			raw:  `[{"id":{"n":1}}]`,
			err:  true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			var msgs []Message
			err := json.Unmarshal([]byte(tc.raw), &msgs)
			if tc.err {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			got := make([]string, 0, len(msgs))
			for _, m := range msgs {
				got = append(got, m.Id)
			}
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestRoomUnmarshal(t *testing.T) {
	raw := `{"id":"r1","name":"general","is_private":false,"member_count":3,
		"last_activity":"2025-03-01T10:00:00Z","has_unread":true}`

	var room Room
	require.NoError(t, json.Unmarshal([]byte(raw), &room))
	assert.Equal(t, "general", room.Name)
	assert.Equal(t, 3, room.MemberCount)
	assert.True(t, room.HasUnread)
	assert.True(t, room.CreatedAt.IsZero())
	assert.Equal(t, 2025, room.LastActivity.Year())
}

func TestRoomDetailUnmarshal(t *testing.T) {
	raw := `{"id":"r1","name":"general","last_activity":"2025-03-01T10:00:00",
		"members":[{"room_id":"r1","user_id":"u1","role":"owner"}]}`

	var detail RoomDetail
	require.NoError(t, json.Unmarshal([]byte(raw), &detail))
	assert.Equal(t, "r1", detail.Id)
	require.Len(t, detail.Members, 1)
	assert.Equal(t, RoleOwner, detail.Members[0].Role)
}
