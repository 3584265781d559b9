package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/npezzotti/go-chatclient/internal/stats"
	"github.com/npezzotti/go-chatclient/internal/testutil"
	"github.com/npezzotti/go-chatclient/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *stats.StatsUpdater) {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	su := stats.NewStatsUpdater(nil)
	c, err := NewClient(srv.URL+"/api/v1", staticToken("tok"), testutil.TestLogger(t), WithStats(su))
	require.NoError(t, err)

	return c, su
}

func writeJson(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestNewClient(t *testing.T) {
	_, err := NewClient("ftp://example.com", nil, testutil.TestLogger(t))
	assert.Error(t, err)

	c, err := NewClient("http://localhost:8000/api/v1/", nil, testutil.TestLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/api/v1/rooms/", c.endpoint("/rooms/"))
	assert.Equal(t, "http://localhost:8000/api/v1/messages/rooms/r1/messages?limit=5",
		c.endpoint("/messages/rooms/r1/messages?limit=5"))
}

func TestListRooms(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/rooms/", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		writeJson(t, w, http.StatusOK, []map[string]any{
			{"id": "r1", "name": "general", "member_count": 2, "last_activity": "2025-03-01T10:00:00"},
			{"id": "r2", "name": "random", "join_code": "ABCD1234"},
		})
	})

	rooms, err := c.ListRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "general", rooms[0].Name)
	assert.Equal(t, 2, rooms[0].MemberCount)
	assert.Equal(t, "ABCD1234", rooms[1].JoinCode)
}

func TestGetRoom(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/rooms/r1", r.URL.Path)
		writeJson(t, w, http.StatusOK, map[string]any{
			"id": "r1", "name": "general",
			"members": []map[string]any{{"room_id": "r1", "user_id": "u1", "role": "owner"}},
		})
	})

	detail, err := c.GetRoom(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "general", detail.Name)
	require.Len(t, detail.Members, 1)
	assert.Equal(t, types.RoleOwner, detail.Members[0].Role)
}

func TestCreateRoom(t *testing.T) {
	tcases := []struct {
		name       string
		req        CreateRoomRequest
		callsAPI   bool
		statusCode int
	}{
		{
			name:     "valid",
			req:      CreateRoomRequest{Name: "general", Description: "all talk"},
			callsAPI: true,
		},
		{
			name:       "name too short",
			req:        CreateRoomRequest{Name: "ab"},
			statusCode: http.StatusBadRequest,
		},
		{
			name:       "name too long",
			req:        CreateRoomRequest{Name: strings.Repeat("x", 51)},
			statusCode: http.StatusBadRequest,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				called = true
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				var body CreateRoomRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, tc.req, body)

				writeJson(t, w, http.StatusOK, map[string]any{"id": "r9", "name": body.Name})
			})

			room, err := c.CreateRoom(context.Background(), tc.req)
			assert.Equal(t, tc.callsAPI, called)
			if tc.statusCode != 0 {
				var apiErr *ApiError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, tc.statusCode, apiErr.StatusCode)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "r9", room.Id)
		})
	}
}

func TestJoinRoom(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/rooms/join/ABCD1234", r.URL.Path)
		writeJson(t, w, http.StatusOK, map[string]string{"message": "Successfully joined room"})
	})

	assert.NoError(t, c.JoinRoom(context.Background(), "ABCD1234"))
	assert.Error(t, c.JoinRoom(context.Background(), ""))
}

func TestCreateOrGetDM(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/rooms/dm", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "u2", body["target_user_id"])

		writeJson(t, w, http.StatusOK, map[string]any{"id": "dm1", "name": "alice & bob", "is_private": true})
	})

	room, err := c.CreateOrGetDM(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, "dm1", room.Id)
	assert.True(t, room.IsPrivate)
}

func TestListMessages(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/messages/rooms/r1/messages", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("limit"))

		writeJson(t, w, http.StatusOK, []map[string]any{
			{"id": "m2", "content": "second", "created_at": "2025-03-01T10:00:01"},
			{"id": "m1", "content": "first", "room_id": "r1", "created_at": "2025-03-01T10:00:00"},
		})
	})

	msgs, err := c.ListMessages(context.Background(), "r1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m2", msgs[0].Id, "expected server order to be preserved")
	assert.Equal(t, "r1", msgs[0].RoomId, "expected missing room id to be filled in")
}

func TestDeleteMessage(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v1/messages/messages/m1", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "for_everyone", body["deletion_type"])

		writeJson(t, w, http.StatusOK, map[string]string{"message": "Message deleted successfully"})
	})

	assert.NoError(t, c.DeleteMessage(context.Background(), "m1", types.DeleteForEveryone))
	assert.Error(t, c.DeleteMessage(context.Background(), "m1", "for_nobody"))
}

func TestClearRoomMessages(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v1/messages/rooms/r1/messages/clear", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	assert.NoError(t, c.ClearRoomMessages(context.Background(), "r1"))
}

func TestUpload(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/uploads/", r.URL.Path)

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()

		b, _ := io.ReadAll(f)
		assert.Equal(t, "png-bytes", string(b))
		assert.Equal(t, "cat.png", hdr.Filename)
		assert.Equal(t, "image/png", hdr.Header.Get("Content-Type"))

		writeJson(t, w, http.StatusOK, map[string]string{"file_url": "/uploads/abc.png"})
	})

	res, err := c.Upload(context.Background(), "/tmp/cat.png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/abc.png", res.FileUrl)
	assert.True(t, res.IsImage())
}

func TestLogin(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/auth/login", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())

		if r.PostForm.Get("password") != "secret" {
			writeJson(t, w, http.StatusUnauthorized, map[string]string{"detail": "Incorrect email/username or password"})
			return
		}

		writeJson(t, w, http.StatusOK, map[string]string{"access_token": "jwt", "token_type": "bearer"})
	})

	tok, err := c.Login(context.Background(), LoginRequest{Username: "alice@example.com", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "jwt", tok.AccessToken)

	_, err = c.Login(context.Background(), LoginRequest{Username: "alice@example.com", Password: "wrong"})
	var apiErr *ApiError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsUnauthorized())
	assert.Equal(t, "Incorrect email/username or password", apiErr.Message)
}

func TestErrorResponses(t *testing.T) {
	tcases := []struct {
		name     string
		status   int
		body     string
		expected string
	}{
		{
			name:     "detail string",
			status:   http.StatusNotFound,
			body:     `{"detail":"Room not found"}`,
			expected: "Room not found",
		},
		{
			name:     "detail list",
			status:   http.StatusUnprocessableEntity,
			body:     `{"detail":[{"msg":"field required"},{"msg":"too short"}]}`,
			expected: "field required; too short",
		},
		{
			name:     "message",
			status:   http.StatusForbidden,
			body:     `{"message":"forbidden room"}`,
			expected: "forbidden room",
		},
		{
			name:     "not json",
			status:   http.StatusBadGateway,
			body:     `<html>bad gateway</html>`,
			expected: "bad gateway",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			c, su := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})

			_, err := c.GetRoom(context.Background(), "r1")
			var apiErr *ApiError
			require.True(t, errors.As(err, &apiErr), "expected ApiError, got %v", err)
			assert.Equal(t, tc.status, apiErr.StatusCode)
			assert.Equal(t, tc.expected, apiErr.Message)
			assert.Equal(t, float64(1), su.Value(stats.RestErrors))
		})
	}
}

func TestNoTokenNoHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, staticToken(""), testutil.TestLogger(t))
	require.NoError(t, err)

	rooms, err := c.ListRooms(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rooms)
}
