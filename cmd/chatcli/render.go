package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/npezzotti/go-chatclient/internal/session"
	"github.com/npezzotti/go-chatclient/internal/types"
)

// renderer prints what changed between consecutive views.
type renderer struct {
	w         io.Writer
	userId    string
	state     session.State
	roomId    string
	shown     []string
	lastError string
	typing    []string
}

func newRenderer(w io.Writer, userId string) *renderer {
	return &renderer{w: w, userId: userId}
}

func (r *renderer) render(v session.View) {
	if v.RoomId != r.roomId || v.State != r.state {
		r.header(v)
	}

	if v.RoomId != r.roomId {
		r.shown = nil
	}
	r.roomId = v.RoomId
	r.state = v.State

	current := make([]string, 0, len(v.Messages))
	for i, m := range v.Messages {
		key := m.Id
		if key == "" {
			key = "#" + strconv.Itoa(i)
		}
		current = append(current, key)
		if !slices.Contains(r.shown, key) {
			fmt.Fprintln(r.w, r.line(m))
		}
	}
	for _, id := range r.shown {
		if !strings.HasPrefix(id, "#") && !slices.Contains(current, id) {
			fmt.Fprintf(r.w, "  (message %s removed)\n", id)
		}
	}
	r.shown = current

	if v.LastError != "" && v.LastError != r.lastError {
		fmt.Fprintln(r.w, "! "+v.LastError)
	}
	r.lastError = v.LastError

	if !slices.Equal(v.TypingUsers, r.typing) && len(v.TypingUsers) > 0 {
		fmt.Fprintf(r.w, "  %s typing...\n", strings.Join(r.names(v, v.TypingUsers), ", "))
	}
	r.typing = v.TypingUsers
}

func (r *renderer) header(v session.View) {
	switch v.State {
	case session.StateNoRoom:
		fmt.Fprintln(r.w, "-- no room selected --")
	case session.StateConnecting:
		fmt.Fprintf(r.w, "-- connecting to %s --\n", r.roomName(v))
	case session.StateActive:
		fmt.Fprintf(r.w, "-- %s --\n", r.roomName(v))
	}
}

func (r *renderer) roomName(v session.View) string {
	if v.Room != nil && v.Room.Name != "" {
		return v.Room.Name
	}
	for _, room := range v.Rooms {
		if room.Id == v.RoomId {
			return room.Name
		}
	}
	return v.RoomId
}

func (r *renderer) names(v session.View, userIds []string) []string {
	out := make([]string, 0, len(userIds))
	for _, id := range userIds {
		name := id
		for _, m := range v.Members {
			if m.UserId == id && m.User != nil {
				name = m.User.Username
				break
			}
		}
		out = append(out, name)
	}
	return out
}

func (r *renderer) line(m types.Message) string {
	sender := m.SenderName
	if sender == "" {
		sender = m.UserId
	}
	if m.UserId == r.userId {
		sender = "you"
	}

	body := m.Content
	switch m.Type {
	case types.MessageTypeImage, types.MessageTypeFile, types.MessageTypeVideo, types.MessageTypeAudio:
		url := m.FileUrl
		if url == "" {
			url = m.Content
		}
		body = fmt.Sprintf("[%s] %s", m.Type, url)
	}

	line := fmt.Sprintf("[%s] %s: %s", m.CreatedAt.Local().Format("15:04"), sender, body)
	if m.Id != "" {
		line += "  (" + m.Id + ")"
	}
	return line
}
