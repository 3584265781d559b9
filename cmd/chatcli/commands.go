package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/npezzotti/go-chatclient/internal/api"
	"github.com/npezzotti/go-chatclient/internal/session"
	"github.com/npezzotti/go-chatclient/internal/types"
)

// chatSession is the part of the session controller the commands drive.
type chatSession interface {
	Snapshot(ctx context.Context) (session.View, error)
	LoadRooms(ctx context.Context) error
	SelectRoom(ctx context.Context, roomId string) error
	CreateRoom(ctx context.Context, req api.CreateRoomRequest) (*types.Room, error)
	JoinRoom(ctx context.Context, code string) error
	OpenDM(ctx context.Context, targetUserId string) (*types.Room, error)
	Send(ctx context.Context, content string, mt types.MessageType, fileUrl string) error
	SendFile(ctx context.Context, filename string, r io.Reader) error
	DeleteMessage(ctx context.Context, messageId string, dt types.DeletionType) error
	ClearRoom(ctx context.Context) error
	RefreshMembers(ctx context.Context) error
	Logout(ctx context.Context) error
}

var _ chatSession = (*session.Controller)(nil)

var errUsage = errors.New("usage")

const helpText = `commands:
  /rooms                 list rooms
  /open <id or name>     switch room
  /create <name> [-p]    create a room, -p for private
  /join <code>           join a room by code
  /dm <user id>          open a direct message room
  /delete <id> [-all]    delete a message for you, or everyone with -all
  /clear                 clear the room for you
  /upload <path>         send a file
  /members               reload the member list
  /logout                sign out and quit
  /quit                  quit
anything else is sent to the current room`

type commander struct {
	s    chatSession
	out  io.Writer
	open func(name string) (io.ReadCloser, error)
}

// dispatch runs one input line. It reports whether the client should exit.
func (c *commander) dispatch(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, c.s.Send(ctx, line, types.MessageTypeText, "")
	}

	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	args := strings.Fields(rest)

	switch cmd {
	case "/help":
		fmt.Fprintln(c.out, helpText)
	case "/quit", "/exit":
		return true, nil
	case "/rooms":
		if err := c.s.LoadRooms(ctx); err != nil {
			return false, err
		}
		return false, c.listRooms(ctx)
	case "/open":
		if rest == "" {
			return false, fmt.Errorf("%w: /open <id or name>", errUsage)
		}
		roomId, err := c.findRoom(ctx, rest)
		if err != nil {
			return false, err
		}
		return false, c.s.SelectRoom(ctx, roomId)
	case "/create":
		req := api.CreateRoomRequest{}
		var name []string
		for _, a := range args {
			if a == "-p" {
				req.IsPrivate = true
				continue
			}
			name = append(name, a)
		}
		req.Name = strings.Join(name, " ")
		if req.Name == "" {
			return false, fmt.Errorf("%w: /create <name> [-p]", errUsage)
		}
		room, err := c.s.CreateRoom(ctx, req)
		if err != nil {
			return false, err
		}
		if room.JoinCode != "" {
			fmt.Fprintf(c.out, "created %s, join code %s\n", room.Name, room.JoinCode)
		}
	case "/join":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: /join <code>", errUsage)
		}
		return false, c.s.JoinRoom(ctx, args[0])
	case "/dm":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: /dm <user id>", errUsage)
		}
		_, err := c.s.OpenDM(ctx, args[0])
		return false, err
	case "/delete":
		if len(args) == 0 || len(args) > 2 || (len(args) == 2 && args[1] != "-all") {
			return false, fmt.Errorf("%w: /delete <id> [-all]", errUsage)
		}
		dt := types.DeleteForMe
		if len(args) == 2 {
			dt = types.DeleteForEveryone
		}
		return false, c.s.DeleteMessage(ctx, args[0], dt)
	case "/clear":
		return false, c.s.ClearRoom(ctx)
	case "/upload":
		if rest == "" {
			return false, fmt.Errorf("%w: /upload <path>", errUsage)
		}
		f, err := c.open(rest)
		if err != nil {
			return false, err
		}
		defer f.Close()
		return false, c.s.SendFile(ctx, filepath.Base(rest), f)
	case "/members":
		if err := c.s.RefreshMembers(ctx); err != nil {
			return false, err
		}
		return false, c.listMembers(ctx)
	case "/logout":
		return true, c.s.Logout(ctx)
	default:
		return false, fmt.Errorf("unknown command %s, try /help", cmd)
	}

	return false, nil
}

func (c *commander) listRooms(ctx context.Context) error {
	v, err := c.s.Snapshot(ctx)
	if err != nil {
		return err
	}

	if len(v.Rooms) == 0 {
		fmt.Fprintln(c.out, "no rooms yet, /create or /join one")
		return nil
	}

	for _, r := range v.Rooms {
		marker := " "
		if r.Id == v.RoomId {
			marker = ">"
		}
		unread := ""
		if r.HasUnread {
			unread = " *"
		}
		fmt.Fprintf(c.out, "%s %s  %s (%d members)%s\n", marker, r.Id, r.Name, r.MemberCount, unread)
	}

	return nil
}

func (c *commander) listMembers(ctx context.Context) error {
	v, err := c.s.Snapshot(ctx)
	if err != nil {
		return err
	}
	if v.RoomId == "" {
		return session.ErrNoRoomSelected
	}

	for _, m := range v.Members {
		name := m.UserId
		if m.User != nil {
			name = m.User.Username
		}
		fmt.Fprintf(c.out, "  %s (%s)\n", name, m.Role)
	}

	return nil
}

// findRoom matches ref against room ids first, then names.
func (c *commander) findRoom(ctx context.Context, ref string) (string, error) {
	v, err := c.s.Snapshot(ctx)
	if err != nil {
		return "", err
	}

	for _, r := range v.Rooms {
		if r.Id == ref {
			return r.Id, nil
		}
	}
	for _, r := range v.Rooms {
		if strings.EqualFold(r.Name, ref) {
			return r.Id, nil
		}
	}

	return "", fmt.Errorf("%w: %s", session.ErrRoomNotFound, ref)
}
