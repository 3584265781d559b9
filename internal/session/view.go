package session

import (
	"context"
	"slices"

	"github.com/npezzotti/go-chatclient/internal/types"
)

// View is an immutable snapshot of what the UI renders.
type View struct {
	State       State
	RoomId      string
	Room        *types.RoomDetail
	Members     []types.RoomMember
	Messages    []types.Message
	Rooms       []types.Room
	Connected   bool
	LastError   string
	TypingUsers []string
	Revision    uint64
}

func (c *Controller) view() View {
	v := View{
		State:     c.state,
		RoomId:    c.currentRoom(),
		Rooms:     c.dir.Snapshot(),
		Connected: c.connected,
		LastError: c.lastError,
		Messages:  []types.Message{},
		Revision:  c.revision,
	}

	if v.RoomId != "" && c.store.Has(v.RoomId) {
		v.Messages = c.store.Room(v.RoomId).Snapshot()
	}

	if c.detail != nil {
		d := *c.detail
		d.Members = slices.Clone(c.detail.Members)
		v.Room = &d
		v.Members = d.Members
	}

	if len(c.typing) > 0 {
		v.TypingUsers = slices.Clone(c.typing)
	}

	return v
}

// Snapshot returns the current view.
func (c *Controller) Snapshot(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := c.post(ctx, snapshotReq{reply: reply}); err != nil {
		return View{}, err
	}

	return await(ctx, c, reply)
}
