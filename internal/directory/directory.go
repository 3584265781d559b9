// Package directory tracks the rooms the current user belongs to along with
// their client-local unread flags and last activity times.
package directory

import (
	"slices"
	"time"

	"github.com/npezzotti/go-chatclient/internal/types"
)

// Directory is owned by a single goroutine.
type Directory struct {
	rooms []types.Room
}

func New() *Directory {
	return &Directory{}
}

func (d *Directory) indexOf(roomId string) int {
	return slices.IndexFunc(d.rooms, func(r types.Room) bool {
		return r.Id == roomId
	})
}

// Replace installs a freshly fetched room list. For rooms already known,
// a locally set unread flag survives and the later activity time wins.
func (d *Directory) Replace(rooms []types.Room) {
	next := make([]types.Room, 0, len(rooms))
	for _, r := range rooms {
		if i := d.indexOf(r.Id); i >= 0 {
			prev := d.rooms[i]
			r.HasUnread = r.HasUnread || prev.HasUnread
			if prev.LastActivity.After(r.LastActivity) {
				r.LastActivity = prev.LastActivity
			}
		}
		next = append(next, r)
	}

	d.rooms = next
}

// Upsert appends room, or updates the known entry while keeping its
// local unread and activity state.
func (d *Directory) Upsert(room types.Room) {
	i := d.indexOf(room.Id)
	if i < 0 {
		d.rooms = append(d.rooms, room)
		return
	}

	prev := d.rooms[i]
	room.HasUnread = room.HasUnread || prev.HasUnread
	if prev.LastActivity.After(room.LastActivity) {
		room.LastActivity = prev.LastActivity
	}
	d.rooms[i] = room
}

func (d *Directory) MarkRead(roomId string) bool {
	i := d.indexOf(roomId)
	if i < 0 {
		return false
	}

	d.rooms[i].HasUnread = false
	return true
}

func (d *Directory) MarkUnread(roomId string) bool {
	i := d.indexOf(roomId)
	if i < 0 {
		return false
	}

	d.rooms[i].HasUnread = true
	return true
}

// Touch moves the room's last activity forward to ts. Older timestamps are
// ignored; a zero ts means now.
func (d *Directory) Touch(roomId string, ts time.Time) bool {
	i := d.indexOf(roomId)
	if i < 0 {
		return false
	}

	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if ts.After(d.rooms[i].LastActivity) {
		d.rooms[i].LastActivity = ts
	}

	return true
}

func (d *Directory) Get(roomId string) (types.Room, bool) {
	i := d.indexOf(roomId)
	if i < 0 {
		return types.Room{}, false
	}

	return d.rooms[i], true
}

func (d *Directory) FindByJoinCode(code string) (types.Room, bool) {
	if code == "" {
		return types.Room{}, false
	}

	for _, r := range d.rooms {
		if r.JoinCode == code {
			return r, true
		}
	}

	return types.Room{}, false
}

func (d *Directory) Len() int {
	return len(d.rooms)
}

func (d *Directory) Snapshot() []types.Room {
	if len(d.rooms) == 0 {
		return []types.Room{}
	}

	return slices.Clone(d.rooms)
}

func (d *Directory) Reset() {
	d.rooms = nil
}
