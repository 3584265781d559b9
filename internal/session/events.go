package session

import (
	"github.com/npezzotti/go-chatclient/internal/transport"
	"github.com/npezzotti/go-chatclient/internal/types"
)

type selectRoomReq struct {
	roomId string
	reply  chan error
}

// sendReq carries a frame builder so the frame is addressed to the room
// selected when the loop handles it. A non-empty roomId pins the request
// to that room.
type sendReq struct {
	roomId string
	build  func(roomId string) any
	reply  chan error
}

type deleteLocalReq struct {
	messageId string
	reply     chan roomResult
}

type clearLocalReq struct {
	reply chan roomResult
}

type roomResult struct {
	roomId string
	err    error
}

// roomsLoaded installs a fresh room list and optionally selects a room:
// the restored last-visited room, a room by id, or the room matching a
// join code.
type roomsLoaded struct {
	rooms    []types.Room
	restore  string
	selectId string
	joinCode string
	fallback *types.Room
	reply    chan error
}

type currentRoomReq struct {
	reply chan string
}

type logoutReq struct {
	reply chan struct{}
}

type snapshotReq struct {
	reply chan View
}

type detailLoaded struct {
	gen    uint64
	detail *types.RoomDetail
	err    error
}

type historyLoaded struct {
	gen  uint64
	msgs []types.Message
	err  error
}

type membersLoaded struct {
	roomId string
	detail *types.RoomDetail
}

type dialDone struct {
	gen    uint64
	roomId string
	ch     transport.Channel
	err    error
}

type channelEvent struct {
	d transport.Delivery
}

type reconnectTick struct {
	gen    uint64
	roomId string
}

func (c *Controller) handle(ev any) {
	switch e := ev.(type) {
	case selectRoomReq:
		e.reply <- c.selectRoom(e.roomId)
	case sendReq:
		e.reply <- c.send(e.roomId, e.build)
	case deleteLocalReq:
		e.reply <- c.deleteLocal(e.messageId)
	case clearLocalReq:
		e.reply <- c.clearLocal()
	case roomsLoaded:
		e.reply <- c.roomsLoaded(e)
	case currentRoomReq:
		e.reply <- c.currentRoom()
	case logoutReq:
		c.logout()
		close(e.reply)
	case snapshotReq:
		e.reply <- c.view()
	case detailLoaded:
		c.detailLoaded(e)
	case historyLoaded:
		c.historyLoadedEvent(e)
	case membersLoaded:
		c.membersLoaded(e)
	case dialDone:
		c.dialDone(e)
	case channelEvent:
		c.channelEvent(e.d)
	case reconnectTick:
		c.reconnectTick(e)
	default:
		c.log.Warn().Type("event", ev).Msg("unhandled event")
	}
}
