package session

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/npezzotti/go-chatclient/internal/stats"
	"github.com/npezzotti/go-chatclient/internal/transport"
)

func (c *Controller) currentRoom() string {
	if c.state == StateNoRoom {
		return ""
	}

	return c.roomId
}

func (c *Controller) selectRoom(roomId string) error {
	if roomId == "" {
		return ErrRoomNotFound
	}
	if c.tokens.Token() == "" {
		return ErrNotAuthenticated
	}

	if roomId == c.roomId && c.state != StateNoRoom {
		c.dir.MarkRead(roomId)
		return nil
	}

	c.attempts = 0
	c.backoff.Reset()
	c.beginRoom(roomId)

	return nil
}

// beginRoom moves to Connecting for roomId. The old channel is closed
// before anything else so at most one channel is ever open.
func (c *Controller) beginRoom(roomId string) {
	c.closeChannel()
	c.stopReconnect()

	c.gen++
	gen := c.gen
	c.state = StateConnecting
	c.roomId = roomId
	c.resetRoomState()
	c.lastError = ""
	c.dir.MarkRead(roomId)

	c.log.Debug().Str("room_id", roomId).Uint64("gen", gen).Msg("selecting room")

	c.saveLastVisited(roomId)
	c.fetchRoom(gen, roomId)
	c.startDial(gen, roomId)
}

func (c *Controller) resetRoomState() {
	c.chanOpen = false
	c.connected = false
	c.historyLoaded = false
	c.detail = nil
	c.pending = nil
	c.typing = nil
}

func (c *Controller) toNoRoom(err error) {
	c.closeChannel()
	c.stopReconnect()
	c.cancelDial()

	c.gen++
	c.state = StateNoRoom
	c.roomId = ""
	c.resetRoomState()

	if err != nil {
		c.lastError = err.Error()
		c.log.Warn().Err(err).Msg("room session ended")
	}
}

func (c *Controller) closeChannel() {
	if c.channel == nil {
		return
	}

	ch := c.channel
	c.channel = nil
	c.connected = false
	if err := ch.Close(); err != nil {
		c.log.Debug().Err(err).Str("channel_id", ch.Id()).Msg("close channel")
	}
}

func (c *Controller) cancelDial() {
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
}

func (c *Controller) stopReconnect() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

func (c *Controller) saveLastVisited(roomId string) {
	if c.prefs == nil {
		return
	}

	userId := c.user.UserId
	c.goHelper(func() {
		ctx, cancel := context.WithTimeout(c.bgCtx, prefsTimeout)
		defer cancel()

		if err := c.prefs.SetLastVisitedRoom(ctx, userId, roomId); err != nil {
			c.log.Warn().Err(err).Str("room_id", roomId).Msg("failed to save last visited room")
		}
	})
}

func (c *Controller) fetchRoom(gen uint64, roomId string) {
	c.goHelper(func() {
		detail, err := c.api.GetRoom(c.bgCtx, roomId)
		c.postResult(detailLoaded{gen: gen, detail: detail, err: err})
	})

	limit := c.historyLimit
	c.goHelper(func() {
		msgs, err := c.api.ListMessages(c.bgCtx, roomId, limit)
		c.postResult(historyLoaded{gen: gen, msgs: msgs, err: err})
	})
}

// startDial opens a channel for roomId unless a dial is already in flight.
// In that case the in-flight dial is canceled and the dial for the current
// room starts once its result comes back.
func (c *Controller) startDial(gen uint64, roomId string) {
	if c.dialing {
		c.cancelDial()
		return
	}

	ctx, cancel := context.WithCancel(c.bgCtx)
	c.dialing = true
	c.dialCancel = cancel
	token := c.tokens.Token()

	c.goHelper(func() {
		defer cancel()

		ch, err := c.dialer.Open(ctx, roomId, token)
		c.postResult(dialDone{gen: gen, roomId: roomId, ch: ch, err: err})
	})
}

func (c *Controller) dialDone(e dialDone) {
	c.dialing = false
	c.dialCancel = nil

	if e.gen != c.gen || e.roomId != c.roomId || c.state != StateConnecting {
		c.stats.Incr(stats.StaleResultsDropped)
		if e.ch != nil {
			e.ch.Close()
		}
		if c.state == StateConnecting && c.channel == nil && c.roomId != "" {
			c.startDial(c.gen, c.roomId)
		}
		return
	}

	if e.err != nil {
		c.channelLost(fmt.Errorf("connect to room %s: %w", e.roomId, e.err))
		return
	}

	c.channel = e.ch
	ch := e.ch
	c.goHelper(func() { ch.Start(c.sink) })
}

func (c *Controller) detailLoaded(e detailLoaded) {
	if e.gen != c.gen {
		c.stats.Incr(stats.StaleResultsDropped)
		return
	}

	if e.err != nil {
		c.toNoRoom(fmt.Errorf("load room: %w", e.err))
		return
	}

	c.detail = e.detail
}

func (c *Controller) historyLoadedEvent(e historyLoaded) {
	if e.gen != c.gen {
		c.stats.Incr(stats.StaleResultsDropped)
		return
	}

	if e.err != nil {
		c.toNoRoom(fmt.Errorf("load messages: %w", e.err))
		return
	}

	c.store.Room(c.roomId).ReplaceNewestFirst(e.msgs)
	c.historyLoaded = true

	// frames that raced the history load, in arrival order
	pending := c.pending
	c.pending = nil
	for _, f := range pending {
		c.applyFrame(c.roomId, f)
	}

	c.maybeActivate()
}

func (c *Controller) membersLoaded(e membersLoaded) {
	if e.roomId != c.roomId || c.state == StateNoRoom || e.detail == nil {
		c.stats.Incr(stats.StaleResultsDropped)
		return
	}

	c.detail = e.detail
}

func (c *Controller) maybeActivate() {
	if c.state != StateConnecting || !c.chanOpen || !c.historyLoaded {
		return
	}

	c.state = StateActive
	c.attempts = 0
	c.backoff.Reset()
	c.log.Info().Str("room_id", c.roomId).Msg("room active")
}

func (c *Controller) channelEvent(d transport.Delivery) {
	if c.channel == nil || d.ChannelId != c.channel.Id() {
		c.staleChannelEvent(d)
		return
	}

	switch e := d.Event.(type) {
	case transport.Opened:
		c.chanOpen = true
		c.connected = true
		c.maybeActivate()
	case transport.Received:
		c.applyFrame(d.RoomId, e.Frame)
	case transport.Failed:
		c.connected = false
		c.lastError = e.Err.Error()
	case transport.Closed:
		c.closeChannel()
		if e.Unexpected {
			c.channelLost(fmt.Errorf("connection closed (%d): %s", e.Code, e.Reason))
		}
	}
}

// staleChannelEvent handles deliveries from channels that are no longer
// active. Only new messages matter: they still mark their room unread.
func (c *Controller) staleChannelEvent(d transport.Delivery) {
	c.stats.Incr(stats.StaleEventsDropped)

	rcv, ok := d.Event.(transport.Received)
	if !ok {
		return
	}

	mf, ok := rcv.Frame.(transport.MessageFrame)
	if !ok {
		return
	}

	roomId := mf.Message.RoomId
	if roomId == "" {
		roomId = d.RoomId
	}
	if roomId != c.currentRoom() {
		c.dir.MarkUnread(roomId)
	}
	c.dir.Touch(roomId, mf.Message.CreatedAt)
}

func (c *Controller) applyFrame(channelRoom string, f transport.Inbound) {
	switch fr := f.(type) {
	case transport.MessageFrame:
		if fr.Message.RoomId == "" {
			fr.Message.RoomId = channelRoom
		}
		msg := fr.Message

		if msg.RoomId != c.roomId {
			c.dir.MarkUnread(msg.RoomId)
			c.dir.Touch(msg.RoomId, msg.CreatedAt)
			return
		}

		c.dir.Touch(msg.RoomId, msg.CreatedAt)
		if !c.historyLoaded {
			c.pending = append(c.pending, fr)
			return
		}

		// messages without an id cannot be matched, so every one is kept
		ms := c.store.Room(msg.RoomId)
		if msg.Id != "" && ms.Contains(msg.Id) {
			return
		}
		ms.Append(msg)
	case transport.MessageDeletedFrame:
		if fr.RoomId == "" {
			fr.RoomId = channelRoom
		}

		if fr.RoomId == c.roomId && !c.historyLoaded {
			c.pending = append(c.pending, fr)
			return
		}
		if c.store.Has(fr.RoomId) {
			c.store.Room(fr.RoomId).RemoveByID(fr.MessageId)
		}
	case transport.PresenceFrame:
		c.log.Debug().Str("type", string(fr.Type)).Str("user_id", fr.UserId).Msg("presence")
	case transport.TypingFrame:
		c.typing = slices.DeleteFunc(slices.Clone(fr.UsersTyping), func(id string) bool {
			return id == c.user.UserId
		})
	case transport.ErrorFrame:
		c.lastError = fr.Message
		c.log.Warn().Str("message", fr.Message).Msg("server error frame")
	}
}

// channelLost handles a failed dial or an unexpected close. With the
// reconnect policy enabled the room is reselected after a backoff delay;
// otherwise the session drops to NoRoomSelected.
func (c *Controller) channelLost(err error) {
	c.closeChannel()
	c.chanOpen = false

	if !c.reconnect.Enabled || c.roomId == "" || c.attempts >= c.reconnect.MaxAttempts {
		c.toNoRoom(err)
		return
	}

	delay := c.backoff.NextBackOff()
	if delay == backoff.Stop {
		c.toNoRoom(err)
		return
	}

	c.attempts++
	c.state = StateConnecting
	c.lastError = err.Error()
	c.stats.Incr(stats.Reconnects)

	gen, roomId := c.gen, c.roomId
	c.log.Warn().Err(err).Str("room_id", roomId).Uint("attempt", c.attempts).
		Dur("delay", delay).Msg("connection lost, reconnecting")

	c.stopReconnect()
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.postResult(reconnectTick{gen: gen, roomId: roomId})
	})
}

func (c *Controller) reconnectTick(e reconnectTick) {
	if e.gen != c.gen || e.roomId != c.roomId || c.state != StateConnecting || c.channel != nil {
		c.stats.Incr(stats.StaleResultsDropped)
		return
	}

	c.reconnectTimer = nil
	c.beginRoom(e.roomId)
}

func (c *Controller) roomsLoaded(e roomsLoaded) error {
	if e.rooms != nil {
		c.dir.Replace(e.rooms)
	}
	if e.fallback != nil {
		if _, ok := c.dir.Get(e.fallback.Id); !ok {
			c.dir.Upsert(*e.fallback)
		}
	}

	switch {
	case e.joinCode != "":
		room, ok := c.dir.FindByJoinCode(e.joinCode)
		if !ok {
			return fmt.Errorf("%w: join code %s", ErrRoomNotFound, e.joinCode)
		}
		return c.selectRoom(room.Id)
	case e.selectId != "":
		if _, ok := c.dir.Get(e.selectId); !ok {
			return fmt.Errorf("%w: %s", ErrRoomNotFound, e.selectId)
		}
		return c.selectRoom(e.selectId)
	case !c.restoreDone:
		c.restoreDone = true
		if e.restore == "" || c.state != StateNoRoom {
			return nil
		}
		if _, ok := c.dir.Get(e.restore); !ok {
			c.log.Debug().Str("room_id", e.restore).Msg("last visited room is gone")
			return nil
		}
		return c.selectRoom(e.restore)
	}

	return nil
}

func (c *Controller) send(roomId string, build func(roomId string) any) error {
	if c.state == StateNoRoom || c.roomId == "" {
		return ErrNoRoomSelected
	}
	if roomId != "" && roomId != c.roomId {
		return fmt.Errorf("%w: was %s, now %s", ErrRoomChanged, roomId, c.roomId)
	}

	frame := build(c.roomId)
	if c.channel == nil || !c.channel.Send(frame) {
		return ErrNotConnected
	}

	if _, ok := frame.(transport.OutboundMessage); ok {
		c.stats.Incr(stats.MessagesSent)
	}

	return nil
}

func (c *Controller) deleteLocal(messageId string) roomResult {
	if c.state == StateNoRoom {
		return roomResult{err: ErrNoRoomSelected}
	}

	c.store.Room(c.roomId).RemoveByID(messageId)
	return roomResult{roomId: c.roomId}
}

func (c *Controller) clearLocal() roomResult {
	if c.state == StateNoRoom {
		return roomResult{err: ErrNoRoomSelected}
	}

	c.store.Room(c.roomId).Clear()
	return roomResult{roomId: c.roomId}
}

func (c *Controller) logout() {
	c.toNoRoom(nil)
	c.lastError = ""
	c.store.Reset()
	c.dir.Reset()
	c.restoreDone = false
	c.tokens.Clear()
	c.log.Info().Msg("logged out")
}
