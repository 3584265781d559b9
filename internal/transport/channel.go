// Package transport owns the per-room real-time connection: one websocket
// bound to a room and a token, delivering lifecycle and frame events to a
// single sink.
package transport

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-chatclient/internal/stats"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendQueueSize  = 256
)

type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is one of Opened, Received, Closed or Failed.
type Event interface {
	isEvent()
}

type Opened struct{}

type Received struct {
	Frame Inbound
}

type Closed struct {
	Code       int
	Reason     string
	Unexpected bool
}

type Failed struct {
	Err error
}

func (Opened) isEvent()   {}
func (Received) isEvent() {}
func (Closed) isEvent()   {}
func (Failed) isEvent()   {}

// Delivery tags an event with the channel and room it came from.
type Delivery struct {
	ChannelId string
	RoomId    string
	Event     Event
}

type Sink func(Delivery)

type Channel interface {
	Id() string
	RoomId() string
	State() State
	// Start begins delivering events to sink. Opened is always delivered
	// first.
	Start(sink Sink)
	// Send queues frame for writing. It returns false without queuing
	// anything unless the channel is open.
	Send(frame any) bool
	Close() error
}

type wsChannel struct {
	id        string
	roomId    string
	conn      *websocket.Conn
	log       zerolog.Logger
	stats     stats.StatsProvider
	send      chan []byte
	stop      chan struct{}
	state     atomic.Int32
	local     atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
	sink      Sink
}

func newWSChannel(id, roomId string, conn *websocket.Conn, l zerolog.Logger, s stats.StatsProvider) *wsChannel {
	c := &wsChannel{
		id:     id,
		roomId: roomId,
		conn:   conn,
		log:    l.With().Str("channel_id", id).Str("room_id", roomId).Logger(),
		stats:  s,
		send:   make(chan []byte, sendQueueSize),
		stop:   make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))

	return c
}

func (c *wsChannel) Id() string     { return c.id }
func (c *wsChannel) RoomId() string { return c.roomId }
func (c *wsChannel) State() State   { return State(c.state.Load()) }

func (c *wsChannel) Start(sink Sink) {
	c.startOnce.Do(func() {
		c.sink = sink
		if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
			return
		}

		c.stats.Incr(stats.ChannelsOpen)
		c.deliver(Opened{})

		c.wg.Add(2)
		go c.writePump()
		go c.readPump()
	})
}

func (c *wsChannel) Send(frame any) bool {
	if c.State() != StateOpen {
		return false
	}

	b, err := json.Marshal(frame)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to serialize frame")
		return false
	}

	return c.queueMessage(b)
}

// Close sends a normal close frame and closes the connection. Events are
// not delivered once Close has been called.
func (c *wsChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.local.Store(true)
		wasOpen := State(c.state.Swap(int32(StateClosing))) == StateOpen
		c.stopPumps()

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if werr := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); werr != nil &&
			!errors.Is(werr, websocket.ErrCloseSent) {
			c.log.Debug().Err(werr).Msg("write close frame")
		}

		err = c.conn.Close()
		c.state.Store(int32(StateClosed))
		if wasOpen {
			c.stats.Decr(stats.ChannelsOpen)
		}
		c.log.Debug().Msg("channel closed")
	})

	return err
}

// Wait blocks until both pumps have exited.
func (c *wsChannel) Wait() {
	c.wg.Wait()
}

func (c *wsChannel) deliver(ev Event) {
	if c.local.Load() || c.sink == nil {
		return
	}

	c.sink(Delivery{ChannelId: c.id, RoomId: c.roomId, Event: ev})
}

func (c *wsChannel) stopPumps() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *wsChannel) queueMessage(b []byte) bool {
	select {
	case c.send <- b:
	default:
		c.log.Warn().Msg("failed to queue frame, send queue is full")
		return false
	}

	return true
}

func (c *wsChannel) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.wg.Done()
		c.log.Debug().Msg("write exiting")
	}()

	for {
		select {
		case b := <-c.send:
			if err := c.write(websocket.TextMessage, b); err != nil {
				c.fail(err)
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.fail(err)
				return
			}
		case <-c.stop:
			return
		}
	}
}

func (c *wsChannel) write(msgType int, b []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(msgType, b)
}

// fail reports a write error and tears down the connection so the read
// pump observes the close.
func (c *wsChannel) fail(err error) {
	if c.local.Load() {
		return
	}

	c.log.Error().Err(err).Msg("write failed")
	c.deliver(Failed{Err: err})
	c.conn.Close()
}

func (c *wsChannel) readPump() {
	defer func() {
		c.stopPumps()
		c.wg.Done()
		c.log.Debug().Msg("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.closedByPeer(err)
			return
		}

		if msgType != websocket.TextMessage {
			continue
		}

		frame, err := DecodeFrame(raw)
		if err != nil {
			c.stats.Incr(stats.FramesDropped)
			c.log.Warn().Err(err).Msg("dropping frame")
			continue
		}

		c.stats.Incr(stats.FramesReceived)
		c.deliver(Received{Frame: frame})
	}
}

func (c *wsChannel) closedByPeer(err error) {
	if c.local.Load() {
		return
	}

	prev := State(c.state.Swap(int32(StateClosed)))
	c.conn.Close()
	if prev == StateOpen {
		c.stats.Decr(stats.ChannelsOpen)
	}

	ev := Closed{Code: websocket.CloseAbnormalClosure, Reason: err.Error(), Unexpected: true}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		ev.Code = ce.Code
		ev.Reason = ce.Text
	}

	c.log.Warn().Int("code", ev.Code).Str("reason", ev.Reason).Msg("channel closed by peer")
	c.deliver(ev)
}
