package devserver

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-chatclient/internal/types"
	"github.com/rs/zerolog"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingInterval     = (pongWait * 9) / 10
	maxMessageSize   = 64 * 1024
	maxMessageLength = 2000
)

// Client is one websocket connection bound to a room.
type Client struct {
	conn     *websocket.Conn
	hub      *Hub
	log      zerolog.Logger
	user     User
	roomId   string
	send     chan []byte
	room     *hubRoom
	roomLock sync.RWMutex
	joined   chan struct{}
	joinOnce sync.Once
	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(user User, roomId string, conn *websocket.Conn, hub *Hub, l zerolog.Logger) *Client {
	return &Client{
		conn:   conn,
		hub:    hub,
		log:    l.With().Str("user", user.Username).Str("room_id", roomId).Logger(),
		user:   user,
		roomId: roomId,
		send:   make(chan []byte, 256),
		joined: make(chan struct{}),
		stop:   make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Debug().Msg("write exiting")
	}()

	for {
		select {
		case msg := <-c.send:
			if !c.sendMessage(websocket.TextMessage, msg) {
				return
			}
		case <-c.stop:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Debug().Msg("read exiting")
	}()

	// frames are only read once the room knows about the client
	select {
	case <-c.joined:
	case <-c.stop:
		return
	}

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("ws read")
			}
			break
		}

		var frame ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.log.Debug().Err(err).Msg("error parsing frame")
			c.queueFrame(NewErrorFrame("Invalid message format"))
			continue
		}

		switch frame.Type {
		case frameTyping:
			c.typing(frame.IsTyping)
		case frameMessage:
			c.publish(frame)
		default:
			c.queueFrame(NewErrorFrame(fmt.Sprintf("Unknown message type: %q", frame.Type)))
		}
	}
}

func (c *Client) publish(frame ClientFrame) {
	switch frame.MessageType {
	case types.MessageTypeImage, types.MessageTypeFile, types.MessageTypeVideo, types.MessageTypeAudio:
	default:
		frame.MessageType = types.MessageTypeText
	}

	if frame.Content == "" {
		c.queueFrame(NewErrorFrame("Message content cannot be empty"))
		return
	}
	if frame.MessageType == types.MessageTypeText && utf8.RuneCountInString(frame.Content) > maxMessageLength {
		c.queueFrame(NewErrorFrame(fmt.Sprintf("Message too long. Maximum %d characters allowed.", maxMessageLength)))
		return
	}

	r := c.getRoom()
	if r == nil {
		c.queueFrame(NewErrorFrame("room not found"))
		return
	}

	select {
	case r.publishChan <- &publishReq{client: c, frame: frame}:
	default:
		c.log.Warn().Msg("publish channel full")
		c.queueFrame(NewErrorFrame("service unavailable"))
	}
}

func (c *Client) typing(isTyping bool) {
	r := c.getRoom()
	if r == nil {
		return
	}

	select {
	case r.typingChan <- typingReq{userId: c.user.Id, isTyping: isTyping}:
	default:
		c.log.Warn().Msg("typing channel full")
	}
}

func (c *Client) queueFrame(frame any) bool {
	raw, err := json.Marshal(frame)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to serialize frame")
		return false
	}

	return c.queueMessage(raw)
}

func (c *Client) queueMessage(msg []byte) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Warn().Msg("failed to send message to client, channel is full")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Warn().Err(err).Msg("write message")
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) cleanup() {
	c.hub.Unregister(c)
	c.stopClient()
}

func (c *Client) setRoom(r *hubRoom) {
	c.roomLock.Lock()
	c.room = r
	c.roomLock.Unlock()

	c.joinOnce.Do(func() { close(c.joined) })
}

func (c *Client) delRoom(r *hubRoom) {
	c.roomLock.Lock()
	defer c.roomLock.Unlock()

	if c.room == r {
		c.room = nil
	}
}

func (c *Client) getRoom() *hubRoom {
	c.roomLock.RLock()
	defer c.roomLock.RUnlock()

	return c.room
}
