package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/npezzotti/go-chatclient/internal/stats"
	"github.com/rs/zerolog"
)

const (
	idleRoomTimeout = 5 * time.Second
	roomQueueSize   = 256

	ClientsMetric = "devserver_clients"
)

var ErrHubStopped = errors.New("hub stopped")

// delivery is a frame for the clients of one room, or for one user's
// clients in that room when userId is set.
type delivery struct {
	roomId string
	userId string
	frame  any
}

// Hub tracks websocket clients and runs one goroutine per room with
// connected clients. Rooms unload themselves after idling.
type Hub struct {
	log            zerolog.Logger
	repo           Repository
	stats          stats.StatsProvider
	clients        map[*Client]struct{}
	rooms          map[string]*hubRoom
	registerChan   chan *Client
	deRegisterChan chan *Client
	deliverChan    chan *delivery
	unloadRoomChan chan string
	stop           chan struct{}
	stopOnce       sync.Once
	done           chan struct{}
}

func NewHub(logger zerolog.Logger, repo Repository, sp stats.StatsProvider) *Hub {
	if sp == nil {
		sp = stats.NopStats{}
	}
	sp.RegisterMetric(ClientsMetric)

	return &Hub{
		log:            logger.With().Str("component", "hub").Logger(),
		repo:           repo,
		stats:          sp,
		clients:        make(map[*Client]struct{}),
		rooms:          make(map[string]*hubRoom),
		registerChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		deliverChan:    make(chan *delivery, roomQueueSize),
		unloadRoomChan: make(chan string),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case c := <-h.registerChan:
			h.log.Debug().Str("user", c.user.Username).Str("room_id", c.roomId).Msg("adding connection")
			h.clients[c] = struct{}{}
			h.stats.Incr(ClientsMetric)

			r := h.loadRoom(c.roomId)
			select {
			case r.joinChan <- c:
			default:
				h.log.Warn().Str("room_id", r.id).Msg("join channel full")
				c.queueFrame(NewErrorFrame("service unavailable"))
			}
		case c := <-h.deRegisterChan:
			if _, ok := h.clients[c]; !ok {
				continue
			}
			h.log.Debug().Str("user", c.user.Username).Str("room_id", c.roomId).Msg("removing connection")
			delete(h.clients, c)
			h.stats.Decr(ClientsMetric)

			if r, ok := h.rooms[c.roomId]; ok {
				r.leaveChan <- c
			}
		case d := <-h.deliverChan:
			r, ok := h.rooms[d.roomId]
			if !ok {
				// nobody is connected to the room
				continue
			}
			select {
			case r.deliverChan <- d:
			default:
				h.log.Warn().Str("room_id", r.id).Msg("deliver channel full")
			}
		case id := <-h.unloadRoomChan:
			r, ok := h.rooms[id]
			if !ok {
				continue
			}
			req := exitReq{done: make(chan bool, 1)}
			r.exit <- req
			if <-req.done {
				delete(h.rooms, id)
				h.log.Debug().Str("room_id", id).Msg("room unloaded")
			}
		case <-h.stop:
			h.log.Info().Msg("shutting down rooms")
			for _, r := range h.rooms {
				close(r.exit)
				<-r.done
			}
			for c := range h.clients {
				c.stopClient()
			}

			close(h.done)
			return
		}
	}
}

func (h *Hub) loadRoom(id string) *hubRoom {
	if r, ok := h.rooms[id]; ok {
		return r
	}

	r := &hubRoom{
		id:          id,
		hub:         h,
		log:         h.log.With().Str("room_id", id).Logger(),
		joinChan:    make(chan *Client, roomQueueSize),
		leaveChan:   make(chan *Client, roomQueueSize),
		publishChan: make(chan *publishReq, roomQueueSize),
		typingChan:  make(chan typingReq, roomQueueSize),
		deliverChan: make(chan *delivery, roomQueueSize),
		clients:     make(map[*Client]struct{}),
		userMap:     make(map[string]map[*Client]struct{}),
		exit:        make(chan exitReq),
		done:        make(chan struct{}),
	}
	h.rooms[id] = r

	go r.start()
	return r
}

func (h *Hub) Register(c *Client) error {
	select {
	case h.registerChan <- c:
		return nil
	case <-h.stop:
		return ErrHubStopped
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.deRegisterChan <- c:
	case <-h.done:
	}
}

// Broadcast sends frame to every client connected to roomId.
func (h *Hub) Broadcast(roomId string, frame any) {
	h.deliver(&delivery{roomId: roomId, frame: frame})
}

// SendToUser sends frame to the clients userId has open on roomId.
func (h *Hub) SendToUser(roomId, userId string, frame any) {
	h.deliver(&delivery{roomId: roomId, userId: userId, frame: frame})
}

func (h *Hub) deliver(d *delivery) {
	select {
	case h.deliverChan <- d:
	case <-h.done:
	}
}

// Shutdown closes every room and client connection.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.stopOnce.Do(func() { close(h.stop) })

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type exitReq struct {
	done chan bool
}

type publishReq struct {
	client *Client
	frame  ClientFrame
}

type typingReq struct {
	userId   string
	isTyping bool
}

type hubRoom struct {
	id          string
	hub         *Hub
	log         zerolog.Logger
	joinChan    chan *Client
	leaveChan   chan *Client
	publishChan chan *publishReq
	typingChan  chan typingReq
	deliverChan chan *delivery
	clients     map[*Client]struct{}
	userMap     map[string]map[*Client]struct{}
	typing      []string
	// killTimer unloads the room once nobody is connected
	killTimer *time.Timer
	exit      chan exitReq
	done      chan struct{}
}

func (r *hubRoom) start() {
	r.log.Debug().Msg("starting room")
	r.killTimer = time.NewTimer(idleRoomTimeout)
	r.killTimer.Stop()
	defer close(r.done)

	for {
		select {
		case c := <-r.joinChan:
			r.handleJoin(c)
		case c := <-r.leaveChan:
			r.handleLeave(c)
		case req := <-r.publishChan:
			r.saveAndBroadcast(req)
		case t := <-r.typingChan:
			r.handleTyping(t)
		case d := <-r.deliverChan:
			r.broadcast(d.frame, d.userId, nil)
		case <-r.killTimer.C:
			r.log.Debug().Msg("room timed out")
			go func() {
				select {
				case r.hub.unloadRoomChan <- r.id:
				case <-r.hub.done:
				}
			}()
		case e, ok := <-r.exit:
			if !ok {
				r.handleShutdown()
				return
			}
			if len(r.clients) > 0 || len(r.joinChan) > 0 {
				e.done <- false
				continue
			}
			e.done <- true
			return
		}
	}
}

func (r *hubRoom) handleShutdown() {
	for c := range r.clients {
		c.delRoom(r)
	}
}

func (r *hubRoom) handleJoin(c *Client) {
	// stop the kill timer since we have a new client
	r.killTimer.Stop()

	firstSession := r.userMap[c.user.Id] == nil
	r.clients[c] = struct{}{}
	if firstSession {
		r.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	r.userMap[c.user.Id][c] = struct{}{}
	c.setRoom(r)

	r.log.Debug().Str("user", c.user.Username).Int("clients", len(r.clients)).Msg("client joined")

	if firstSession {
		r.broadcast(newPresenceFrame(frameUserJoined, c.user.Id), "", c)
	}
}

func (r *hubRoom) handleLeave(c *Client) {
	if _, ok := r.clients[c]; !ok {
		return
	}

	delete(r.clients, c)
	c.delRoom(r)

	userClients := r.userMap[c.user.Id]
	delete(userClients, c)
	if len(userClients) == 0 {
		delete(r.userMap, c.user.Id)
		r.broadcast(newPresenceFrame(frameUserLeft, c.user.Id), "", nil)
		if r.setTyping(c.user.Id, false) {
			r.broadcastTyping()
		}
	}

	if len(r.clients) == 0 {
		r.log.Debug().Msg("no clients left, starting kill timer")
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *hubRoom) handleTyping(t typingReq) {
	if r.setTyping(t.userId, t.isTyping) {
		r.broadcastTyping()
	}
}

func (r *hubRoom) setTyping(userId string, isTyping bool) bool {
	i := slices.Index(r.typing, userId)
	switch {
	case isTyping && i < 0:
		r.typing = append(r.typing, userId)
	case !isTyping && i >= 0:
		r.typing = slices.Delete(r.typing, i, i+1)
	default:
		return false
	}

	return true
}

func (r *hubRoom) broadcastTyping() {
	r.broadcast(&TypingStatusFrame{
		Type:        frameTypingStatus,
		UsersTyping: slices.Clone(r.typing),
	}, "", nil)
}

func (r *hubRoom) saveAndBroadcast(req *publishReq) {
	c := req.client

	msg, err := r.hub.repo.CreateMessage(CreateMessageParams{
		RoomId:  r.id,
		UserId:  c.user.Id,
		Content: req.frame.Content,
		Type:    req.frame.MessageType,
		FileUrl: req.frame.FileUrl,
	})
	if err != nil {
		r.log.Error().Err(err).Msg("error saving message")
		c.queueFrame(NewErrorFrame("failed to save message"))
		return
	}

	r.broadcast(NewMessageFrame(msg, c.user), "", nil)
}

func (r *hubRoom) broadcast(frame any, userId string, skip *Client) {
	raw, err := json.Marshal(frame)
	if err != nil {
		r.log.Error().Err(err).Msg("failed to serialize frame")
		return
	}

	for c := range r.clients {
		if c == skip || (userId != "" && c.user.Id != userId) {
			continue
		}
		c.queueMessage(raw)
	}
}
