// Package session implements the room session controller. A single
// goroutine owns the message store, the room directory and the active
// channel; everything else talks to it through events.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-playground/validator/v10"
	"github.com/npezzotti/go-chatclient/internal/api"
	"github.com/npezzotti/go-chatclient/internal/auth"
	"github.com/npezzotti/go-chatclient/internal/directory"
	"github.com/npezzotti/go-chatclient/internal/prefs"
	"github.com/npezzotti/go-chatclient/internal/stats"
	"github.com/npezzotti/go-chatclient/internal/store"
	"github.com/npezzotti/go-chatclient/internal/transport"
	"github.com/npezzotti/go-chatclient/internal/types"
	"github.com/rs/zerolog"
)

const (
	eventQueueSize = 256
	prefsTimeout   = 5 * time.Second
)

var (
	ErrNoRoomSelected   = errors.New("no room selected")
	ErrNotConnected     = errors.New("not connected")
	ErrStopped          = errors.New("session stopped")
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomChanged      = errors.New("selected room changed")
	ErrNotAuthenticated = errors.New("not authenticated")
)

type State int

const (
	StateNoRoom State = iota
	StateConnecting
	StateActive
)

func (s State) String() string {
	switch s {
	case StateNoRoom:
		return "no_room"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Identity is the signed-in user.
type Identity struct {
	UserId   string
	Username string
}

// ReconnectPolicy controls what happens after an unexpected close. The
// zero value never reconnects.
type ReconnectPolicy struct {
	Enabled         bool
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

type Options struct {
	API          api.ChatAPI
	Dialer       transport.Dialer
	Tokens       *auth.TokenStore
	User         Identity
	Prefs        *prefs.Preferences
	Stats        stats.StatsProvider
	Logger       zerolog.Logger
	HistoryLimit int
	Reconnect    ReconnectPolicy
}

type Controller struct {
	api          api.ChatAPI
	dialer       transport.Dialer
	tokens       *auth.TokenStore
	user         Identity
	prefs        *prefs.Preferences
	stats        stats.StatsProvider
	log          zerolog.Logger
	validate     *validator.Validate
	historyLimit int
	reconnect    ReconnectPolicy

	events  chan any
	quit    chan stopReq
	stopped chan struct{}
	updates chan View
	helpers sync.WaitGroup

	bgCtx    context.Context
	bgCancel context.CancelFunc

	// owned by the Run goroutine
	store          *store.Store
	dir            *directory.Directory
	state          State
	roomId         string
	gen            uint64
	channel        transport.Channel
	chanOpen       bool
	connected      bool
	historyLoaded  bool
	detail         *types.RoomDetail
	pending        []transport.Inbound
	typing         []string
	lastError      string
	dialing        bool
	dialCancel     context.CancelFunc
	backoff        *backoff.ExponentialBackOff
	attempts       uint
	reconnectTimer *time.Timer
	restoreDone    bool
	revision       uint64
}

func NewController(opts Options) (*Controller, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("api client is required")
	}
	if opts.Dialer == nil {
		return nil, fmt.Errorf("dialer is required")
	}
	if opts.Tokens == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if opts.Stats == nil {
		opts.Stats = stats.NopStats{}
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = api.DefaultHistoryLimit
	}

	bo := backoff.NewExponentialBackOff()
	if opts.Reconnect.InitialInterval > 0 {
		bo.InitialInterval = opts.Reconnect.InitialInterval
	}
	if opts.Reconnect.MaxInterval > 0 {
		bo.MaxInterval = opts.Reconnect.MaxInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Controller{
		api:          opts.API,
		dialer:       opts.Dialer,
		tokens:       opts.Tokens,
		user:         opts.User,
		prefs:        opts.Prefs,
		stats:        opts.Stats,
		log:          opts.Logger.With().Str("component", "session").Logger(),
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		historyLimit: opts.HistoryLimit,
		reconnect:    opts.Reconnect,
		events:       make(chan any, eventQueueSize),
		quit:         make(chan stopReq),
		stopped:      make(chan struct{}),
		updates:      make(chan View, 1),
		bgCtx:        ctx,
		bgCancel:     cancel,
		store:        store.NewStore(),
		dir:          directory.New(),
		backoff:      bo,
	}, nil
}

type stopReq struct {
	done chan struct{}
}

// Run processes events until Shutdown is called.
func (c *Controller) Run() {
	for {
		select {
		case ev := <-c.events:
			c.handle(ev)
			c.revision++
			c.publish()
		case req := <-c.quit:
			c.log.Info().Msg("shutting down session")
			c.shutdown()
			close(c.stopped)
			close(req.done)
			return
		}
	}
}

// Shutdown stops the loop, closes the active channel and waits for helper
// goroutines to finish.
func (c *Controller) Shutdown(ctx context.Context) error {
	req := stopReq{done: make(chan struct{})}

	select {
	case c.quit <- req:
	case <-c.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	helpersDone := make(chan struct{})
	go func() {
		c.helpers.Wait()
		close(helpersDone)
	}()

	select {
	case <-helpersDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) shutdown() {
	c.stopReconnect()
	c.cancelDial()
	c.closeChannel()
	c.bgCancel()
}

// Updates streams views after every processed event. Slow readers only
// see the latest view.
func (c *Controller) Updates() <-chan View {
	return c.updates
}

func (c *Controller) publish() {
	v := c.view()
	select {
	case c.updates <- v:
		return
	default:
	}

	select {
	case <-c.updates:
	default:
	}

	select {
	case c.updates <- v:
	default:
	}
}

func (c *Controller) post(ctx context.Context, ev any) error {
	select {
	case c.events <- ev:
		return nil
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func await[T any](ctx context.Context, c *Controller, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-c.stopped:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// postResult hands an async result to the loop. Channels that arrive
// after shutdown are closed here.
func (c *Controller) postResult(ev any) {
	select {
	case c.events <- ev:
	case <-c.stopped:
		if d, ok := ev.(dialDone); ok && d.ch != nil {
			d.ch.Close()
		}
	}
}

func (c *Controller) goHelper(f func()) {
	c.helpers.Add(1)
	go func() {
		defer c.helpers.Done()
		f()
	}()
}

// sink receives channel deliveries on the channel's own goroutines.
func (c *Controller) sink(d transport.Delivery) {
	select {
	case c.events <- channelEvent{d: d}:
	case <-c.stopped:
	}
}
