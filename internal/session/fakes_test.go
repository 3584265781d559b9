package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/go-chatclient/internal/transport"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	id      string
	roomId  string
	dialer  *fakeDialer
	mu      sync.Mutex
	state   transport.State
	sink    transport.Sink
	sent    []any
	started chan struct{}
	closed  chan struct{}
}

func (c *fakeChannel) Id() string     { return c.id }
func (c *fakeChannel) RoomId() string { return c.roomId }

func (c *fakeChannel) State() transport.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeChannel) Start(sink transport.Sink) {
	c.mu.Lock()
	if c.state != transport.StateConnecting {
		c.mu.Unlock()
		return
	}
	c.sink = sink
	c.state = transport.StateOpen
	c.mu.Unlock()

	sink(transport.Delivery{ChannelId: c.id, RoomId: c.roomId, Event: transport.Opened{}})
	close(c.started)
}

func (c *fakeChannel) Send(frame any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != transport.StateOpen {
		return false
	}
	c.sent = append(c.sent, frame)
	return true
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	if c.state == transport.StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = transport.StateClosed
	c.mu.Unlock()

	c.dialer.channelClosed()
	close(c.closed)
	return nil
}

func (c *fakeChannel) sentFrames() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, len(c.sent))
	copy(out, c.sent)
	return out
}

// emit delivers ev as if it came from the network, even after Close.
func (c *fakeChannel) emit(ev transport.Event) {
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()

	sink(transport.Delivery{ChannelId: c.id, RoomId: c.roomId, Event: ev})
}

func (c *fakeChannel) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-c.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("channel %s was never started", c.id)
	}
}

func (c *fakeChannel) isClosed() bool {
	return c.State() == transport.StateClosed
}

type fakeDialer struct {
	mu          sync.Mutex
	delay       time.Duration
	gate        chan struct{}
	fail        map[string]error
	open        int
	maxOpen     int
	inFlight    int
	maxInFlight int
	dials       int
	tokens      []string
	channels    []*fakeChannel
	opened      chan *fakeChannel
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		fail:   make(map[string]error),
		opened: make(chan *fakeChannel, 64),
	}
}

var errDialRefused = errors.New("connection refused")

func (d *fakeDialer) Open(ctx context.Context, roomId, token string) (transport.Channel, error) {
	d.mu.Lock()
	d.dials++
	d.tokens = append(d.tokens, token)
	d.inFlight++
	if d.inFlight > d.maxInFlight {
		d.maxInFlight = d.inFlight
	}
	delay := d.delay
	gate := d.gate
	failErr := d.fail[roomId]
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.inFlight--
		d.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failErr != nil {
		return nil, failErr
	}

	d.mu.Lock()
	ch := &fakeChannel{
		id:      fmt.Sprintf("%s-%d", roomId, len(d.channels)),
		roomId:  roomId,
		dialer:  d,
		state:   transport.StateConnecting,
		started: make(chan struct{}),
		closed:  make(chan struct{}),
	}
	d.open++
	if d.open > d.maxOpen {
		d.maxOpen = d.open
	}
	d.channels = append(d.channels, ch)
	d.mu.Unlock()

	select {
	case d.opened <- ch:
	default:
	}
	return ch, nil
}

func (d *fakeDialer) channelClosed() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open--
}

func (d *fakeDialer) setFail(roomId string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.fail, roomId)
		return
	}
	d.fail[roomId] = err
}

func (d *fakeDialer) stats() (open, maxOpen, maxInFlight, dials int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open, d.maxOpen, d.maxInFlight, d.dials
}

// next returns the next channel the dialer hands out for roomId, skipping
// channels for other rooms.
func (d *fakeDialer) next(t *testing.T, roomId string) *fakeChannel {
	t.Helper()
	for {
		select {
		case ch := <-d.opened:
			if ch.roomId == roomId {
				ch.waitStarted(t)
				return ch
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("no channel opened for room %s", roomId)
			return nil
		}
	}
}

func requireClosed(t *testing.T, ch *fakeChannel) {
	t.Helper()
	select {
	case <-ch.closed:
	case <-time.After(2 * time.Second):
		require.Fail(t, "expected channel to be closed", ch.id)
	}
}
