package transport

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-chatclient/internal/stats"
	"github.com/rs/zerolog"
)

const handshakeTimeout = 10 * time.Second

type Dialer interface {
	// Open connects to the room's channel. A nil error means the
	// connection is established; events flow once Start is called.
	Open(ctx context.Context, roomId, token string) (Channel, error)
}

// WSDialer opens channels at {baseURL}/{roomId}?token={token}.
type WSDialer struct {
	baseURL *url.URL
	dialer  *websocket.Dialer
	log     zerolog.Logger
	stats   stats.StatsProvider
}

func NewDialer(baseURL string, l zerolog.Logger, s stats.StatsProvider) (*WSDialer, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket url: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported websocket scheme %q", u.Scheme)
	}

	return &WSDialer{
		baseURL: u,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
		log:   l,
		stats: s,
	}, nil
}

func (d *WSDialer) roomURL(roomId, token string) string {
	u := d.baseURL.JoinPath(roomId)
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	return u.String()
}

func (d *WSDialer) Open(ctx context.Context, roomId, token string) (Channel, error) {
	if roomId == "" {
		return nil, fmt.Errorf("open channel: empty room id")
	}

	d.stats.Incr(stats.ChannelDials)
	conn, resp, err := d.dialer.DialContext(ctx, d.roomURL(roomId, token), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("open channel for room %q: %w (status %d)", roomId, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("open channel for room %q: %w", roomId, err)
	}

	c := newWSChannel(uuid.NewString(), roomId, conn, d.log, d.stats)
	d.log.Debug().Str("channel_id", c.id).Str("room_id", roomId).Msg("channel connected")

	return c, nil
}
