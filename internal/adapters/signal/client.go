package signal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

const (
	writeWait = 5 * time.Second
	closeWait = 2 * time.Second
)

type ClientConfig struct {
	// HubURL is the hub base address, http(s) or ws(s).
	HubURL     string
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

// WSBus subscribes to session channels hosted by the hub.
type WSBus struct {
	cfg    ClientConfig
	codec  Codec
	dialer *websocket.Dialer
}

func NewWSBus(cfg ClientConfig, codec Codec) *WSBus {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 32
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = 54 * time.Second
	}
	return &WSBus{cfg: cfg, codec: codec, dialer: websocket.DefaultDialer}
}

// SignalURL builds the websocket address of a session channel.
func SignalURL(hub string, session domain.SessionID, self domain.ParticipantID, codec string) (string, error) {
	u, err := url.Parse(hub)
	if err != nil {
		return "", fmt.Errorf("hub url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("hub url: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/ws/signal/" + string(session)
	q := u.Query()
	q.Set("participant", string(self))
	if codec != "" && codec != "json" {
		q.Set("codec", codec)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (b *WSBus) Subscribe(ctx context.Context, session domain.SessionID, self domain.ParticipantID) (core.Channel, error) {
	addr, err := SignalURL(b.cfg.HubURL, session, self, b.codec.Name())
	if err != nil {
		return nil, err
	}
	conn, resp, err := b.dialer.DialContext(ctx, addr, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w: %w", addr, domain.ErrNetworkUnreachable, err)
	}
	ch := &wsChannel{
		conn:       conn,
		codec:      b.codec,
		send:       make(chan core.Frame, b.cfg.SendBuffer),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
		pingPeriod: b.cfg.PingPeriod,
		log: log.With().Str("module", "signal.client").
			Str("session", string(session)).Str("participant", string(self)).Logger(),
	}
	if b.cfg.ReadLimit > 0 {
		conn.SetReadLimit(b.cfg.ReadLimit)
	}
	go ch.writePump()
	go ch.readPump()
	ch.log.Info().Str("codec", b.codec.Name()).Msg("subscribed")
	return ch, nil
}

type wsChannel struct {
	handlers
	conn       *websocket.Conn
	codec      Codec
	send       chan core.Frame
	done       chan struct{}
	writerDone chan struct{}
	pingPeriod time.Duration

	mu       sync.RWMutex
	closed   bool
	lostOnce sync.Once

	log zerolog.Logger
}

func (c *wsChannel) Publish(_ context.Context, e domain.Event) error {
	f, err := c.codec.Encode(e)
	if err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case <-c.done:
		return ErrClosed
	case c.send <- f:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *wsChannel) Done() <-chan struct{} { return c.done }

// Close flushes queued frames, then closes the socket.
func (c *wsChannel) Close() error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
	select {
	case <-c.writerDone:
	case <-time.After(closeWait):
		_ = c.conn.Close()
	}
	c.lost()
	return nil
}

func (c *wsChannel) lost() {
	c.lostOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *wsChannel) readPump() {
	defer c.lost()
	pongWait := c.pingPeriod * 10 / 9
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn().Err(err).Msg("readPump read error")
			}
			return
		}
		e, err := c.codec.Decode(data)
		if err != nil {
			c.log.Warn().Err(err).Msg("readPump decode")
			continue
		}
		c.dispatch(e)
	}
}

func (c *wsChannel) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.writerDone)
	}()
	for {
		select {
		case <-c.done:
			return
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(c.codec.MessageType(), data); err != nil {
				c.log.Error().Err(err).Msg("writePump write error")
				c.lost()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Warn().Err(err).Msg("writePump ping")
				c.lost()
				return
			}
		}
	}
}
