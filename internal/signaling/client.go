// Package signaling connects a transfer session to the relay server: a
// websocket client, the outbound request encoder and the inbound message
// router.
package signaling

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	dialTimeout    = 10 * time.Second
	outboxSize     = 64
)

var ErrOutboxFull = errors.New("signaling send buffer full")

// Client manages the websocket connection to the signaling server. The
// connection is dialed on first use and again after Close, so one Client
// can serve several transfers.
type Client struct {
	serverURL string
	dialer    *websocket.Dialer

	onMessage func(*protocol.Message)
	onLost    func(error)

	mu      sync.Mutex
	cur     *link
	writers sync.WaitGroup
}

// link is one websocket connection and its pumps.
type link struct {
	conn    *websocket.Conn
	out     chan *protocol.Message
	done    chan struct{}
	closing atomic.Bool
}

// NewClient creates a client for serverURL. onMessage receives every server
// message; onLost is called when a connection ends without Close.
func NewClient(serverURL string, onMessage func(*protocol.Message), onLost func(error)) *Client {
	return &Client{
		serverURL: serverURL,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: dialTimeout,
		},
		onMessage: onMessage,
		onLost:    onLost,
	}
}

// Connect dials the server unless a connection is already up.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.ensure(ctx)
	return err
}

func (c *Client) ensure(ctx context.Context) (*link, error) {
	if c.cur != nil {
		return c.cur, nil
	}

	u, err := url.Parse(c.serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	log.Debug().Str("module", "signaling").Str("server", u.Host).Msg("connected")

	l := &link{
		conn: conn,
		out:  make(chan *protocol.Message, outboxSize),
		done: make(chan struct{}),
	}
	c.cur = l

	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.writers.Add(1)
	go c.readPump(l)
	go func() {
		defer c.writers.Done()
		c.writePump(l)
	}()
	return l, nil
}

// Send queues msg, dialing first if needed.
func (c *Client) Send(msg *protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, err := c.ensure(context.Background())
	if err != nil {
		return err
	}
	select {
	case l.out <- msg:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Close flushes queued messages and closes the connection. It does not
// report the connection as lost.
func (c *Client) Close() error {
	c.mu.Lock()
	l := c.cur
	c.cur = nil
	c.mu.Unlock()

	if l == nil {
		return nil
	}
	l.closing.Store(true)
	close(l.out)
	return nil
}

// Wait blocks until every connection has stopped writing, or ctx ends.
// After Close it returns once queued messages are flushed.
func (c *Client) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.writers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connected reports whether a connection is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur != nil
}

func (c *Client) readPump(l *link) {
	defer func() {
		close(l.done)
		l.conn.Close()
	}()

	l.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		var msg protocol.Message
		if err := l.conn.ReadJSON(&msg); err != nil {
			c.drop(l, err)
			return
		}
		if l.closing.Load() {
			continue
		}
		if c.onMessage != nil {
			c.onMessage(&msg)
		}
	}
}

// drop forgets a connection that ended on its own and reports it.
func (c *Client) drop(l *link, err error) {
	c.mu.Lock()
	if c.cur == l {
		c.cur = nil
	}
	c.mu.Unlock()

	if l.closing.Load() {
		return
	}
	log.Warn().Err(err).Str("module", "signaling").Msg("connection lost")
	if c.onLost != nil {
		c.onLost(err)
	}
}

func (c *Client) writePump(l *link) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		l.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-l.out:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				l.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := l.conn.WriteJSON(msg); err != nil {
				log.Warn().Err(err).Str("module", "signaling").Str("type", msg.Type).Msg("write failed")
				return
			}

		case <-ticker.C:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-l.done:
			return
		}
	}
}
