// Package wsconn implements the connection loop: one task per accepted
// socket, multiplexing inbound frames against the room and lobby broadcast
// subscriptions in a single cooperative select.
package wsconn

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nntndfrk/alias-game/internal/apierr"
	"github.com/nntndfrk/alias-game/internal/auth"
	"github.com/nntndfrk/alias-game/internal/broadcast"
	"github.com/nntndfrk/alias-game/internal/logging"
	"github.com/nntndfrk/alias-game/internal/metrics"
	"github.com/nntndfrk/alias-game/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	inboundBuffer  = 32
	sendBuffer     = 256
)

// wsConn is the subset of *websocket.Conn the Client needs, split out so
// tests can substitute a fake connection.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// Client owns a single accepted socket. It is the only writer to that
// socket: both outbound broadcast envelopes and direct unicast replies flow
// through its single run loop.
type Client struct {
	conn wsConn
	hub  *Hub

	inbound chan protocol.Envelope
	direct  chan protocol.Envelope
	closed  chan struct{}
	once    sync.Once

	mu        sync.Mutex
	principal *auth.Principal
	roomCode  string
	roomSub   <-chan broadcast.Envelope
	lobbySub  <-chan broadcast.Envelope
}

func newClient(conn wsConn, hub *Hub) *Client {
	return &Client{
		conn:    conn,
		hub:     hub,
		inbound: make(chan protocol.Envelope, inboundBuffer),
		direct:  make(chan protocol.Envelope, 16),
		closed:  make(chan struct{}),
	}
}

// readLoop decodes inbound frames off the socket and hands them to run via
// the inbound channel. It never writes to the socket.
func (c *Client) readLoop() {
	defer c.shutdown()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.deliverDirect(protocol.New(protocol.TagError, protocol.ErrorPayload{Message: "malformed frame"}))
			continue
		}
		select {
		case c.inbound <- env:
		case <-c.closed:
			return
		}
	}
}

// run is the single cooperative loop: it is the only goroutine that writes
// to the socket, selecting over the next inbound frame, the next room
// envelope, and the next lobby envelope.
func (c *Client) run() {
	defer c.shutdown()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		roomSub, lobbySub := c.subscriptions()

		select {
		case <-c.closed:
			return

		case env, ok := <-c.inbound:
			if !ok {
				return
			}
			ctx := context.Background()
			c.dispatch(ctx, env)

		case env, ok := <-roomSub:
			if !ok {
				continue
			}
			c.writeFrame(env.Frame)

		case env, ok := <-lobbySub:
			if !ok {
				continue
			}
			c.writeFrame(env.Frame)

		case frame, ok := <-c.direct:
			if !ok {
				continue
			}
			c.writeFrame(frame)

		case <-ticker.C:
			c.writeDeadline()
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) subscriptions() (<-chan broadcast.Envelope, <-chan broadcast.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomSub, c.lobbySub
}

func (c *Client) writeDeadline() {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
}

func (c *Client) writeFrame(frame protocol.Envelope) {
	data, err := json.Marshal(frame)
	if err != nil {
		logging.Error(context.Background(), "failed to marshal outbound frame")
		return
	}
	c.writeDeadline()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.shutdown()
	}
}

func (c *Client) sendError(message string) {
	c.writeFrame(protocol.New(protocol.TagError, protocol.ErrorPayload{Message: message}))
}

// deliverDirect enqueues a unicast frame from another goroutine (the hub's
// per-room directory), never blocking: a full direct queue drops the frame
// rather than stalling the sender.
func (c *Client) deliverDirect(frame protocol.Envelope) {
	select {
	case c.direct <- frame:
	default:
		metrics.BroadcastDropped.WithLabelValues("direct").Inc()
	}
}

func (c *Client) sendErrorFor(err error) {
	ae := apierr.Of(err)
	c.writeFrame(protocol.New(protocol.TagError, ae.Frame()))
}

// shutdown runs the disconnect side effects exactly once: soft-disconnect
// the bound participant (if any) and close the socket.
func (c *Client) shutdown() {
	c.once.Do(func() {
		close(c.closed)
		c.mu.Lock()
		roomCode, principal := c.roomCode, c.principal
		c.mu.Unlock()

		if roomCode != "" && principal != nil {
			if err := c.hub.registry.Disconnect(context.Background(), roomCode, principal.Subject); err != nil {
				logging.Warn(context.Background(), "soft disconnect failed on socket close")
			}
		}
		c.conn.Close()
		metrics.ActiveWebSocketConnections.Dec()
	})
}
