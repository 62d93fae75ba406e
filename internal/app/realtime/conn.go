/*
Package realtime implements the connection lifecycle: the handshake, the per-connection
event loop, fan-out to live connections and cleanup on disconnect.

This file defines Conn, one authenticated WebSocket session. A Conn processes its
inbound frames strictly in order on its ReadPump goroutine; outbound frames are
queued on a buffered channel and written by WritePump.
*/
package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"mentorlink/internal/app/identity"
	"mentorlink/internal/pkg/logx"
	"mentorlink/internal/pkg/randx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxFrameSize = 64 * 1024

	// capacity of the outbound queue.
	sendBuffer = 256
)

// State is the lifecycle state of a connection.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateAuthenticated
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Conn is one transport session.
type Conn struct {
	id string

	// ws is nil for connections driven directly by tests.
	ws *websocket.Conn

	hub *Hub

	// identity is set once by Admit and never changed.
	identity identity.Identity

	state atomic.Int32

	// send queues encoded frames for WritePump.
	send chan []byte

	// done is closed exactly once when the connection is disconnected.
	done      chan struct{}
	closeOnce sync.Once

	logger zerolog.Logger
}

func newConn(hub *Hub, ws *websocket.Conn) *Conn {
	id := randx.ConnectionID()

	c := &Conn{
		id:     id,
		ws:     ws,
		hub:    hub,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: logx.Component("realtime").With().Str("conn_id", id).Logger(),
	}
	c.state.Store(int32(StateConnecting))

	return c
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

// UserID returns the authenticated user id, empty before Admit.
func (c *Conn) UserID() string { return c.identity.UserID }

// State returns the current lifecycle state.
func (c *Conn) State() State { return State(c.state.Load()) }

func (c *Conn) setState(s State) {
	c.state.Store(int32(s))
}

// Deliver queues frame without blocking. It returns false when the connection
// is gone or its queue is full. A full queue closes the connection.
func (c *Conn) Deliver(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	case <-c.done:
		return false
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Send queue full, closing slow connection.")
		go c.hub.Close(c)
		return false
	}
}

// ReadPump reads frames until the transport fails, handing each to the hub in
// arrival order. It runs disconnect cleanup on exit.
func (c *Conn) ReadPump() {
	defer c.hub.Close(c)

	c.ws.SetReadLimit(maxFrameSize)

	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading frame (client close/going away)")
			}
			return
		}

		c.hub.HandleFrame(c, raw)
	}
}

// WritePump writes queued frames and periodic pings until the connection is done.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.ws.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame := <-c.send:
			if !c.writeFrame(frame) {
				return
			}

		case <-ticker.C:
			if !c.writePing() {
				return
			}
			c.hub.heartbeat(c)

		case <-c.done:
			c.drain()
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// drain flushes frames queued before the connection was marked done.
func (c *Conn) drain() {
	for {
		select {
		case frame := <-c.send:
			if !c.writeFrame(frame) {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) writeFrame(frame []byte) bool {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.logger.Error().Err(err).Msg("Error writing frame")
		return false
	}

	return true
}

func (c *Conn) writePing() bool {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// reject writes a close frame with code and closes the transport. Used when the
// handshake fails; the connection never reaches Authenticated.
func (c *Conn) reject(code int, reason string) {
	c.setState(StateDisconnected)
	c.markDone()

	if c.ws == nil {
		return
	}

	c.logger.Warn().Int("close_code", code).Str("reason", reason).Msg("Rejecting connection.")

	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to write close frame.")
	}

	if err := c.ws.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Connection close error on reject")
	}
}

func (c *Conn) markDone() {
	c.closeOnce.Do(func() { close(c.done) })
}
