package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"mentorlink/internal/app/identity"
	"mentorlink/internal/app/messaging"
	"mentorlink/internal/app/presence"
	"mentorlink/internal/app/protocol"
	"mentorlink/internal/app/signaling"
	"mentorlink/internal/pkg/errs"
	"mentorlink/internal/pkg/logx"
)

// Custom WebSocket close codes (4000-4999 range) sent when the handshake fails.
const (
	CloseMissingCredential = 4401
	CloseInvalidCredential = 4402
	CloseExpiredCredential = 4403
	CloseUnknownSubject    = 4404
)

const (
	// authTimeout bounds the credential check during the handshake.
	authTimeout = 5 * time.Second

	// eventTimeout bounds the handling of one inbound event.
	eventTimeout = 10 * time.Second

	// presenceTimeout bounds one online tracker call.
	presenceTimeout = 2 * time.Second
)

var errHubClosed = errors.New("realtime: hub is shut down")

// Authenticator resolves a handshake credential.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (identity.Identity, error)
}

// Relay is the messaging side of the event loop.
type Relay interface {
	Send(ctx context.Context, sender identity.Identity, req messaging.SendRequest) (messaging.Message, error)
	MarkRead(ctx context.Context, readerID, otherID string) (int64, error)
	Typing(fromID, toID string, isTyping bool) error
}

// Config wires a Hub.
type Config struct {
	Auth     Authenticator
	Registry *presence.Registry
	Broker   *signaling.Broker
	Relay    Relay
	Notifier *Notifier

	// Tracker mirrors online users; nil means no mirror.
	Tracker presence.OnlineTracker

	// ReapInterval is how often idle call rooms are reaped; zero disables it.
	ReapInterval time.Duration
}

// Hub owns every live connection. It admits connections after authentication,
// dispatches their events and cleans up after them.
type Hub struct {
	auth     Authenticator
	registry *presence.Registry
	broker   *signaling.Broker
	relay    Relay
	notifier *Notifier
	tracker  presence.OnlineTracker

	reapInterval time.Duration

	// mu protects conns and closed.
	mu     sync.Mutex
	conns  map[string]*Conn
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger zerolog.Logger
}

// NewHub constructs a Hub. Call Start to run background maintenance.
func NewHub(cfg Config) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	tracker := cfg.Tracker
	if tracker == nil {
		tracker = presence.NopTracker{}
	}

	return &Hub{
		auth:         cfg.Auth,
		registry:     cfg.Registry,
		broker:       cfg.Broker,
		relay:        cfg.Relay,
		notifier:     cfg.Notifier,
		tracker:      tracker,
		reapInterval: cfg.ReapInterval,
		conns:        make(map[string]*Conn),
		ctx:          ctx,
		cancel:       cancel,
		logger:       logx.Component("hub"),
	}
}

// Start launches the idle call room reaper.
func (h *Hub) Start() {
	if h.reapInterval <= 0 {
		return
	}

	h.wg.Add(1)
	go h.runReapLoop()
}

func (h *Hub) runReapLoop() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.reapInterval)
	defer ticker.Stop()

	h.logger.Info().Dur("interval", h.reapInterval).Msg("Reap loop started.")

	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info().Msg("Reap loop stopped.")
			return
		case now := <-ticker.C:
			h.notifier.Route(h.broker.Reap(now))
		}
	}
}

// Serve runs the handshake on an upgraded WebSocket. On failure the socket is
// closed with a 44xx code; on success it runs the connection's read loop and
// returns after disconnect cleanup.
func (h *Hub) Serve(ws *websocket.Conn, credential string) {
	c := newConn(h, ws)
	c.setState(StateAuthenticating)

	ctx, cancel := context.WithTimeout(h.ctx, authTimeout)
	id, err := h.auth.Authenticate(ctx, credential)
	cancel()

	if err != nil {
		customErr := errs.From(err)
		c.logger.Warn().Err(err).Int("code", customErr.Code).Msg("Handshake rejected.")
		c.reject(CloseCodeFor(err), customErr.Message)
		return
	}

	if err := h.Admit(c, id); err != nil {
		c.reject(websocket.CloseGoingAway, "server shutting down")
		return
	}

	go c.WritePump()
	c.ReadPump()
}

// Admit binds id to c, registers it and joins its personal room. It is the
// Authenticating to Authenticated transition.
func (h *Hub) Admit(c *Conn, id identity.Identity) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return errHubClosed
	}
	h.conns[c.id] = c
	h.mu.Unlock()

	c.identity = id
	c.logger = c.logger.With().Str("user_id", id.UserID).Logger()

	h.registry.Register(c)
	if err := h.registry.Join(c.id, presence.PersonalRoom(id.UserID)); err != nil {
		h.forget(c)
		return fmt.Errorf("join personal room: %w", err)
	}

	c.setState(StateAuthenticated)

	h.notifier.NotifyConn(c.id, protocol.Connected{
		ConnectionID: c.id,
		UserID:       id.UserID,
		Role:         string(id.Role),
	})

	h.touch(id.UserID)

	c.logger.Info().Str("role", string(id.Role)).Msg("Connection authenticated.")
	return nil
}

// HandleFrame decodes and handles one inbound frame. Failures are reported to
// the connection as error events; a panic is contained to the event.
func (h *Hub) HandleFrame(c *Conn, raw []byte) {
	if c.State() != StateAuthenticated {
		return
	}

	name, cmd, err := protocol.Decode(raw)
	if err != nil {
		h.fail(c, err, name, "")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Str("event", string(name)).
				Interface("panic", r).
				Msg("Recovered from panic in event handler.")
			h.fail(c, errs.NewError(errs.ErrUnknown), name, "")
		}
	}()

	ctx, cancel := context.WithTimeout(h.ctx, eventTimeout)
	defer cancel()

	h.dispatch(ctx, c, name, cmd)
}

func (h *Hub) dispatch(ctx context.Context, c *Conn, name protocol.Name, cmd protocol.Command) {
	id := c.identity

	switch cmd := cmd.(type) {
	case *protocol.JoinPersonal:
		if cmd.UserID != "" && cmd.UserID != id.UserID {
			h.fail(c, errs.Policy("You can only join your own room"), name, "")
			return
		}
		if err := h.registry.Join(c.id, presence.PersonalRoom(id.UserID)); err != nil {
			h.fail(c, errs.Wrap(errs.ErrUnknown, err), name, "")
		}

	case *protocol.SendMessage:
		_, err := h.relay.Send(ctx, id, messaging.SendRequest{
			RecipientID: cmd.Recipient,
			Content:     cmd.Content,
			TempID:      cmd.TempID,
			OriginConn:  c.id,
		})
		if err != nil {
			h.fail(c, err, name, cmd.TempID)
		}

	case *protocol.Typing:
		if err := h.relay.Typing(id.UserID, cmd.RecipientID, cmd.IsTyping); err != nil {
			h.fail(c, err, name, "")
		}

	case *protocol.MarkRead:
		if _, err := h.relay.MarkRead(ctx, id.UserID, cmd.SenderID); err != nil {
			h.fail(c, err, name, "")
		}

	case *protocol.JoinCall:
		out, err := h.broker.Join(c.id, cmd.RoomID, id.Name)
		if err != nil {
			h.fail(c, err, name, "")
			return
		}
		h.notifier.Route(out)

	case *protocol.LeaveCall:
		h.notifier.Route(h.broker.Leave(c.id, cmd.RoomID))

	case *protocol.Offer:
		h.relayResult(c, name)(h.broker.Offer(c.id, cmd))

	case *protocol.Answer:
		h.relayResult(c, name)(h.broker.Answer(c.id, cmd))

	case *protocol.ICECandidate:
		h.relayResult(c, name)(h.broker.Candidate(c.id, cmd))

	default:
		h.fail(c, errs.NewError(errs.ErrUnknownEvent, string(name)), name, "")
	}
}

func (h *Hub) relayResult(c *Conn, name protocol.Name) func([]signaling.Delivery, error) {
	return func(out []signaling.Delivery, err error) {
		if err != nil {
			h.fail(c, err, name, "")
			return
		}
		h.notifier.Route(out)
	}
}

// fail reports err to c as an error event. The connection stays open.
func (h *Hub) fail(c *Conn, err error, name protocol.Name, tempID string) {
	customErr := errs.From(err)

	logEvent := c.logger.Debug()
	if customErr.Status >= 500 {
		logEvent = c.logger.Error()
	}
	logEvent.Err(err).Str("event", string(name)).Int("code", customErr.Code).Msg("Event failed.")

	h.notifier.NotifyConn(c.id, protocol.ErrorFrom(customErr, name, tempID))
}

// Close is the transition to Disconnected. Every call room the connection was in
// is destroyed and its remaining peer told with user-left; the connection is then
// removed from every room. Calling Close more than once is a no-op.
func (h *Hub) Close(c *Conn) {
	prev := State(c.state.Swap(int32(StateDisconnected)))
	if prev == StateDisconnected {
		return
	}
	c.markDone()

	if prev != StateAuthenticated {
		h.forget(c)
		return
	}

	for _, roomID := range h.registry.RoomsOf(c.id) {
		if callID, ok := presence.IsCallRoom(roomID); ok {
			h.notifier.Route(h.broker.Leave(c.id, callID))
		}
	}

	rooms := h.forget(c)

	userID := c.identity.UserID
	if len(h.registry.MembersOf(presence.PersonalRoom(userID))) == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
		if err := h.tracker.Drop(ctx, userID); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to drop online presence.")
		}
		cancel()
	}

	c.logger.Info().Strs("rooms_left", rooms).Msg("Connection closed.")
}

// forget removes c from the registry and the hub's table.
func (h *Hub) forget(c *Conn) []string {
	rooms := h.registry.Unregister(c.id)

	h.mu.Lock()
	delete(h.conns, c.id)
	h.mu.Unlock()

	return rooms
}

func (h *Hub) heartbeat(c *Conn) {
	if c.State() == StateAuthenticated {
		h.touch(c.identity.UserID)
	}
}

func (h *Hub) touch(userID string) {
	ctx, cancel := context.WithTimeout(h.ctx, presenceTimeout)
	defer cancel()

	if err := h.tracker.Touch(ctx, userID); err != nil {
		h.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to record online presence.")
	}
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	return h.registry.ConnectionCount()
}

// CallRoom returns a snapshot of the call room named callID.
func (h *Hub) CallRoom(callID string) (signaling.CallRoom, bool) {
	return h.broker.Room(callID)
}

// Shutdown stops the reaper and disconnects every connection.
func (h *Hub) Shutdown() {
	h.logger.Info().Msg("Shutting down hub...")

	h.mu.Lock()
	h.closed = true
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	h.cancel()
	h.wg.Wait()

	for _, c := range conns {
		h.Close(c)
	}

	h.logger.Info().Int("closed", len(conns)).Msg("Hub shutdown complete.")
}

// CloseCodeFor maps a handshake error to its WebSocket close code.
func CloseCodeFor(err error) int {
	switch errs.CodeOf(err) {
	case errs.ErrMissingCredential:
		return CloseMissingCredential
	case errs.ErrInvalidCredential:
		return CloseInvalidCredential
	case errs.ErrExpiredCredential:
		return CloseExpiredCredential
	case errs.ErrUnknownSubject:
		return CloseUnknownSubject
	default:
		return websocket.CloseInternalServerErr
	}
}
