package realtime

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentorlink/internal/app/identity"
	"mentorlink/internal/app/messaging"
	"mentorlink/internal/app/presence"
	"mentorlink/internal/app/protocol"
	"mentorlink/internal/app/signaling"
	"mentorlink/internal/app/store/memstore"
	"mentorlink/internal/app/user"
	"mentorlink/internal/pkg/errs"
	"mentorlink/internal/pkg/logx"
)

func TestMain(m *testing.M) {
	logx.Silence(io.Discard, zerolog.Disabled)
	os.Exit(m.Run())
}

var (
	alice = identity.Identity{UserID: "mentee-a", Role: user.RoleMentee, Name: "Alice"}
	bob   = identity.Identity{UserID: "mentor-b", Role: user.RoleMentor, Name: "Bob"}
)

type fixture struct {
	hub      *Hub
	registry *presence.Registry
	broker   *signaling.Broker
	store    *memstore.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memstore.New()
	for _, id := range []identity.Identity{alice, bob} {
		store.PutUser(user.User{ID: id.UserID, Name: id.Name, Role: id.Role})
	}

	registry := presence.NewRegistry()
	notifier := NewNotifier(registry)
	broker := signaling.NewBroker(registry, time.Minute)

	hub := NewHub(Config{
		Auth:     identity.NewVerifier("test-secret", store),
		Registry: registry,
		Broker:   broker,
		Relay:    messaging.NewService(store, store, notifier),
		Notifier: notifier,
	})
	t.Cleanup(hub.Shutdown)

	return &fixture{hub: hub, registry: registry, broker: broker, store: store}
}

// connect admits a socket-less connection and consumes its connected event.
func (f *fixture) connect(t *testing.T, id identity.Identity) *Conn {
	t.Helper()

	c := newConn(f.hub, nil)
	require.NoError(t, f.hub.Admit(c, id))

	env := nextEvent(t, c)
	require.Equal(t, protocol.EvConnected, env.Event)
	return c
}

func send(t *testing.T, h *Hub, c *Conn, event protocol.Name, data any) {
	t.Helper()

	raw, err := json.Marshal(data)
	require.NoError(t, err)
	frame, err := json.Marshal(protocol.Envelope{Event: event, Data: raw})
	require.NoError(t, err)

	h.HandleFrame(c, frame)
}

func nextEvent(t *testing.T, c *Conn) protocol.Envelope {
	t.Helper()

	select {
	case frame := <-c.send:
		var env protocol.Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		return env
	case <-time.After(time.Second):
		t.Fatalf("no event for connection %s", c.ID())
		return protocol.Envelope{}
	}
}

func decodeData[T any](t *testing.T, env protocol.Envelope) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func assertQuiet(t *testing.T, c *Conn) {
	t.Helper()
	assert.Empty(t, c.send, "unexpected queued frames for %s", c.ID())
}

func TestAdmitJoinsPersonalRoom(t *testing.T) {
	f := newFixture(t)

	c := newConn(f.hub, nil)
	assert.Equal(t, StateConnecting, c.State())

	require.NoError(t, f.hub.Admit(c, alice))
	assert.Equal(t, StateAuthenticated, c.State())
	assert.Equal(t, alice.UserID, c.UserID())

	env := nextEvent(t, c)
	assert.Equal(t, protocol.EvConnected, env.Event)
	connected := decodeData[protocol.Connected](t, env)
	assert.Equal(t, c.ID(), connected.ConnectionID)
	assert.Equal(t, "mentee", connected.Role)

	assert.True(t, f.registry.IsMember(c.ID(), presence.PersonalRoom(alice.UserID)))
	assert.Equal(t, 1, f.hub.ConnectionCount())
}

func TestMessageFanOutToEveryConnection(t *testing.T) {
	f := newFixture(t)

	a1 := f.connect(t, alice)
	a2 := f.connect(t, alice)
	b1 := f.connect(t, bob)

	send(t, f.hub, a1, protocol.CmdNewMessage, protocol.SendMessage{
		Recipient: bob.UserID,
		Content:   "Hello",
		TempID:    "tmp-1",
	})

	env := nextEvent(t, b1)
	require.Equal(t, protocol.EvNewMessage, env.Event)
	msg := decodeData[protocol.NewMessage](t, env)
	assert.Equal(t, "Hello", msg.Content)
	assert.Equal(t, "Alice", msg.Sender.Name)
	assert.Equal(t, "Bob", msg.Recipient.Name)
	assert.False(t, msg.Read)
	assert.Empty(t, msg.TempID)
	assert.Equal(t, protocol.EvUpdateChatList, nextEvent(t, b1).Event)

	env = nextEvent(t, a2)
	require.Equal(t, protocol.EvNewMessage, env.Event)
	assert.Empty(t, decodeData[protocol.NewMessage](t, env).TempID)

	env = nextEvent(t, a1)
	require.Equal(t, protocol.EvNewMessage, env.Event)
	acked := decodeData[protocol.NewMessage](t, env)
	assert.Equal(t, "tmp-1", acked.TempID)
	assert.Equal(t, msg.ID, acked.ID)

	env = nextEvent(t, a1)
	require.Equal(t, protocol.EvUpdateChatList, env.Event)
	assert.Equal(t, bob.UserID, decodeData[protocol.UpdateChatList](t, env).MentorID)

	assertQuiet(t, b1)
}

func TestPolicyViolationReportedOnConnection(t *testing.T) {
	f := newFixture(t)

	b1 := f.connect(t, bob)
	a1 := f.connect(t, alice)

	send(t, f.hub, b1, protocol.CmdNewMessage, protocol.SendMessage{
		Recipient: alice.UserID,
		Content:   "I am reaching out",
		TempID:    "tmp-9",
	})

	env := nextEvent(t, b1)
	require.Equal(t, protocol.EvError, env.Event)
	failure := decodeData[protocol.Error](t, env)
	assert.Equal(t, errs.ErrPolicyViolation, failure.Code)
	assert.Equal(t, "tmp-9", failure.TempID)
	assert.Equal(t, protocol.CmdNewMessage, failure.Event)

	assertQuiet(t, a1)
	assert.Equal(t, StateAuthenticated, b1.State(), "connection stays open")
}

func TestMalformedFramesReportErrors(t *testing.T) {
	f := newFixture(t)
	a1 := f.connect(t, alice)

	f.hub.HandleFrame(a1, []byte(`{not json`))
	assert.Equal(t, errs.ErrInvalidJSONFormat, decodeData[protocol.Error](t, nextEvent(t, a1)).Code)

	f.hub.HandleFrame(a1, []byte(`{"event":"shout","data":{}}`))
	assert.Equal(t, errs.ErrUnknownEvent, decodeData[protocol.Error](t, nextEvent(t, a1)).Code)

	f.hub.HandleFrame(a1, []byte(`{"event":"typing","data":{"recipientId":42}}`))
	assert.Equal(t, errs.ErrInvalidParams, decodeData[protocol.Error](t, nextEvent(t, a1)).Code)
}

func TestJoinOtherUsersRoomRejected(t *testing.T) {
	f := newFixture(t)
	a1 := f.connect(t, alice)

	send(t, f.hub, a1, protocol.CmdJoinPersonal, protocol.JoinPersonal{UserID: bob.UserID})

	env := nextEvent(t, a1)
	require.Equal(t, protocol.EvError, env.Event)
	assert.Equal(t, errs.ErrPolicyViolation, decodeData[protocol.Error](t, env).Code)
	assert.False(t, f.registry.IsMember(a1.ID(), presence.PersonalRoom(bob.UserID)))

	send(t, f.hub, a1, protocol.CmdJoinPersonal, protocol.JoinPersonal{UserID: alice.UserID})
	assertQuiet(t, a1)
}

func TestTypingAndReadReceipts(t *testing.T) {
	f := newFixture(t)
	a1 := f.connect(t, alice)
	b1 := f.connect(t, bob)

	send(t, f.hub, a1, protocol.CmdTyping, protocol.Typing{RecipientID: bob.UserID, IsTyping: true})

	env := nextEvent(t, b1)
	require.Equal(t, protocol.EvTyping, env.Event)
	assert.Equal(t, protocol.TypingNotice{SenderID: alice.UserID, IsTyping: true}, decodeData[protocol.TypingNotice](t, env))

	send(t, f.hub, a1, protocol.CmdNewMessage, protocol.SendMessage{Recipient: bob.UserID, Content: "ping"})
	for i := 0; i < 2; i++ {
		nextEvent(t, a1)
		nextEvent(t, b1)
	}

	send(t, f.hub, b1, protocol.CmdMarkRead, protocol.MarkRead{SenderID: alice.UserID})

	env = nextEvent(t, a1)
	require.Equal(t, protocol.EvMessagesRead, env.Event)
	assert.Equal(t, bob.UserID, decodeData[protocol.MessagesRead](t, env).SenderID)

	send(t, f.hub, b1, protocol.CmdMarkRead, protocol.MarkRead{SenderID: alice.UserID})
	assertQuiet(t, a1)
}

func TestCallLifecycle(t *testing.T) {
	f := newFixture(t)
	a1 := f.connect(t, alice)
	b1 := f.connect(t, bob)

	send(t, f.hub, a1, protocol.CmdJoinCall, protocol.JoinCall{RoomID: "call-123"})
	joined := decodeData[protocol.RoomJoined](t, nextEvent(t, a1))
	assert.True(t, joined.IsCreator)

	send(t, f.hub, b1, protocol.CmdJoinCall, protocol.JoinCall{RoomID: "call-123"})
	joined = decodeData[protocol.RoomJoined](t, nextEvent(t, b1))
	assert.False(t, joined.IsCreator)
	assert.Equal(t, []string{a1.ID(), b1.ID()}, joined.Participants)

	env := nextEvent(t, a1)
	require.Equal(t, protocol.EvUserJoined, env.Event)
	userJoined := decodeData[protocol.UserJoined](t, env)
	assert.Equal(t, b1.ID(), userJoined.UserID)
	assert.Equal(t, "Bob", userJoined.Name)

	send(t, f.hub, b1, protocol.CmdOffer, map[string]any{
		"roomId":   "call-123",
		"offer":    map[string]string{"type": "offer", "sdp": "v=0"},
		"targetId": a1.ID(),
	})
	env = nextEvent(t, a1)
	require.Equal(t, protocol.EvOffer, env.Event)
	offer := decodeData[protocol.RelayedOffer](t, env)
	assert.Equal(t, b1.ID(), offer.UserID)
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(offer.Offer))
	assertQuiet(t, b1)

	f.hub.Close(b1)

	env = nextEvent(t, a1)
	require.Equal(t, protocol.EvUserLeft, env.Event)
	assert.Equal(t, protocol.UserLeft{RoomID: "call-123", UserID: b1.ID()}, decodeData[protocol.UserLeft](t, env))

	assert.Empty(t, f.registry.MembersOf(presence.CallRoom("call-123")))
	assert.Empty(t, f.registry.RoomsOf(b1.ID()))
	_, ok := f.broker.Room("call-123")
	assert.False(t, ok)
}

func TestThirdCallJoinGetsRoomFull(t *testing.T) {
	f := newFixture(t)
	a1 := f.connect(t, alice)
	a2 := f.connect(t, alice)
	b1 := f.connect(t, bob)

	send(t, f.hub, a1, protocol.CmdJoinCall, protocol.JoinCall{RoomID: "call-1"})
	send(t, f.hub, b1, protocol.CmdJoinCall, protocol.JoinCall{RoomID: "call-1"})
	nextEvent(t, a1)
	nextEvent(t, a1)
	nextEvent(t, b1)

	send(t, f.hub, a2, protocol.CmdJoinCall, protocol.JoinCall{RoomID: "call-1"})
	env := nextEvent(t, a2)
	require.Equal(t, protocol.EvError, env.Event)
	assert.Equal(t, errs.ErrRoomFull, decodeData[protocol.Error](t, env).Code)

	assert.ElementsMatch(t, []string{a1.ID(), b1.ID()}, f.registry.MembersOf(presence.CallRoom("call-1")))
	assertQuiet(t, a1)
	assertQuiet(t, b1)
}

func TestCloseIsIdempotentAndStopsDelivery(t *testing.T) {
	f := newFixture(t)
	a1 := f.connect(t, alice)

	f.hub.Close(a1)
	f.hub.Close(a1)

	assert.Equal(t, StateDisconnected, a1.State())
	assert.Zero(t, f.hub.ConnectionCount())
	assert.False(t, f.registry.RoomExists(presence.PersonalRoom(alice.UserID)))
	assert.False(t, a1.Deliver([]byte("late")))

	send(t, f.hub, a1, protocol.CmdTyping, protocol.Typing{RecipientID: bob.UserID})
	assertQuiet(t, a1)
}

func TestSlowConnectionIsClosedInsteadOfLosingSignaling(t *testing.T) {
	f := newFixture(t)
	a1 := f.connect(t, alice)
	b1 := f.connect(t, bob)

	send(t, f.hub, a1, protocol.CmdJoinCall, protocol.JoinCall{RoomID: "call-9"})
	nextEvent(t, a1)
	send(t, f.hub, b1, protocol.CmdJoinCall, protocol.JoinCall{RoomID: "call-9"})
	nextEvent(t, b1)
	require.Equal(t, protocol.EvUserJoined, nextEvent(t, a1).Event)

	for len(b1.send) < cap(b1.send) {
		b1.send <- []byte(`{"event":"typing"}`)
	}

	send(t, f.hub, a1, protocol.CmdOffer, map[string]any{
		"roomId":   "call-9",
		"offer":    map[string]string{"type": "offer", "sdp": "v=0"},
		"targetId": b1.ID(),
	})

	require.Eventually(t, func() bool { return b1.State() == StateDisconnected }, time.Second, 10*time.Millisecond)

	env := nextEvent(t, a1)
	require.Equal(t, protocol.EvUserLeft, env.Event)
	assert.Equal(t, b1.ID(), decodeData[protocol.UserLeft](t, env).UserID)
	_, ok := f.broker.Room("call-9")
	assert.False(t, ok)
}

type failingRelay struct {
	Relay
}

func (failingRelay) Typing(string, string, bool) error {
	panic("boom")
}

func TestPanicInHandlerIsContained(t *testing.T) {
	f := newFixture(t)
	f.hub.relay = failingRelay{f.hub.relay}
	a1 := f.connect(t, alice)

	send(t, f.hub, a1, protocol.CmdTyping, protocol.Typing{RecipientID: bob.UserID})

	env := nextEvent(t, a1)
	require.Equal(t, protocol.EvError, env.Event)
	assert.Equal(t, errs.ErrUnknown, decodeData[protocol.Error](t, env).Code)
	assert.Equal(t, StateAuthenticated, a1.State())
}

func TestAdmitAfterShutdown(t *testing.T) {
	f := newFixture(t)
	f.hub.Shutdown()

	err := f.hub.Admit(newConn(f.hub, nil), alice)
	assert.True(t, errors.Is(err, errHubClosed))
}

func TestCloseCodeFor(t *testing.T) {
	assert.Equal(t, CloseMissingCredential, CloseCodeFor(errs.NewError(errs.ErrMissingCredential)))
	assert.Equal(t, CloseInvalidCredential, CloseCodeFor(errs.NewError(errs.ErrInvalidCredential)))
	assert.Equal(t, CloseExpiredCredential, CloseCodeFor(errs.NewError(errs.ErrExpiredCredential)))
	assert.Equal(t, CloseUnknownSubject, CloseCodeFor(errs.NewError(errs.ErrUnknownSubject)))
	assert.Equal(t, websocket.CloseInternalServerErr, CloseCodeFor(errors.New("db down")))
}
