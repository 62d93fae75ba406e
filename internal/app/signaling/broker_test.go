package signaling

import (
	"encoding/json"
	"io"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentorlink/internal/app/presence"
	"mentorlink/internal/app/protocol"
	"mentorlink/internal/pkg/errs"
	"mentorlink/internal/pkg/logx"
)

func TestMain(m *testing.M) {
	logx.Silence(io.Discard, zerolog.Disabled)
	os.Exit(m.Run())
}

type stubPeer struct {
	id     string
	userID string
}

func (p *stubPeer) ID() string            { return p.id }
func (p *stubPeer) UserID() string        { return p.userID }
func (p *stubPeer) Deliver(_ []byte) bool { return true }

func newTestBroker(t *testing.T, conns ...string) (*Broker, *presence.Registry) {
	t.Helper()

	registry := presence.NewRegistry()
	for _, id := range conns {
		registry.Register(&stubPeer{id: id, userID: "user-" + id})
	}
	return NewBroker(registry, time.Minute), registry
}

func TestJoinTwoPeers(t *testing.T) {
	broker, registry := newTestBroker(t, "c1", "c2")

	out, err := broker.Join("c1", "call-123", "Ana")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "c1", out[0].ConnID)
	assert.Equal(t, protocol.RoomJoined{
		RoomID:       "call-123",
		IsCreator:    true,
		Participants: []string{"c1"},
	}, out[0].Event)

	out, err = broker.Join("c2", "call-123", "Ben")
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "c2", out[0].ConnID)
	assert.Equal(t, protocol.RoomJoined{
		RoomID:       "call-123",
		IsCreator:    false,
		Participants: []string{"c1", "c2"},
	}, out[0].Event)

	assert.Equal(t, "c1", out[1].ConnID)
	assert.Equal(t, protocol.UserJoined{
		RoomID:       "call-123",
		UserID:       "c2",
		Name:         "Ben",
		Participants: []string{"c1", "c2"},
	}, out[1].Event)

	room, ok := broker.Room("call-123")
	require.True(t, ok)
	assert.Equal(t, StateActive, room.State())
	assert.Equal(t, "c1", room.OfferingPeer)
	assert.Equal(t, "c2", room.AnsweringPeer)
	assert.Equal(t, []string{"c1", "c2"}, registry.MembersOf(presence.CallRoom("call-123")))
}

func TestJoinThirdPeerRejected(t *testing.T) {
	broker, registry := newTestBroker(t, "c1", "c2", "c3")

	_, err := broker.Join("c1", "call-123", "")
	require.NoError(t, err)
	_, err = broker.Join("c2", "call-123", "")
	require.NoError(t, err)

	out, err := broker.Join("c3", "call-123", "")
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Equal(t, errs.ErrRoomFull, errs.CodeOf(err))

	room, ok := broker.Room("call-123")
	require.True(t, ok)
	assert.Equal(t, []string{"c1", "c2"}, room.Participants())
	assert.Equal(t, []string{"c1", "c2"}, registry.MembersOf(presence.CallRoom("call-123")))
	assert.Empty(t, registry.RoomsOf("c3"))
}

func TestRepeatedJoinIsAcknowledged(t *testing.T) {
	broker, _ := newTestBroker(t, "c1")

	_, err := broker.Join("c1", "call-123", "")
	require.NoError(t, err)

	out, err := broker.Join("c1", "call-123", "")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].Event.(protocol.RoomJoined).IsCreator)

	room, _ := broker.Room("call-123")
	assert.Equal(t, StateAwaitingPeer, room.State())
}

func TestJoinInvalidRoomID(t *testing.T) {
	broker, _ := newTestBroker(t, "c1")

	for _, id := range []string{"", "has space", "slash/room"} {
		_, err := broker.Join("c1", id, "")
		assert.Equal(t, errs.ErrInvalidCallRoom, errs.CodeOf(err), id)
	}
	assert.Zero(t, broker.RoomCount())
}

func TestJoinUnregisteredConnection(t *testing.T) {
	broker, _ := newTestBroker(t)

	_, err := broker.Join("ghost", "call-123", "")
	require.Error(t, err)
	assert.Zero(t, broker.RoomCount())
}

func TestLeaveNotifiesRemainingPeer(t *testing.T) {
	broker, registry := newTestBroker(t, "c1", "c2")

	_, _ = broker.Join("c1", "call-123", "")
	_, _ = broker.Join("c2", "call-123", "")

	out := broker.Leave("c2", "call-123")
	require.Len(t, out, 1)
	assert.Equal(t, "c1", out[0].ConnID)
	assert.Equal(t, protocol.UserLeft{RoomID: "call-123", UserID: "c2"}, out[0].Event)

	_, ok := broker.Room("call-123")
	assert.False(t, ok)
	assert.False(t, registry.RoomExists(presence.CallRoom("call-123")))
	assert.Empty(t, registry.MembersOf(presence.CallRoom("call-123")))

	assert.Nil(t, broker.Leave("c1", "call-123"))
}

func TestConnectionInSeveralCallRooms(t *testing.T) {
	broker, registry := newTestBroker(t, "c1", "c2", "c3")

	_, _ = broker.Join("c1", "room-a", "")
	_, _ = broker.Join("c2", "room-a", "")
	_, _ = broker.Join("c1", "room-b", "")
	_, _ = broker.Join("c3", "room-b", "")

	assert.Equal(t, []string{presence.CallRoom("room-a"), presence.CallRoom("room-b")}, registry.RoomsOf("c1"))

	out := broker.Leave("c1", "room-a")
	require.Len(t, out, 1)
	assert.Equal(t, "c2", out[0].ConnID)

	assert.Equal(t, 1, broker.RoomCount())
	assert.Empty(t, registry.RoomsOf("c2"))
	assert.Equal(t, []string{presence.CallRoom("room-b")}, registry.RoomsOf("c3"))
}

func TestOfferRelayedToTargetOnly(t *testing.T) {
	broker, _ := newTestBroker(t, "c1", "c2")

	_, _ = broker.Join("c1", "call-123", "")
	_, _ = broker.Join("c2", "call-123", "")

	sdp := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	out, err := broker.Offer("c2", &protocol.Offer{RoomID: "call-123", Offer: sdp, TargetID: "c1"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "c1", out[0].ConnID)
	assert.Equal(t, protocol.RelayedOffer{RoomID: "call-123", Offer: sdp, UserID: "c2"}, out[0].Event)
}

func TestRelayErrors(t *testing.T) {
	broker, _ := newTestBroker(t, "c1", "c2", "c3")

	_, _ = broker.Join("c1", "call-123", "")

	_, err := broker.Offer("c1", &protocol.Offer{RoomID: "call-123", TargetID: "c2"})
	assert.Equal(t, errs.ErrSignalTargetGone, errs.CodeOf(err), "no peer yet")

	_, _ = broker.Join("c2", "call-123", "")

	_, err = broker.Answer("c3", &protocol.Answer{RoomID: "call-123", TargetID: "c1"})
	assert.Equal(t, errs.ErrNotInCallRoom, errs.CodeOf(err), "outsider")

	_, err = broker.Answer("c1", &protocol.Answer{RoomID: "call-123", TargetID: "c3"})
	assert.Equal(t, errs.ErrSignalTargetGone, errs.CodeOf(err), "target outside room")

	_, err = broker.Candidate("c1", &protocol.ICECandidate{RoomID: "missing", TargetID: "c2"})
	assert.Equal(t, errs.ErrNotInCallRoom, errs.CodeOf(err), "unknown room")
}

func TestCandidatesHeldUntilDescription(t *testing.T) {
	broker, _ := newTestBroker(t, "c1", "c2")

	_, _ = broker.Join("c1", "call-123", "")
	_, _ = broker.Join("c2", "call-123", "")

	first := json.RawMessage(`{"candidate":"a"}`)
	second := json.RawMessage(`{"candidate":"b"}`)

	out, err := broker.Candidate("c1", &protocol.ICECandidate{RoomID: "call-123", Candidate: first, TargetID: "c2"})
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = broker.Candidate("c1", &protocol.ICECandidate{RoomID: "call-123", Candidate: second})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 2, broker.HeldCandidates("call-123", "c2"))

	out, err = broker.Offer("c1", &protocol.Offer{RoomID: "call-123", Offer: json.RawMessage(`{}`), TargetID: "c2"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.IsType(t, protocol.RelayedOffer{}, out[0].Event)
	assert.Equal(t, first, out[1].Event.(protocol.RelayedCandidate).Candidate)
	assert.Equal(t, second, out[2].Event.(protocol.RelayedCandidate).Candidate)
	assert.Zero(t, broker.HeldCandidates("call-123", "c2"))

	out, err = broker.Candidate("c1", &protocol.ICECandidate{RoomID: "call-123", Candidate: first, TargetID: "c2"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "c2", out[0].ConnID)
}

func TestHeldCandidatesBounded(t *testing.T) {
	broker, _ := newTestBroker(t, "c1", "c2")

	_, _ = broker.Join("c1", "call-123", "")
	_, _ = broker.Join("c2", "call-123", "")

	for i := 0; i < maxHeldCandidates+5; i++ {
		_, err := broker.Candidate("c2", &protocol.ICECandidate{RoomID: "call-123", TargetID: "c1"})
		require.NoError(t, err)
	}
	assert.Equal(t, maxHeldCandidates, broker.HeldCandidates("call-123", "c1"))

	broker.Leave("c1", "call-123")
	assert.Zero(t, broker.HeldCandidates("call-123", "c1"))
}

func TestReapIdleAwaitingRooms(t *testing.T) {
	broker, registry := newTestBroker(t, "c1", "c2", "c3")

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	broker.now = func() time.Time { return start }

	_, _ = broker.Join("c1", "waiting", "")
	_, _ = broker.Join("c2", "active", "")
	_, _ = broker.Join("c3", "active", "")

	assert.Empty(t, broker.Reap(start.Add(30*time.Second)))

	out := broker.Reap(start.Add(2 * time.Minute))
	require.Len(t, out, 1)
	assert.Equal(t, "c1", out[0].ConnID)
	assert.Equal(t, protocol.RoomExpired{RoomID: "waiting"}, out[0].Event)

	_, ok := broker.Room("waiting")
	assert.False(t, ok)
	assert.False(t, registry.IsMember("c1", presence.CallRoom("waiting")))

	_, ok = broker.Room("active")
	assert.True(t, ok, "active rooms are never reaped")
}
