/*
Package signaling implements the two-party call broker.

The Broker owns every call room: it admits at most two connections per room,
relays opaque offer/answer/ICE payloads point-to-point between them and destroys
the room as soon as either side leaves. It never writes to connections itself;
each operation returns the Deliveries the caller must route.
*/
package signaling

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mentorlink/internal/app/presence"
	"mentorlink/internal/app/protocol"
	"mentorlink/internal/pkg/errs"
	"mentorlink/internal/pkg/logx"
	"mentorlink/internal/pkg/randx"
)

// Delivery is one event addressed to one connection.
type Delivery struct {
	ConnID string
	Event  protocol.Event
}

// Broker is the process-wide call room table. All methods are safe for concurrent use.
type Broker struct {
	mu    sync.Mutex
	rooms map[string]*CallRoom

	registry    *presence.Registry
	idleTimeout time.Duration
	now         func() time.Time

	logger zerolog.Logger
}

// NewBroker returns a Broker that mirrors call room membership into registry.
// A zero idleTimeout disables reaping.
func NewBroker(registry *presence.Registry, idleTimeout time.Duration) *Broker {
	return &Broker{
		rooms:       make(map[string]*CallRoom),
		registry:    registry,
		idleTimeout: idleTimeout,
		now:         time.Now,
		logger:      logx.Component("signaling"),
	}
}

// Join admits connID into call room callID, creating it when absent.
// name is the joiner's display name, forwarded to the peer already waiting.
func (b *Broker) Join(connID, callID, name string) ([]Delivery, error) {
	if !randx.IsValidCallID(callID) {
		return nil, errs.NewError(errs.ErrInvalidCallRoom)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	room, ok := b.rooms[callID]

	switch {
	case !ok:
		if err := b.registry.Join(connID, presence.CallRoom(callID)); err != nil {
			return nil, errs.Wrap(errs.ErrNotInCallRoom, err)
		}

		room = newCallRoom(callID, connID, now)
		b.rooms[callID] = room
		b.logger.Info().Str("room_id", callID).Str("conn_id", connID).Msg("Call room created.")

		return []Delivery{{
			ConnID: connID,
			Event: protocol.RoomJoined{
				RoomID:       callID,
				IsCreator:    true,
				Participants: room.Participants(),
			},
		}}, nil

	case room.Has(connID):
		// Repeated join from a participant: re-acknowledge without changing state.
		room.LastActivity = now
		return []Delivery{{
			ConnID: connID,
			Event: protocol.RoomJoined{
				RoomID:       callID,
				IsCreator:    connID == room.OfferingPeer,
				Participants: room.Participants(),
			},
		}}, nil

	case room.State() == StateActive:
		b.logger.Warn().Str("room_id", callID).Str("conn_id", connID).Msg("Join rejected, call room full.")
		return nil, errs.NewError(errs.ErrRoomFull)
	}

	if err := b.registry.Join(connID, presence.CallRoom(callID)); err != nil {
		return nil, errs.Wrap(errs.ErrNotInCallRoom, err)
	}

	room.AnsweringPeer = connID
	room.LastActivity = now
	participants := room.Participants()

	b.logger.Info().Str("room_id", callID).Str("conn_id", connID).Msg("Call room active.")

	return []Delivery{
		{
			ConnID: connID,
			Event: protocol.RoomJoined{
				RoomID:       callID,
				IsCreator:    false,
				Participants: participants,
			},
		},
		{
			ConnID: room.OfferingPeer,
			Event: protocol.UserJoined{
				RoomID:       callID,
				UserID:       connID,
				Name:         name,
				Participants: participants,
			},
		},
	}, nil
}

// Leave removes connID from call room callID and destroys the room. The remaining
// participant, if any, is told with user-left. Leaving a room one is not in is a no-op.
func (b *Broker) Leave(connID, callID string) []Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()

	room, ok := b.rooms[callID]
	if !ok || !room.Has(connID) {
		return nil
	}

	other := room.Other(connID)
	b.destroyLocked(room)

	b.logger.Info().Str("room_id", callID).Str("conn_id", connID).Msg("Call room destroyed.")

	if other == "" {
		return nil
	}
	return []Delivery{{
		ConnID: other,
		Event:  protocol.UserLeft{RoomID: callID, UserID: connID},
	}}
}

// Offer relays an SDP offer from connID to its target, then flushes any
// candidates held for that target.
func (b *Broker) Offer(connID string, cmd *protocol.Offer) ([]Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	room, target, err := b.routeLocked(connID, cmd.RoomID, cmd.TargetID)
	if err != nil {
		return nil, err
	}

	out := []Delivery{{
		ConnID: target,
		Event:  protocol.RelayedOffer{RoomID: room.ID, Offer: cmd.Offer, UserID: connID},
	}}
	return append(out, b.describeLocked(room, target)...), nil
}

// Answer relays an SDP answer from connID to its target, then flushes any
// candidates held for that target.
func (b *Broker) Answer(connID string, cmd *protocol.Answer) ([]Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	room, target, err := b.routeLocked(connID, cmd.RoomID, cmd.TargetID)
	if err != nil {
		return nil, err
	}

	out := []Delivery{{
		ConnID: target,
		Event:  protocol.RelayedAnswer{RoomID: room.ID, Answer: cmd.Answer, SenderID: connID},
	}}
	return append(out, b.describeLocked(room, target)...), nil
}

// Candidate relays an ICE candidate from connID to its target. Candidates for a
// target that has not yet received an offer or answer are held and delivered
// right after it does.
func (b *Broker) Candidate(connID string, cmd *protocol.ICECandidate) ([]Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	room, target, err := b.routeLocked(connID, cmd.RoomID, cmd.TargetID)
	if err != nil {
		return nil, err
	}

	ev := protocol.RelayedCandidate{RoomID: room.ID, Candidate: cmd.Candidate, SenderID: connID}

	if room.described[target] {
		return []Delivery{{ConnID: target, Event: ev}}, nil
	}

	if len(room.held[target]) >= maxHeldCandidates {
		b.logger.Warn().
			Str("room_id", room.ID).
			Str("conn_id", target).
			Msg("Held ICE candidate limit reached, candidate dropped.")
		return nil, nil
	}

	room.held[target] = append(room.held[target], ev)
	return nil, nil
}

// Reap destroys AwaitingPeer rooms idle for longer than the idle timeout and
// tells each waiting peer with room-expired.
func (b *Broker) Reap(now time.Time) []Delivery {
	if b.idleTimeout <= 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Delivery
	for _, room := range b.rooms {
		if room.State() != StateAwaitingPeer || now.Sub(room.LastActivity) < b.idleTimeout {
			continue
		}

		b.destroyLocked(room)
		b.logger.Info().Str("room_id", room.ID).Msg("Idle call room reaped.")

		out = append(out, Delivery{
			ConnID: room.OfferingPeer,
			Event:  protocol.RoomExpired{RoomID: room.ID},
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ConnID < out[j].ConnID })
	return out
}

// Room returns a snapshot of call room callID.
func (b *Broker) Room(callID string) (CallRoom, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	room, ok := b.rooms[callID]
	if !ok {
		return CallRoom{}, false
	}
	return room.snapshot(), true
}

// HeldCandidates returns how many candidates are held for connID in callID.
func (b *Broker) HeldCandidates(callID, connID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if room, ok := b.rooms[callID]; ok {
		return room.HeldFor(connID)
	}
	return 0
}

// RoomCount returns the number of live call rooms.
func (b *Broker) RoomCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rooms)
}

// routeLocked checks that connID participates in callID and resolves the relay
// target. An empty targetID means the other participant.
func (b *Broker) routeLocked(connID, callID, targetID string) (*CallRoom, string, error) {
	if !randx.IsValidCallID(callID) {
		return nil, "", errs.NewError(errs.ErrInvalidCallRoom)
	}

	room, ok := b.rooms[callID]
	if !ok || !room.Has(connID) {
		return nil, "", errs.NewError(errs.ErrNotInCallRoom)
	}

	other := room.Other(connID)
	if targetID == "" {
		targetID = other
	}

	if other == "" || targetID != other {
		b.logger.Warn().
			Str("room_id", callID).
			Str("conn_id", connID).
			Str("target_id", targetID).
			Msg("Signal target not in call room.")
		return nil, "", errs.NewError(errs.ErrSignalTargetGone)
	}

	room.LastActivity = b.now()
	return room, targetID, nil
}

// describeLocked marks target as having a session description and returns its
// held candidates in arrival order.
func (b *Broker) describeLocked(room *CallRoom, target string) []Delivery {
	room.described[target] = true

	held := room.held[target]
	delete(room.held, target)

	out := make([]Delivery, 0, len(held))
	for _, ev := range held {
		out = append(out, Delivery{ConnID: target, Event: ev})
	}
	return out
}

func (b *Broker) destroyLocked(room *CallRoom) {
	delete(b.rooms, room.ID)

	registryRoom := presence.CallRoom(room.ID)
	for _, connID := range room.Participants() {
		b.registry.Leave(connID, registryRoom)
	}
}
