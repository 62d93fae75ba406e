package signaling

import (
	"time"

	"mentorlink/internal/app/protocol"
)

// State is the lifecycle state of a call room. A destroyed room is simply absent.
type State int

const (
	// StateAwaitingPeer: one participant (the offering peer) is waiting.
	StateAwaitingPeer State = iota + 1

	// StateActive: both participants are present.
	StateActive
)

func (s State) String() string {
	switch s {
	case StateAwaitingPeer:
		return "awaiting_peer"
	case StateActive:
		return "active"
	default:
		return "empty"
	}
}

// maxHeldCandidates bounds the ICE candidates held for one peer.
const maxHeldCandidates = 64

// CallRoom is a two-party call session keyed by its call id.
type CallRoom struct {
	ID string

	// OfferingPeer is the first joiner's connection id.
	OfferingPeer string

	// AnsweringPeer is the second joiner's connection id, empty until joined.
	AnsweringPeer string

	CreatedAt    time.Time
	LastActivity time.Time

	// described records peers that have been sent an offer or answer in this room.
	described map[string]bool

	// held stores candidates addressed to peers not yet described, in arrival order.
	held map[string][]protocol.RelayedCandidate
}

func newCallRoom(id, offering string, now time.Time) *CallRoom {
	return &CallRoom{
		ID:           id,
		OfferingPeer: offering,
		CreatedAt:    now,
		LastActivity: now,
		described:    make(map[string]bool),
		held:         make(map[string][]protocol.RelayedCandidate),
	}
}

// State derives the room state from its participants.
func (c *CallRoom) State() State {
	if c.AnsweringPeer == "" {
		return StateAwaitingPeer
	}
	return StateActive
}

// Participants returns the connection ids in join order.
func (c *CallRoom) Participants() []string {
	if c.AnsweringPeer == "" {
		return []string{c.OfferingPeer}
	}
	return []string{c.OfferingPeer, c.AnsweringPeer}
}

// Has reports whether connID participates in the room.
func (c *CallRoom) Has(connID string) bool {
	return connID != "" && (connID == c.OfferingPeer || connID == c.AnsweringPeer)
}

// Other returns the participant that is not connID, or "" if absent.
func (c *CallRoom) Other(connID string) string {
	switch connID {
	case c.OfferingPeer:
		return c.AnsweringPeer
	case c.AnsweringPeer:
		return c.OfferingPeer
	default:
		return ""
	}
}

// HeldFor returns how many candidates are held for connID.
func (c *CallRoom) HeldFor(connID string) int {
	return len(c.held[connID])
}

// snapshot returns a copy without the mutable maps.
func (c *CallRoom) snapshot() CallRoom {
	return CallRoom{
		ID:            c.ID,
		OfferingPeer:  c.OfferingPeer,
		AnsweringPeer: c.AnsweringPeer,
		CreatedAt:     c.CreatedAt,
		LastActivity:  c.LastActivity,
	}
}
