/*
Package presence tracks which live connections belong to which rooms.

A room is a named set of connection ids used as a delivery address: a personal
room per user (their inbox) and a call room per call. The Registry holds only
routing references to connections; the realtime layer owns their lifecycle.
*/
package presence

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"mentorlink/internal/pkg/logx"
)

const (
	personalPrefix = "user:"
	callPrefix     = "call:"
)

// ErrUnknownConnection is returned by Join for a connection that was never registered.
var ErrUnknownConnection = errors.New("presence: unknown connection")

// Peer is the routing handle of a live connection.
type Peer interface {
	ID() string
	UserID() string

	// Deliver queues an encoded frame for the connection without blocking.
	// It returns false when the frame could not be queued.
	Deliver(frame []byte) bool
}

// PersonalRoom returns the room id of userID's inbox.
func PersonalRoom(userID string) string {
	return personalPrefix + userID
}

// CallRoom returns the registry room id for call callID.
func CallRoom(callID string) string {
	return callPrefix + callID
}

// IsCallRoom reports whether roomID names a call room, returning the call id.
func IsCallRoom(roomID string) (string, bool) {
	if strings.HasPrefix(roomID, callPrefix) {
		return strings.TrimPrefix(roomID, callPrefix), true
	}
	return "", false
}

// Registry is the process-wide membership table. All methods are safe for
// concurrent use and every membership change is applied atomically.
type Registry struct {
	mu sync.RWMutex

	// peers maps a connection id to its routing handle.
	peers map[string]Peer

	// rooms maps a room id to its member connection ids.
	rooms map[string]map[string]struct{}

	// memberships maps a connection id to the rooms it joined.
	memberships map[string]map[string]struct{}

	logger zerolog.Logger
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		peers:       make(map[string]Peer),
		rooms:       make(map[string]map[string]struct{}),
		memberships: make(map[string]map[string]struct{}),
		logger:      logx.Component("presence"),
	}
}

// Register makes p routable. It does not join any room.
func (r *Registry) Register(p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.peers[p.ID()] = p
	if _, ok := r.memberships[p.ID()]; !ok {
		r.memberships[p.ID()] = make(map[string]struct{})
	}
}

// Unregister removes connID from every room and forgets its handle. It returns
// the rooms the connection was in, sorted.
func (r *Registry) Unregister(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	left := make([]string, 0, len(r.memberships[connID]))
	for roomID := range r.memberships[connID] {
		r.leaveLocked(connID, roomID)
		left = append(left, roomID)
	}

	delete(r.memberships, connID)
	delete(r.peers, connID)

	sort.Strings(left)
	return left
}

// Join adds connID to roomID, creating the room if needed. Joining twice is a no-op.
func (r *Registry) Join(connID, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.peers[connID]; !ok {
		return ErrUnknownConnection
	}

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[roomID] = members
		r.logger.Debug().Str("room_id", roomID).Msg("Room created.")
	}

	members[connID] = struct{}{}
	r.memberships[connID][roomID] = struct{}{}

	return nil
}

// Leave removes connID from roomID. It reports whether the room was reclaimed
// because it became empty.
func (r *Registry) Leave(connID, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.leaveLocked(connID, roomID)
}

func (r *Registry) leaveLocked(connID, roomID string) bool {
	if rooms, ok := r.memberships[connID]; ok {
		delete(rooms, roomID)
	}

	members, ok := r.rooms[roomID]
	if !ok {
		return false
	}

	delete(members, connID)
	if len(members) > 0 {
		return false
	}

	delete(r.rooms, roomID)
	r.logger.Debug().Str("room_id", roomID).Msg("Room reclaimed.")
	return true
}

// MembersOf returns a sorted snapshot of the connection ids in roomID.
func (r *Registry) MembersOf(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]string, 0, len(r.rooms[roomID]))
	for connID := range r.rooms[roomID] {
		members = append(members, connID)
	}

	sort.Strings(members)
	return members
}

// RoomsOf returns a sorted snapshot of the rooms connID is in.
func (r *Registry) RoomsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]string, 0, len(r.memberships[connID]))
	for roomID := range r.memberships[connID] {
		rooms = append(rooms, roomID)
	}

	sort.Strings(rooms)
	return rooms
}

// RoomExists reports whether roomID currently has members.
func (r *Registry) RoomExists(roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rooms[roomID]
	return ok
}

// IsMember reports whether connID is in roomID.
func (r *Registry) IsMember(connID, roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rooms[roomID][connID]
	return ok
}

// Peer returns the routing handle of connID.
func (r *Registry) Peer(connID string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.peers[connID]
	return p, ok
}

// PeersOf returns the routing handles of every member of roomID.
func (r *Registry) PeersOf(roomID string) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make([]Peer, 0, len(r.rooms[roomID]))
	for connID := range r.rooms[roomID] {
		if p, ok := r.peers[connID]; ok {
			peers = append(peers, p)
		}
	}
	return peers
}

// ConnectionCount returns the number of registered connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Online reports which of userIDs have a live connection in this process.
func (r *Registry) Online(_ context.Context, userIDs []string) (map[string]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	online := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		online[id] = len(r.rooms[PersonalRoom(id)]) > 0
	}
	return online, nil
}
