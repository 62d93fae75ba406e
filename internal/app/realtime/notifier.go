package realtime

import (
	"github.com/rs/zerolog"

	"mentorlink/internal/app/presence"
	"mentorlink/internal/app/protocol"
	"mentorlink/internal/app/signaling"
	"mentorlink/internal/pkg/logx"
)

// Notifier encodes events and delivers them to connections found in the registry.
type Notifier struct {
	registry *presence.Registry
	logger   zerolog.Logger
}

// NewNotifier returns a Notifier routing through registry.
func NewNotifier(registry *presence.Registry) *Notifier {
	return &Notifier{
		registry: registry,
		logger:   logx.Component("fanout"),
	}
}

// NotifyUser delivers ev to every connection in userID's personal room except exceptConn.
func (n *Notifier) NotifyUser(userID string, ev protocol.Event, exceptConn string) {
	peers := n.registry.PeersOf(presence.PersonalRoom(userID))
	if len(peers) == 0 {
		return
	}

	frame, ok := n.encode(ev)
	if !ok {
		return
	}

	for _, p := range peers {
		if p.ID() == exceptConn {
			continue
		}
		if !p.Deliver(frame) {
			n.logger.Debug().Str("conn_id", p.ID()).Str("event", string(ev.EventName())).Msg("Frame not delivered.")
		}
	}
}

// NotifyConn delivers ev to connID only.
func (n *Notifier) NotifyConn(connID string, ev protocol.Event) {
	p, ok := n.registry.Peer(connID)
	if !ok {
		return
	}

	frame, ok := n.encode(ev)
	if !ok {
		return
	}

	if !p.Deliver(frame) {
		n.logger.Debug().Str("conn_id", connID).Str("event", string(ev.EventName())).Msg("Frame not delivered.")
	}
}

// Route delivers the broker's addressed events.
func (n *Notifier) Route(deliveries []signaling.Delivery) {
	for _, d := range deliveries {
		n.NotifyConn(d.ConnID, d.Event)
	}
}

func (n *Notifier) encode(ev protocol.Event) ([]byte, bool) {
	frame, err := protocol.Encode(ev)
	if err != nil {
		n.logger.Error().Err(err).Str("event", string(ev.EventName())).Msg("Failed to encode event.")
		return nil, false
	}
	return frame, true
}
