package relay

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
)

// Connection is the part of a live client session the relay needs.
type Connection interface {
	ID() string
}

// Broadcaster delivers encoded frames to the transport's live connections.
// Delivery is fire-and-forget: a failure for one recipient must not stop
// delivery to the rest.
type Broadcaster interface {
	BroadcastToAll(frame []byte)
	BroadcastToOthers(senderID string, frame []byte)
}

// Stats counts the events the relay has fanned out.
type Stats struct {
	LocationUpdates uint64
	Disconnects     uint64
}

// Relay rebroadcasts location updates and disconnect notices. It keeps no
// registry of its own; targeting is left to the Broadcaster.
type Relay struct {
	out Broadcaster

	locationUpdates atomic.Uint64
	disconnects     atomic.Uint64
}

// New returns a Relay that fans out through out.
func New(out Broadcaster) *Relay {
	return &Relay{out: out}
}

// OnConnect records a newly connected client.
func (r *Relay) OnConnect(conn Connection) {
	slog.Info("connected", "id", conn.ID())
}

// Dispatch decodes one inbound frame and routes it to its listener. Frames
// that cannot be decoded and events with no listener are dropped.
func (r *Relay) Dispatch(conn Connection, frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		slog.Debug("ignoring undecodable frame", "id", conn.ID(), "error", err)
		return
	}

	switch env.Event {
	case EventSendLocation:
		r.OnLocationUpdate(conn, env.Data)
	default:
		slog.Debug("ignoring event without listener", "id", conn.ID(), "event", env.Event)
	}
}

// OnLocationUpdate tags payload with the sender's id and delivers it to every
// connected client, the sender included. The payload is not validated.
func (r *Relay) OnLocationUpdate(conn Connection, payload json.RawMessage) {
	frame, err := Encode(EventReceiveLocation, withID(payload, conn.ID()))
	if err != nil {
		slog.Debug("dropping location update", "id", conn.ID(), "error", err)
		return
	}

	r.out.BroadcastToAll(frame)
	r.locationUpdates.Add(1)
}

// OnDisconnect tells every remaining client that conn has gone. The transport
// calls it exactly once per connection.
func (r *Relay) OnDisconnect(conn Connection) {
	frame, err := Encode(EventUserDisconnected, conn.ID())
	if err != nil {
		slog.Debug("dropping disconnect notice", "id", conn.ID(), "error", err)
		return
	}

	r.out.BroadcastToOthers(conn.ID(), frame)
	r.disconnects.Add(1)
}

// Stats returns a snapshot of the relay's counters.
func (r *Relay) Stats() Stats {
	return Stats{
		LocationUpdates: r.locationUpdates.Load(),
		Disconnects:     r.disconnects.Load(),
	}
}
