// Package relay defines the location-sharing events exchanged with clients
// and the wire envelope that carries them.
package relay

import (
	"encoding/json"
	"fmt"
)

// Event names used on the real-time channel.
const (
	EventSendLocation     = "send-location"
	EventReceiveLocation  = "receive-location"
	EventUserDisconnected = "user-disconnected"
)

// Envelope is the JSON frame carrying one logical event in either direction.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode marshals data and wraps it in an Envelope named event.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s data: %w", event, err)
	}

	frame, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", event, err)
	}
	return frame, nil
}

// withID returns the fields of payload with "id" set to id. A payload that is
// not a JSON object contributes no fields.
func withID(payload json.RawMessage, id string) map[string]json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		fields = make(map[string]json.RawMessage, 1)
	}

	// Marshalling a string cannot fail.
	idJSON, _ := json.Marshal(id)
	fields["id"] = idJSON
	return fields
}
