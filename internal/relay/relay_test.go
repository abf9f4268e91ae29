package relay

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id string
}

func (f fakeConn) ID() string { return f.id }

type delivery struct {
	toAll    bool
	senderID string
	frame    []byte
}

type fakeBroadcaster struct {
	mu         sync.Mutex
	deliveries []delivery
}

func (f *fakeBroadcaster) BroadcastToAll(frame []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = append(f.deliveries, delivery{toAll: true, frame: frame})
}

func (f *fakeBroadcaster) BroadcastToOthers(senderID string, frame []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = append(f.deliveries, delivery{senderID: senderID, frame: frame})
}

func (f *fakeBroadcaster) getDeliveries() []delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]delivery(nil), f.deliveries...)
}

func decode(t *testing.T, frame []byte) (string, json.RawMessage) {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	return env.Event, env.Data
}

func decodeLocation(t *testing.T, frame []byte) map[string]any {
	t.Helper()
	event, data := decode(t, frame)
	require.Equal(t, EventReceiveLocation, event)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	return fields
}

func TestRelay_OnLocationUpdate(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    map[string]any
	}{
		{
			name:    "coordinates tagged with sender id",
			payload: `{"latitude":12.9,"longitude":77.6}`,
			want:    map[string]any{"id": "conn-a", "latitude": 12.9, "longitude": 77.6},
		},
		{
			name:    "extra fields forwarded as-is",
			payload: `{"latitude":1,"longitude":2,"accuracy":15,"label":"bike"}`,
			want:    map[string]any{"id": "conn-a", "latitude": 1.0, "longitude": 2.0, "accuracy": 15.0, "label": "bike"},
		},
		{
			name:    "empty object",
			payload: `{}`,
			want:    map[string]any{"id": "conn-a"},
		},
		{
			name:    "missing coordinates",
			payload: `{"heading":90}`,
			want:    map[string]any{"id": "conn-a", "heading": 90.0},
		},
		{
			name:    "client supplied id is replaced",
			payload: `{"id":"spoofed","latitude":0,"longitude":0}`,
			want:    map[string]any{"id": "conn-a", "latitude": 0.0, "longitude": 0.0},
		},
		{
			name:    "null payload",
			payload: `null`,
			want:    map[string]any{"id": "conn-a"},
		},
		{
			name:    "array payload",
			payload: `[12.9,77.6]`,
			want:    map[string]any{"id": "conn-a"},
		},
		{
			name:    "absent payload",
			payload: ``,
			want:    map[string]any{"id": "conn-a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &fakeBroadcaster{}
			r := New(out)

			r.OnLocationUpdate(fakeConn{id: "conn-a"}, json.RawMessage(tt.payload))

			got := out.getDeliveries()
			require.Len(t, got, 1)
			assert.True(t, got[0].toAll, "location updates go to every client")
			assert.Equal(t, tt.want, decodeLocation(t, got[0].frame))
		})
	}
}

func TestRelay_OnDisconnect(t *testing.T) {
	out := &fakeBroadcaster{}
	r := New(out)

	r.OnDisconnect(fakeConn{id: "conn-b"})

	got := out.getDeliveries()
	require.Len(t, got, 1)
	assert.False(t, got[0].toAll, "disconnect notices skip the departed client")
	assert.Equal(t, "conn-b", got[0].senderID)

	event, data := decode(t, got[0].frame)
	assert.Equal(t, EventUserDisconnected, event)
	var id string
	require.NoError(t, json.Unmarshal(data, &id))
	assert.Equal(t, "conn-b", id)
}

func TestRelay_Dispatch(t *testing.T) {
	tests := []struct {
		name      string
		frame     string
		wantCount int
	}{
		{name: "send-location is relayed", frame: `{"event":"send-location","data":{"latitude":1,"longitude":2}}`, wantCount: 1},
		{name: "send-location without data", frame: `{"event":"send-location"}`, wantCount: 1},
		{name: "unknown event ignored", frame: `{"event":"chat","data":"hi"}`, wantCount: 0},
		{name: "server event from client ignored", frame: `{"event":"receive-location","data":{}}`, wantCount: 0},
		{name: "malformed json ignored", frame: `{"event":`, wantCount: 0},
		{name: "non-envelope ignored", frame: `42`, wantCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &fakeBroadcaster{}
			r := New(out)

			r.Dispatch(fakeConn{id: "conn-a"}, []byte(tt.frame))

			assert.Len(t, out.getDeliveries(), tt.wantCount)
		})
	}
}

func TestRelay_PreservesOrder(t *testing.T) {
	out := &fakeBroadcaster{}
	r := New(out)
	conn := fakeConn{id: "conn-a"}

	for i := 0; i < 5; i++ {
		r.OnLocationUpdate(conn, json.RawMessage(`{"seq":`+string(rune('0'+i))+`}`))
	}

	got := out.getDeliveries()
	require.Len(t, got, 5)
	for i, d := range got {
		assert.Equal(t, float64(i), decodeLocation(t, d.frame)["seq"])
	}
}

func TestRelay_Stats(t *testing.T) {
	out := &fakeBroadcaster{}
	r := New(out)
	conn := fakeConn{id: "conn-a"}

	r.OnConnect(conn)
	r.OnLocationUpdate(conn, json.RawMessage(`{}`))
	r.OnLocationUpdate(conn, json.RawMessage(`{}`))
	r.Dispatch(conn, []byte(`{"event":"unknown"}`))
	r.OnDisconnect(conn)

	assert.Equal(t, Stats{LocationUpdates: 2, Disconnects: 1}, r.Stats())
}

func TestEncode(t *testing.T) {
	frame, err := Encode(EventUserDisconnected, "abc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"user-disconnected","data":"abc"}`, string(frame))

	_, err = Encode(EventReceiveLocation, func() {})
	assert.Error(t, err)
}
