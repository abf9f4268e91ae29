package server_test

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/georelay/internal/relay"
	"github.com/Tyrowin/georelay/internal/server"
)

const (
	testIndexHTML = `<!DOCTYPE html><html><head><title>GeoRelay</title></head><body><div id="map"></div></body></html>`
	testScriptJS  = `console.log("georelay");`
	readTimeout   = 2 * time.Second
)

// testRelay is a fully wired relay behind an httptest server.
type testRelay struct {
	URL   string
	WSURL string
	Hub   *server.Hub
	Relay *relay.Relay
}

// writeFile creates dir/name (and any parent directories) holding content.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

// startRelay wires hub, relay, views and static assets into a test server.
// Everything is torn down when the test ends.
func startRelay(t *testing.T) *testRelay {
	t.Helper()

	viewsDir := t.TempDir()
	writeFile(t, viewsDir, server.IndexView, testIndexHTML)
	staticDir := t.TempDir()
	writeFile(t, staticDir, "js/script.js", testScriptJS)

	views, err := server.NewViewRenderer(viewsDir)
	require.NoError(t, err)

	hub := server.NewHub()
	rel := relay.New(hub)
	hub.Attach(rel)
	server.StartHub(hub)

	srv := httptest.NewServer(server.SetupRoutes(hub, rel, views, staticDir))
	t.Cleanup(func() {
		srv.Close()
		_ = hub.Shutdown(time.Second)
	})

	return &testRelay{
		URL:   srv.URL,
		WSURL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		Hub:   hub,
		Relay: rel,
	}
}

// dial opens a WebSocket to the relay and waits until the hub has
// registered it.
func (tr *testRelay) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	want := tr.Hub.Count() + 1

	conn, err := dialWithOrigin(tr.WSURL, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	tr.waitForClients(t, want)
	return conn
}

func (tr *testRelay) waitForClients(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return tr.Hub.Count() == n },
		readTimeout, 5*time.Millisecond, "expected %d registered clients", n)
}

func dialWithOrigin(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// sendLocation emits a send-location event carrying payload.
func sendLocation(t *testing.T, conn *websocket.Conn, payload map[string]any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(relay.Envelope{Event: relay.EventSendLocation, Data: data}))
}

// readEvent reads one envelope from conn.
func readEvent(t *testing.T, conn *websocket.Conn) relay.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	var env relay.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

// readLocation reads one receive-location event and returns its fields.
func readLocation(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	env := readEvent(t, conn)
	require.Equal(t, relay.EventReceiveLocation, env.Event)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &fields))
	return fields
}

// readDisconnect reads one user-disconnected event and returns the id.
func readDisconnect(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	env := readEvent(t, conn)
	require.Equal(t, relay.EventUserDisconnected, env.Event)
	var id string
	require.NoError(t, json.Unmarshal(env.Data, &id))
	return id
}

// expectNoMessage asserts nothing arrives on conn within d. A timed out
// gorilla connection cannot be read again, so call this last.
func expectNoMessage(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(d)))
	_, msg, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no message, got %s", msg)
	}
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Fatalf("expected read timeout, got %v", err)
	}
}

// closeWebSocket sends a normal close frame and closes the connection.
func closeWebSocket(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}

// getRequest issues a GET against the test server.
func getRequest(t *testing.T, url string) *http.Response {
	t.Helper()
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}
