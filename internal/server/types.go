// Package server defines shared message types and utility helpers that are
// reused across client and hub logic.
package server

import (
	"strings"

	"github.com/Tyrowin/georelay/internal/relay"
)

// Handler receives connection lifecycle events and inbound frames from the
// hub. All calls are made from the hub's dispatch goroutine, one at a time.
type Handler interface {
	OnConnect(conn relay.Connection)
	Dispatch(conn relay.Connection, frame []byte)
	OnDisconnect(conn relay.Connection)
}

// InboundMessage is a raw frame read from a client, queued for dispatch.
type InboundMessage struct {
	Sender  *Client
	Payload []byte
}

type nopHandler struct{}

func (nopHandler) OnConnect(relay.Connection)        {}
func (nopHandler) Dispatch(relay.Connection, []byte) {}
func (nopHandler) OnDisconnect(relay.Connection)     {}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
