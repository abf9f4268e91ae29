// Package server implements the HTTP and WebSocket transport for the location
// relay.
//
// The Hub owns the live connections and runs every relay callback on a single
// goroutine. The remaining files cover configuration, clients, views,
// metrics, routing, and HTTP handlers.
package server
