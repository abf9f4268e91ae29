// Package server wires HTTP handlers into a ServeMux for the relay via
// routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application
// routes: the WebSocket endpoint, health and metrics endpoints, and the index
// view with static assets under "/".
func SetupRoutes(hub *Hub, stats StatsSource, views *ViewRenderer, staticDir string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", WebSocketHandler(hub))
	mux.HandleFunc("GET /health", HealthHandler)
	mux.HandleFunc("GET /metrics", MetricsHandler(hub, stats))
	mux.HandleFunc("GET /", RootHandler(views, staticDir))
	return mux
}
