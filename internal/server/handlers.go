// Package server exposes HTTP handlers: the WebSocket upgrade, the index
// view, static assets and the health check.
package server

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"

	"github.com/gorilla/websocket"
)

// IndexView is the template rendered at the root route.
const IndexView = "index.html"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// WebSocketHandler upgrades the request to a WebSocket, wraps it in a Client
// with a fresh connection id and hands it to hub, which starts its pumps.
func WebSocketHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// The upgrader has already written the error response.
			slog.Debug("websocket upgrade failed", "addr", r.RemoteAddr, "error", err)
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr)
		if !submit(hub, hub.register, client) {
			_ = conn.Close()
		}
	}
}

// IndexHandler renders the index view. The view takes no data.
func IndexHandler(views *ViewRenderer) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := views.Render(w, IndexView, nil); err != nil {
			slog.Error("error rendering index view", "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}
}

// RootHandler renders the index view for "/" and serves files from staticDir
// for every other path.
func RootHandler(views *ViewRenderer, staticDir string) http.HandlerFunc {
	index := IndexHandler(views)
	static := http.FileServer(fileOnlyFS{http.Dir(staticDir)})

	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			index(w, r)
			return
		}
		static.ServeHTTP(w, r)
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "GeoRelay server is running!")
}

// fileOnlyFS hides directories so the static tree answers only for files.
type fileOnlyFS struct {
	root http.FileSystem
}

func (f fileOnlyFS) Open(name string) (http.File, error) {
	file, err := f.root.Open(path.Clean(name))
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, &fs.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	}
	return file, nil
}
