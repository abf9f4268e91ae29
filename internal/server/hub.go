// Package server coordinates client registration, inbound frame dispatch, and
// connection cleanup for the relay via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Hub owns the set of live WebSocket clients. A single goroutine (Run)
// handles registration, unregistration and inbound frames, and invokes the
// attached Handler for each, so handlers never run concurrently.
type Hub struct {
	clients    map[*Client]struct{}
	inbound    chan InboundMessage
	register   chan *Client
	unregister chan *Client
	handler    Handler
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates and initializes a new Hub instance with all necessary channels
// and client map. Frames are discarded until a Handler is attached.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	// The channels are unbuffered so that a client's frames and its final
	// unregister are handed to Run in the order the read pump produced them.
	return &Hub{
		clients:    make(map[*Client]struct{}),
		inbound:    make(chan InboundMessage),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		handler:    nopHandler{},
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Attach sets the handler that receives connection events. It must be called
// before Run.
func (h *Hub) Attach(handler Handler) {
	if handler == nil {
		handler = nopHandler{}
	}
	h.handler = handler
}

// Count returns the number of currently registered clients.
func (h *Hub) Count() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// submit hands v to ch unless the hub is shutting down. It reports whether
// the hub accepted it.
func submit[T any](h *Hub, ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Run starts the hub's main event loop, handling client registration,
// unregistration and inbound frames. It should be called in a separate
// goroutine and returns once Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				slog.Warn("received nil client registration; skipping")
				continue
			}
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case msg := <-h.inbound:
			h.handleInbound(msg)
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	h.mutex.Lock()
	h.clients[client] = struct{}{}
	clientCount := len(h.clients)
	h.mutex.Unlock()
	slog.Debug("client registered", "id", client.id, "addr", client.addr, "clients", clientCount)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()

	h.handler.OnConnect(client)
}

// handleUnregister removes client and notifies the handler. Membership in the
// client map makes the notification fire at most once per client.
func (h *Hub) handleUnregister(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	clientCount := len(h.clients)
	h.mutex.Unlock()

	close(client.send)
	slog.Debug("client unregistered", "id", client.id, "addr", client.addr, "clients", clientCount)

	h.handler.OnDisconnect(client)
}

func (h *Hub) handleInbound(msg InboundMessage) {
	h.mutex.RLock()
	_, ok := h.clients[msg.Sender]
	h.mutex.RUnlock()
	if !ok {
		return
	}
	h.handler.Dispatch(msg.Sender, msg.Payload)
}

// BroadcastToAll queues frame for every registered client. It is meant to be
// called from a Handler callback.
func (h *Hub) BroadcastToAll(frame []byte) {
	h.fanOut("", frame)
}

// BroadcastToOthers queues frame for every registered client except the one
// identified by senderID. It is meant to be called from a Handler callback.
func (h *Hub) BroadcastToOthers(senderID string, frame []byte) {
	h.fanOut(senderID, frame)
}

func (h *Hub) fanOut(skipID string, frame []byte) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.clients {
		if skipID != "" && client.id == skipID {
			continue
		}
		// A full queue costs this recipient one message; the rest still get it.
		select {
		case client.send <- frame:
		default:
			slog.Debug("send buffer full; dropping frame", "id", client.id, "addr", client.addr)
		}
	}
}

// shutdownClients closes all active client connections and their send queues.
func (h *Hub) shutdownClients() {
	slog.Info("shutting down all client connections")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
		delete(h.clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		close(client.send)
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				slog.Warn("error closing client connection", "id", client.id, "addr", client.addr, "error", err)
			}
		}
	}

	slog.Info("closed client connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	slog.Info("initiating hub shutdown")

	h.cancel()
	deadline := time.After(timeout)

	// Run may never have been started, so waiting on it is bounded too.
	select {
	case <-h.done:
	case <-deadline:
		slog.Warn("hub shutdown timeout reached before the event loop stopped")
		return context.DeadlineExceeded
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("hub shutdown completed")
		return nil
	case <-deadline:
		slog.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
