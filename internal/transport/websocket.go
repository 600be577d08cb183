// SPDX-License-Identifier: MIT
package transport

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	applog "vizbridge/internal/log"
	"vizbridge/internal/protocol"
)

const hubQueueSize = 256

// Hub is the capture-side Session: an HTTP server upgrading render surfaces
// to WebSocket on /session. Outbound messages are broadcast to every
// connected surface through a buffered channel; a slow or gone receiver
// costs dropped frames, never a blocked capture loop.
type Hub struct {
	upgrader websocket.Upgrader
	server   *http.Server

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]bool

	broadcast  chan protocol.Message
	handlers   handlerSet
	disconnect notifySet

	done      chan struct{}
	closeOnce sync.Once
}

var _ Session = (*Hub)(nil)
var _ PeerNotifier = (*Hub)(nil)

// NewHub creates a hub without a listener. Call Listen to serve an address,
// or mount ServeHTTP on an existing mux.
func NewHub() *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // local page origins vary, the session handshake gates access
			},
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan protocol.Message, hubQueueSize),
		done:      make(chan struct{}),
	}
	go h.broadcastLoop()
	return h
}

// Listen starts the HTTP server on addr with the session endpoint mounted.
// The server runs in its own goroutine.
func (h *Hub) Listen(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/session", h.ServeHTTP)
	h.server = &http.Server{Addr: addr, Handler: mux}

	go func() {
		applog.Infof("Transport: Session endpoint listening on %s", addr)
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			applog.Errorf("Transport: Server error: %v", err)
		}
	}()
}

// ServeHTTP upgrades a connection and serves it until it drops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Errorf("Transport: Upgrade error: %v", err)
		return
	}

	h.clientsMu.Lock()
	h.clients[conn] = true
	total := len(h.clients)
	h.clientsMu.Unlock()
	applog.Infof("Transport: Surface connected, total: %d", total)

	go h.readLoop(conn)
}

// readLoop dispatches inbound messages from one surface in receive order.
func (h *Hub) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			h.dropClient(conn)
			return
		}
		m, err := protocol.Decode(data)
		if err != nil {
			// Malformed inbound data never fails the session.
			applog.Warnf("Transport: Ignoring undecodable message: %v", err)
			continue
		}
		h.handlers.dispatch(m)
	}
}

func (h *Hub) dropClient(conn *websocket.Conn) {
	conn.Close()
	h.clientsMu.Lock()
	delete(h.clients, conn)
	remaining := len(h.clients)
	h.clientsMu.Unlock()

	applog.Infof("Transport: Surface disconnected, total: %d", remaining)
	if remaining == 0 {
		h.disconnect.fire()
	}
}

func (h *Hub) broadcastLoop() {
	for {
		select {
		case m := <-h.broadcast:
			data, err := protocol.Encode(m)
			if err != nil {
				applog.Errorf("Transport: Encode error: %v", err)
				continue
			}
			h.clientsMu.Lock()
			for client := range h.clients {
				if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
					applog.Warnf("Transport: Write error, dropping surface: %v", err)
					client.Close()
					delete(h.clients, client)
				}
			}
			h.clientsMu.Unlock()
		case <-h.done:
			return
		}
	}
}

// Send queues a message for broadcast. Drops when the queue is full.
func (h *Hub) Send(m protocol.Message) error {
	select {
	case <-h.done:
		return nil
	default:
	}

	select {
	case h.broadcast <- m:
	default:
		applog.Warnf("Transport: Broadcast queue full, dropping %q", m.Kind)
	}
	return nil
}

func (h *Hub) OnMessage(fn func(protocol.Message)) {
	h.handlers.add(fn)
}

// OnDisconnect registers an observer fired when the last surface drops.
func (h *Hub) OnDisconnect(fn func()) {
	h.disconnect.add(fn)
}

// Close shuts down the server and every client connection. Idempotent.
func (h *Hub) Close() error {
	var err error
	h.closeOnce.Do(func() {
		applog.Infof("Transport: Closing session endpoint")
		close(h.done)
		h.handlers.clear()

		h.clientsMu.Lock()
		for client := range h.clients {
			client.Close()
		}
		h.clients = make(map[*websocket.Conn]bool)
		h.clientsMu.Unlock()

		if h.server != nil {
			err = h.server.Close()
		}
	})
	return err
}
