// SPDX-License-Identifier: MIT
/*
Package transport carries protocol messages between the capture agent and the
render surface. A Session is fire-and-forget: Send never blocks on the peer
and never fails the session on delivery problems — undeliverable messages are
dropped and logged, and recovery is left to the coordinator's handshake loop.

Within one Session, messages are delivered to the peer's handlers in send
order. There is no cross-session ordering guarantee.
*/
package transport

import (
	"sync"

	"vizbridge/internal/protocol"
)

// Session is a bidirectional message channel to one peer.
// Implementations are safe for concurrent use.
type Session interface {
	// Send queues a message for the peer, best-effort. Delivery failures are
	// swallowed and logged; only local encoding problems are returned.
	Send(m protocol.Message) error

	// OnMessage registers a consumer for inbound messages. Multiple
	// consumers are permitted; each message is delivered to all of them in
	// registration order.
	OnMessage(fn func(protocol.Message))

	// Close releases the channel and clears consumers. Idempotent.
	Close() error
}

// PeerNotifier is implemented by sessions that can observe peer teardown.
// Coordinators type-assert for it to detect disconnects.
type PeerNotifier interface {
	OnDisconnect(fn func())
}

// handlerSet is a registration-ordered list of message consumers.
type handlerSet struct {
	mu  sync.RWMutex
	fns []func(protocol.Message)
}

func (h *handlerSet) add(fn func(protocol.Message)) {
	h.mu.Lock()
	h.fns = append(h.fns, fn)
	h.mu.Unlock()
}

func (h *handlerSet) dispatch(m protocol.Message) {
	h.mu.RLock()
	fns := h.fns
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(m)
	}
}

func (h *handlerSet) clear() {
	h.mu.Lock()
	h.fns = nil
	h.mu.Unlock()
}

// notifySet is a list of disconnect observers.
type notifySet struct {
	mu  sync.Mutex
	fns []func()
}

func (n *notifySet) add(fn func()) {
	n.mu.Lock()
	n.fns = append(n.fns, fn)
	n.mu.Unlock()
}

func (n *notifySet) fire() {
	n.mu.Lock()
	fns := n.fns
	n.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
