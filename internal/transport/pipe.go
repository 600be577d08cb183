// SPDX-License-Identifier: MIT
package transport

import (
	"sync"

	applog "vizbridge/internal/log"
	"vizbridge/internal/protocol"
)

const pipeQueueSize = 256

// Pipe is one end of an in-memory connected session pair. It mirrors the
// platform messaging semantics: asynchronous delivery, per-sender FIFO,
// drop-on-overflow. Used by tests and by same-process demo wiring.
type Pipe struct {
	out  chan protocol.Message
	in   chan protocol.Message
	done chan struct{}

	peer *Pipe

	handlers   handlerSet
	disconnect notifySet
	closeOnce  sync.Once
}

var _ Session = (*Pipe)(nil)
var _ PeerNotifier = (*Pipe)(nil)

// NewPipe creates a connected session pair. Each end delivers the other's
// sends through a single dispatch goroutine, preserving send order.
func NewPipe() (*Pipe, *Pipe) {
	ab := make(chan protocol.Message, pipeQueueSize)
	ba := make(chan protocol.Message, pipeQueueSize)

	a := &Pipe{out: ab, in: ba, done: make(chan struct{})}
	b := &Pipe{out: ba, in: ab, done: make(chan struct{})}
	a.peer = b
	b.peer = a

	go a.dispatchLoop()
	go b.dispatchLoop()
	return a, b
}

func (p *Pipe) dispatchLoop() {
	for {
		select {
		case m := <-p.in:
			p.handlers.dispatch(m)
		case <-p.done:
			return
		}
	}
}

// Send queues a message for the peer. Messages are dropped (not blocked on)
// when the peer is gone or its queue is full.
func (p *Pipe) Send(m protocol.Message) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	select {
	case p.out <- m:
	default:
		applog.Warnf("Transport: Pipe queue full, dropping %q", m.Kind)
	}
	return nil
}

func (p *Pipe) OnMessage(fn func(protocol.Message)) {
	p.handlers.add(fn)
}

// OnDisconnect registers an observer fired when the peer end closes.
func (p *Pipe) OnDisconnect(fn func()) {
	p.disconnect.add(fn)
}

// Close tears down this end and notifies the peer's disconnect observers.
func (p *Pipe) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		p.handlers.clear()
		p.peer.disconnect.fire()
	})
	return nil
}
