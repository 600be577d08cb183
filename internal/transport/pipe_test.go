// SPDX-License-Identifier: MIT
package transport

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"vizbridge/internal/protocol"
)

// Messages sent by one end must reach the peer's handler in send order.
func TestPipePreservesSendOrder(t *testing.T) {
	a, b := NewPipe()
	defer a.Close()
	defer b.Close()

	const count = 200
	received := make(chan string, count)
	b.OnMessage(func(m protocol.Message) {
		received <- m.Error
	})

	for i := 0; i < count; i++ {
		if err := a.Send(protocol.Message{Kind: protocol.KindAudioDataError, Error: fmt.Sprintf("%d", i)}); err != nil {
			t.Fatalf("Send %d failed: %v", i, err)
		}
	}

	for i := 0; i < count; i++ {
		select {
		case got := <-received:
			if want := fmt.Sprintf("%d", i); got != want {
				t.Fatalf("message %d arrived out of order: got %q", i, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestPipeBidirectional(t *testing.T) {
	a, b := NewPipe()
	defer a.Close()
	defer b.Close()

	fromA := make(chan protocol.Message, 1)
	fromB := make(chan protocol.Message, 1)
	b.OnMessage(func(m protocol.Message) { fromA <- m })
	a.OnMessage(func(m protocol.Message) { fromB <- m })

	a.Send(protocol.Ready())
	b.Send(protocol.Connected("1.0.0"))

	select {
	case m := <-fromA:
		if m.Kind != protocol.KindReady {
			t.Errorf("b received %q, want ready", m.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("b never received")
	}
	select {
	case m := <-fromB:
		if m.Kind != protocol.KindConnected || m.Version != "1.0.0" {
			t.Errorf("a received %+v, want connected/1.0.0", m)
		}
	case <-time.After(time.Second):
		t.Fatal("a never received")
	}
}

// Every registered consumer sees every message.
func TestPipeMultipleConsumers(t *testing.T) {
	a, b := NewPipe()
	defer a.Close()
	defer b.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	b.OnMessage(func(m protocol.Message) { wg.Done() })
	b.OnMessage(func(m protocol.Message) { wg.Done() })

	a.Send(protocol.Ready())

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("not all consumers received the message")
	}
}

func TestPipeCloseIdempotent(t *testing.T) {
	a, b := NewPipe()
	defer b.Close()

	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	// Sending after close is a silent drop, not a failure.
	if err := a.Send(protocol.Ready()); err != nil {
		t.Errorf("Send after close returned %v, want nil", err)
	}
}

func TestPipeDisconnectNotifiesPeer(t *testing.T) {
	a, b := NewPipe()
	defer b.Close()

	gone := make(chan struct{})
	b.OnDisconnect(func() { close(gone) })

	a.Close()
	select {
	case <-gone:
	case <-time.After(time.Second):
		t.Fatal("peer disconnect observer never fired")
	}
}
