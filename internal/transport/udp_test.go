// SPDX-License-Identifier: MIT
package transport

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"vizbridge/internal/feature"
)

func TestFeaturePacketLayout(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("failed to open UDP listener: %v", err)
	}
	defer listener.Close()

	sender, err := NewUDPSender(listener.LocalAddr().String())
	if err != nil {
		t.Fatalf("NewUDPSender failed: %v", err)
	}
	defer sender.Close()

	set := feature.Set{Bass: 0.75, Mid: 0.5, Treble: 0.25, Volume: 1.0, Beat: true}
	pub, err := NewFeaturePublisher(50*time.Millisecond, sender, func() (feature.Set, bool) {
		return set, true
	})
	if err != nil {
		t.Fatalf("NewFeaturePublisher failed: %v", err)
	}

	pub.publishOnce()
	pub.publishOnce()

	buf := make([]byte, 64)
	listener.SetReadDeadline(time.Now().Add(2 * time.Second))

	for want := uint32(1); want <= 2; want++ {
		n, _, err := listener.ReadFromUDP(buf)
		if err != nil {
			t.Fatalf("packet %d read failed: %v", want, err)
		}
		if n != 29 { // 4+8+4*4+1
			t.Errorf("packet size = %d, want 29", n)
		}

		var pkt FeaturePacket
		if err := binary.Read(bytes.NewReader(buf[:n]), binary.BigEndian, &pkt); err != nil {
			t.Fatalf("packet decode failed: %v", err)
		}
		if pkt.Sequence != want {
			t.Errorf("sequence = %d, want %d", pkt.Sequence, want)
		}
		if pkt.Bass != 0.75 || pkt.Mid != 0.5 || pkt.Treble != 0.25 || pkt.Volume != 1.0 {
			t.Errorf("bands = %v/%v/%v/%v, want 0.75/0.5/0.25/1", pkt.Bass, pkt.Mid, pkt.Treble, pkt.Volume)
		}
		if pkt.Beat != 1 {
			t.Errorf("beat = %d, want 1", pkt.Beat)
		}
		if pkt.Timestamp <= 0 {
			t.Errorf("timestamp = %d, want positive", pkt.Timestamp)
		}
	}
}

func TestFeaturePublisherSkipsWhenNoData(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("failed to open UDP listener: %v", err)
	}
	defer listener.Close()

	sender, err := NewUDPSender(listener.LocalAddr().String())
	if err != nil {
		t.Fatalf("NewUDPSender failed: %v", err)
	}
	defer sender.Close()

	pub, _ := NewFeaturePublisher(time.Millisecond, sender, func() (feature.Set, bool) {
		return feature.Set{}, false
	})
	pub.publishOnce()

	listener.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := listener.ReadFromUDP(make([]byte, 64)); err == nil {
		t.Error("received a packet despite the provider reporting no data")
	}
}

func TestFeaturePublisherStartStop(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("failed to open UDP listener: %v", err)
	}
	defer listener.Close()

	sender, _ := NewUDPSender(listener.LocalAddr().String())
	defer sender.Close()

	pub, _ := NewFeaturePublisher(time.Millisecond, sender, func() (feature.Set, bool) {
		return feature.Set{Volume: 0.5}, true
	})

	pub.Start()
	pub.Start() // second Start is a no-op
	time.Sleep(20 * time.Millisecond)

	if err := pub.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := pub.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}

	// At least one packet made it out while running.
	listener.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := listener.ReadFromUDP(make([]byte, 64)); err != nil {
		t.Errorf("no packets received while publisher was running: %v", err)
	}
}
