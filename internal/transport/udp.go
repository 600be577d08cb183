// SPDX-License-Identifier: MIT
package transport

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"vizbridge/internal/feature"
	applog "vizbridge/internal/log"
)

// UDPSender transmits packets to a fixed target address.
type UDPSender struct {
	conn   *net.UDPConn
	mu     sync.Mutex
	closed bool
}

// NewUDPSender dials the target, e.g. "127.0.0.1:9090".
func NewUDPSender(targetAddress string) (*UDPSender, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP target address %q: %w", targetAddress, err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial UDP target %q: %w", targetAddress, err)
	}

	applog.Infof("Transport: UDP sender established to %s", conn.RemoteAddr())
	return &UDPSender{conn: conn}, nil
}

// Send transmits one packet. Safe for concurrent use.
func (s *UDPSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("UDP sender is closed")
	}
	if _, err := s.conn.Write(data); err != nil {
		return fmt.Errorf("failed to send UDP packet: %w", err)
	}
	return nil
}

// Close closes the underlying connection. Idempotent.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

/*
Feature packet structure (BigEndian):

	| Field     | Type    | Bytes |
	|-----------|---------|-------|
	| Sequence  | uint32  | 4     |
	| Timestamp | int64   | 8     | nanoseconds since epoch
	| Bass      | float32 | 4     |
	| Mid       | float32 | 4     |
	| Treble    | float32 | 4     |
	| Volume    | float32 | 4     |
	| Beat      | uint8   | 1     |
*/

// FeaturePacket is the decoded form of one UDP feature packet.
type FeaturePacket struct {
	Sequence  uint32
	Timestamp int64
	Bass      float32
	Mid       float32
	Treble    float32
	Volume    float32
	Beat      uint8
}

// FeaturePublisher periodically packs the latest feature set into a compact
// binary packet and sends it over UDP, as a side channel for external
// consumers (lighting rigs, OSC bridges) that do not speak the session
// protocol. Failures drop the packet; they are never session-fatal.
type FeaturePublisher struct {
	sender   *UDPSender
	provider func() (feature.Set, bool)
	interval time.Duration

	mu       sync.Mutex
	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	sequenceNum  uint32
	packetBuffer *bytes.Buffer
}

// NewFeaturePublisher creates a publisher pulling from provider at the given
// interval. The provider returns the latest feature set and whether one is
// available yet.
func NewFeaturePublisher(interval time.Duration, sender *UDPSender, provider func() (feature.Set, bool)) (*FeaturePublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("feature publisher: UDP sender cannot be nil")
	}
	if provider == nil {
		return nil, fmt.Errorf("feature publisher: provider cannot be nil")
	}
	if interval <= 0 {
		interval = 50 * time.Millisecond
		applog.Warnf("Transport: Invalid UDP interval, defaulting to %s", interval)
	}

	return &FeaturePublisher{
		sender:       sender,
		provider:     provider,
		interval:     interval,
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Start launches the publishing goroutine. Safe to call when already
// running; the second call is a no-op.
func (p *FeaturePublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Infof("Transport: UDP feature publisher started (interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.publishOnce()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the goroutine to exit and waits for it. Idempotent.
func (p *FeaturePublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

func (p *FeaturePublisher) publishOnce() {
	set, ok := p.provider()
	if !ok {
		return
	}

	p.sequenceNum++
	p.packetBuffer.Reset()

	pkt := FeaturePacket{
		Sequence:  p.sequenceNum,
		Timestamp: time.Now().UnixNano(),
		Bass:      float32(set.Bass),
		Mid:       float32(set.Mid),
		Treble:    float32(set.Treble),
		Volume:    float32(set.Volume),
	}
	if set.Beat {
		pkt.Beat = 1
	}

	if err := binary.Write(p.packetBuffer, binary.BigEndian, pkt); err != nil {
		applog.Errorf("Transport: Error packing feature packet: %v", err)
		return
	}
	if err := p.sender.Send(p.packetBuffer.Bytes()); err != nil {
		applog.Debugf("Transport: Dropping feature packet %d: %v", p.sequenceNum, err)
	}
}

// Close stops the publisher.
func (p *FeaturePublisher) Close() error {
	return p.Stop()
}
