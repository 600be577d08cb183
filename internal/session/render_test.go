// SPDX-License-Identifier: MIT
package session

import (
	"testing"
	"time"

	"vizbridge/internal/protocol"
)

func newTestBridge() (*Bridge, *mockSession) {
	sess := &mockSession{}
	b := NewBridge(sess, BridgeConfig{})
	return b, sess
}

// A surface started before the agent keeps announcing without ever reaching
// the connected state, then latches on as soon as the agent appears.
func TestBridgeAnnounceSurvivesAbsentAgent(t *testing.T) {
	b, sess := newTestBridge()
	defer b.Close()

	start := time.Now()
	for i := 0; i < 3; i++ {
		b.announceTick(start.Add(time.Duration(i) * 2 * time.Second))
	}

	if n := sess.countOfKind(protocol.KindReady); n != 3 {
		t.Errorf("ready announces = %d, want 3", n)
	}
	if st := b.Status().State; st == Connected || st == Capturing {
		t.Errorf("state reached %v with no agent present", st)
	}

	sess.deliver(protocol.Connected("2.1.0"))
	status := b.Status()
	if status.State != Connected {
		t.Errorf("state after agent announce = %v, want connected", status.State)
	}
	if status.PeerVersion != "2.1.0" {
		t.Errorf("peer version = %q, want 2.1.0", status.PeerVersion)
	}
}

func TestBridgeAnnounceStopsOnceConnected(t *testing.T) {
	b, sess := newTestBridge()
	defer b.Close()

	sess.deliver(protocol.ReadyAck())
	if st := b.Status().State; st != Connected {
		t.Fatalf("state after ready-ack = %v, want connected", st)
	}

	before := sess.countOfKind(protocol.KindReady)
	b.announceTick(time.Now())
	if n := sess.countOfKind(protocol.KindReady); n != before {
		t.Errorf("announcer kept sending ready after connect: %d -> %d", before, n)
	}
}

// Capture state is never assumed from sending the command; only the agent's
// capture-status message flips it.
func TestBridgeStatusIsAuthoritative(t *testing.T) {
	b, sess := newTestBridge()
	defer b.Close()

	sess.deliver(protocol.Connected("1.0.0"))
	if err := b.StartCapture(); err != nil {
		t.Fatalf("StartCapture failed: %v", err)
	}
	if _, ok := sess.lastOfKind(protocol.KindStartCapture); !ok {
		t.Fatal("start-capture command was not sent")
	}
	if b.Status().IsCapturing {
		t.Error("IsCapturing flipped before the agent confirmed")
	}

	sess.deliver(protocol.CaptureStatus(true, true))
	status := b.Status()
	if status.State != Capturing || !status.IsCapturing || !status.DemoMode {
		t.Errorf("status after confirmation = %+v, want capturing demo", status)
	}

	sess.deliver(protocol.CaptureStatus(false, false))
	status = b.Status()
	if status.State != Connected || status.IsCapturing {
		t.Errorf("status after stop confirmation = %+v, want connected not capturing", status)
	}
}

func TestBridgeRetainsFrameAndFeatures(t *testing.T) {
	b, sess := newTestBridge()
	defer b.Close()

	if _, ok := b.Characteristics(); ok {
		t.Error("Characteristics reports data before any frame arrived")
	}
	if b.FrequencyData() != nil {
		t.Error("FrequencyData non-nil before any frame arrived")
	}

	freq := []byte{200, 150, 100, 50}
	samples := []byte{128, 180, 128, 76}
	sess.deliver(protocol.AudioData(freq, samples, 12345, &protocol.Features{
		Bass: 0.8, Mid: 0.5, Treble: 0.2, Volume: 0.6, Beat: true,
	}))

	gotFreq := b.FrequencyData()
	if len(gotFreq) != 4 || gotFreq[0] != 200 {
		t.Errorf("FrequencyData = %v, want %v", gotFreq, freq)
	}
	set, ok := b.Characteristics()
	if !ok {
		t.Fatal("Characteristics reports no data after a frame")
	}
	if set.Bass != 0.8 || !set.Beat {
		t.Errorf("features = %+v, want the attached set", set)
	}

	// Returned slices are copies: mutating one must not leak back.
	gotFreq[0] = 0
	if again := b.FrequencyData(); again[0] != 200 {
		t.Error("FrequencyData returned a live reference to internal state")
	}
}

// Frames without an attached feature set get features derived locally.
func TestBridgeFallbackExtraction(t *testing.T) {
	b, sess := newTestBridge()
	defer b.Close()

	freq := make([]byte, 64)
	samples := make([]byte, 64)
	for i := range freq {
		freq[i] = 200
		if i%2 == 0 {
			samples[i] = 192
		} else {
			samples[i] = 64
		}
	}
	sess.deliver(protocol.AudioData(freq, samples, 1, nil))

	set, ok := b.Characteristics()
	if !ok {
		t.Fatal("no features after a frame without an attached set")
	}
	if set.Bass <= 0 || set.Volume <= 0 {
		t.Errorf("fallback extraction produced %+v, want positive bass and volume", set)
	}
}

func TestBridgeCaptureErrorFallsBackToConnected(t *testing.T) {
	b, sess := newTestBridge()
	defer b.Close()

	sess.deliver(protocol.Connected("1.0.0"))
	sess.deliver(protocol.CaptureStatus(true, false))
	sess.deliver(protocol.CaptureError("permission", "input device access denied"))

	status := b.Status()
	if status.State != Connected {
		t.Errorf("state after capture-error = %v, want connected", status.State)
	}
	if status.IsCapturing {
		t.Error("still capturing after capture-error")
	}
	if status.LastError == "" {
		t.Error("capture-error text was not retained")
	}
}

func TestBridgeProcessingLifecycle(t *testing.T) {
	b, sess := newTestBridge()
	defer b.Close()

	sess.deliver(protocol.ProcessingReady())
	if !b.Status().ProcessingReady {
		t.Error("ProcessingReady not set")
	}

	sess.deliver(protocol.Message{Kind: protocol.KindProcessingError, Error: "pipeline died"})
	status := b.Status()
	if status.ProcessingReady {
		t.Error("ProcessingReady still set after processing-error")
	}
	if status.LastError != "pipeline died" {
		t.Errorf("LastError = %q, want pipeline died", status.LastError)
	}
}

func TestBridgePeerGoneResets(t *testing.T) {
	b, sess := newTestBridge()
	defer b.Close()

	sess.deliver(protocol.Connected("1.0.0"))
	sess.deliver(protocol.CaptureStatus(true, false))
	sess.dropPeer()

	status := b.Status()
	if status.State != Disconnected || status.IsCapturing {
		t.Errorf("status after peer loss = %+v, want disconnected not capturing", status)
	}
}

func TestBridgeIgnoresUnknownKinds(t *testing.T) {
	b, sess := newTestBridge()
	defer b.Close()

	sess.deliver(protocol.Connected("1.0.0"))
	sess.deliver(protocol.Message{Kind: "telemetry-blob"})
	if st := b.Status().State; st != Connected {
		t.Errorf("unknown kind changed state to %v", st)
	}
}
