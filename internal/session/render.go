// SPDX-License-Identifier: MIT
package session

import (
	"sync"
	"time"

	"vizbridge/internal/feature"
	applog "vizbridge/internal/log"
	"vizbridge/internal/protocol"
	"vizbridge/internal/transport"
)

const defaultAckTimeout = 2 * time.Second

// BridgeConfig wires the render-side bridge.
type BridgeConfig struct {
	// ReadyInterval is the presence re-announce cadence while no peer is
	// known (default 2s).
	ReadyInterval time.Duration

	// AckTimeout bounds how long one announce waits for an acknowledgment
	// before the attempt is considered failed (default 2s). Failure is not
	// terminal; the next announce retries.
	AckTimeout time.Duration

	// Extractor tunables for the local fallback when a frame arrives without
	// features attached.
	Extractor feature.Config
}

func (c BridgeConfig) withDefaults() BridgeConfig {
	if c.ReadyInterval <= 0 {
		c.ReadyInterval = defaultAnnounceInterval
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = defaultAckTimeout
	}
	return c
}

// BridgeStatus is a point-in-time snapshot of the bridge's view of the session.
type BridgeStatus struct {
	State           State
	PeerVersion     string
	IsCapturing     bool
	DemoMode        bool
	ProcessingReady bool
	LastError       string
}

// Bridge is the render-side session coordinator. It announces the surface's
// presence until a capture agent responds, mirrors the agent's authoritative
// capture status, and retains the latest frame and features for renderers.
//
// The bridge never assumes a command succeeded: StartCapture and StopCapture
// only send the request, and IsCapturing flips when the agent's
// capture-status message confirms it.
type Bridge struct {
	sess transport.Session
	cfg  BridgeConfig

	mu           sync.RWMutex
	state        State
	peerVersion  string
	capturing    bool
	demo         bool
	procReady    bool
	lastError    string
	lastAnnounce time.Time

	freq        []byte
	timeSamples []byte
	features    feature.Set
	haveFrame   bool

	extractor *feature.Extractor

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewBridge creates the bridge and registers it on the session. Call Start to
// begin announcing.
func NewBridge(sess transport.Session, cfg BridgeConfig) *Bridge {
	b := &Bridge{
		sess:      sess,
		cfg:       cfg.withDefaults(),
		state:     Disconnected,
		extractor: feature.NewExtractor(cfg.Extractor),
		done:      make(chan struct{}),
	}
	sess.OnMessage(b.handleMessage)
	if pn, ok := sess.(transport.PeerNotifier); ok {
		pn.OnDisconnect(b.handlePeerGone)
	}
	return b
}

// Start launches the ready announcer.
func (b *Bridge) Start() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.cfg.ReadyInterval)
		defer ticker.Stop()
		b.announceTick(time.Now())
		for {
			select {
			case t := <-ticker.C:
				b.announceTick(t)
			case <-b.done:
				return
			}
		}
	}()
}

// announceTick runs one cycle of the handshake loop: expire an unacknowledged
// announce back to Disconnected, then re-announce if still unconnected.
// Announces into the void are harmless; the loop survives the agent starting
// arbitrarily late.
func (b *Bridge) announceTick(now time.Time) {
	b.mu.Lock()
	if b.state >= Connected {
		b.mu.Unlock()
		return
	}
	if b.state == AwaitingPeer && now.Sub(b.lastAnnounce) >= b.cfg.AckTimeout {
		b.state = Disconnected
		applog.Debugf("Session: Ready announce unacknowledged after %s, retrying", b.cfg.AckTimeout)
	}
	b.state = AwaitingPeer
	b.lastAnnounce = now
	b.mu.Unlock()

	b.sess.Send(protocol.Ready())
}

func (b *Bridge) handleMessage(m protocol.Message) {
	switch m.Kind {
	case protocol.KindConnected:
		b.mu.Lock()
		b.peerVersion = m.Version
		if b.state < Connected {
			b.state = Connected
			applog.Infof("Session: Capture agent present (version %s)", m.Version)
		}
		b.mu.Unlock()

	case protocol.KindReadyAck:
		b.mu.Lock()
		if b.state < Connected {
			b.state = Connected
			applog.Infof("Session: Ready announce acknowledged")
		}
		b.mu.Unlock()

	case protocol.KindCaptureStatus:
		b.mu.Lock()
		b.capturing = m.Capturing()
		b.demo = m.Demo()
		if b.state >= Connected {
			if b.capturing {
				b.state = Capturing
			} else {
				b.state = Connected
			}
		}
		b.mu.Unlock()
		applog.Debugf("Session: Capture status: capturing=%v demo=%v", m.Capturing(), m.Demo())

	case protocol.KindAudioData:
		b.storeFrame(m)

	case protocol.KindAudioDataError:
		b.mu.Lock()
		b.lastError = m.Error
		b.mu.Unlock()
		applog.Debugf("Session: Frame unavailable: %s", m.Error)

	case protocol.KindCaptureError:
		b.mu.Lock()
		b.lastError = m.Error
		b.capturing = false
		if b.state == Capturing {
			b.state = Connected
		}
		b.mu.Unlock()
		applog.Errorf("Session: Capture error (%s): %s", m.Category, m.Error)

	case protocol.KindProcessingReady:
		b.mu.Lock()
		b.procReady = true
		b.mu.Unlock()

	case protocol.KindProcessingError:
		b.mu.Lock()
		b.procReady = false
		b.lastError = m.Error
		b.mu.Unlock()
		applog.Errorf("Session: Processing error: %s", m.Error)

	default:
		applog.Debugf("Session: Ignoring message kind %q", m.Kind)
	}
}

// storeFrame retains the frame payload and its features. Frames arriving
// without attached features get them derived locally, so renderers always
// have a feature set to draw from.
func (b *Bridge) storeFrame(m protocol.Message) {
	freq := m.FrequencyBytes()
	ts := m.TimeBytes()

	b.mu.Lock()
	b.freq = append(b.freq[:0], freq...)
	b.timeSamples = append(b.timeSamples[:0], ts...)
	if m.Features != nil {
		b.features = feature.Set{
			Bass:   m.Features.Bass,
			Mid:    m.Features.Mid,
			Treble: m.Features.Treble,
			Volume: m.Features.Volume,
			Beat:   m.Features.Beat,
		}
	} else {
		b.features = b.extractor.Extract(freq, ts)
	}
	b.haveFrame = true
	b.mu.Unlock()
}

// StartCapture requests the agent to begin capture. The request is
// fire-and-forget; watch Status for confirmation.
func (b *Bridge) StartCapture() error {
	return b.sess.Send(protocol.StartCapture())
}

// StopCapture requests the agent to end capture.
func (b *Bridge) StopCapture() error {
	return b.sess.Send(protocol.StopCapture())
}

// RequestFrame polls the agent for its latest frame, for consumers that want
// data off the push cadence.
func (b *Bridge) RequestFrame() error {
	return b.sess.Send(protocol.RequestAudioData())
}

// Status returns a snapshot of the session as the bridge sees it.
func (b *Bridge) Status() BridgeStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return BridgeStatus{
		State:           b.state,
		PeerVersion:     b.peerVersion,
		IsCapturing:     b.capturing,
		DemoMode:        b.demo,
		ProcessingReady: b.procReady,
		LastError:       b.lastError,
	}
}

// FrequencyData returns a copy of the latest frequency frame, or nil when no
// frame has arrived yet.
func (b *Bridge) FrequencyData() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.haveFrame {
		return nil
	}
	out := make([]byte, len(b.freq))
	copy(out, b.freq)
	return out
}

// TimeData returns a copy of the latest time-domain frame, or nil when no
// frame has arrived yet.
func (b *Bridge) TimeData() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.haveFrame {
		return nil
	}
	out := make([]byte, len(b.timeSamples))
	copy(out, b.timeSamples)
	return out
}

// Characteristics returns the latest feature set and whether a frame has
// arrived to back it.
func (b *Bridge) Characteristics() (feature.Set, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.features, b.haveFrame
}

func (b *Bridge) handlePeerGone() {
	applog.Warnf("Session: Capture agent disconnected")
	b.mu.Lock()
	b.state = Disconnected
	b.capturing = false
	b.demo = false
	b.procReady = false
	b.mu.Unlock()
}

// Close stops the announcer. Idempotent.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		close(b.done)
	})
	b.wg.Wait()
	return nil
}
