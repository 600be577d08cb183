// SPDX-License-Identifier: MIT
package session

import (
	"errors"
	"sync"
	"time"

	"vizbridge/internal/feature"
	applog "vizbridge/internal/log"
	"vizbridge/internal/protocol"
	"vizbridge/internal/source"
	"vizbridge/internal/transport"
)

const (
	defaultFrameInterval    = 50 * time.Millisecond
	defaultAnnounceInterval = 2 * time.Second
)

// CaptureConfig wires the capture coordinator.
type CaptureConfig struct {
	// Version is advertised in the connected announce.
	Version string

	// OpenSource acquires a sample source when capture starts. The
	// coordinator owns the returned handle exclusively and closes it on
	// stop, on error, and on peer loss.
	OpenSource func() (source.Source, error)

	// FrameInterval is the push cadence while capturing (default 50ms, ~20Hz).
	FrameInterval time.Duration

	// AnnounceInterval is the presence re-announce cadence while no peer is
	// known (default 2s).
	AnnounceInterval time.Duration

	// Extractor tunables; zero values use the package defaults.
	Extractor feature.Config
}

func (c CaptureConfig) withDefaults() CaptureConfig {
	if c.FrameInterval <= 0 {
		c.FrameInterval = defaultFrameInterval
	}
	if c.AnnounceInterval <= 0 {
		c.AnnounceInterval = defaultAnnounceInterval
	}
	return c
}

// Capture is the agent-side session coordinator. It owns the sample source
// handle, answers control commands from the render surface, and pushes frames
// on a fixed cadence while capturing.
//
// All message handling is serialized by the transport's dispatch goroutine;
// the frame ticker runs on its own goroutine and shares state under mu.
type Capture struct {
	sess transport.Session
	cfg  CaptureConfig

	mu        sync.Mutex
	state     State
	src       source.Source
	demo      bool
	frame     source.Frame
	frameDone chan struct{} // non-nil exactly while capturing

	extractor *feature.Extractor

	featureMu   sync.RWMutex
	latest      feature.Set
	haveLatest  bool
	latestFrame protocol.Message // last audio-data built, for poll replies

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewCapture creates the coordinator and registers it on the session. Call
// Start to begin announcing presence.
func NewCapture(sess transport.Session, cfg CaptureConfig) *Capture {
	c := &Capture{
		sess:      sess,
		cfg:       cfg.withDefaults(),
		state:     Disconnected,
		extractor: feature.NewExtractor(cfg.Extractor),
		done:      make(chan struct{}),
	}
	sess.OnMessage(c.handleMessage)
	if pn, ok := sess.(transport.PeerNotifier); ok {
		pn.OnDisconnect(c.handlePeerGone)
	}
	return c
}

// Start launches the presence announcer. The agent announces periodically
// until a surface shows up; announces into the void are harmless, so the
// loop needs no knowledge of whether anyone is listening yet.
func (c *Capture) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cfg.AnnounceInterval)
		defer ticker.Stop()
		c.announce()
		for {
			select {
			case <-ticker.C:
				c.announce()
			case <-c.done:
				return
			}
		}
	}()
}

func (c *Capture) announce() {
	c.mu.Lock()
	st := c.state
	if st == Disconnected {
		c.state = AwaitingPeer
	}
	c.mu.Unlock()
	if st >= Connected {
		return
	}
	c.sess.Send(protocol.Connected(c.cfg.Version))
}

// State returns the current lifecycle position.
func (c *Capture) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LatestFeatures returns the most recent feature set, if any frame has been
// produced since capture started. Safe for concurrent use; this is the
// provider hook for the UDP side channel.
func (c *Capture) LatestFeatures() (feature.Set, bool) {
	c.featureMu.RLock()
	defer c.featureMu.RUnlock()
	return c.latest, c.haveLatest
}

func (c *Capture) handleMessage(m protocol.Message) {
	switch m.Kind {
	case protocol.KindReady:
		c.handleReady()
	case protocol.KindStartCapture:
		c.startCapture()
	case protocol.KindStopCapture:
		c.stopCapture(true)
	case protocol.KindRequestAudioData:
		c.sendLatestFrame()
	default:
		// Unknown and peer-bound kinds: tolerate, never fail the session.
		applog.Debugf("Session: Ignoring message kind %q", m.Kind)
	}
}

// handleReady acks the surface and replays the current capture status so a
// surface that loads late (or reloads) resynchronizes immediately.
func (c *Capture) handleReady() {
	c.mu.Lock()
	if c.state < Connected {
		c.state = Connected
	}
	capturing := c.state == Capturing
	demo := c.demo
	c.mu.Unlock()

	applog.Infof("Session: Render surface announced ready")
	c.sess.Send(protocol.ReadyAck())
	c.sess.Send(protocol.Connected(c.cfg.Version))
	c.sess.Send(protocol.CaptureStatus(capturing, demo))
}

func (c *Capture) startCapture() {
	c.mu.Lock()
	if c.state == Capturing {
		// Already running: the status message is authoritative, so just
		// restate it instead of reopening the source.
		demo := c.demo
		c.mu.Unlock()
		c.sess.Send(protocol.CaptureStatus(true, demo))
		return
	}
	if c.src != nil {
		// Exclusive ownership: never hold two source handles.
		c.src.Close()
		c.src = nil
	}

	src, err := c.cfg.OpenSource()
	if err != nil {
		c.state = Connected
		c.mu.Unlock()
		ce := source.AsCaptureError(err)
		applog.Errorf("Session: Capture start failed (%s): %v", ce.Category, ce)
		c.sess.Send(protocol.CaptureError(string(ce.Category), ce.Error()))
		c.sess.Send(protocol.CaptureStatus(false, false))
		return
	}

	c.src = src
	c.demo = src.Synthetic()
	c.state = Capturing
	c.extractor.Reset()
	c.frameDone = make(chan struct{})
	frameDone := c.frameDone
	demo := c.demo
	c.mu.Unlock()

	c.featureMu.Lock()
	c.haveLatest = false
	c.latestFrame = protocol.Message{}
	c.featureMu.Unlock()

	applog.Infof("Session: Capture started (demo=%v, interval=%s)", demo, c.cfg.FrameInterval)
	c.sess.Send(protocol.ProcessingReady())
	c.sess.Send(protocol.CaptureStatus(true, demo))

	c.wg.Add(1)
	go c.frameLoop(frameDone)
}

// stopCapture ends the current capture. Idempotent: stopping when not
// capturing is a silent no-op. When report is false (peer loss) no status
// message is sent.
func (c *Capture) stopCapture(report bool) {
	c.mu.Lock()
	if c.state != Capturing {
		c.mu.Unlock()
		return
	}
	close(c.frameDone)
	c.frameDone = nil
	src := c.src
	c.src = nil
	c.demo = false
	c.state = Connected
	c.mu.Unlock()

	if src != nil {
		if err := src.Close(); err != nil {
			applog.Warnf("Session: Error closing sample source: %v", err)
		}
	}
	applog.Infof("Session: Capture stopped")
	if report {
		c.sess.Send(protocol.CaptureStatus(false, false))
	}
}

func (c *Capture) frameLoop(done chan struct{}) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.FrameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.tickFrame()
		case <-done:
			return
		}
	}
}

// tickFrame reads one frame, extracts features, and pushes the audio-data
// message. A fatal CaptureError (device revoked, stream gone) ends capture
// and drops back to Connected; any other read failure is reported per-frame
// and capture continues.
func (c *Capture) tickFrame() {
	c.mu.Lock()
	if c.state != Capturing || c.src == nil {
		c.mu.Unlock()
		return
	}
	if err := c.src.ReadFrame(&c.frame); err != nil {
		c.mu.Unlock()
		var ce *source.CaptureError
		if errors.As(err, &ce) {
			applog.Errorf("Session: Capture lost (%s): %v", ce.Category, ce)
			c.sess.Send(protocol.CaptureError(string(ce.Category), ce.Error()))
			c.stopCapture(true)
			return
		}
		applog.Warnf("Session: Frame read failed: %v", err)
		c.sess.Send(protocol.AudioDataError(err))
		return
	}
	set := c.extractor.Extract(c.frame.FrequencyBins, c.frame.TimeSamples)
	msg := protocol.AudioData(c.frame.FrequencyBins, c.frame.TimeSamples, c.frame.TimestampMillis, &protocol.Features{
		Bass:   set.Bass,
		Mid:    set.Mid,
		Treble: set.Treble,
		Volume: set.Volume,
		Beat:   set.Beat,
	})
	c.mu.Unlock()

	c.featureMu.Lock()
	c.latest = set
	c.haveLatest = true
	c.latestFrame = msg
	c.featureMu.Unlock()

	c.sess.Send(msg)
}

// sendLatestFrame answers a render-side poll with the most recent pushed
// frame. The poll path never re-reads the source: that would advance the
// beat-detector state off the push cadence.
func (c *Capture) sendLatestFrame() {
	c.featureMu.RLock()
	msg := c.latestFrame
	have := c.haveLatest
	c.featureMu.RUnlock()

	if !have || msg.Kind != protocol.KindAudioData {
		c.sess.Send(protocol.Message{Kind: protocol.KindAudioDataError, Error: "no audio frame available"})
		return
	}
	c.sess.Send(msg)
}

// handlePeerGone tears down capture without a peer to report to and rewinds
// to Disconnected so the announcer resumes the handshake.
func (c *Capture) handlePeerGone() {
	applog.Warnf("Session: Render surface disconnected")
	c.stopCapture(false)
	c.mu.Lock()
	c.state = Disconnected
	c.mu.Unlock()
}

// Close stops capture and the announcer. Idempotent.
func (c *Capture) Close() error {
	c.closeOnce.Do(func() {
		c.stopCapture(false)
		close(c.done)
	})
	c.wg.Wait()
	return nil
}
