// SPDX-License-Identifier: MIT
package source

import (
	"math"
	"math/cmplx"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	applog "vizbridge/internal/log"
	"vizbridge/pkg/bitint"
)

// Byte scaling of bin magnitudes maps the decibel range [minDecibels,
// maxDecibels] onto [0,255], with temporal smoothing of the linear
// magnitudes between reads.
const (
	minDecibels = -100.0
	maxDecibels = -30.0
)

// CaptureConfig holds the settings for a live capture source.
type CaptureConfig struct {
	DeviceID   int     // PortAudio device index, -1 for the system default
	SampleRate float64 // Hz
	FFTSize    int     // analysis window length, power of two; bin count = FFTSize/2
	Channels   int     // input channels; only channel 0 feeds analysis
	LowLatency bool
	Smoothing  float64 // temporal smoothing factor in [0,1)
}

// CaptureSource is a Source backed by a PortAudio input stream. The stream
// callback keeps the most recent FFTSize mono samples in a sliding window;
// ReadFrame snapshots that window, runs a Hann-windowed FFT, and scales the
// result into byte frames.
type CaptureSource struct {
	cfg  CaptureConfig
	bins int

	stream *portaudio.Stream

	mu     sync.Mutex // guards window against the stream callback
	window []int32    // latest FFTSize mono samples, oldest first

	// Read-path workspace, pre-allocated; only the ReadFrame caller touches it.
	fftCalc  *fourier.FFT
	hann     []float64
	input    []float64
	coeffs   []complex128
	smoothed []float64
	snapshot []int32
	mono     []int32 // de-interleave scratch for multi-channel input

	rec recorder

	closeMu sync.Mutex
	closed  bool
}

var _ Source = (*CaptureSource)(nil)

// OpenCapture opens the input device and starts the stream. Failures are
// returned as *CaptureError with the category the coordinator reports to the
// peer. Acquiring the device may trigger an OS permission prompt once.
func OpenCapture(cfg CaptureConfig) (*CaptureSource, error) {
	if !bitint.IsPowerOfTwo(cfg.FFTSize) {
		return nil, captureErr(CategoryUnsupported, "fft size must be a power of two", nil)
	}
	if cfg.SampleRate <= 0 {
		return nil, captureErr(CategoryUnsupported, "sample rate must be positive", nil)
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}

	device, err := InputDevice(cfg.DeviceID)
	if err != nil {
		return nil, captureErr(CategoryNoTarget, "no capturable input device", err)
	}

	bins := cfg.FFTSize / 2
	s := &CaptureSource{
		cfg:      cfg,
		bins:     bins,
		window:   make([]int32, cfg.FFTSize),
		fftCalc:  fourier.NewFFT(cfg.FFTSize),
		hann:     hannWindow(cfg.FFTSize),
		input:    make([]float64, cfg.FFTSize),
		coeffs:   make([]complex128, cfg.FFTSize/2+1),
		smoothed: make([]float64, bins),
		snapshot: make([]int32, cfg.FFTSize),
		mono:     make([]int32, cfg.FFTSize),
	}

	latency := device.DefaultHighInputLatency
	if cfg.LowLatency {
		latency = device.DefaultLowInputLatency
	}
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: cfg.Channels,
			Device:   device,
			Latency:  latency,
		},
		FramesPerBuffer: cfg.FFTSize / 4,
		SampleRate:      cfg.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, s.streamCallback)
	if err != nil {
		return nil, classifyStreamError(err)
	}
	s.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, classifyStreamError(err)
	}

	applog.Infof("Source: Capture opened (device: %s, rate: %.0f Hz, window: %d)",
		device.Name, cfg.SampleRate, cfg.FFTSize)
	return s, nil
}

// streamCallback runs on the PortAudio thread. It slides the sample window
// and feeds the recording tap. No allocations.
func (s *CaptureSource) streamCallback(in []int32) {
	samples := in
	if s.cfg.Channels > 1 {
		n := len(in) / s.cfg.Channels
		if n > len(s.mono) {
			n = len(s.mono)
		}
		for i := 0; i < n; i++ {
			s.mono[i] = in[i*s.cfg.Channels]
		}
		samples = s.mono[:n]
	}

	s.mu.Lock()
	if len(samples) >= len(s.window) {
		copy(s.window, samples[len(samples)-len(s.window):])
	} else {
		keep := len(s.window) - len(samples)
		copy(s.window, s.window[len(samples):])
		copy(s.window[keep:], samples)
	}
	s.mu.Unlock()

	s.rec.write(in)
}

// ReadFrame snapshots the current window and derives one frame. It returns
// immediately with the latest data; a quiet or stalled device yields stale
// samples, never a blocked caller.
func (s *CaptureSource) ReadFrame(f *Frame) error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return captureErr(CategoryUnknown, "source is closed", nil)
	}
	s.closeMu.Unlock()

	s.mu.Lock()
	copy(s.snapshot, s.window)
	s.mu.Unlock()

	for i := range s.input {
		s.input[i] = float64(s.snapshot[i]) / float64(math.MaxInt32) * s.hann[i]
	}
	s.fftCalc.Coefficients(s.coeffs, s.input)

	f.FrequencyBins = ensureLen(f.FrequencyBins, s.bins)
	norm := 2.0 / float64(s.cfg.FFTSize)
	for i := 0; i < s.bins; i++ {
		mag := cmplx.Abs(s.coeffs[i]) * norm
		s.smoothed[i] = s.cfg.Smoothing*s.smoothed[i] + (1-s.cfg.Smoothing)*mag
		f.FrequencyBins[i] = magnitudeByte(s.smoothed[i])
	}

	f.TimeSamples = ensureLen(f.TimeSamples, s.bins)
	tail := s.snapshot[len(s.snapshot)-s.bins:]
	for i, v := range tail {
		f.TimeSamples[i] = timeByte(v)
	}

	f.TimestampMillis = time.Now().UnixMilli()
	return nil
}

func (s *CaptureSource) Synthetic() bool { return false }

// Close stops the stream and the recording tap. Idempotent.
func (s *CaptureSource) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.rec.stop(); err != nil {
		applog.Errorf("Source: Error closing recording: %v", err)
	}
	if s.stream != nil {
		if err := s.stream.Stop(); err != nil {
			s.stream.Close()
			return captureErr(CategoryUnknown, "failed to stop input stream", err)
		}
		if err := s.stream.Close(); err != nil {
			return captureErr(CategoryUnknown, "failed to close input stream", err)
		}
		s.stream = nil
	}
	applog.Infof("Source: Capture closed")
	return nil
}

// StartRecording begins writing the raw captured stream to a WAV file.
func (s *CaptureSource) StartRecording(filename string) error {
	return s.rec.start(filename, s.cfg)
}

// StopRecording finalizes and closes the WAV file, if recording.
func (s *CaptureSource) StopRecording() error {
	return s.rec.stop()
}

// magnitudeByte maps a linear magnitude in (0,1] onto [0,255] across the
// [minDecibels, maxDecibels] range.
func magnitudeByte(mag float64) byte {
	if mag <= 0 {
		return 0
	}
	db := 20 * math.Log10(mag)
	norm := (db - minDecibels) / (maxDecibels - minDecibels)
	switch {
	case norm <= 0:
		return 0
	case norm >= 1:
		return 255
	default:
		return byte(norm * 255)
	}
}

// timeByte maps an int32 sample onto an unsigned byte centered at 128.
func timeByte(s int32) byte {
	return byte(128 + (s >> 24))
}

// hannWindow precomputes Hann coefficients by windowing a ones slice; the
// window functions multiply in place.
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0
	}
	return window.Hann(w)
}

// classifyStreamError assigns a wire category to a PortAudio failure. The
// bindings do not expose structured error codes for host denial, so this
// leans on the common cases: a missing device reads as no-target, everything
// else as unknown.
func classifyStreamError(err error) *CaptureError {
	if err == nil {
		return nil
	}
	switch err {
	case portaudio.DeviceUnavailable, portaudio.InvalidDevice:
		return captureErr(CategoryNoTarget, "input device unavailable", err)
	case portaudio.NotInitialized:
		return captureErr(CategoryUnsupported, "audio subsystem not initialized", err)
	case portaudio.InvalidSampleRate, portaudio.SampleFormatNotSupported, portaudio.InvalidChannelCount:
		return captureErr(CategoryUnsupported, "stream parameters not supported", err)
	default:
		return captureErr(CategoryUnknown, "failed to open input stream", err)
	}
}
