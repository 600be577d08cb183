// SPDX-License-Identifier: MIT
/*
Package source provides sample sources for the capture agent. A Source yields
fixed-size frequency-domain and time-domain byte frames on demand:

  - CaptureSource wraps a live PortAudio input stream and derives byte-scaled
    FFT bins from the most recent sample window.
  - SyntheticSource generates deterministic bass-weighted pseudo-periodic
    frames from the wall clock (demo mode), so downstream consumers always
    have data to render.

ReadFrame never blocks waiting for new samples: it returns the latest
available data, stale rather than stalling.
*/
package source

import (
	"errors"
	"fmt"
)

// Frame is one sampled instant of audio. Both sequences have the same fixed
// length for the life of a session; frequency values are byte-scaled bin
// magnitudes and time samples are centered at 128 for zero signal.
type Frame struct {
	FrequencyBins   []byte
	TimeSamples     []byte
	TimestampMillis int64
}

// Source is the sample source contract shared by live capture and the
// synthetic generator.
type Source interface {
	// ReadFrame fills f with the most recently available data, reusing f's
	// buffers when they are already the right size. It is non-blocking with
	// respect to the capture clock.
	ReadFrame(f *Frame) error

	// Synthetic reports whether frames are generated rather than captured,
	// so the session coordinator can flag demo mode to the peer.
	Synthetic() bool

	// Close releases all underlying stream resources. Idempotent; no hidden
	// background capture continues after Close.
	Close() error
}

// Category tags a CaptureError for the wire protocol.
type Category string

const (
	CategoryPermission  Category = "permission"
	CategoryNoTarget    Category = "no-target"
	CategoryUnsupported Category = "unsupported"
	CategoryUnknown     Category = "unknown"
)

// CaptureError is a capture-level fatal condition. It ends the current
// capture attempt and is surfaced to the user; it is never auto-retried.
type CaptureError struct {
	Category Category
	Reason   string
	Err      error
}

func (e *CaptureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("capture: %s: %v", e.Reason, e.Err)
	}
	return "capture: " + e.Reason
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// AsCaptureError extracts a CaptureError from an error chain. Unclassified
// errors are wrapped with the unknown category so every capture failure has a
// category tag on the wire.
func AsCaptureError(err error) *CaptureError {
	var ce *CaptureError
	if errors.As(err, &ce) {
		return ce
	}
	return &CaptureError{Category: CategoryUnknown, Reason: "capture failed", Err: err}
}

func captureErr(cat Category, reason string, err error) *CaptureError {
	return &CaptureError{Category: cat, Reason: reason, Err: err}
}

// ensureLen returns b resized to n, reusing the backing array when possible.
func ensureLen(b []byte, n int) []byte {
	if cap(b) >= n {
		return b[:n]
	}
	return make([]byte, n)
}
