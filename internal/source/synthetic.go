// SPDX-License-Identifier: MIT
package source

import (
	"math"
	"time"
)

// Synthetic generator shape. The spectrum is bass-weighted with a slow
// wobble and a periodic beat pulse, so the feature extractor and renderers
// see plausible motion without a real signal.
const (
	syntheticBeatHz   = 2.0  // beat pulses per second
	syntheticWobbleHz = 0.35 // slow spectral drift
)

// SyntheticSource generates deterministic pseudo-periodic frames from the
// wall clock. It is the demo-mode substitute used when no real capture
// source is bound.
type SyntheticSource struct {
	bins  int
	start time.Time
	now   func() time.Time
}

var _ Source = (*SyntheticSource)(nil)

// NewSynthetic creates a generator producing frames with the given bin count.
func NewSynthetic(bins int) *SyntheticSource {
	return &SyntheticSource{
		bins:  bins,
		start: time.Now(),
		now:   time.Now,
	}
}

// ReadFrame fills f with the frame for the current instant. Frames are a
// pure function of elapsed wall-clock time, so repeated reads at the same
// instant are identical.
func (s *SyntheticSource) ReadFrame(f *Frame) error {
	now := s.now()
	t := now.Sub(s.start).Seconds()

	f.FrequencyBins = ensureLen(f.FrequencyBins, s.bins)
	f.TimeSamples = ensureLen(f.TimeSamples, s.bins)

	pulse := beatPulse(t)
	for i := 0; i < s.bins; i++ {
		fi := float64(i) / float64(s.bins)
		bassWeight := math.Exp(-fi * 6)
		wobble := 0.5 + 0.5*math.Sin(2*math.Pi*syntheticWobbleHz*t+fi*9)
		v := 255 * bassWeight * (0.30 + 0.40*wobble + 0.55*pulse*math.Exp(-fi*14))
		if v > 255 {
			v = 255
		}
		f.FrequencyBins[i] = byte(v)
	}

	amplitude := 0.25 + 0.55*pulse
	for i := 0; i < s.bins; i++ {
		fi := float64(i) / float64(s.bins)
		sample := amplitude * math.Sin(2*math.Pi*(3*fi+1.3*t))
		f.TimeSamples[i] = byte(128 + 127*sample)
	}

	f.TimestampMillis = now.UnixMilli()
	return nil
}

func (s *SyntheticSource) Synthetic() bool { return true }

func (s *SyntheticSource) Close() error { return nil }

// beatPulse is a sharpened raised sine in [0,1] peaking syntheticBeatHz times
// per second.
func beatPulse(t float64) float64 {
	raised := (math.Sin(2*math.Pi*syntheticBeatHz*t) + 1) / 2
	return math.Pow(raised, 6)
}
