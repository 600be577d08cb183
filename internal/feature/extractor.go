// SPDX-License-Identifier: MIT
//
// Package feature converts raw byte-valued audio frames into normalized
// perceptual features (bass, mid, treble, volume) and an adaptive-threshold
// beat flag. The extractor carries running state (energy history, beat
// cutoff) from frame to frame; the state is session-scoped and must be reset
// whenever capture restarts.
package feature

import "math"

// Default tunables. The band split is proportional rather than Hz-accurate:
// visual reactivity does not need sample-rate-aware bin mapping.
const (
	DefaultBassSplit     = 0.1  // bass = bins [0, 0.1N)
	DefaultMidSplit      = 0.5  // mid = bins [0.1N, 0.5N), treble = the rest
	DefaultVolumeGain    = 4.0  // empirical gain so quiet program audio still drives visuals
	DefaultBeatDecay     = 0.98 // per-tick decay of the beat cutoff envelope
	DefaultBeatThreshold = 0.15 // cutoff floor as a fraction of the recent average energy
	DefaultHistorySize   = 8    // energy history capacity (ticks)
)

// Set is the derived perceptual summary of one frame. All scalars are in [0,1].
type Set struct {
	Bass   float64
	Mid    float64
	Treble float64
	Volume float64
	Beat   bool
}

// Config holds the extractor tunables. Zero values fall back to the defaults.
type Config struct {
	BassSplit     float64
	MidSplit      float64
	VolumeGain    float64
	BeatDecay     float64
	BeatThreshold float64
	HistorySize   int
}

func (c Config) withDefaults() Config {
	if c.BassSplit <= 0 {
		c.BassSplit = DefaultBassSplit
	}
	if c.MidSplit <= 0 {
		c.MidSplit = DefaultMidSplit
	}
	if c.VolumeGain <= 0 {
		c.VolumeGain = DefaultVolumeGain
	}
	if c.BeatDecay <= 0 {
		c.BeatDecay = DefaultBeatDecay
	}
	if c.BeatThreshold <= 0 {
		c.BeatThreshold = DefaultBeatThreshold
	}
	if c.HistorySize <= 0 {
		c.HistorySize = DefaultHistorySize
	}
	return c
}

// Extractor computes feature sets and owns the beat-detection running state.
// It is not safe for concurrent use; each session side keeps its own.
type Extractor struct {
	cfg Config

	// Beat state: a bounded history of raw bass energy and a decaying cutoff
	// envelope. No fixed global threshold survives varying loudness, so the
	// cutoff tracks a decaying envelope above the recent average.
	history    []float64
	cutoff     float64
	lastEnergy float64
}

// NewExtractor creates an extractor with the given tunables.
func NewExtractor(cfg Config) *Extractor {
	cfg = cfg.withDefaults()
	return &Extractor{
		cfg:     cfg,
		history: make([]float64, 0, cfg.HistorySize),
	}
}

// Reset clears the session-scoped running state. Call on capture restart.
func (e *Extractor) Reset() {
	e.history = e.history[:0]
	e.cutoff = 0
	e.lastEnergy = 0
}

// Extract computes the feature set for one frame and advances the beat state.
// It never fails: empty or missing arrays yield the zero Set, so rendering
// keeps running on bad data.
func (e *Extractor) Extract(freqBins, timeSamples []byte) Set {
	var out Set

	if n := len(freqBins); n > 0 {
		bassEnd := int(e.cfg.BassSplit * float64(n))
		midEnd := int(e.cfg.MidSplit * float64(n))

		bassRaw := meanRange(freqBins, 0, bassEnd)
		out.Bass = clamp01(bassRaw / 255.0)
		out.Mid = clamp01(meanRange(freqBins, bassEnd, midEnd) / 255.0)
		out.Treble = clamp01(meanRange(freqBins, midEnd, n) / 255.0)
		out.Beat = e.advanceBeat(bassRaw)
	}

	if len(timeSamples) > 0 {
		var sumSquare float64
		for _, s := range timeSamples {
			v := (float64(s) - 128.0) / 128.0
			sumSquare += v * v
		}
		rms := math.Sqrt(sumSquare / float64(len(timeSamples)))
		out.Volume = clamp01(rms * e.cfg.VolumeGain)
	}

	return out
}

// advanceBeat runs one tick of the adaptive-threshold onset detector on the
// raw (pre-normalization) bass energy.
func (e *Extractor) advanceBeat(energy float64) bool {
	if len(e.history) == cap(e.history) {
		copy(e.history, e.history[1:])
		e.history = e.history[:len(e.history)-1]
	}
	e.history = append(e.history, energy)

	var sum float64
	for _, v := range e.history {
		sum += v
	}
	avg := sum / float64(len(e.history))

	e.cutoff *= e.cfg.BeatDecay
	if floor := avg * e.cfg.BeatThreshold; e.cutoff < floor {
		e.cutoff = floor
	}

	// An onset needs rising energy, not just energy above the cutoff: a
	// sustained plateau outruns the 0.98/tick decay and would re-trigger
	// every tick on the cutoff test alone.
	beat := energy > e.cutoff && energy > e.lastEnergy
	e.lastEnergy = energy
	if beat {
		// Raise the cutoff to the triggering energy so the same transient
		// fires only once.
		e.cutoff = energy
	}
	return beat
}

func meanRange(b []byte, lo, hi int) float64 {
	if lo < 0 {
		lo = 0
	}
	if hi > len(b) {
		hi = len(b)
	}
	if lo >= hi {
		return 0
	}
	var sum float64
	for _, v := range b[lo:hi] {
		sum += float64(v)
	}
	return sum / float64(hi-lo)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
