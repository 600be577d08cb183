// SPDX-License-Identifier: MIT
package feature

import (
	"math/rand"
	"testing"
)

func uniformFrame(n int, value byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = value
	}
	return b
}

// Band index ranges must partition [0,N) with no gap and no overlap for the
// fixed 0.1/0.5 split.
func TestBandSplitPartition(t *testing.T) {
	for _, n := range []int{10, 16, 100, 128, 1000, 1024, 4096} {
		bassEnd := int(DefaultBassSplit * float64(n))
		midEnd := int(DefaultMidSplit * float64(n))

		if bassEnd <= 0 || bassEnd >= midEnd || midEnd >= n {
			t.Errorf("N=%d: split points %d/%d do not form three non-empty ranges", n, bassEnd, midEnd)
		}
		covered := bassEnd + (midEnd - bassEnd) + (n - midEnd)
		if covered != n {
			t.Errorf("N=%d: bands cover %d bins, want %d", n, covered, n)
		}
	}
}

func TestOutputBounds(t *testing.T) {
	e := NewExtractor(Config{})
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 200; trial++ {
		freq := make([]byte, 1024)
		times := make([]byte, 1024)
		for i := range freq {
			freq[i] = byte(rng.Intn(256))
			times[i] = byte(rng.Intn(256))
		}

		set := e.Extract(freq, times)
		for _, v := range []struct {
			name string
			val  float64
		}{
			{"bass", set.Bass}, {"mid", set.Mid}, {"treble", set.Treble}, {"volume", set.Volume},
		} {
			if v.val < 0 || v.val > 1 {
				t.Fatalf("trial %d: %s = %f out of [0,1]", trial, v.name, v.val)
			}
		}
	}
}

// A sustained constant bass plateau may fire the beat flag on at most its
// first tick.
func TestBeatDoesNotRetriggerOnPlateau(t *testing.T) {
	e := NewExtractor(Config{})
	freq := uniformFrame(1024, 200)
	times := uniformFrame(1024, 128)

	first := e.Extract(freq, times)
	if !first.Beat {
		t.Fatal("expected a beat on the first tick of the plateau")
	}
	for tick := 1; tick < 20; tick++ {
		if set := e.Extract(freq, times); set.Beat {
			t.Fatalf("beat re-triggered on plateau tick %d", tick)
		}
	}
}

func TestBeatRecoversAfterQuiet(t *testing.T) {
	e := NewExtractor(Config{})
	loud := uniformFrame(1024, 220)
	quiet := uniformFrame(1024, 4)
	silent := uniformFrame(1024, 0)

	if !e.Extract(loud, nil).Beat {
		t.Fatal("expected initial beat")
	}
	// Let the cutoff decay through a long quiet stretch.
	for i := 0; i < 400; i++ {
		e.Extract(silent, nil)
	}
	for i := 0; i < 8; i++ {
		e.Extract(quiet, nil)
	}
	if !e.Extract(loud, nil).Beat {
		t.Error("expected a beat after the cutoff decayed through silence")
	}
}

func TestEmptyInputSafety(t *testing.T) {
	e := NewExtractor(Config{})

	tests := []struct {
		name  string
		freq  []byte
		times []byte
	}{
		{"both nil", nil, nil},
		{"both empty", []byte{}, []byte{}},
		{"freq only empty", []byte{}, uniformFrame(64, 128)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := e.Extract(tt.freq, tt.times)
			if set.Bass != 0 || set.Mid != 0 || set.Treble != 0 {
				t.Errorf("bands = %f/%f/%f, want all zero", set.Bass, set.Mid, set.Treble)
			}
			if set.Beat {
				t.Error("beat = true on empty frequency data")
			}
		})
	}

	// Silence centered at 128 is zero volume.
	set := e.Extract(nil, uniformFrame(64, 128))
	if set.Volume != 0 {
		t.Errorf("volume of centered silence = %f, want 0", set.Volume)
	}
}

// All bins at max drives every band to exactly 1.0.
func TestFullScaleFrame(t *testing.T) {
	e := NewExtractor(Config{})
	set := e.Extract(uniformFrame(100, 255), nil)
	if set.Bass != 1.0 || set.Mid != 1.0 || set.Treble != 1.0 {
		t.Errorf("bands = %f/%f/%f, want 1/1/1", set.Bass, set.Mid, set.Treble)
	}
}

// A full-swing alternating square wave has RMS ~1.0; with the 4x gain the
// volume must clamp at 1.0.
func TestVolumeClampsOnLoudSignal(t *testing.T) {
	e := NewExtractor(Config{})
	times := make([]byte, 128)
	for i := range times {
		if i%2 == 0 {
			times[i] = 0
		} else {
			times[i] = 255
		}
	}
	set := e.Extract(nil, times)
	if set.Volume != 1.0 {
		t.Errorf("volume = %f, want clamped 1.0", set.Volume)
	}
}

func TestResetClearsBeatState(t *testing.T) {
	e := NewExtractor(Config{})
	loud := uniformFrame(1024, 200)

	if !e.Extract(loud, nil).Beat {
		t.Fatal("expected initial beat")
	}
	e.Reset()
	if !e.Extract(loud, nil).Beat {
		t.Error("expected a beat immediately after Reset, state leaked through")
	}
}

func TestExtractHotPath(t *testing.T) {
	e := NewExtractor(Config{})
	freq := uniformFrame(1024, 90)
	times := uniformFrame(1024, 140)

	// Warm-up fills the history to capacity.
	for i := 0; i < DefaultHistorySize+1; i++ {
		e.Extract(freq, times)
	}
	allocs := testing.AllocsPerRun(100, func() {
		e.Extract(freq, times)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in Extract hot path, got %.1f", allocs)
	}
}

func BenchmarkExtract(b *testing.B) {
	e := NewExtractor(Config{})
	rng := rand.New(rand.NewSource(1))
	freq := make([]byte, 1024)
	times := make([]byte, 1024)
	for i := range freq {
		freq[i] = byte(rng.Intn(256))
		times[i] = byte(rng.Intn(256))
	}

	b.ReportAllocs()
	for n := 0; n < b.N; n++ {
		e.Extract(freq, times)
	}
}
