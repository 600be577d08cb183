// SPDX-License-Identifier: MIT
package utils

import (
	"math"
	"testing"
)

const (
	testSize       = 1024
	testSampleRate = 44100.0
	testFrequency  = 440.0 // A4 note
)

func TestGenerateSineWave(t *testing.T) {
	wave := GenerateSineWave(testSize, testSampleRate, testFrequency)

	if len(wave) != testSize {
		t.Fatalf("length = %d, want %d", len(wave), testSize)
	}
	if wave[0] != 0 {
		t.Errorf("sample 0 = %d, want 0 (sine starts at zero)", wave[0])
	}

	// Peak amplitude should sit near 90% of full scale.
	var peak int32
	for _, s := range wave {
		if s > peak {
			peak = s
		}
	}
	peakScale := float64(math.MaxInt32) * 0.9
	wantPeak := int32(peakScale)
	if peak < wantPeak-wantPeak/100 {
		t.Errorf("peak = %d, want ~%d", peak, wantPeak)
	}

	// A 440Hz tone at 44100Hz crosses zero roughly 2*440*(1024/44100) ≈ 20
	// times over the buffer.
	crossings := 0
	for i := 1; i < len(wave); i++ {
		if (wave[i-1] < 0) != (wave[i] < 0) {
			crossings++
		}
	}
	if crossings < 18 || crossings > 22 {
		t.Errorf("zero crossings = %d, want ~20", crossings)
	}
}

func TestGenerateComplexWave(t *testing.T) {
	wave := GenerateComplexWave(testSize, testSampleRate)

	if len(wave) != testSize {
		t.Fatalf("length = %d, want %d", len(wave), testSize)
	}

	// The harmonic sum never exceeds full scale and is not silent.
	var peak, trough int32
	for _, s := range wave {
		if s > peak {
			peak = s
		}
		if s < trough {
			trough = s
		}
	}
	if peak <= 0 || trough >= 0 {
		t.Fatalf("complex wave does not swing both ways (peak %d, trough %d)", peak, trough)
	}

	// Deterministic: two calls produce identical buffers.
	again := GenerateComplexWave(testSize, testSampleRate)
	for i := range wave {
		if wave[i] != again[i] {
			t.Fatalf("sample %d differs between calls: %d vs %d", i, wave[i], again[i])
		}
	}
}
