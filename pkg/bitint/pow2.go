// Package bitint provides power-of-two helpers for FFT and buffer sizing.
// All operations are allocation-free and constant time, safe to call from the
// audio read path.
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size. Sizes <= 0
// return 1.
//
// The size-1 before bits.Len is what keeps exact powers of two unchanged:
// without it, 8 would round up to 16.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}

	// 64-bit platforms (where int is 64-bit)
	if ^uint(0)>>63 == 0 {
		return int(1 << (bits.Len64(uint64(size - 1))))
	}

	// 32-bit platforms
	return int(1 << (bits.Len32(uint32(size - 1))))
}

// IsPowerOfTwo reports whether n is a positive power of two. Powers of two
// have exactly one bit set, so n&(n-1) is zero only for them.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
