/*
Package bitint provides power-of-2 integer helpers for FFT and buffer
sizing. All operations are O(1), allocation-free, and safe to call from
real-time code paths.

Usage:

	// Round a requested buffer length up to a usable size.
	frames := bitint.NextPowerOfTwo(1000) // Returns 1024

	// Verify an FFT transform size is valid.
	ok := bitint.IsPowerOfTwo(fftSize)
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the next power of 2 >= size.
//
// The (size-1) subtraction keeps exact powers of 2 from being doubled:
// for input 8, bits.Len64(7) = 3 and 1<<3 = 8, whereas without the
// subtraction bits.Len64(8) = 4 would yield 16.
//
// Examples:
//
//	Input  Output
//	4      4      Already power of 2 (preserved)
//	5      8      Next power after 5
//	0      1      Handle zero case
//	-1     1      Handle negative case
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

// IsPowerOfTwo reports whether n is a positive power of 2.
// Powers of 2 have exactly one bit set, so (n & (n-1)) == 0 holds
// only for them:
//
//	Input  Output  Binary
//	8      true    1000 & 0111 = 0000
//	7      false   0111 & 0110 = 0110
//	0      false   Not positive
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
