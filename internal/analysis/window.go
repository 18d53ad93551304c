// SPDX-License-Identifier: MIT
/*
Package analysis implements the per-frame DSP pipeline: level metering
(RMS and peak) and windowed FFT magnitude spectra with optional bucket
downsampling and exponential smoothing.

All per-frame entry points (LevelMeter.Update, SpectralAnalyzer.Update)
operate on pre-allocated workspaces and perform no heap allocation, so
they are safe to drive from the engine's consumer loop at frame rate.
*/
package analysis

import (
	"fmt"
	"math"
	"strings"
	"sync"
)

// WindowFunc selects the tapering curve applied before the FFT.
type WindowFunc int

// Supported window functions.
const (
	Hann WindowFunc = iota
	Hamming
	Blackman
	Rectangular
)

// String returns the canonical lower-case name of the window function.
func (w WindowFunc) String() string {
	switch w {
	case Hann:
		return "hann"
	case Hamming:
		return "hamming"
	case Blackman:
		return "blackman"
	case Rectangular:
		return "rectangular"
	default:
		return "unknown"
	}
}

// ParseWindowFunc converts a name (case-insensitive) to a WindowFunc.
// Returns Hann and an error if the name is unknown.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(name) {
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "blackman":
		return Blackman, nil
	case "rect", "rectangular", "none", "":
		return Rectangular, nil
	default:
		return Hann, fmt.Errorf("unknown window function name: '%s'", name)
	}
}

type windowKey struct {
	fn   WindowFunc
	size int
}

var (
	windowMu    sync.Mutex
	windowCache = make(map[windowKey][]float64)
)

// WindowCoefficients returns the coefficient table for the given window
// function and size. Tables are computed once per (function, size) pair
// and cached for the process lifetime; callers must treat the returned
// slice as read-only.
//
// Coefficient formulas (symmetric, denominator N-1):
//
//	Hann:        0.50 - 0.50*cos(2*pi*n/(N-1))
//	Hamming:     0.54 - 0.46*cos(2*pi*n/(N-1))
//	Blackman:    0.42 - 0.50*cos(2*pi*n/(N-1)) + 0.08*cos(4*pi*n/(N-1))
//	Rectangular: 1.0
func WindowCoefficients(fn WindowFunc, size int) []float64 {
	windowMu.Lock()
	defer windowMu.Unlock()

	key := windowKey{fn: fn, size: size}
	if w, ok := windowCache[key]; ok {
		return w
	}

	w := computeWindow(fn, size)
	windowCache[key] = w
	return w
}

func computeWindow(fn WindowFunc, size int) []float64 {
	w := make([]float64, size)
	if size == 1 {
		w[0] = 1.0
		return w
	}

	k := 2 * math.Pi / float64(size-1)
	switch fn {
	case Hamming:
		for i := range w {
			w[i] = 0.54 - 0.46*math.Cos(k*float64(i))
		}
	case Blackman:
		for i := range w {
			w[i] = 0.42 - 0.5*math.Cos(k*float64(i)) + 0.08*math.Cos(2*k*float64(i))
		}
	case Rectangular:
		for i := range w {
			w[i] = 1.0
		}
	default: // Hann
		for i := range w {
			w[i] = 0.5 - 0.5*math.Cos(k*float64(i))
		}
	}
	return w
}

// clamp01 bounds v to the normalized [0, 1] output range. Frames are
// assumed pre-normalized; the clamp guards against clipping overshoot.
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
