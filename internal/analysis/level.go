// SPDX-License-Identifier: MIT
package analysis

import "math"

// LevelMeter computes per-frame RMS and peak amplitude with independent
// exponential smoothing. State is two scalars; Update performs no heap
// allocation. Single-consumer: not safe for concurrent Update calls.
type LevelMeter struct {
	factor float64 // Smoothing blend weight; 0 yields raw output.
	rms    float64
	peak   float64
}

// NewLevelMeter returns a meter with the given smoothing factor in
// [0, 1]. Factor 0 disables smoothing entirely.
func NewLevelMeter(smoothingFactor float64) *LevelMeter {
	return &LevelMeter{factor: smoothingFactor}
}

// Update computes RMS = sqrt(mean(x^2)) and peak = max(|x|) over the
// frame, blends each with the previous smoothed value as
//
//	smoothed = factor*previous + (1-factor)*raw
//
// and returns both, clamped to [0, 1].
func (m *LevelMeter) Update(frame []float32) (rms, peak float64) {
	var sumSquares float64
	var rawPeak float64

	for _, s := range frame {
		v := float64(s)
		sumSquares += v * v
		if v < 0 {
			v = -v
		}
		if v > rawPeak {
			rawPeak = v
		}
	}

	var rawRMS float64
	if len(frame) > 0 {
		rawRMS = math.Sqrt(sumSquares / float64(len(frame)))
	}

	f := m.factor
	m.rms = clamp01(f*m.rms + (1-f)*rawRMS)
	m.peak = clamp01(f*m.peak + (1-f)*rawPeak)

	return m.rms, m.peak
}

// Reset zeroes the smoothing state. Called at session start so values
// from a previous capture session never bleed into a new one.
func (m *LevelMeter) Reset() {
	m.rms = 0
	m.peak = 0
}
