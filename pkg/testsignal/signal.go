// Package testsignal generates deterministic audio test signals in the
// normalized [-1.0, 1.0] float32 range used throughout the capture and
// analysis pipeline.
package testsignal

import "math"

// Sine returns n samples of a sine wave at the given frequency and
// amplitude. Amplitude 1.0 is full scale.
func Sine(n int, sampleRate, frequency, amplitude float64) []float32 {
	buffer := make([]float32, n)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(math.Sin(2*math.Pi*frequency*t) * amplitude)
	}
	return buffer
}

// Complex returns n samples of a 440 Hz fundamental with two harmonics,
// peaking near 0.9 of full scale.
func Complex(n int, sampleRate float64) []float32 {
	buffer := make([]float32, n)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2 // 440Hz fundamental + harmonics
		buffer[i] = float32(signal * 0.9)
	}
	return buffer
}

// Silence returns n all-zero samples.
func Silence(n int) []float32 {
	return make([]float32, n)
}

// FindPeakBin returns the index of the largest magnitude within
// [startBin, endBin]. Out-of-range bounds are clamped.
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}
