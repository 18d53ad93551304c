// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"spectra/pkg/bitint"
)

// Pre-allocated buffers for the spectral pipeline. Sized once at
// construction so Update never allocates.
type spectralWorkspace struct {
	input     []float64    // Windowed input signal (float64 for the FFT).
	fftOutput []complex128 // FFT complex results, fftSize/2 + 1 bins.
	magnitude []float64    // Normalized magnitudes at native resolution.
	down      []float64    // Downsampled buckets (nil when disabled).
	smoothed  []float64    // Exponentially smoothed output bins.
}

// SpectralConfig parameterizes a SpectralAnalyzer.
type SpectralConfig struct {
	FFTSize         int        // Transform size; must be a power of 2.
	SampleRate      float64    // Input sample rate in Hz.
	Window          WindowFunc // Tapering curve applied before the FFT.
	SmoothingFactor float64    // Per-bin blend weight in [0, 1]; 0 = raw.
	DownsampleBins  int        // Output buckets; 0 or >= native bins = native resolution.
}

// SpectralAnalyzer produces a magnitude spectrum per frame: window,
// real-input FFT, normalization, optional bucket averaging, and per-bin
// exponential smoothing. Single-consumer: Update must not be called
// concurrently.
//
// Magnitudes are scaled by 2/sum(window) so a full-scale sine at a
// bin-aligned frequency reads close to 1.0 regardless of the window
// (for the rectangular window this reduces to the familiar 2/N), then
// clamped to [0, 1].
type SpectralAnalyzer struct {
	fft        *fourier.FFT // Reusable FFT plan.
	fftSize    int
	sampleRate float64
	factor     float64   // Smoothing blend weight.
	window     []float64 // Shared coefficient table from WindowCoefficients.
	scale      float64   // 2 / sum(window).
	downBins   int       // 0 when downsampling is disabled.
	workspace  spectralWorkspace
}

// NewSpectralAnalyzer validates cfg and builds an analyzer with all
// buffers pre-allocated.
func NewSpectralAnalyzer(cfg SpectralConfig) (*SpectralAnalyzer, error) {
	if !bitint.IsPowerOfTwo(cfg.FFTSize) {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", cfg.FFTSize)
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", cfg.SampleRate)
	}
	if cfg.SmoothingFactor < 0 || cfg.SmoothingFactor > 1 {
		return nil, fmt.Errorf("smoothing factor must be in [0, 1], got %f", cfg.SmoothingFactor)
	}
	if cfg.DownsampleBins < 0 {
		return nil, fmt.Errorf("downsample bins must not be negative, got %d", cfg.DownsampleBins)
	}

	// FFT output size for real input is N/2 + 1 bins.
	nativeBins := cfg.FFTSize/2 + 1

	downBins := cfg.DownsampleBins
	if downBins >= nativeBins {
		// Requesting at least native resolution disables averaging.
		downBins = 0
	}

	window := WindowCoefficients(cfg.Window, cfg.FFTSize)
	var windowSum float64
	for _, c := range window {
		windowSum += c
	}

	outputLen := nativeBins
	var down []float64
	if downBins > 0 {
		outputLen = downBins
		down = make([]float64, downBins)
	}

	return &SpectralAnalyzer{
		fft:        fourier.NewFFT(cfg.FFTSize),
		fftSize:    cfg.FFTSize,
		sampleRate: cfg.SampleRate,
		factor:     cfg.SmoothingFactor,
		window:     window,
		scale:      2.0 / windowSum,
		downBins:   downBins,
		workspace: spectralWorkspace{
			input:     make([]float64, cfg.FFTSize),
			fftOutput: make([]complex128, nativeBins),
			magnitude: make([]float64, nativeBins),
			down:      down,
			smoothed:  make([]float64, outputLen),
		},
	}, nil
}

// Update runs the spectral pipeline on one frame and returns the
// smoothed output bins. The frame length must equal the configured FFT
// size; re-blocking device buffers to that length is the caller's job.
// The returned slice is the analyzer's internal buffer, valid until the
// next Update call; callers must copy it to retain it.
func (s *SpectralAnalyzer) Update(frame []float32) ([]float64, error) {
	if len(frame) != s.fftSize {
		return nil, fmt.Errorf("frame length %d does not match fft size %d", len(frame), s.fftSize)
	}

	// 1. Window the input while converting to float64.
	for i, v := range frame {
		s.workspace.input[i] = float64(v) * s.window[i]
	}

	// 2. Real-input FFT.
	s.fft.Coefficients(s.workspace.fftOutput, s.workspace.input)

	// 3. Normalized magnitudes.
	for i, c := range s.workspace.fftOutput {
		s.workspace.magnitude[i] = clamp01(cmplx.Abs(c) * s.scale)
	}

	// 4. Optional downsampling into contiguous buckets.
	raw := s.workspace.magnitude
	if s.downBins > 0 {
		s.downsample()
		raw = s.workspace.down
	}

	// 5. Per-bin exponential smoothing.
	f := s.factor
	for i, v := range raw {
		s.workspace.smoothed[i] = f*s.workspace.smoothed[i] + (1-f)*v
	}

	return s.workspace.smoothed, nil
}

// downsample averages contiguous native bins into downBins buckets.
// Bucket boundaries are linear over the bin index range, so the buckets
// partition the native bins exactly and the width-weighted bucket sum
// preserves the native spectrum's total energy.
func (s *SpectralAnalyzer) downsample() {
	native := s.workspace.magnitude
	ratio := float64(len(native)) / float64(s.downBins)

	for b := range s.workspace.down {
		start := int(float64(b) * ratio)
		end := int(float64(b+1) * ratio)
		if end > len(native) {
			end = len(native)
		}

		var sum float64
		for i := start; i < end; i++ {
			sum += native[i]
		}
		s.workspace.down[b] = sum / float64(end-start)
	}
}

// OutputLen returns the number of bins Update produces: downsampleBins
// when downsampling is active, fftSize/2 + 1 otherwise.
func (s *SpectralAnalyzer) OutputLen() int {
	return len(s.workspace.smoothed)
}

// FrequencyForBin returns the center frequency (Hz) for a given output
// bin index. For downsampled output this is the center of the bucket's
// native bin range.
func (s *SpectralAnalyzer) FrequencyForBin(binIndex int) float64 {
	if binIndex < 0 || binIndex >= s.OutputLen() {
		return 0.0
	}

	// Frequency resolution = sampleRate / fftSize.
	resolution := s.sampleRate / float64(s.fftSize)
	if s.downBins == 0 {
		return float64(binIndex) * resolution
	}

	nativeBins := float64(len(s.workspace.magnitude))
	ratio := nativeBins / float64(s.downBins)
	center := (float64(binIndex) + 0.5) * ratio
	return center * resolution
}

// FFTSize returns the configured transform size.
func (s *SpectralAnalyzer) FFTSize() int {
	return s.fftSize
}

// SampleRate returns the configured sample rate (Hz).
func (s *SpectralAnalyzer) SampleRate() float64 {
	return s.sampleRate
}

// Reset zeroes the per-bin smoothing state. Called at session start.
func (s *SpectralAnalyzer) Reset() {
	for i := range s.workspace.smoothed {
		s.workspace.smoothed[i] = 0
	}
}
