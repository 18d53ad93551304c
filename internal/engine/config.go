// SPDX-License-Identifier: MIT
package engine

import (
	"time"

	"spectra/internal/analysis"
)

// Config describes one analysis session. Unset capture and analysis
// fields are filled from DefaultConfig when the session starts;
// DeviceID is the exception, where 0 addresses a real device and -1
// selects the default input.
type Config struct {
	// Capture.
	DeviceID        int     // Host device ID; -1 selects the default input.
	SampleRate      float64 // Hz.
	FramesPerBuffer int     // Samples per capture callback.
	Channels        int     // Input channels; >1 is averaged to mono.
	LowLatency      bool

	// Analysis.
	FFTSize          int    // One of 512, 1024, 2048, 4096.
	WindowFunction   string // hann, hamming, blackman or rectangular.
	SmoothingEnabled bool
	SmoothingFactor  float64 // [0, 1]; ignored while smoothing is disabled.
	DownsampleBins   int     // 0 keeps native fftSize/2+1 resolution.

	// Emission. Zero means the 33ms default (~30Hz); negative disables
	// rate limiting so every analyzed frame emits.
	EmitInterval time.Duration

	// Capture ring depth in frames.
	RingFrames int
}

// DefaultConfig is the configuration reported before the first Start.
func DefaultConfig() Config {
	return Config{
		DeviceID:         -1,
		SampleRate:       44100,
		FramesPerBuffer:  1024,
		Channels:         1,
		FFTSize:          1024,
		WindowFunction:   "hann",
		SmoothingEnabled: true,
		SmoothingFactor:  0.5,
		DownsampleBins:   0,
		EmitInterval:     33 * time.Millisecond,
		RingFrames:       8,
	}
}

// withDefaults fills unset fields without touching explicit values.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = def.SampleRate
	}
	if c.FFTSize == 0 {
		c.FFTSize = def.FFTSize
	}
	if c.FramesPerBuffer <= 0 {
		c.FramesPerBuffer = c.FFTSize
	}
	if c.Channels < 1 {
		c.Channels = def.Channels
	}
	if c.WindowFunction == "" {
		c.WindowFunction = def.WindowFunction
	}
	if c.EmitInterval == 0 {
		c.EmitInterval = def.EmitInterval
	}
	if c.RingFrames < 1 {
		c.RingFrames = def.RingFrames
	}
	return c
}

func supportedFFTSize(n int) bool {
	switch n {
	case 512, 1024, 2048, 4096:
		return true
	}
	return false
}

// validate rejects a configuration before any resource is touched.
func (c Config) validate(op string) *EngineError {
	if !supportedFFTSize(c.FFTSize) {
		return errConfig(op, "unsupported fft size %d (must be 512, 1024, 2048 or 4096)", c.FFTSize)
	}
	if c.SampleRate <= 0 {
		return errConfig(op, "sample rate must be positive, got %f", c.SampleRate)
	}
	if c.SmoothingFactor < 0 || c.SmoothingFactor > 1 {
		return errConfig(op, "smoothing factor must be in [0, 1], got %f", c.SmoothingFactor)
	}
	if c.DownsampleBins < 0 {
		return errConfig(op, "downsample bins must not be negative, got %d", c.DownsampleBins)
	}
	if c.Channels < 1 {
		return errConfig(op, "channel count must be at least 1, got %d", c.Channels)
	}
	if c.FramesPerBuffer < 1 {
		return errConfig(op, "frames per buffer must be positive, got %d", c.FramesPerBuffer)
	}
	if _, err := analysis.ParseWindowFunc(c.WindowFunction); err != nil {
		return errConfig(op, "%v", err)
	}
	return nil
}

// effectiveSmoothing returns the factor the analyzers run with:
// disabled smoothing means raw output.
func (c Config) effectiveSmoothing() float64 {
	if !c.SmoothingEnabled {
		return 0
	}
	return c.SmoothingFactor
}
