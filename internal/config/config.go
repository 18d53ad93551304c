// SPDX-License-Identifier: MIT
//
// Package config defines the application configuration: analysis
// parameters, capture settings, transports, recording, and telemetry.
// Values are resolved in order: built-in defaults, then YAML file, then
// environment overrides, then command-line flags.
package config

import (
	"fmt"
	"time"

	applog "spectra/internal/log"
	"spectra/pkg/bitint"
)

// Core configuration constants that define the boundaries and defaults
// for the analysis engine.
const (
	DefaultFFTSize         = 1024   // Balanced resolution/latency
	DefaultWindowFunction  = "hann" // Standard choice for audio spectra
	DefaultSmoothingFactor = 0.5    // Moderate smoothing
	DefaultEmitRateHz      = 30     // Result delivery rate toward subscribers
	DefaultRingFrames      = 8      // Capture ring capacity in frames
	DefaultSampleRate      = 44100  // CD-quality audio
	DefaultChannels        = 1      // Mono audio
	DefaultDeviceID        = MinDeviceID

	// Hardware and processing limits
	MinDeviceID   = -1 // -1 represents system default device
	MinRingFrames = 4  // Below this the ring cannot absorb scheduling jitter
)

// Config is the root application configuration, loaded from YAML.
type Config struct {
	Debug    bool   `yaml:"debug"`     // Enable debug mode (verbose logging).
	LogLevel string `yaml:"log_level"` // Logging level ("debug", "info", "warn", "error").

	// Command and AnalyzeFile are set by the CLI, never from file.
	Command     string `yaml:"-"`
	AnalyzeFile string `yaml:"-"`

	Analysis  AnalysisConfig  `yaml:"analysis"`  // Spectral analysis settings.
	Capture   CaptureConfig   `yaml:"capture"`   // Audio input settings.
	Recording RecordingConfig `yaml:"recording"` // Session WAV recording.
	Transport TransportConfig `yaml:"transport"` // Result streaming (WebSocket, UDP).
	Telemetry TelemetryConfig `yaml:"telemetry"` // Metrics export.
}

// AnalysisConfig holds the spectral analysis parameters.
type AnalysisConfig struct {
	FFTSize          int     `yaml:"fft_size"`          // FFT transform size, one of 512, 1024, 2048, 4096.
	WindowFunction   string  `yaml:"window_function"`   // Window function name ("hann", "hamming", "blackman", "rectangular").
	SmoothingEnabled bool    `yaml:"smoothing_enabled"` // Enable exponential smoothing of levels and spectrum.
	SmoothingFactor  float64 `yaml:"smoothing_factor"`  // Smoothing blend weight in [0, 1]; 0 = raw output.
	DownsampleBins   int     `yaml:"downsample_bins"`   // Average the spectrum into this many buckets (0 = native bins).
	EmitRateHz       int     `yaml:"emit_rate_hz"`      // Result emission rate toward subscribers.
	RingFrames       int     `yaml:"ring_frames"`       // Capture ring capacity in frames.
}

// CaptureConfig holds settings for the audio input device.
type CaptureConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index (-1 for system default).
	SampleRate      float64 `yaml:"sample_rate"`       // Sample rate in Hz (e.g. 44100, 48000).
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Device buffer size in frames; rounded up to a power of 2.
	InputChannels   int     `yaml:"input_channels"`    // Channels to capture; multi-channel input is downmixed to mono.
	LowLatency      bool    `yaml:"low_latency"`       // Request the device's low-latency setting.
}

// RecordingConfig holds settings for recording captured audio to a file.
type RecordingConfig struct {
	Enabled    bool   `yaml:"enabled"`     // Record the mono capture stream to a WAV file.
	OutputFile string `yaml:"output_file"` // Target path; empty generates a timestamped name.
}

// TransportConfig holds settings for streaming results over the network.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Serve analysis results over WebSocket.
	WebSocketAddr    string        `yaml:"websocket_addr"`     // Listen address for the WebSocket server (e.g. ":8090").
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Publish binary result packets over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target "host:port" for UDP packets.
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between UDP packets.
}

// TelemetryConfig holds settings for the metrics pipeline.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"` // Export engine metrics via the /metrics endpoint.
}

// DefaultConfig returns the built-in defaults used when no file, env,
// or flag overrides a field.
func DefaultConfig() *Config {
	return &Config{
		Debug:    false,
		LogLevel: "info",
		Analysis: AnalysisConfig{
			FFTSize:          DefaultFFTSize,
			WindowFunction:   DefaultWindowFunction,
			SmoothingEnabled: true,
			SmoothingFactor:  DefaultSmoothingFactor,
			DownsampleBins:   0, // Native resolution.
			EmitRateHz:       DefaultEmitRateHz,
			RingFrames:       DefaultRingFrames,
		},
		Capture: CaptureConfig{
			InputDevice:     DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFFTSize,
			InputChannels:   DefaultChannels,
			LowLatency:      false,
		},
		Recording: RecordingConfig{
			Enabled:    false,
			OutputFile: "",
		},
		Transport: TransportConfig{
			WebSocketEnabled: false,
			WebSocketAddr:    ":8090",
			UDPEnabled:       false,
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  33 * time.Millisecond, // ~30Hz.
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
		},
	}
}

// SupportedFFTSize reports whether n is one of the transform sizes the
// analyzer accepts.
func SupportedFFTSize(n int) bool {
	switch n {
	case 512, 1024, 2048, 4096:
		return true
	}
	return false
}

// Validate normalizes and checks the configuration, returning the first
// problem found. Soft limits (buffer sizes, ring capacity) are corrected
// in place; analysis parameters are rejected outright.
func (c *Config) Validate() error {
	if c.Analysis.FFTSize == 0 {
		c.Analysis.FFTSize = DefaultFFTSize
	}
	if !SupportedFFTSize(c.Analysis.FFTSize) {
		return fmt.Errorf("analysis.fft_size must be one of 512, 1024, 2048, 4096, got %d", c.Analysis.FFTSize)
	}
	if c.Analysis.SmoothingFactor < 0 || c.Analysis.SmoothingFactor > 1 {
		return fmt.Errorf("analysis.smoothing_factor must be in [0, 1], got %g", c.Analysis.SmoothingFactor)
	}
	if c.Analysis.DownsampleBins < 0 {
		return fmt.Errorf("analysis.downsample_bins must not be negative, got %d", c.Analysis.DownsampleBins)
	}
	if c.Analysis.EmitRateHz < 0 {
		return fmt.Errorf("analysis.emit_rate_hz must be positive, got %d", c.Analysis.EmitRateHz)
	}
	if c.Analysis.EmitRateHz == 0 {
		c.Analysis.EmitRateHz = DefaultEmitRateHz
	}
	if c.Analysis.RingFrames == 0 {
		c.Analysis.RingFrames = DefaultRingFrames
	}
	if c.Analysis.RingFrames < MinRingFrames {
		applog.Warnf("configuration: analysis.ring_frames %d raised to minimum %d", c.Analysis.RingFrames, MinRingFrames)
		c.Analysis.RingFrames = MinRingFrames
	}

	if c.Capture.SampleRate <= 0 {
		return fmt.Errorf("capture.sample_rate must be positive, got %g", c.Capture.SampleRate)
	}
	if c.Capture.InputChannels < 1 {
		return fmt.Errorf("capture.input_channels must be at least 1, got %d", c.Capture.InputChannels)
	}
	if c.Capture.FramesPerBuffer <= 0 {
		c.Capture.FramesPerBuffer = c.Analysis.FFTSize
	}
	if !bitint.IsPowerOfTwo(c.Capture.FramesPerBuffer) {
		rounded := bitint.NextPowerOfTwo(c.Capture.FramesPerBuffer)
		applog.Warnf("configuration: capture.frames_per_buffer %d rounded up to %d", c.Capture.FramesPerBuffer, rounded)
		c.Capture.FramesPerBuffer = rounded
	}

	if c.Transport.UDPEnabled {
		if c.Transport.UDPTargetAddress == "" {
			return fmt.Errorf("transport.udp_target_address must be set when UDP is enabled")
		}
		if c.Transport.UDPSendInterval <= 0 {
			return fmt.Errorf("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}
	if c.Transport.WebSocketEnabled && c.Transport.WebSocketAddr == "" {
		return fmt.Errorf("transport.websocket_addr must be set when WebSocket is enabled")
	}

	if c.Recording.Enabled && c.Recording.OutputFile == "" {
		c.Recording.OutputFile = "recording-" +
			time.Now().UTC().Format("02-01-2006-150405") + ".wav"
	}

	return nil
}
