// SPDX-License-Identifier: MIT
package capture

import (
	"fmt"
	"runtime"

	"github.com/gordonklaus/portaudio"
)

// PortAudio is the hardware Backend. Initialize must have succeeded
// before Open is called.
type PortAudio struct{}

var (
	_ Backend = (*PortAudio)(nil)
	_ Stream  = (*paStream)(nil)
)

// NewPortAudio returns the PortAudio capture backend.
func NewPortAudio() *PortAudio {
	return &PortAudio{}
}

// Name implements Backend.
func (*PortAudio) Name() string {
	return "portaudio"
}

// Open resolves the input device and opens a float32 input-only stream.
// Multi-channel input is averaged into a pre-allocated mono buffer
// before it reaches the emit callback.
func (*PortAudio) Open(cfg StreamConfig, emit func([]float32)) (Stream, error) {
	device, err := InputDevice(cfg.DeviceID)
	if err != nil {
		return nil, err
	}

	latency := device.DefaultHighInputLatency
	if cfg.LowLatency {
		latency = device.DefaultLowInputLatency
	}

	s := &paStream{
		channels: cfg.Channels,
		mono:     make([]float32, cfg.FramesPerBuffer),
		emit:     emit,
		errs:     make(chan error, 1),
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: cfg.Channels,
			Device:   device,
			Latency:  latency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // Input only.
			Device:   nil,
		},
		FramesPerBuffer: cfg.FramesPerBuffer,
		SampleRate:      cfg.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, s.process)
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}
	s.stream = stream

	return s, nil
}

type paStream struct {
	stream   *portaudio.Stream
	channels int
	mono     []float32 // Pre-allocated downmix buffer.
	emit     func([]float32)
	errs     chan error
}

// process is the capture callback.
// Performance critical:
// - Runs on a dedicated OS thread (LockOSThread)
// - Uses pre-allocated buffers only
// - No dynamic allocations in the hot path
func (s *paStream) process(in []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if s.channels <= 1 {
		n := copy(s.mono, in)
		s.emit(s.mono[:n])
		return
	}

	// Average interleaved channels into mono.
	frames := len(in) / s.channels
	if frames > len(s.mono) {
		frames = len(s.mono)
	}
	scale := 1.0 / float32(s.channels)
	for f := 0; f < frames; f++ {
		base := f * s.channels
		var sum float32
		for c := 0; c < s.channels; c++ {
			sum += in[base+c]
		}
		s.mono[f] = sum * scale
	}
	s.emit(s.mono[:frames])
}

func (s *paStream) Start() error {
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("failed to start input stream: %w", err)
	}
	return nil
}

func (s *paStream) Stop() error {
	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop input stream: %w", err)
	}
	return nil
}

func (s *paStream) Close() error {
	if s.stream == nil {
		return nil
	}
	err := s.stream.Close()
	s.stream = nil
	if err != nil {
		return fmt.Errorf("failed to close input stream: %w", err)
	}
	return nil
}

func (s *paStream) Errors() <-chan error {
	return s.errs
}
