// SPDX-License-Identifier: MIT
/*
Package mock provides an in-memory capture backend for tests. Streams
are driven by hand with Push and Fail, and the backend counts opens and
closes so tests can assert that sessions never leak device handles.
*/
package mock

import (
	"sync"
	"sync/atomic"

	"spectra/internal/capture"
)

var (
	_ capture.Backend = (*Backend)(nil)
	_ capture.Stream  = (*Stream)(nil)
)

// Backend implements capture.Backend without touching any hardware.
type Backend struct {
	OpenErr  error // Returned by Open when set.
	StartErr error // Returned by Stream.Start when set.

	opened   atomic.Int64
	released atomic.Int64

	mu   sync.Mutex
	last *Stream
}

// New returns an empty mock backend.
func New() *Backend {
	return &Backend{}
}

// Name implements capture.Backend.
func (b *Backend) Name() string {
	return "mock"
}

// Open hands out a new Stream wired to the emit callback. The open is
// counted only when it succeeds, mirroring real device acquisition.
func (b *Backend) Open(cfg capture.StreamConfig, emit func([]float32)) (capture.Stream, error) {
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}

	s := &Stream{
		backend:  b,
		cfg:      cfg,
		emit:     emit,
		startErr: b.StartErr,
		errs:     make(chan error, 4),
	}
	b.opened.Add(1)

	b.mu.Lock()
	b.last = s
	b.mu.Unlock()
	return s, nil
}

// Stream returns the most recently opened stream, or nil.
func (b *Backend) Stream() *Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// Opened returns how many streams were successfully opened.
func (b *Backend) Opened() int64 {
	return b.opened.Load()
}

// Released returns how many streams were closed.
func (b *Backend) Released() int64 {
	return b.released.Load()
}

// Stream is a hand-driven capture stream.
type Stream struct {
	backend  *Backend
	cfg      capture.StreamConfig
	emit     func([]float32)
	startErr error
	errs     chan error

	started atomic.Bool
	closed  atomic.Bool
}

func (s *Stream) Start() error {
	if s.startErr != nil {
		return s.startErr
	}
	s.started.Store(true)
	return nil
}

func (s *Stream) Stop() error {
	s.started.Store(false)
	return nil
}

// Close releases the stream. Safe to call more than once; only the
// first call counts toward the backend's release counter.
func (s *Stream) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.backend.released.Add(1)
	}
	return nil
}

func (s *Stream) Errors() <-chan error {
	return s.errs
}

// Push delivers one frame to the emit callback, as the hardware
// callback would. It is a no-op unless the stream is started.
func (s *Stream) Push(frame []float32) {
	if s.started.Load() {
		s.emit(frame)
	}
}

// Fail posts an asynchronous stream error, simulating a fatal capture
// failure such as a device disconnect.
func (s *Stream) Fail(err error) {
	s.errs <- err
}

// Running reports whether the stream is started and not closed.
func (s *Stream) Running() bool {
	return s.started.Load() && !s.closed.Load()
}

// Config returns the StreamConfig the stream was opened with.
func (s *Stream) Config() capture.StreamConfig {
	return s.cfg
}
