// SPDX-License-Identifier: MIT
package engine

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	applog "spectra/internal/log"
)

// StartRecording tees raw capture frames into a 16-bit mono WAV file
// at path. Recording requires a running session and ends automatically
// when the session stops.
func (e *Engine) StartRecording(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if st := e.State(); st != StateRunning {
		return errState("record", "engine is %s, recording requires running", st)
	}
	if path == "" {
		return errConfig("record", "output path is empty")
	}
	if err := e.session.rec.start(path); err != nil {
		return errResource("record", err, "failed to start recording")
	}
	applog.Infof("recording to %s", path)
	return nil
}

// StopRecording finalizes the WAV file. A no-op when nothing is
// recording.
func (e *Engine) StopRecording() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil
	}
	if err := e.session.rec.stop(); err != nil {
		return errResource("record", err, "failed to finalize recording")
	}
	return nil
}

// IsRecording reports whether a WAV file is currently being written.
func (e *Engine) IsRecording() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil && e.session.rec.active.Load()
}

// recorder tees capture frames into a WAV file. Writes are gated by an
// atomic flag so the disarmed fast path costs one load per frame.
type recorder struct {
	active atomic.Bool

	mu   sync.Mutex
	file *os.File
	enc  *wav.Encoder
	buf  *audio.IntBuffer // Reusable PCM conversion buffer.

	sampleRate int
}

func newRecorder(sampleRate, framesPerBuffer int) *recorder {
	return &recorder{
		sampleRate: sampleRate,
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
			Data:           make([]int, framesPerBuffer),
			SourceBitDepth: 16,
		},
	}
}

func (r *recorder) start(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.enc != nil {
		return fmt.Errorf("recording already in progress")
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	// 16-bit mono PCM.
	r.enc = wav.NewEncoder(file, r.sampleRate, 16, 1, 1)
	r.file = file
	r.active.Store(true)
	return nil
}

// write converts one frame to 16-bit PCM and appends it. Frames
// arriving while disarmed are skipped.
func (r *recorder) write(samples []float32) {
	if !r.active.Load() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return
	}

	if cap(r.buf.Data) < len(samples) {
		r.buf.Data = make([]int, len(samples))
	}
	r.buf.Data = r.buf.Data[:len(samples)]
	for i, v := range samples {
		n := int(v * 32767)
		// Clamp overdriven samples instead of wrapping.
		if n > 32767 {
			n = 32767
		} else if n < -32768 {
			n = -32768
		}
		r.buf.Data[i] = n
	}

	if err := r.enc.Write(r.buf); err != nil {
		applog.Errorf("wav write failed, stopping recording: %v", err)
		if cerr := r.closeLocked(); cerr != nil {
			applog.Warnf("failed to close broken recording: %v", cerr)
		}
	}
}

func (r *recorder) stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked()
}

func (r *recorder) closeLocked() error {
	if r.enc == nil {
		return nil
	}
	r.active.Store(false)

	var firstErr error
	if err := r.enc.Close(); err != nil {
		firstErr = err
	}
	if err := r.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	r.enc = nil
	r.file = nil
	return firstErr
}
