// SPDX-License-Identifier: MIT
package engine

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"spectra/internal/capture/mock"
	"spectra/pkg/testsignal"
)

const (
	e2eFFTSize    = 1024
	e2eSampleRate = 44100.0
)

// testConfig analyzes every frame (no rate gating) with smoothing off,
// so assertions are deterministic.
func testConfig() Config {
	return Config{
		DeviceID:        -1,
		SampleRate:      e2eSampleRate,
		FramesPerBuffer: e2eFFTSize,
		Channels:        1,
		FFTSize:         e2eFFTSize,
		WindowFunction:  "hann",
		EmitInterval:    -1,
		RingFrames:      8,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type resultCollector struct {
	mu      sync.Mutex
	results []Result
}

func (c *resultCollector) add(r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

func (c *resultCollector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

func (c *resultCollector) last() Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.results) == 0 {
		return Result{}
	}
	return c.results[len(c.results)-1]
}

func (c *resultCollector) snapshot() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Result, len(c.results))
	copy(out, c.results)
	return out
}

type errorCollector struct {
	mu   sync.Mutex
	errs []error
}

func (c *errorCollector) add(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *errorCollector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errs)
}

func (c *errorCollector) first() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.errs) == 0 {
		return nil
	}
	return c.errs[0]
}

// pushFrames drives the signal through the mock stream one capture
// buffer at a time, waiting for each to be analyzed so the ring never
// overflows and counts stay exact.
func pushFrames(t *testing.T, eng *Engine, stream *mock.Stream, signal []float32, frameLen int) int {
	t.Helper()
	pushed := 0
	for off := 0; off+frameLen <= len(signal); off += frameLen {
		before := eng.Stats().FramesProcessed
		stream.Push(signal[off : off+frameLen])
		pushed++
		waitFor(t, "frame to be processed", func() bool {
			return eng.Stats().FramesProcessed > before
		})
	}
	return pushed
}

func TestStartStopLifecycle(t *testing.T) {
	backend := mock.New()
	eng := New(backend)
	defer eng.Close()

	if got := eng.State(); got != StateIdle {
		t.Fatalf("initial state = %v, want idle", got)
	}
	if eng.IsAnalyzing() {
		t.Fatal("IsAnalyzing true before start")
	}

	if err := eng.Start(testConfig()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if got := eng.State(); got != StateRunning {
		t.Fatalf("state after start = %v, want running", got)
	}
	if !eng.IsAnalyzing() {
		t.Fatal("IsAnalyzing false while running")
	}
	if backend.Opened() != 1 {
		t.Fatalf("opened = %d, want 1", backend.Opened())
	}

	if err := eng.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := eng.State(); got != StateIdle {
		t.Fatalf("state after stop = %v, want idle", got)
	}

	// Stop is idempotent and must not release anything twice.
	if err := eng.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
	if backend.Opened() != backend.Released() {
		t.Errorf("opened %d != released %d: leaked capture stream", backend.Opened(), backend.Released())
	}
	if backend.Released() != 1 {
		t.Errorf("released = %d, want exactly 1", backend.Released())
	}
}

func TestStartWhileRunning(t *testing.T) {
	backend := mock.New()
	eng := New(backend)
	defer eng.Close()

	if err := eng.Start(testConfig()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	second := testConfig()
	second.FFTSize = 2048
	err := eng.Start(second)
	if !IsCode(err, ErrCodeState) {
		t.Fatalf("second Start = %v, want state error", err)
	}

	// The failed call must leave the running session and its
	// configuration untouched.
	if !eng.IsAnalyzing() {
		t.Error("engine stopped analyzing after rejected start")
	}
	if got := eng.Config().FFTSize; got != e2eFFTSize {
		t.Errorf("config fftSize = %d, want %d", got, e2eFFTSize)
	}
	if backend.Opened() != 1 {
		t.Errorf("opened = %d, want 1", backend.Opened())
	}
}

func TestStartValidatesSynchronously(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"UnsupportedFFTSize", func(c *Config) { c.FFTSize = 1000 }},
		{"SmoothingFactorAboveOne", func(c *Config) { c.SmoothingFactor = 1.5 }},
		{"NegativeSmoothingFactor", func(c *Config) { c.SmoothingFactor = -0.1 }},
		{"NegativeDownsampleBins", func(c *Config) { c.DownsampleBins = -1 }},
		{"UnknownWindow", func(c *Config) { c.WindowFunction = "kaiser" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := mock.New()
			eng := New(backend)
			defer eng.Close()

			cfg := testConfig()
			tt.mutate(&cfg)

			err := eng.Start(cfg)
			if !IsCode(err, ErrCodeConfig) {
				t.Fatalf("Start = %v, want config error", err)
			}
			if got := eng.State(); got != StateIdle {
				t.Errorf("state = %v, want idle", got)
			}
			if backend.Opened() != 0 {
				t.Errorf("opened = %d, want 0: validation must precede acquisition", backend.Opened())
			}
			if got := eng.Config(); got != DefaultConfig() {
				t.Errorf("config changed by rejected start: %+v", got)
			}
		})
	}
}

func TestStartResourceFailures(t *testing.T) {
	t.Run("OpenFails", func(t *testing.T) {
		backend := mock.New()
		backend.OpenErr = errors.New("device busy")
		eng := New(backend)
		defer eng.Close()

		err := eng.Start(testConfig())
		if !IsCode(err, ErrCodeResource) {
			t.Fatalf("Start = %v, want resource error", err)
		}
		if got := eng.State(); got != StateIdle {
			t.Errorf("state = %v, want idle", got)
		}
		if backend.Opened() != 0 || backend.Released() != 0 {
			t.Errorf("opened=%d released=%d, want 0, 0", backend.Opened(), backend.Released())
		}
	})

	t.Run("StreamStartFails", func(t *testing.T) {
		backend := mock.New()
		backend.StartErr = errors.New("stream refused")
		eng := New(backend)
		defer eng.Close()

		err := eng.Start(testConfig())
		if !IsCode(err, ErrCodeResource) {
			t.Fatalf("Start = %v, want resource error", err)
		}
		// The opened stream must be released on the failure path.
		if backend.Opened() != 1 || backend.Released() != 1 {
			t.Errorf("opened=%d released=%d, want 1, 1", backend.Opened(), backend.Released())
		}
		if got := eng.State(); got != StateIdle {
			t.Errorf("state = %v, want idle", got)
		}
	})
}

// Full pipeline: a 440 Hz full-scale sine at 44100 Hz with fftSize 1024
// must read RMS ~0.707 and peak within one bin of
// round(440 * 1024 / 44100) = 10.
func TestEndToEnd440Hz(t *testing.T) {
	backend := mock.New()
	eng := New(backend)
	defer eng.Close()

	var results resultCollector
	sub := eng.Subscribe(results.add)
	defer sub.Cancel()

	if err := eng.Start(testConfig()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	signal := testsignal.Sine(e2eFFTSize*50, e2eSampleRate, 440.0, 1.0)
	pushed := pushFrames(t, eng, backend.Stream(), signal, e2eFFTSize)
	if pushed != 50 {
		t.Fatalf("pushed %d frames, want 50", pushed)
	}

	waitFor(t, "all results to be dispatched", func() bool {
		return results.len() >= 50
	})

	if err := eng.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	last := results.last()
	if math.Abs(last.RMS-1.0/math.Sqrt2) > 0.02 {
		t.Errorf("rms = %.4f, want ~0.707", last.RMS)
	}
	if math.Abs(last.Peak-1.0) > 0.02 {
		t.Errorf("peak = %.4f, want ~1.0", last.Peak)
	}
	if len(last.Spectrum) != e2eFFTSize/2+1 {
		t.Fatalf("spectrum has %d bins, want %d", len(last.Spectrum), e2eFFTSize/2+1)
	}

	peakBin := testsignal.FindPeakBin(last.Spectrum, 1, len(last.Spectrum)-1)
	if peakBin < 9 || peakBin > 11 {
		t.Errorf("peak at bin %d, want 10 +/- 1", peakBin)
	}

	// Sequence numbers count emissions from 1 without gaps.
	for i, r := range results.snapshot() {
		if r.Seq != uint64(i+1) {
			t.Fatalf("result %d has seq %d", i, r.Seq)
		}
		if r.SampleRate != e2eSampleRate || r.FFTSize != e2eFFTSize {
			t.Fatalf("result %d carries rate=%v fft=%d", i, r.SampleRate, r.FFTSize)
		}
	}

	latest, ok := eng.Latest()
	if !ok {
		t.Fatal("Latest reports no result after emissions")
	}
	if latest.Seq != last.Seq {
		t.Errorf("Latest seq = %d, want %d", latest.Seq, last.Seq)
	}
}

// Silence must read exactly zero for every smoothing factor.
func TestSilenceIsZero(t *testing.T) {
	for _, factor := range []float64{0, 0.5, 1.0} {
		t.Run(fmt.Sprintf("Factor%.1f", factor), func(t *testing.T) {
			backend := mock.New()
			eng := New(backend)
			defer eng.Close()

			var results resultCollector
			defer eng.Subscribe(results.add).Cancel()

			cfg := testConfig()
			cfg.SmoothingEnabled = true
			cfg.SmoothingFactor = factor
			if err := eng.Start(cfg); err != nil {
				t.Fatalf("Start failed: %v", err)
			}

			pushFrames(t, eng, backend.Stream(), testsignal.Silence(e2eFFTSize*5), e2eFFTSize)
			waitFor(t, "results", func() bool { return results.len() >= 5 })

			if err := eng.Stop(); err != nil {
				t.Fatalf("Stop failed: %v", err)
			}

			for i, r := range results.snapshot() {
				if r.RMS != 0 || r.Peak != 0 {
					t.Fatalf("result %d: rms=%v peak=%v, want exactly 0, 0", i, r.RMS, r.Peak)
				}
			}
			for i, v := range results.last().Spectrum {
				if v != 0 {
					t.Fatalf("spectrum bin %d = %v for silence, want 0", i, v)
				}
			}
		})
	}
}

// Every frame is analyzed, but emissions honor the configured rate.
func TestEmissionRateLimited(t *testing.T) {
	backend := mock.New()
	eng := New(backend)
	defer eng.Close()

	var results resultCollector
	defer eng.Subscribe(results.add).Cancel()

	cfg := testConfig()
	cfg.EmitInterval = 10 * time.Second // Only the first frame can emit.
	if err := eng.Start(cfg); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	pushFrames(t, eng, backend.Stream(), testsignal.Sine(e2eFFTSize*10, e2eSampleRate, 440.0, 0.5), e2eFFTSize)

	stats := eng.Stats()
	if stats.FramesProcessed != 10 {
		t.Errorf("frames processed = %d, want 10 (analysis must not be rate limited)", stats.FramesProcessed)
	}
	if stats.ResultsEmitted != 1 {
		t.Errorf("results emitted = %d, want 1", stats.ResultsEmitted)
	}

	waitFor(t, "the first result", func() bool { return results.len() >= 1 })
	time.Sleep(20 * time.Millisecond)
	if got := results.len(); got != 1 {
		t.Errorf("delivered %d results, want 1", got)
	}

	if err := eng.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

// Capture buffers shorter than the FFT size are accumulated into full
// analysis blocks.
func TestReblocksShortCaptureBuffers(t *testing.T) {
	backend := mock.New()
	eng := New(backend)
	defer eng.Close()

	cfg := testConfig()
	cfg.FramesPerBuffer = e2eFFTSize / 2
	if err := eng.Start(cfg); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	signal := testsignal.Sine(e2eFFTSize*2, e2eSampleRate, 440.0, 0.5)
	stream := backend.Stream()
	for off := 0; off+cfg.FramesPerBuffer <= len(signal); off += cfg.FramesPerBuffer {
		stream.Push(signal[off : off+cfg.FramesPerBuffer])
	}

	waitFor(t, "two complete blocks", func() bool {
		return eng.Stats().FramesProcessed == 2
	})
	if err := eng.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestSetFFTConfig(t *testing.T) {
	backend := mock.New()
	eng := New(backend)
	defer eng.Close()

	if err := eng.SetFFTConfig(2048, 64); err != nil {
		t.Fatalf("SetFFTConfig failed: %v", err)
	}
	cfg := eng.Config()
	if cfg.FFTSize != 2048 || cfg.DownsampleBins != 64 {
		t.Fatalf("config = fft %d, bins %d; want 2048, 64", cfg.FFTSize, cfg.DownsampleBins)
	}

	// The next session runs with the new shape.
	var results resultCollector
	defer eng.Subscribe(results.add).Cancel()
	if err := eng.Start(cfg); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	signal := testsignal.Sine(2048*2, e2eSampleRate, 440.0, 0.5)
	stream := backend.Stream()
	for off := 0; off+1024 <= len(signal); off += 1024 {
		stream.Push(signal[off : off+1024])
	}
	waitFor(t, "a downsampled result", func() bool { return results.len() >= 1 })
	if got := len(results.last().Spectrum); got != 64 {
		t.Errorf("spectrum has %d bins, want 64", got)
	}
	if err := eng.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Invalid arguments are rejected without touching the config.
	if err := eng.SetFFTConfig(1000, 0); !IsCode(err, ErrCodeConfig) {
		t.Errorf("SetFFTConfig(1000, 0) = %v, want config error", err)
	}
	if err := eng.SetFFTConfig(1024, -2); !IsCode(err, ErrCodeConfig) {
		t.Errorf("SetFFTConfig(1024, -2) = %v, want config error", err)
	}
	if cfg := eng.Config(); cfg.FFTSize != 2048 || cfg.DownsampleBins != 64 {
		t.Errorf("rejected calls changed config to fft %d, bins %d", cfg.FFTSize, cfg.DownsampleBins)
	}
}

func TestReconfigureRequiresIdle(t *testing.T) {
	backend := mock.New()
	eng := New(backend)
	defer eng.Close()

	if err := eng.Start(testConfig()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	before := eng.Config()

	if err := eng.SetFFTConfig(2048, 32); !IsCode(err, ErrCodeState) {
		t.Errorf("SetFFTConfig while running = %v, want state error", err)
	}
	if err := eng.SetSmoothing(false, 0.9); !IsCode(err, ErrCodeState) {
		t.Errorf("SetSmoothing while running = %v, want state error", err)
	}

	if got := eng.Config(); got != before {
		t.Errorf("config changed by rejected reconfiguration:\n got %+v\nwant %+v", got, before)
	}
	if !eng.IsAnalyzing() {
		t.Error("engine left running state")
	}

	if err := eng.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestSetSmoothing(t *testing.T) {
	eng := New(mock.New())
	defer eng.Close()

	if err := eng.SetSmoothing(true, 0.7); err != nil {
		t.Fatalf("SetSmoothing failed: %v", err)
	}
	cfg := eng.Config()
	if !cfg.SmoothingEnabled || cfg.SmoothingFactor != 0.7 {
		t.Errorf("config = enabled %v, factor %v; want true, 0.7", cfg.SmoothingEnabled, cfg.SmoothingFactor)
	}

	if err := eng.SetSmoothing(true, 1.2); !IsCode(err, ErrCodeConfig) {
		t.Errorf("SetSmoothing(1.2) = %v, want config error", err)
	}
	if got := eng.Config().SmoothingFactor; got != 0.7 {
		t.Errorf("rejected call changed factor to %v", got)
	}

	if err := eng.SetSmoothing(false, 0); err != nil {
		t.Fatalf("SetSmoothing(false, 0) failed: %v", err)
	}
	if eng.Config().SmoothingEnabled {
		t.Error("smoothing still enabled")
	}
}

// A fatal stream failure must stop the session on its own, notify error
// subscribers and release the capture stream.
func TestFatalCaptureErrorSelfStops(t *testing.T) {
	backend := mock.New()
	eng := New(backend)
	defer eng.Close()

	var errs errorCollector
	defer eng.SubscribeErrors(errs.add).Cancel()

	if err := eng.Start(testConfig()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	backend.Stream().Fail(errors.New("device disconnected"))

	waitFor(t, "self-stop", func() bool { return eng.State() == StateIdle })
	waitFor(t, "error event", func() bool { return errs.len() >= 1 })

	if err := errs.first(); !IsCode(err, ErrCodeRuntime) {
		t.Errorf("error event = %v, want runtime error", err)
	}
	if backend.Opened() != backend.Released() {
		t.Errorf("opened %d != released %d after self-stop", backend.Opened(), backend.Released())
	}
}

func TestSubscriptionCancel(t *testing.T) {
	backend := mock.New()
	eng := New(backend)
	defer eng.Close()

	var kept, cancelled resultCollector
	sub := eng.Subscribe(cancelled.add)
	defer eng.Subscribe(kept.add).Cancel()

	sub.Cancel()
	sub.Cancel() // Cancel is idempotent.

	if got := eng.Stats().Subscribers; got != 1 {
		t.Fatalf("subscribers = %d, want 1", got)
	}

	if err := eng.Start(testConfig()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	pushFrames(t, eng, backend.Stream(), testsignal.Sine(e2eFFTSize*3, e2eSampleRate, 440.0, 0.5), e2eFFTSize)
	waitFor(t, "results on the kept subscription", func() bool { return kept.len() >= 3 })

	if err := eng.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := cancelled.len(); got != 0 {
		t.Errorf("cancelled subscription received %d results", got)
	}
}

func TestLatestBeforeFirstEmission(t *testing.T) {
	eng := New(mock.New())
	defer eng.Close()

	if _, ok := eng.Latest(); ok {
		t.Error("Latest reports a result before any emission")
	}
}

func TestStartAppliesDefaults(t *testing.T) {
	backend := mock.New()
	eng := New(backend)
	defer eng.Close()

	if err := eng.Start(Config{EmitInterval: -1}); err != nil {
		t.Fatalf("Start with zero config failed: %v", err)
	}
	defer eng.Stop()

	cfg := eng.Config()
	if cfg.FFTSize != 1024 {
		t.Errorf("fftSize = %d, want 1024", cfg.FFTSize)
	}
	if cfg.WindowFunction != "hann" {
		t.Errorf("window = %q, want hann", cfg.WindowFunction)
	}
	if cfg.SampleRate != 44100 {
		t.Errorf("sample rate = %v, want 44100", cfg.SampleRate)
	}
	if cfg.FramesPerBuffer != 1024 {
		t.Errorf("frames per buffer = %d, want fftSize", cfg.FramesPerBuffer)
	}

	// The stream was opened with the normalized values.
	got := backend.Stream().Config()
	if got.SampleRate != 44100 || got.FramesPerBuffer != 1024 {
		t.Errorf("stream opened with %+v", got)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateStarting, "starting"},
		{StateRunning, "running"},
		{StateStopping, "stopping"},
		{StateReconfiguring, "reconfiguring"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}

func TestRateGate(t *testing.T) {
	base := time.Now()

	g := newRateGate(100 * time.Millisecond)
	if !g.allow(base) {
		t.Error("first emission blocked")
	}
	if g.allow(base.Add(50 * time.Millisecond)) {
		t.Error("emission inside the interval allowed")
	}
	if !g.allow(base.Add(150 * time.Millisecond)) {
		t.Error("emission after the interval blocked")
	}

	ungated := newRateGate(-1)
	if !ungated.allow(base) || !ungated.allow(base) {
		t.Error("negative interval must never gate")
	}
}

func TestConfigWithDefaults(t *testing.T) {
	got := (Config{}).withDefaults()
	def := DefaultConfig()
	if got.SampleRate != def.SampleRate || got.FFTSize != def.FFTSize ||
		got.WindowFunction != def.WindowFunction || got.RingFrames != def.RingFrames ||
		got.EmitInterval != def.EmitInterval {
		t.Errorf("withDefaults() = %+v", got)
	}

	// FramesPerBuffer follows an explicit FFT size.
	got = (Config{FFTSize: 2048}).withDefaults()
	if got.FramesPerBuffer != 2048 {
		t.Errorf("framesPerBuffer = %d, want 2048", got.FramesPerBuffer)
	}

	// Explicit values survive.
	in := testConfig()
	if out := in.withDefaults(); out != in {
		t.Errorf("withDefaults altered explicit config:\n got %+v\nwant %+v", out, in)
	}
}

func TestEffectiveSmoothing(t *testing.T) {
	c := Config{SmoothingEnabled: false, SmoothingFactor: 0.8}
	if got := c.effectiveSmoothing(); got != 0 {
		t.Errorf("disabled smoothing factor = %v, want 0", got)
	}
	c.SmoothingEnabled = true
	if got := c.effectiveSmoothing(); got != 0.8 {
		t.Errorf("enabled smoothing factor = %v, want 0.8", got)
	}
}
