// SPDX-License-Identifier: MIT
/*
Package engine drives the capture-and-analysis lifecycle: it owns the
state machine (Idle, Starting, Running, Stopping, plus the transient
Reconfiguring), pulls frames from the capture ring, runs the DSP
pipeline on every frame, and fans rate-limited results out to
subscribers.

Thread safety:
- Control operations (Start, Stop, Set*) serialize on one mutex
- State reads are atomic so hot paths never touch the mutex
- The per-frame path uses pre-allocated session buffers only;
  allocations happen at emission rate, not frame rate
*/
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"spectra/internal/analysis"
	"spectra/internal/capture"
	applog "spectra/internal/log"
	"spectra/internal/telemetry"
)

// State is the engine lifecycle phase.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
	StateReconfiguring
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateReconfiguring:
		return "reconfiguring"
	default:
		return "unknown"
	}
}

// popTimeout bounds how long the consumer waits for a frame before
// rechecking for shutdown.
const popTimeout = 50 * time.Millisecond

// Engine coordinates one capture backend and at most one running
// analysis session. All methods are safe for concurrent use.
type Engine struct {
	backend capture.Backend
	metrics *telemetry.Metrics

	mu      sync.Mutex // Serializes control operations and config access.
	cfg     Config
	session *session

	state atomic.Int32

	// Subscriber fan-out; see subscription.go.
	events     chan Result
	errEvents  chan *EngineError
	subMu      sync.RWMutex
	nextSubID  uint64
	resultSubs map[uint64]func(Result)
	errorSubs  map[uint64]func(error)

	dispatchDone chan struct{}
	dispatchWG   sync.WaitGroup
	closeOnce    sync.Once

	latestMu  sync.RWMutex
	latest    Result
	hasLatest bool

	framesProcessed atomic.Uint64
	resultsEmitted  atomic.Uint64
	framesDropped   atomic.Uint64 // Folded in from each session's ring at Stop.
	eventsDropped   atomic.Uint64
}

// session owns the resources of one Start..Stop span. Analyzers are
// built fresh per session so smoothing state never bleeds across
// sessions.
type session struct {
	cfg      Config
	ring     *capture.Ring
	stream   capture.Stream
	meter    *analysis.LevelMeter
	spectral *analysis.SpectralAnalyzer
	gate     *rateGate
	rec      *recorder

	accum    []float32 // Re-blocking accumulator, FFTSize samples.
	accumLen int
	seq      uint64

	framesSinceEmit int64
	dropsReported   uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New returns an idle engine on the given backend with DefaultConfig
// as its reported configuration.
func New(backend capture.Backend) *Engine {
	e := &Engine{
		backend:      backend,
		metrics:      telemetry.DefaultMetrics(),
		cfg:          DefaultConfig(),
		events:       make(chan Result, 64),
		errEvents:    make(chan *EngineError, 8),
		resultSubs:   make(map[uint64]func(Result)),
		errorSubs:    make(map[uint64]func(error)),
		dispatchDone: make(chan struct{}),
	}
	e.dispatchWG.Add(1)
	go e.dispatch()
	return e
}

// State returns the current lifecycle phase.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// IsAnalyzing reports whether a session is running. Starting and
// Stopping both read as false.
func (e *Engine) IsAnalyzing() bool {
	return e.State() == StateRunning
}

// Config returns the active configuration: DefaultConfig before the
// first Start, afterwards the normalized configuration of the last
// successful Start plus any reconfiguration applied since.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Start validates cfg, acquires the capture stream and launches the
// analysis session. On failure the engine stays Idle with its previous
// configuration and any partially acquired resource is released.
func (e *Engine) Start(cfg Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if st := e.State(); st != StateIdle {
		return errState("start", "engine is %s, start requires idle", st)
	}

	normalized := cfg.withDefaults()
	if err := normalized.validate("start"); err != nil {
		return err
	}

	e.state.Store(int32(StateStarting))

	sess, err := e.openSession(normalized)
	if err != nil {
		e.state.Store(int32(StateIdle))
		return err
	}

	e.cfg = normalized
	e.session = sess

	sess.wg.Add(2)
	go e.consume(sess)
	go e.watch(sess)

	e.state.Store(int32(StateRunning))
	e.metrics.RecordSessionStart(context.Background())
	applog.Infof("analysis started: device=%d rate=%.0f fft=%d window=%s",
		normalized.DeviceID, normalized.SampleRate, normalized.FFTSize, normalized.WindowFunction)
	return nil
}

func (e *Engine) openSession(cfg Config) (*session, error) {
	window, _ := analysis.ParseWindowFunc(cfg.WindowFunction) // Validated by caller.

	spectral, err := analysis.NewSpectralAnalyzer(analysis.SpectralConfig{
		FFTSize:         cfg.FFTSize,
		SampleRate:      cfg.SampleRate,
		Window:          window,
		SmoothingFactor: cfg.effectiveSmoothing(),
		DownsampleBins:  cfg.DownsampleBins,
	})
	if err != nil {
		return nil, errConfig("start", "%v", err)
	}

	sess := &session{
		cfg:      cfg,
		ring:     capture.NewRing(cfg.RingFrames, cfg.FramesPerBuffer),
		meter:    analysis.NewLevelMeter(cfg.effectiveSmoothing()),
		spectral: spectral,
		gate:     newRateGate(cfg.EmitInterval),
		rec:      newRecorder(int(cfg.SampleRate), cfg.FramesPerBuffer),
		accum:    make([]float32, cfg.FFTSize),
		stopCh:   make(chan struct{}),
	}

	stream, err := e.backend.Open(capture.StreamConfig{
		DeviceID:        cfg.DeviceID,
		SampleRate:      cfg.SampleRate,
		FramesPerBuffer: cfg.FramesPerBuffer,
		Channels:        cfg.Channels,
		LowLatency:      cfg.LowLatency,
	}, func(frame []float32) {
		sess.ring.Push(frame)
	})
	if err != nil {
		return nil, errResource("start", err, "failed to open capture stream")
	}
	sess.stream = stream

	if err := stream.Start(); err != nil {
		if cerr := stream.Close(); cerr != nil {
			applog.Warnf("failed to close stream after start failure: %v", cerr)
		}
		return nil, errResource("start", err, "failed to start capture stream")
	}

	return sess, nil
}

// Stop ends the running session, releases the capture stream and
// returns the engine to Idle. Stopping an idle engine is a no-op.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil
	}

	e.state.Store(int32(StateStopping))
	sess := e.session
	e.session = nil

	close(sess.stopCh)
	sess.wg.Wait()

	var firstErr error
	if err := sess.stream.Stop(); err != nil {
		firstErr = err
	}
	if err := sess.stream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := sess.rec.stop(); err != nil {
		applog.Warnf("failed to finalize recording: %v", err)
	}

	dropped := sess.ring.Dropped()
	e.framesDropped.Add(dropped)
	e.metrics.RecordDrops(context.Background(), int64(dropped-sess.dropsReported))
	e.metrics.RecordSessionStop(context.Background())

	e.state.Store(int32(StateIdle))
	applog.Infof("analysis stopped (dropped %d frames)", dropped)

	if firstErr != nil {
		return errResource("stop", firstErr, "failed to release capture stream")
	}
	return nil
}

// Close stops any running session and shuts down the dispatch
// goroutine. The engine must not be used afterwards.
func (e *Engine) Close() error {
	err := e.Stop()
	e.closeOnce.Do(func() {
		close(e.dispatchDone)
		e.dispatchWG.Wait()
	})
	return err
}

// SetSmoothing updates the smoothing configuration for the next
// session. Allowed only while Idle.
func (e *Engine) SetSmoothing(enabled bool, factor float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if st := e.State(); st != StateIdle {
		return errState("set-smoothing", "engine is %s, reconfiguration requires idle", st)
	}
	if factor < 0 || factor > 1 {
		return errConfig("set-smoothing", "smoothing factor must be in [0, 1], got %f", factor)
	}

	e.state.Store(int32(StateReconfiguring))
	e.cfg.SmoothingEnabled = enabled
	e.cfg.SmoothingFactor = factor
	e.state.Store(int32(StateIdle))
	return nil
}

// SetFFTConfig updates the transform size and downsample bin count for
// the next session. Allowed only while Idle.
func (e *Engine) SetFFTConfig(fftSize, downsampleBins int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if st := e.State(); st != StateIdle {
		return errState("set-fft-config", "engine is %s, reconfiguration requires idle", st)
	}
	if !supportedFFTSize(fftSize) {
		return errConfig("set-fft-config", "unsupported fft size %d (must be 512, 1024, 2048 or 4096)", fftSize)
	}
	if downsampleBins < 0 {
		return errConfig("set-fft-config", "downsample bins must not be negative, got %d", downsampleBins)
	}

	e.state.Store(int32(StateReconfiguring))
	e.cfg.FFTSize = fftSize
	e.cfg.DownsampleBins = downsampleBins
	e.state.Store(int32(StateIdle))
	return nil
}

// Latest returns the most recently emitted result; the boolean is
// false until the first emission. Polling transports use this instead
// of a subscription.
func (e *Engine) Latest() (Result, bool) {
	e.latestMu.RLock()
	defer e.latestMu.RUnlock()
	return e.latest, e.hasLatest
}

func (e *Engine) setLatest(r Result) {
	e.latestMu.Lock()
	e.latest = r
	e.hasLatest = true
	e.latestMu.Unlock()
}

// consume pulls frames off the ring until the session stops.
func (e *Engine) consume(sess *session) {
	defer sess.wg.Done()

	for {
		select {
		case <-sess.stopCh:
			return
		default:
		}

		frame, ok := sess.ring.Pop(popTimeout)
		if !ok {
			continue
		}
		e.process(sess, frame)
		sess.ring.Recycle(frame.Samples)
	}
}

// process re-blocks capture frames to the FFT size and analyzes every
// complete block. Capture buffer size and FFT size need not match.
func (e *Engine) process(sess *session, frame capture.Frame) {
	sess.rec.write(frame.Samples)

	samples := frame.Samples
	for len(samples) > 0 {
		n := copy(sess.accum[sess.accumLen:], samples)
		sess.accumLen += n
		samples = samples[n:]

		if sess.accumLen < len(sess.accum) {
			return
		}
		sess.accumLen = 0
		e.analyze(sess, frame.Timestamp)
	}
}

// analyze runs the DSP pipeline on one complete block. Every block is
// analyzed so smoothing stays continuous; the rate gate only decides
// whether the outcome is emitted.
func (e *Engine) analyze(sess *session, ts time.Time) {
	rms, peak := sess.meter.Update(sess.accum)
	spectrum, err := sess.spectral.Update(sess.accum)
	if err != nil {
		e.postError(errRuntime("analyze", err, "spectral update failed"))
		return
	}

	e.framesProcessed.Add(1)
	sess.framesSinceEmit++

	if !sess.gate.allow(ts) {
		return
	}

	sess.seq++
	out := make([]float64, len(spectrum))
	copy(out, spectrum)

	result := Result{
		Seq:        sess.seq,
		Timestamp:  ts,
		RMS:        rms,
		Peak:       peak,
		Spectrum:   out,
		SampleRate: sess.cfg.SampleRate,
		FFTSize:    sess.cfg.FFTSize,
	}

	e.setLatest(result)
	e.resultsEmitted.Add(1)
	e.post(result)

	// Telemetry piggybacks on the emission rate so the per-frame path
	// stays allocation-free.
	ctx := context.Background()
	e.metrics.RecordFrames(ctx, sess.framesSinceEmit)
	e.metrics.RecordEmit(ctx, rms)
	sess.framesSinceEmit = 0

	if dropped := sess.ring.Dropped(); dropped > sess.dropsReported {
		delta := dropped - sess.dropsReported
		sess.dropsReported = dropped
		e.metrics.RecordDrops(ctx, int64(delta))
		applog.Debugf("capture ring dropped %d frames", delta)
	}
}

// watch turns an asynchronous stream failure into an error event and a
// self-stop. Ring overflow never reaches here; it is only counted.
func (e *Engine) watch(sess *session) {
	defer sess.wg.Done()

	select {
	case err := <-sess.stream.Errors():
		if err == nil {
			return
		}
		applog.Errorf("capture stream failed: %v", err)
		e.postError(errRuntime("capture", err, "capture stream failed"))
		// Stop joins this goroutine's WaitGroup, so it must not run
		// inline here.
		go func() {
			if serr := e.Stop(); serr != nil {
				applog.Warnf("self-stop after capture failure: %v", serr)
			}
		}()
	case <-sess.stopCh:
	}
}
