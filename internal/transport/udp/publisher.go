// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"spectra/internal/engine"
	applog "spectra/internal/log"
)

// ResultSource yields the most recent analysis result. The engine's
// Latest method satisfies this.
type ResultSource interface {
	Latest() (engine.Result, bool)
}

// Publisher polls a ResultSource on a fixed interval and sends every
// new result as a binary packet. Polling decouples the UDP rate from
// the engine's emission rate: slow ticks skip results, fast ticks
// dedupe on the sequence number.
type Publisher struct {
	sender   *Sender
	source   ResultSource
	interval time.Duration

	mu       sync.Mutex // Protects ticker and doneChan across Start/Stop.
	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Publisher-goroutine state; no locking needed.
	lastSeq uint64
	f32     []float32
	buf     *bytes.Buffer
}

// NewPublisher wires a sender to a result source. A non-positive
// interval falls back to 16ms (~60Hz).
func NewPublisher(interval time.Duration, sender *Sender, source ResultSource) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("udp sender must not be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("result source must not be nil")
	}
	if interval <= 0 {
		interval = 16 * time.Millisecond
		applog.Warnf("invalid udp publish interval, defaulting to %s", interval)
	}

	return &Publisher{
		sender:   sender,
		source:   source,
		interval: interval,
		buf:      new(bytes.Buffer),
	}, nil
}

// Start launches the publish loop. Calling Start on a running
// publisher is a no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("udp publisher already running")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Locals keep the goroutine off fields that Stop rewrites.
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Infof("udp publisher started (interval %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.publish()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop ends the publish loop and waits for it to exit. Safe to call
// more than once and before Start.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	applog.Infof("udp publisher stopped")
	return nil
}

// publish sends the latest result if it is newer than the last packet.
func (p *Publisher) publish() {
	r, ok := p.source.Latest()
	if !ok || r.Seq == p.lastSeq {
		return
	}
	p.lastSeq = r.Seq

	// The spectrum shape can change between sessions.
	if len(p.f32) != len(r.Spectrum) {
		p.f32 = make([]float32, len(r.Spectrum))
	}
	for i, v := range r.Spectrum {
		p.f32[i] = float32(v)
	}

	pkt := Packet{
		Seq:        uint32(r.Seq),
		Timestamp:  r.Timestamp.UnixNano(),
		RMS:        float32(r.RMS),
		Peak:       float32(r.Peak),
		Magnitudes: p.f32,
	}

	p.buf.Reset()
	if err := pkt.EncodeTo(p.buf); err != nil {
		applog.Errorf("failed to encode udp packet: %v", err)
		return
	}
	if err := p.sender.Send(p.buf.Bytes()); err != nil {
		applog.Errorf("failed to publish result %d: %v", r.Seq, err)
		return
	}
	applog.Debugf("published packet seq=%d (%d bytes)", pkt.Seq, p.buf.Len())
}

// Close stops the publisher; it does not close the sender, which the
// caller owns.
func (p *Publisher) Close() error {
	return p.Stop()
}
