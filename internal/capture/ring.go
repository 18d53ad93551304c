// SPDX-License-Identifier: MIT
package capture

import (
	"sync/atomic"
	"time"
)

// Frame is one captured buffer of mono samples with its arrival time.
type Frame struct {
	Samples   []float32
	Timestamp time.Time
}

// Ring is a fixed-capacity frame queue between the capture callback
// (producer) and the analysis loop (consumer). Push never blocks: when
// the queue is full the incoming frame is dropped and counted, so a
// stalled consumer can never back-pressure the audio thread. Sample
// buffers circulate through an internal free list, so steady-state
// operation performs no heap allocation.
//
// Push is safe from a single producer, Pop and Recycle from a single
// consumer.
type Ring struct {
	frames   chan Frame
	free     chan []float32
	frameLen int
	dropped  atomic.Uint64
	popTimer *time.Timer
}

// NewRing builds a ring holding up to capacity frames of frameLen
// samples each. One extra buffer is allocated so the consumer can hold
// a popped frame while the queue is full.
func NewRing(capacity, frameLen int) *Ring {
	if capacity < 1 {
		capacity = 1
	}

	r := &Ring{
		frames:   make(chan Frame, capacity),
		free:     make(chan []float32, capacity+1),
		frameLen: frameLen,
	}
	for i := 0; i < capacity+1; i++ {
		r.free <- make([]float32, frameLen)
	}
	return r
}

// Push copies samples into a recycled buffer and enqueues it. It
// returns false, dropping the newest frame and incrementing the drop
// counter, when no buffer is free. Input longer than the ring's frame
// length is truncated; shorter input yields a short frame.
func (r *Ring) Push(samples []float32) bool {
	var buf []float32
	select {
	case buf = <-r.free:
	default:
		// Consumer is behind and every buffer is in flight.
		r.dropped.Add(1)
		return false
	}

	n := copy(buf, samples)
	select {
	case r.frames <- Frame{Samples: buf[:n], Timestamp: time.Now()}:
		return true
	default:
		// Queue full between the free-list check and the enqueue.
		r.free <- buf
		r.dropped.Add(1)
		return false
	}
}

// Pop returns the oldest frame, blocking up to timeout when the queue
// is empty. The second return is false on timeout. The caller owns the
// frame's buffer until it passes it back through Recycle.
//
// The timeout timer is reused across calls, so Pop allocates only once.
func (r *Ring) Pop(timeout time.Duration) (Frame, bool) {
	select {
	case f := <-r.frames:
		return f, true
	default:
	}

	if timeout <= 0 {
		return Frame{}, false
	}

	if r.popTimer == nil {
		r.popTimer = time.NewTimer(timeout)
	} else {
		if !r.popTimer.Stop() {
			select {
			case <-r.popTimer.C:
			default:
			}
		}
		r.popTimer.Reset(timeout)
	}

	select {
	case f := <-r.frames:
		return f, true
	case <-r.popTimer.C:
		return Frame{}, false
	}
}

// Recycle returns a popped frame's buffer to the free list. Buffers
// that did not originate from this ring are ignored.
func (r *Ring) Recycle(samples []float32) {
	if cap(samples) < r.frameLen {
		return
	}
	select {
	case r.free <- samples[:r.frameLen]:
	default:
	}
}

// Dropped returns the number of frames discarded because the ring was
// full.
func (r *Ring) Dropped() uint64 {
	return r.dropped.Load()
}

// Len returns the number of frames currently queued.
func (r *Ring) Len() int {
	return len(r.frames)
}

// Cap returns the ring's frame capacity.
func (r *Ring) Cap() int {
	return cap(r.frames)
}

// FrameLen returns the per-frame sample count.
func (r *Ring) FrameLen() int {
	return r.frameLen
}
