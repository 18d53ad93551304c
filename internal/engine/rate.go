// SPDX-License-Identifier: MIT
package engine

import "time"

// rateGate throttles emissions to one per interval. A non-positive
// interval lets everything through.
type rateGate struct {
	interval time.Duration
	last     time.Time
}

func newRateGate(interval time.Duration) *rateGate {
	return &rateGate{interval: interval}
}

// allow reports whether an emission at now fits the rate limit, and
// marks the slot used when it does. The first call always passes.
func (g *rateGate) allow(now time.Time) bool {
	if g.interval <= 0 {
		return true
	}
	if !g.last.IsZero() && now.Sub(g.last) < g.interval {
		return false
	}
	g.last = now
	return true
}
