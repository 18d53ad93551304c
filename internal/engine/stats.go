// SPDX-License-Identifier: MIT
package engine

// Stats is a point-in-time snapshot of engine activity. Dropped frame
// counts fold in the live session's ring so the numbers never move
// backwards across sessions.
type Stats struct {
	State           string `json:"state"`
	FramesProcessed uint64 `json:"framesProcessed"`
	ResultsEmitted  uint64 `json:"resultsEmitted"`
	FramesDropped   uint64 `json:"framesDropped"`
	EventsDropped   uint64 `json:"eventsDropped"`
	Subscribers     int    `json:"subscribers"`
}

// Stats returns a snapshot of the engine's counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	dropped := e.framesDropped.Load()
	if e.session != nil {
		dropped += e.session.ring.Dropped()
	}
	state := e.State()
	e.mu.Unlock()

	e.subMu.RLock()
	subscribers := len(e.resultSubs) + len(e.errorSubs)
	e.subMu.RUnlock()

	return Stats{
		State:           state.String(),
		FramesProcessed: e.framesProcessed.Load(),
		ResultsEmitted:  e.resultsEmitted.Load(),
		FramesDropped:   dropped,
		EventsDropped:   e.eventsDropped.Load(),
		Subscribers:     subscribers,
	}
}
