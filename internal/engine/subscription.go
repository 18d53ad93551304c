// SPDX-License-Identifier: MIT
package engine

// Subscription is a handle to an active handler registration. Cancel
// detaches the handler; it is safe to call more than once and after the
// engine is closed.
type Subscription struct {
	cancel func()
}

// Cancel detaches the subscription's handler. No further callbacks are
// delivered once Cancel returns, except one already in flight on the
// dispatch goroutine.
func (s *Subscription) Cancel() {
	s.cancel()
}

// Subscribe registers a handler for analysis results. Handlers run
// sequentially on the engine's dispatch goroutine, off the analysis
// path: a slow handler delays other handlers but can only cost the
// engine emissions, never capture frames.
func (e *Engine) Subscribe(handler func(Result)) *Subscription {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	id := e.nextSubID
	e.nextSubID++
	e.resultSubs[id] = handler

	return &Subscription{cancel: func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		delete(e.resultSubs, id)
	}}
}

// SubscribeErrors registers a handler for asynchronous engine errors,
// such as a fatal capture failure. The error delivered is always an
// *EngineError.
func (e *Engine) SubscribeErrors(handler func(error)) *Subscription {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	id := e.nextSubID
	e.nextSubID++
	e.errorSubs[id] = handler

	return &Subscription{cancel: func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		delete(e.errorSubs, id)
	}}
}

// dispatch fans events out to subscribers for the engine's lifetime.
// Error events are drained ahead of results so a full result queue
// cannot delay a failure notification.
func (e *Engine) dispatch() {
	defer e.dispatchWG.Done()

	for {
		select {
		case err := <-e.errEvents:
			e.deliverError(err)
			continue
		default:
		}

		select {
		case err := <-e.errEvents:
			e.deliverError(err)
		case r := <-e.events:
			e.deliverResult(r)
		case <-e.dispatchDone:
			return
		}
	}
}

func (e *Engine) deliverResult(r Result) {
	e.subMu.RLock()
	handlers := make([]func(Result), 0, len(e.resultSubs))
	for _, h := range e.resultSubs {
		handlers = append(handlers, h)
	}
	e.subMu.RUnlock()

	for _, h := range handlers {
		h(r)
	}
}

func (e *Engine) deliverError(err *EngineError) {
	e.subMu.RLock()
	handlers := make([]func(error), 0, len(e.errorSubs))
	for _, h := range e.errorSubs {
		handlers = append(handlers, h)
	}
	e.subMu.RUnlock()

	for _, h := range handlers {
		h(err)
	}
}

// post queues a result for dispatch without ever blocking the analysis
// loop; when subscribers fall behind the event is dropped and counted.
func (e *Engine) post(r Result) {
	select {
	case e.events <- r:
	default:
		e.eventsDropped.Add(1)
	}
}

// postError queues an error event. The error queue is separate from
// results and deep enough that drops only happen under pathological
// failure storms; those are still counted.
func (e *Engine) postError(err *EngineError) {
	select {
	case e.errEvents <- err:
	default:
		e.eventsDropped.Add(1)
	}
}
