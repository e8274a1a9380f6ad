package batch

import (
	"context"
	"sync"

	"github.com/dan-strohschein/adt-batch/logging"
	"github.com/dan-strohschein/adt-batch/transport"
	"github.com/dan-strohschein/adt-batch/wire"
)

// Pending pairs a captured call with the completion surface of its Future.
type Pending struct {
	Spec      wire.CallSpec
	Completer transport.Completer
}

// Recorder is the recording transport.Connection. PerformRequest captures
// the call and returns an unresolved Future without performing any I/O.
//
// One Recorder holds one batch. Capture is serialized by an internal lock,
// but positions then follow arrival order; concurrent logical batches need
// separate Recorders.
type Recorder struct {
	mu       sync.Mutex
	pending  []Pending
	state    *stateManager
	maxCalls int
	logger   logging.Logger
}

func newRecorder(maxCalls int, logger logging.Logger) *Recorder {
	return &Recorder{
		state:    newStateManager(),
		maxCalls: maxCalls,
		logger:   logger,
	}
}

// PerformRequest implements transport.Connection. It never blocks.
//
// The returned Future completes when the batch is flushed or reset. Waiting
// on it before then blocks until the context given to Wait is done.
func (r *Recorder) PerformRequest(ctx context.Context, req *transport.Request) *transport.Future {
	if err := ctx.Err(); err != nil {
		return transport.Failed(err)
	}
	if req == nil {
		return transport.Failed(transport.InvalidRequestError("nil request", nil))
	}

	r.mu.Lock()
	switch r.state.current {
	case FLUSHED:
		r.mu.Unlock()
		err := errProtocolMisuse("capture")
		r.logger.Warn("capture rejected", logging.String("method", req.Method), logging.String("path", req.Path), logging.Error("error", err))
		return transport.Failed(err)
	case FLUSHING:
		r.mu.Unlock()
		return transport.Failed(errFlushInProgress("capture"))
	}

	if r.maxCalls > 0 && len(r.pending) >= r.maxCalls {
		r.mu.Unlock()
		err := errBatchTooLarge("call count", r.maxCalls, r.maxCalls+1)
		r.logger.Warn("capture rejected", logging.String("path", req.Path), logging.Error("error", err))
		return transport.Failed(err)
	}

	position := len(r.pending)
	fut, completer := transport.NewFuture()
	r.pending = append(r.pending, Pending{
		Spec:      wire.CallSpec{Position: position, Request: *req.Clone()},
		Completer: completer,
	})

	var transition *StateTransition
	if r.state.current == IDLE {
		if t, err := r.state.transitionTo(CAPTURING, map[string]interface{}{"reason": "capture", "calls": 1}); err == nil {
			transition = &t
		}
	}
	handlers := r.handlersLocked()
	r.mu.Unlock()

	r.logger.Debug("call captured",
		logging.Int("position", position),
		logging.String("method", req.Method),
		logging.String("path", req.Path))

	if transition != nil {
		notify(handlers, *transition)
	}
	return fut
}

// Len returns the number of captured calls.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Calls returns a copy of the captured call specs in position order.
func (r *Recorder) Calls() []wire.CallSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return specsOf(r.pending)
}

// State returns the current batch state.
func (r *Recorder) State() BatchState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.current
}

// OnStateChange registers a handler invoked after each state transition.
func (r *Recorder) OnStateChange(h StateChangeHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.handlers = append(r.state.handlers, h)
}

// beginFlush moves the batch to FLUSHING and hands out the pending calls.
func (r *Recorder) beginFlush() ([]Pending, error) {
	r.mu.Lock()
	switch r.state.current {
	case FLUSHING:
		r.mu.Unlock()
		return nil, errFlushInProgress("flush")
	case FLUSHED:
		r.mu.Unlock()
		return nil, errProtocolMisuse("flush")
	}

	t, err := r.state.transitionTo(FLUSHING, map[string]interface{}{"reason": "flush", "calls": len(r.pending)})
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	pending := make([]Pending, len(r.pending))
	copy(pending, r.pending)
	handlers := r.handlersLocked()
	r.mu.Unlock()

	notify(handlers, t)
	return pending, nil
}

// finishFlush moves the batch to FLUSHED.
func (r *Recorder) finishFlush() {
	r.mu.Lock()
	t, err := r.state.transitionTo(FLUSHED, map[string]interface{}{"reason": "flush", "calls": len(r.pending)})
	handlers := r.handlersLocked()
	r.mu.Unlock()

	if err == nil {
		notify(handlers, t)
	}
}

// reset empties the batch and rejects every still-pending Future with a
// single shared BatchDiscarded error. Returns the number of rejected calls.
func (r *Recorder) reset() (int, error) {
	r.mu.Lock()
	if r.state.current == FLUSHING {
		r.mu.Unlock()
		return 0, errFlushInProgress("reset")
	}

	pending := r.pending
	r.pending = nil

	var transition *StateTransition
	if r.state.current != IDLE {
		if t, err := r.state.transitionTo(IDLE, map[string]interface{}{"reason": "reset", "calls": len(pending)}); err == nil {
			transition = &t
		}
	}
	handlers := r.handlersLocked()
	r.mu.Unlock()

	discarded := 0
	if len(pending) > 0 {
		discardErr := errBatchDiscarded(len(pending))
		for _, p := range pending {
			if p.Completer.Reject(discardErr) {
				discarded++
			}
		}
	}

	if transition != nil {
		notify(handlers, *transition)
	}
	return discarded, nil
}

func (r *Recorder) handlersLocked() []StateChangeHandler {
	if len(r.state.handlers) == 0 {
		return nil
	}
	handlers := make([]StateChangeHandler, len(r.state.handlers))
	copy(handlers, r.state.handlers)
	return handlers
}

func specsOf(pending []Pending) []wire.CallSpec {
	specs := make([]wire.CallSpec, len(pending))
	for i, p := range pending {
		specs[i] = p.Spec
		specs[i].Request = *p.Spec.Request.Clone()
	}
	return specs
}
