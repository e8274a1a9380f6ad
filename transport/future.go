package transport

import (
	"context"
	"sync"
)

// Future is a handle to the result of a request that may not have completed yet.
// It is completed exactly once, through the Completer created with it.
type Future struct {
	done chan struct{}
	once sync.Once
	resp *Response
	err  error
}

// Completer is the single completion surface of a Future.
// Only the party that created the Future holds it.
type Completer struct {
	f *Future
}

// NewFuture creates an unresolved Future and its Completer
func NewFuture() (*Future, Completer) {
	f := &Future{done: make(chan struct{})}
	return f, Completer{f: f}
}

// Resolved returns a Future already fulfilled with resp
func Resolved(resp *Response) *Future {
	f, c := NewFuture()
	c.Fulfill(resp)
	return f
}

// Failed returns a Future already rejected with err
func Failed(err error) *Future {
	f, c := NewFuture()
	c.Reject(err)
	return f
}

// Fulfill completes the Future with resp.
// Returns false if the Future was already completed.
func (c Completer) Fulfill(resp *Response) bool {
	return c.f.complete(resp, nil)
}

// Reject completes the Future with err.
// Returns false if the Future was already completed.
func (c Completer) Reject(err error) bool {
	return c.f.complete(nil, err)
}

// Future returns the Future this Completer completes
func (c Completer) Future() *Future {
	return c.f
}

func (f *Future) complete(resp *Response, err error) bool {
	completed := false
	f.once.Do(func() {
		f.resp = resp
		f.err = err
		close(f.done)
		completed = true
	})
	return completed
}

// Done returns a channel that is closed once the Future is completed
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the Future is completed or ctx is done
func (f *Future) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ready reports whether the Future has been completed
func (f *Future) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Peek returns the result without blocking, or ErrNotReady while unresolved
func (f *Future) Peek() (*Response, error) {
	if !f.Ready() {
		return nil, ErrNotReady
	}
	return f.resp, f.err
}
