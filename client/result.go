package client

import (
	"context"

	"github.com/dan-strohschein/adt-batch/transport"
)

// Result is the typed outcome of one client operation. It resolves when the
// underlying transport Future does: immediately on a direct connection, at
// flush time on a batch.
type Result[T any] struct {
	future *transport.Future
	decode func(*transport.Response) (T, error)
}

func newResult[T any](f *transport.Future, decode func(*transport.Response) (T, error)) *Result[T] {
	return &Result[T]{future: f, decode: decode}
}

// Wait blocks until the operation completes or ctx is done, then decodes
// the response.
func (r *Result[T]) Wait(ctx context.Context) (T, error) {
	resp, err := r.future.Wait(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return r.decode(resp)
}

// Done is closed once the operation has completed.
func (r *Result[T]) Done() <-chan struct{} {
	return r.future.Done()
}

// Future exposes the raw transport Future.
func (r *Result[T]) Future() *transport.Future {
	return r.future
}

func discard(*transport.Response) (struct{}, error) {
	return struct{}{}, nil
}

func body(resp *transport.Response) (string, error) {
	return resp.Body, nil
}
