// Package batch turns ordinary one-call-per-round-trip code into a single
// multipart exchange.
//
// Call sites issue requests through the transport.Connection returned by
// Batch.Connection. Each call is captured and answered with an unresolved
// Future. Flush then encodes all captured calls into one multipart/mixed
// request, performs it through the real connection, decodes the combined
// response and completes every Future with the result at its position.
//
// Example usage:
//
//	b := batch.New(httpConn)
//	objects := client.New(b.Connection())
//	lock := objects.Lock(ctx, "/sap/bc/adt/programs/programs/zfoo")
//	src := objects.ReadSource(ctx, "/sap/bc/adt/programs/programs/zfoo")
//	if _, err := b.Flush(ctx); err != nil {
//	    return err // the whole batch failed
//	}
//	res, err := lock.Wait(ctx) // per-call outcome
package batch

import (
	"context"
	"time"

	"github.com/dan-strohschein/adt-batch/logging"
	"github.com/dan-strohschein/adt-batch/transport"
	"github.com/dan-strohschein/adt-batch/wire"
)

// Batch is the facade owning one Recorder and the real connection it flushes to.
type Batch struct {
	conn    transport.Connection
	rec     *Recorder
	opts    Options
	logger  logging.Logger
	metrics *Metrics
}

// New creates a batch that flushes through conn.
func New(conn transport.Connection, opts ...Option) *Batch {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = logging.NewNoopLogger()
	}
	if o.BoundaryFunc == nil {
		o.BoundaryFunc = wire.NewBoundary
	}
	if o.Endpoint == "" {
		o.Endpoint = DefaultEndpoint
	}
	logger := o.Logger.WithFields(logging.String("component", "batch"))

	return &Batch{
		conn:    conn,
		rec:     newRecorder(o.MaxCalls, logger),
		opts:    o,
		logger:  logger,
		metrics: o.Metrics,
	}
}

// Connection returns the recording connection call sites should use.
func (b *Batch) Connection() *Recorder {
	return b.rec
}

// State returns the current batch state.
func (b *Batch) State() BatchState {
	return b.rec.State()
}

// Len returns the number of captured calls.
func (b *Batch) Len() int {
	return b.rec.Len()
}

// OnStateChange registers a handler invoked after each state transition.
func (b *Batch) OnStateChange(h StateChangeHandler) {
	b.rec.OnStateChange(h)
}

// Flush performs the single real exchange for every captured call and
// completes their Futures in capture order. It returns the Result Records in
// position order.
//
// Flush only fails for structural problems: an oversized batch, a failed or
// rejected outer exchange, an undecodable response, or a part count that does
// not match the captured calls. In that case every pending Future is rejected
// with the returned error. A call whose own status is not accepted is
// reported through its Future only.
//
// After Flush the batch is FLUSHED; Reset it before capturing again.
func (b *Batch) Flush(ctx context.Context) ([]transport.Response, error) {
	pending, err := b.rec.beginFlush()
	if err != nil {
		return nil, err
	}
	defer b.rec.finishFlush()

	start := time.Now()
	if len(pending) == 0 {
		b.logger.Debug("flushing empty batch")
		b.metrics.observeFlush(FlushEmpty, 0, 0)
		return []transport.Response{}, nil
	}

	boundary := b.opts.BoundaryFunc()
	payload := wire.Build(specsOf(pending), boundary)

	logger := b.logger.WithFields(
		logging.String("boundary", boundary),
		logging.Int("calls", len(pending)),
		logging.Uint64("fingerprint", wire.Fingerprint(payload)),
	)

	results, err := b.exchange(ctx, logger, boundary, payload)
	if err == nil && len(results) != len(pending) {
		err = errPartCountMismatch(len(pending), len(results))
	}

	if err != nil {
		return nil, b.fail(logger, pending, start, len(payload), err)
	}

	fulfilled, rejected, err := Resolve(results, pending, b.opts.Success)
	if err != nil {
		return nil, b.fail(logger, pending, start, len(payload), err)
	}

	duration := time.Since(start)
	b.metrics.observeFlush(FlushOK, duration, len(payload))
	b.metrics.addCalls(CallFulfilled, fulfilled)
	b.metrics.addCalls(CallRejected, rejected)

	logger.Info("batch flushed",
		logging.Int("fulfilled", fulfilled),
		logging.Int("rejected", rejected),
		logging.Duration("duration", duration))

	return results, nil
}

// exchange performs the one real request and decodes its parts.
func (b *Batch) exchange(ctx context.Context, logger logging.Logger, boundary string, payload []byte) ([]transport.Response, error) {
	if b.opts.MaxPayloadBytes > 0 && len(payload) > b.opts.MaxPayloadBytes {
		return nil, errBatchTooLarge("payload bytes", b.opts.MaxPayloadBytes, len(payload))
	}

	logger.Info("flushing batch", logging.Int("payloadBytes", len(payload)))

	header := b.opts.Header.Clone()
	header.Set("Content-Type", wire.ContentType(boundary))
	header.Set("Accept", "multipart/mixed")

	outer := &transport.Request{
		Method:  "POST",
		Path:    b.opts.Endpoint,
		Header:  header,
		Body:    string(payload),
		Success: transport.Success2xx,
	}

	resp, err := b.conn.PerformRequest(ctx, outer).Wait(ctx)
	if err != nil {
		return nil, errTransportFailure(err)
	}

	results, err := wire.Parse([]byte(resp.Body), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, errMalformedResponse(err)
	}
	return results, nil
}

// fail rejects every pending Future with err and records the failure.
func (b *Batch) fail(logger logging.Logger, pending []Pending, start time.Time, payload int, err error) error {
	aborted := rejectAll(pending, err)
	b.metrics.observeFlush(FlushFailed, time.Since(start), payload)
	b.metrics.addCalls(CallAborted, aborted)

	logger.Error("batch flush failed",
		logging.Int("aborted", aborted),
		logging.String("error", FormatError(err, b.opts.DebugMode)))
	return err
}

// Reset discards all captured calls, rejects every still-pending Future with
// ErrBatchDiscarded, and readies the batch to capture position 0 again.
// It is safe on an empty batch and fails with ErrFlushInProgress during a flush.
func (b *Batch) Reset() error {
	discarded, err := b.rec.reset()
	if err != nil {
		return err
	}
	if discarded > 0 {
		b.metrics.addCalls(CallDiscarded, discarded)
		b.logger.Info("batch discarded", logging.Int("discarded", discarded))
	}
	return nil
}

// Run captures every call fn issues through its connection and flushes them
// in one exchange. If fn fails the batch is discarded and fn's error returned.
func Run(ctx context.Context, conn transport.Connection, fn func(transport.Connection) error, opts ...Option) ([]transport.Response, error) {
	b := New(conn, opts...)
	if err := fn(b.Connection()); err != nil {
		_ = b.Reset()
		return nil, err
	}
	return b.Flush(ctx)
}
