package batch

import (
	"github.com/dan-strohschein/adt-batch/logging"
	"github.com/dan-strohschein/adt-batch/transport"
	"github.com/dan-strohschein/adt-batch/wire"
)

const (
	// DefaultEndpoint is the service path that accepts multipart batches.
	DefaultEndpoint = "/sap/bc/adt/debugger/batch"

	// DefaultMaxCalls bounds the number of calls captured in one batch.
	DefaultMaxCalls = 1000

	// DefaultMaxPayloadBytes bounds the encoded batch body.
	DefaultMaxPayloadBytes = 8 << 20
)

// Options configures a Batch.
type Options struct {
	// Endpoint is the path the combined request is posted to.
	// Default: /sap/bc/adt/debugger/batch
	Endpoint string

	// MaxCalls is the maximum number of calls in one batch.
	// Captures beyond it are rejected with ErrBatchTooLarge.
	// Default: 1000
	MaxCalls int

	// MaxPayloadBytes is the maximum size of the encoded body.
	// A larger batch fails at flush with ErrBatchTooLarge and nothing is sent.
	// Default: 8 MiB
	MaxPayloadBytes int

	// Success classifies part statuses for calls that carry no predicate of
	// their own. Default: 2xx.
	Success transport.StatusPredicate

	// Header holds extra headers for the outer request (session, CSRF token).
	Header transport.Fields

	// Logger is the logger implementation to use.
	// If nil, a no-op logger is used.
	Logger logging.Logger

	// Metrics records flush and call outcomes. Nil disables recording.
	Metrics *Metrics

	// BoundaryFunc draws the boundary for each flush. Default: wire.NewBoundary
	BoundaryFunc func() string

	// DebugMode logs structural errors with full details and stack traces.
	// Default: false
	DebugMode bool
}

// Option mutates Options.
type Option func(*Options)

// DefaultOptions returns Options with default values.
func DefaultOptions() Options {
	return Options{
		Endpoint:        DefaultEndpoint,
		MaxCalls:        DefaultMaxCalls,
		MaxPayloadBytes: DefaultMaxPayloadBytes,
		Success:         transport.Success2xx,
		BoundaryFunc:    wire.NewBoundary,
	}
}

// WithEndpoint sets the path the combined request is posted to.
func WithEndpoint(path string) Option {
	return func(o *Options) { o.Endpoint = path }
}

// WithMaxCalls sets the maximum number of calls per batch.
func WithMaxCalls(n int) Option {
	return func(o *Options) { o.MaxCalls = n }
}

// WithMaxPayloadBytes sets the maximum encoded body size.
func WithMaxPayloadBytes(n int) Option {
	return func(o *Options) { o.MaxPayloadBytes = n }
}

// WithSuccess sets the fallback status predicate.
func WithSuccess(p transport.StatusPredicate) Option {
	return func(o *Options) { o.Success = p }
}

// WithHeader adds a header to the outer request.
func WithHeader(name, value string) Option {
	return func(o *Options) { o.Header.Add(name, value) }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *Metrics) Option {
	return func(o *Options) { o.Metrics = m }
}

// WithBoundaryFunc overrides boundary generation, e.g. for golden tests.
func WithBoundaryFunc(fn func() string) Option {
	return func(o *Options) { o.BoundaryFunc = fn }
}

// WithDebugMode toggles verbose error logging.
func WithDebugMode(on bool) Option {
	return func(o *Options) { o.DebugMode = on }
}
