// Package transport defines the connection capability used by the ADT client
package transport

import (
	"context"
	"time"
)

// Connection is the capability every object-client call site issues requests through.
// A direct implementation performs the request right away; a recording
// implementation buffers it and completes the returned Future later.
type Connection interface {
	// PerformRequest issues req and returns a handle to its eventual result
	PerformRequest(ctx context.Context, req *Request) *Future
}

// StatusPredicate decides whether a response status counts as success for a call
type StatusPredicate func(statusCode int) bool

// Success2xx accepts any 2xx status
func Success2xx(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// AcceptStatus returns a predicate accepting 2xx plus the listed codes.
// Useful for existence probes where 404 is an answer, not a failure.
func AcceptStatus(codes ...int) StatusPredicate {
	return func(statusCode int) bool {
		if Success2xx(statusCode) {
			return true
		}
		for _, c := range codes {
			if c == statusCode {
				return true
			}
		}
		return false
	}
}

// Request describes one call against the remote service
type Request struct {
	// Method is the HTTP method (GET, POST, PUT, DELETE, ...)
	Method string

	// Path is the absolute service path, without query string
	Path string

	// Query holds query parameters in the order they are rendered
	Query Fields

	// Header holds request headers in the order they are rendered
	Header Fields

	// Body is the request body. Empty means no body.
	Body string

	// Success classifies the response status. Nil falls back to the
	// connection's default, which is 2xx.
	Success StatusPredicate
}

// Clone returns a deep copy of the request
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	c.Query = r.Query.Clone()
	c.Header = r.Header.Clone()
	return &c
}

// QueryString renders the query parameters, without the leading '?'
func (r *Request) QueryString() string {
	return r.Query.Encode()
}

// Response is the decoded outcome of one call
type Response struct {
	StatusCode int
	StatusText string
	Header     Fields
	Body       string
}

// Metrics contains performance and health counters of a connection
type Metrics struct {
	// TotalRequests is the total number of requests performed
	TotalRequests int64

	// TotalErrors is the total number of failed requests
	TotalErrors int64

	// AverageLatency is the average round-trip latency
	AverageLatency time.Duration

	// LastError is the most recent error encountered
	LastError error

	// LastErrorTime is when the last error occurred
	LastErrorTime time.Time

	// BytesSent is the total request body bytes sent
	BytesSent int64

	// BytesReceived is the total response body bytes received
	BytesReceived int64
}

// Factory creates new connection instances
type Factory func(ctx context.Context) (Connection, error)
