// Package mock provides a scripted transport.Connection for tests
package mock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dan-strohschein/adt-batch/transport"
)

// Handler computes the response to one request
type Handler func(req *transport.Request) (*transport.Response, error)

// Connection implements transport.Connection for testing.
// Requests are answered synchronously; the returned Future is always completed.
type Connection struct {
	// Behavior configuration
	err       error
	handler   Handler
	responses []*transport.Response
	delay     time.Duration

	// Call tracking
	calls      atomic.Int32
	closeCalls atomic.Int32

	metrics mockMetrics
	mu      sync.RWMutex
	closed  bool
	history []*transport.Request
}

type mockMetrics struct {
	totalRequests atomic.Int64
	totalErrors   atomic.Int64
	bytesSent     atomic.Int64
	bytesReceived atomic.Int64
}

// NewConnection creates a new mock connection
func NewConnection() *Connection {
	return &Connection{
		history: make([]*transport.Request, 0),
	}
}

// WithError configures every request to fail with err
func (m *Connection) WithError(err error) *Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithResponse queues a response. Queued responses are returned in order;
// the last one is repeated once the queue is drained.
func (m *Connection) WithResponse(resp *transport.Response) *Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	return m
}

// WithHandler answers requests with fn. Takes precedence over queued responses.
func (m *Connection) WithHandler(fn Handler) *Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = fn
	return m
}

// WithDelay adds a delay before each request is answered
func (m *Connection) WithDelay(delay time.Duration) *Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = delay
	return m
}

// PerformRequest implements transport.Connection
func (m *Connection) PerformRequest(ctx context.Context, req *transport.Request) *transport.Future {
	m.calls.Add(1)
	m.metrics.totalRequests.Add(1)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.metrics.totalErrors.Add(1)
		return transport.Failed(transport.ConnectionError("connection is closed", nil))
	}
	m.history = append(m.history, req.Clone())
	delay := m.delay
	m.mu.Unlock()

	m.metrics.bytesSent.Add(int64(len(req.Body)))

	if delay > 0 {
		select {
		case <-ctx.Done():
			m.metrics.totalErrors.Add(1)
			return transport.Failed(transport.TimeoutError("request cancelled", ctx.Err()))
		case <-time.After(delay):
		}
	}

	resp, err := m.answer(req)
	if err != nil {
		m.metrics.totalErrors.Add(1)
		return transport.Failed(err)
	}
	m.metrics.bytesReceived.Add(int64(len(resp.Body)))

	accept := req.Success
	if accept == nil {
		accept = transport.Success2xx
	}
	if !accept(resp.StatusCode) {
		m.metrics.totalErrors.Add(1)
		return transport.Failed(&transport.StatusError{Method: req.Method, Path: req.Path, Response: resp})
	}
	return transport.Resolved(resp)
}

func (m *Connection) answer(req *transport.Request) (*transport.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	if m.handler != nil {
		return m.handler(req)
	}
	switch len(m.responses) {
	case 0:
		return nil, transport.TimeoutError(fmt.Sprintf("no response scripted for %s %s", req.Method, req.Path), nil)
	case 1:
		return m.responses[0], nil
	default:
		resp := m.responses[0]
		m.responses = m.responses[1:]
		return resp, nil
	}
}

// Close marks the connection closed; later requests fail
func (m *Connection) Close() error {
	m.closeCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// IsClosed returns whether the connection has been closed
func (m *Connection) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// GetMetrics returns the connection counters
func (m *Connection) GetMetrics() transport.Metrics {
	return transport.Metrics{
		TotalRequests: m.metrics.totalRequests.Load(),
		TotalErrors:   m.metrics.totalErrors.Load(),
		BytesSent:     m.metrics.bytesSent.Load(),
		BytesReceived: m.metrics.bytesReceived.Load(),
	}
}

// GetCallCount returns the number of times PerformRequest was called
func (m *Connection) GetCallCount() int {
	return int(m.calls.Load())
}

// GetHistory returns copies of every request performed
func (m *Connection) GetHistory() []*transport.Request {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := make([]*transport.Request, len(m.history))
	copy(history, m.history)
	return history
}

// LastRequest returns the most recent request, or nil
func (m *Connection) LastRequest() *transport.Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.history) == 0 {
		return nil
	}
	return m.history[len(m.history)-1]
}

// Reset clears all state and call counts
func (m *Connection) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.err = nil
	m.handler = nil
	m.responses = nil
	m.delay = 0
	m.closed = false

	m.calls.Store(0)
	m.closeCalls.Store(0)
	m.metrics.totalRequests.Store(0)
	m.metrics.totalErrors.Store(0)
	m.metrics.bytesSent.Store(0)
	m.metrics.bytesReceived.Store(0)

	m.history = make([]*transport.Request, 0)
}
