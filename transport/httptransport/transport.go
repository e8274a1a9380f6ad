// Package httptransport is the direct transport.Connection: every request is
// performed immediately over net/http.
package httptransport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dan-strohschein/adt-batch/logging"
	"github.com/dan-strohschein/adt-batch/transport"
)

// Options configures the HTTP connection
type Options struct {
	// BaseURL is the service root, e.g. https://host:44300
	BaseURL string

	// Timeout bounds each request. Default: 30s
	Timeout time.Duration

	// Client overrides the HTTP client. Its Timeout is left untouched.
	Client *http.Client

	// Header is added to every request before the request's own headers
	Header transport.Fields

	// Logger receives request diagnostics. Default: no-op
	Logger logging.Logger
}

// Connection implements transport.Connection over HTTP
type Connection struct {
	opts    Options
	base    *url.URL
	client  *http.Client
	logger  logging.Logger
	metrics connMetrics
}

type connMetrics struct {
	totalRequests atomic.Int64
	totalErrors   atomic.Int64
	bytesSent     atomic.Int64
	bytesReceived atomic.Int64
	latencySum    atomic.Int64 // nanoseconds
	lastError     error
	lastErrorTime time.Time
	mu            sync.RWMutex
}

// New creates a direct HTTP connection
func New(opts Options) (*Connection, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", opts.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q must use http or https", opts.BaseURL)
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNoopLogger()
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &Connection{
		opts:   opts,
		base:   base,
		client: client,
		logger: opts.Logger.WithFields(logging.String("component", "http-connection")),
	}, nil
}

// NewFactory returns a transport.Factory that validates opts and creates a
// connection on each call
func NewFactory(opts Options) transport.Factory {
	return func(ctx context.Context) (transport.Connection, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return New(opts)
	}
}

// PerformRequest implements transport.Connection. It blocks until the
// exchange completes and returns an already completed Future.
func (c *Connection) PerformRequest(ctx context.Context, req *transport.Request) *transport.Future {
	resp, err := c.do(ctx, req)
	if err != nil {
		c.recordError(err)
		return transport.Failed(err)
	}

	accept := req.Success
	if accept == nil {
		accept = transport.Success2xx
	}
	if !accept(resp.StatusCode) {
		err := &transport.StatusError{Method: req.Method, Path: req.Path, Response: resp}
		c.recordError(err)
		return transport.Failed(err)
	}
	return transport.Resolved(resp)
}

func (c *Connection) do(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	if req == nil || req.Method == "" || !strings.HasPrefix(req.Path, "/") {
		return nil, transport.InvalidRequestError("request needs a method and an absolute path", nil)
	}

	start := time.Now()
	c.metrics.totalRequests.Add(1)

	target := c.base.String() + req.Path
	if qs := req.QueryString(); qs != "" {
		target += "?" + qs
	}

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, strings.ToUpper(req.Method), target, body)
	if err != nil {
		return nil, transport.InvalidRequestError(err.Error(), map[string]interface{}{"url": target})
	}
	for _, h := range c.opts.Header {
		httpReq.Header.Add(h.Name, h.Value)
	}
	for _, h := range req.Header {
		httpReq.Header.Add(h.Name, h.Value)
	}

	c.logger.Debug("performing request",
		logging.String("method", httpReq.Method),
		logging.String("path", req.Path),
		logging.Int("bodyBytes", len(req.Body)))

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, transport.TimeoutError("request timed out", err)
		}
		return nil, transport.ConnectionError("request failed", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, transport.NewTransportError(transport.ErrorCodeReadBody, "failed to read response body", nil, err)
	}

	c.metrics.bytesSent.Add(int64(len(req.Body)))
	c.metrics.bytesReceived.Add(int64(len(data)))
	c.metrics.latencySum.Add(int64(time.Since(start)))

	return &transport.Response{
		StatusCode: httpResp.StatusCode,
		StatusText: strings.TrimSpace(strings.TrimPrefix(httpResp.Status, fmt.Sprint(httpResp.StatusCode))),
		Header:     sortedFields(httpResp.Header),
		Body:       string(data),
	}, nil
}

// sortedFields flattens an http.Header in a stable order
func sortedFields(h http.Header) transport.Fields {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(transport.Fields, 0, len(h))
	for _, name := range names {
		for _, v := range h[name] {
			out = append(out, transport.Field{Name: name, Value: v})
		}
	}
	return out
}

func (c *Connection) recordError(err error) {
	c.metrics.totalErrors.Add(1)
	c.metrics.mu.Lock()
	c.metrics.lastError = err
	c.metrics.lastErrorTime = time.Now()
	c.metrics.mu.Unlock()
	c.logger.Warn("request failed", logging.Error("error", err))
}

// Close releases idle connections
func (c *Connection) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// GetMetrics returns connection performance counters
func (c *Connection) GetMetrics() transport.Metrics {
	c.metrics.mu.RLock()
	lastErr := c.metrics.lastError
	lastErrTime := c.metrics.lastErrorTime
	c.metrics.mu.RUnlock()

	totalReqs := c.metrics.totalRequests.Load()
	avgLatency := time.Duration(0)
	if totalReqs > 0 {
		avgLatency = time.Duration(c.metrics.latencySum.Load() / totalReqs)
	}

	return transport.Metrics{
		TotalRequests:  totalReqs,
		TotalErrors:    c.metrics.totalErrors.Load(),
		AverageLatency: avgLatency,
		LastError:      lastErr,
		LastErrorTime:  lastErrTime,
		BytesSent:      c.metrics.bytesSent.Load(),
		BytesReceived:  c.metrics.bytesReceived.Load(),
	}
}
