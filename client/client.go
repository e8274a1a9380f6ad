// Package client issues object operations against an ADT-style server.
//
// Every operation builds one transport.Request and hands it to the
// Connection the client was created with. The Connection decides when the
// request actually runs, so the same call site works against a direct
// connection or a batch recorder:
//
//	objects := client.New(b.Connection())
//	lock := objects.Lock(ctx, uri)
//	src := objects.ReadSource(ctx, uri)
//	_, err := b.Flush(ctx)
//	res, err := lock.Wait(ctx)
package client

import (
	"context"
	"strings"

	"github.com/dan-strohschein/adt-batch/logging"
	"github.com/dan-strohschein/adt-batch/transport"
)

// Client issues object operations through a transport.Connection.
type Client struct {
	conn   transport.Connection
	opts   ClientOptions
	logger logging.Logger
}

// New creates a client on conn.
func New(conn transport.Connection, opts ...Option) *Client {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.Logger
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Client{
		conn:   conn,
		opts:   o,
		logger: logger.WithFields(logging.String("component", "client")),
	}
}

// Connection returns the connection requests are issued on.
func (c *Client) Connection() transport.Connection {
	return c.conn
}

func (c *Client) do(ctx context.Context, req *transport.Request) *transport.Future {
	for _, h := range c.opts.Header {
		if _, ok := req.Header.Lookup(h.Name); !ok {
			req.Header.Add(h.Name, h.Value)
		}
	}
	c.logger.Debug("issuing request",
		logging.String("method", req.Method),
		logging.String("path", req.Path))
	return c.conn.PerformRequest(ctx, req)
}

// Lock acquires a modification lock on the object at uri.
func (c *Client) Lock(ctx context.Context, uri string) *Result[LockResult] {
	req := &transport.Request{
		Method: "POST",
		Path:   uri,
		Query:  transport.NewFields("_action", "LOCK", "accessMode", "MODIFY"),
		Header: transport.NewFields(
			"Accept", "application/*,application/vnd.sap.as+xml;charset=UTF-8;dataname=com.sap.adt.lock.result",
		),
	}
	return newResult(c.do(ctx, req), decodeLock)
}

// Unlock releases the lock identified by handle.
func (c *Client) Unlock(ctx context.Context, uri, handle string) *Result[struct{}] {
	req := &transport.Request{
		Method: "POST",
		Path:   uri,
		Query:  transport.NewFields("_action", "UNLOCK", "lockHandle", handle),
	}
	return newResult(c.do(ctx, req), discard)
}

// ReadSource reads the main source of a source-based object.
func (c *Client) ReadSource(ctx context.Context, uri string) *Result[string] {
	req := &transport.Request{
		Method: "GET",
		Path:   sourcePath(uri),
		Header: transport.NewFields("Accept", "text/plain"),
	}
	return newResult(c.do(ctx, req), body)
}

// WriteSource replaces the main source of a locked object. transportNr may be
// empty for local objects.
func (c *Client) WriteSource(ctx context.Context, uri, source, handle, transportNr string) *Result[struct{}] {
	query := transport.NewFields("lockHandle", handle)
	if transportNr != "" {
		query.Add("corrNr", transportNr)
	}
	req := &transport.Request{
		Method: "PUT",
		Path:   sourcePath(uri),
		Query:  query,
		Header: transport.NewFields("Content-Type", "text/plain; charset=utf-8"),
		Body:   source,
	}
	return newResult(c.do(ctx, req), discard)
}

// Exists reports whether the object at uri exists. A 404 is an answer here,
// not a failure.
func (c *Client) Exists(ctx context.Context, uri string) *Result[bool] {
	req := &transport.Request{
		Method:  "GET",
		Path:    uri,
		Success: transport.AcceptStatus(404),
	}
	return newResult(c.do(ctx, req), func(resp *transport.Response) (bool, error) {
		return resp.StatusCode != 404, nil
	})
}

// Activate activates the given objects in one run.
func (c *Client) Activate(ctx context.Context, objs ...ObjectReference) *Result[ActivationResult] {
	payload, err := encodeObjectReferences(objs)
	if err != nil {
		return newResult(transport.Failed(transport.NewTransportError(transport.ErrorCodeInvalidRequest, "cannot encode object references", nil, err)), decodeActivation)
	}
	req := &transport.Request{
		Method: "POST",
		Path:   c.opts.ActivationPath,
		Query:  transport.NewFields("method", "activate", "preauditRequested", "true"),
		Header: transport.NewFields("Content-Type", "application/xml"),
		Body:   payload,
	}
	return newResult(c.do(ctx, req), decodeActivation)
}

// Delete removes a locked object.
func (c *Client) Delete(ctx context.Context, uri, handle, transportNr string) *Result[struct{}] {
	query := transport.NewFields("lockHandle", handle)
	if transportNr != "" {
		query.Add("corrNr", transportNr)
	}
	req := &transport.Request{
		Method: "DELETE",
		Path:   uri,
		Query:  query,
	}
	return newResult(c.do(ctx, req), discard)
}

func sourcePath(uri string) string {
	if strings.HasSuffix(uri, "/source/main") {
		return uri
	}
	return strings.TrimSuffix(uri, "/") + "/source/main"
}
