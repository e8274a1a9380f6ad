package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dan-strohschein/adt-batch/transport"
	"github.com/dan-strohschein/adt-batch/wire"
)

// callEntry is one element of a call file:
//
//	[{"method": "GET", "path": "/a", "query": [["k", "v"]], "headers": [["Accept", "text/plain"]], "body": ""}]
type callEntry struct {
	Method  string      `json:"method"`
	Path    string      `json:"path"`
	Query   [][2]string `json:"query,omitempty"`
	Headers [][2]string `json:"headers,omitempty"`
	Body    string      `json:"body,omitempty"`
}

func (e callEntry) request() *transport.Request {
	req := &transport.Request{
		Method: strings.ToUpper(e.Method),
		Path:   e.Path,
		Body:   e.Body,
	}
	for _, q := range e.Query {
		req.Query.Add(q[0], q[1])
	}
	for _, h := range e.Headers {
		req.Header.Add(h[0], h[1])
	}
	return req
}

// decodeCalls reads a JSON call file. Order in the file is batch order.
func decodeCalls(r io.Reader) ([]*transport.Request, error) {
	var entries []callEntry
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode call file: %w", err)
	}

	reqs := make([]*transport.Request, 0, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.Method) == "" {
			return nil, fmt.Errorf("call %d: method is required", i)
		}
		if !strings.HasPrefix(e.Path, "/") {
			return nil, fmt.Errorf("call %d: path %q must start with /", i, e.Path)
		}
		for _, h := range e.Headers {
			if h[0] == "" || strings.ContainsAny(h[0], ":\r\n") {
				return nil, fmt.Errorf("call %d: invalid header name %q", i, h[0])
			}
		}
		reqs = append(reqs, e.request())
	}
	return reqs, nil
}

// readCalls loads a call file from path, or stdin when path is "-".
func readCalls(path string) ([]*transport.Request, error) {
	if path == "" {
		return nil, fmt.Errorf("--calls is required")
	}
	if path == "-" {
		return decodeCalls(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeCalls(f)
}

func callSpecs(reqs []*transport.Request) []wire.CallSpec {
	specs := make([]wire.CallSpec, len(reqs))
	for i, r := range reqs {
		specs[i] = wire.CallSpec{Position: i, Request: *r}
	}
	return specs
}

// readInput reads path, or stdin when path is "-".
func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
