// Package testutil fabricates combined batch responses and scripted
// connections for tests.
package testutil

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/dan-strohschein/adt-batch/transport"
	"github.com/dan-strohschein/adt-batch/transport/mock"
)

// Part builds a Result Record with alternating header name/value pairs
func Part(status int, text, body string, headerKV ...string) transport.Response {
	return transport.Response{
		StatusCode: status,
		StatusText: text,
		Header:     transport.NewFields(headerKV...),
		Body:       body,
	}
}

// MultipartResponse renders parts the way the remote service frames a
// combined batch response.
func MultipartResponse(boundary string, parts ...transport.Response) string {
	var sb strings.Builder
	sb.WriteString("preamble ignored by readers\r\n")
	for _, p := range parts {
		fmt.Fprintf(&sb, "--%s\r\n", boundary)
		sb.WriteString("Content-Type: application/http\r\n")
		sb.WriteString("content-transfer-encoding: binary\r\n")
		sb.WriteString("\r\n")
		fmt.Fprintf(&sb, "HTTP/1.1 %d %s\r\n", p.StatusCode, p.StatusText)
		for _, h := range p.Header {
			fmt.Fprintf(&sb, "%s:%s\r\n", h.Name, h.Value)
		}
		sb.WriteString("\r\n")
		if p.Body != "" {
			sb.WriteString(p.Body)
			sb.WriteString("\r\n")
		}
	}
	fmt.Fprintf(&sb, "--%s--", boundary)
	return sb.String()
}

// BatchReply wraps a combined response body in the outer 200 response
func BatchReply(boundary string, parts ...transport.Response) *transport.Response {
	return &transport.Response{
		StatusCode: 200,
		StatusText: "OK",
		Header:     transport.NewFields("Content-Type", "multipart/mixed; boundary="+boundary),
		Body:       MultipartResponse(boundary, parts...),
	}
}

// ReplyBoundary is the boundary EchoBatchConnection answers with. It never
// equals a generated request boundary.
const ReplyBoundary = "reply_boundary"

// EchoBatchConnection returns a mock connection answering every batch request
// with one part per status. Part i carries body "body-i" and header X-Part: i.
func EchoBatchConnection(statuses ...int) *mock.Connection {
	conn := mock.NewConnection()
	conn.WithHandler(func(req *transport.Request) (*transport.Response, error) {
		parts := make([]transport.Response, len(statuses))
		for i, s := range statuses {
			parts[i] = Part(s, StatusText(s), fmt.Sprintf("body-%d", i), "X-Part", fmt.Sprint(i))
		}
		return BatchReply(ReplyBoundary, parts...), nil
	})
	return conn
}

// StatusText returns the reason phrase for code
func StatusText(code int) string {
	return http.StatusText(code)
}
