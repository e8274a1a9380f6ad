// Package wire encodes captured calls into a multipart/mixed batch body and
// decodes the combined response back into per-call results.
package wire

import (
	"bytes"
	"strings"
	"sync"

	"github.com/cespare/xxhash"

	"github.com/dan-strohschein/adt-batch/transport"
)

const (
	// CRLF terminates every line of the batch framing
	CRLF = "\r\n"

	// PartContentType is the wrapper content type of every part
	PartContentType = "application/http"

	// HTTPVersion is the protocol tag of embedded request and status lines
	HTTPVersion = "HTTP/1.1"
)

// CallSpec is one captured request and its position in the batch
type CallSpec struct {
	Position int
	Request  transport.Request
}

var bufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// Build renders calls as one multipart/mixed body delimited by boundary.
// Output is a pure function of its inputs.
func Build(calls []CallSpec, boundary string) []byte {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	for i := range calls {
		writePart(buf, &calls[i].Request, boundary)
	}
	buf.WriteString("--")
	buf.WriteString(boundary)
	buf.WriteString("--")
	buf.WriteString(CRLF)

	// Return a copy since the buffer is reused
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result
}

func writePart(buf *bytes.Buffer, req *transport.Request, boundary string) {
	buf.WriteString("--")
	buf.WriteString(boundary)
	buf.WriteString(CRLF)
	buf.WriteString("Content-Type: " + PartContentType + CRLF)
	buf.WriteString("content-transfer-encoding: binary" + CRLF)
	buf.WriteString(CRLF)

	buf.WriteString(strings.ToUpper(req.Method))
	buf.WriteByte(' ')
	buf.WriteString(req.Path)
	if qs := req.QueryString(); qs != "" {
		buf.WriteByte('?')
		buf.WriteString(qs)
	}
	buf.WriteByte(' ')
	buf.WriteString(HTTPVersion)
	buf.WriteString(CRLF)

	for _, h := range req.Header {
		buf.WriteString(h.Name)
		buf.WriteByte(':')
		buf.WriteString(h.Value)
		buf.WriteString(CRLF)
	}
	buf.WriteString(CRLF)

	if req.Body != "" {
		buf.WriteString(req.Body)
		buf.WriteString(CRLF)
	}
}

// Fingerprint returns a stable 64-bit digest of a payload, used to identify
// exactly what a flush sent when correlating logs.
func Fingerprint(payload []byte) uint64 {
	return xxhash.Sum64(payload)
}
