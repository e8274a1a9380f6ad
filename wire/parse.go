package wire

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dan-strohschein/adt-batch/transport"
)

// ParseError reports a combined response that cannot be decoded
type ParseError struct {
	Part   int // -1 when not tied to a part
	Reason string
	Cause  error
}

func (e *ParseError) Error() string {
	msg := "malformed batch response: " + e.Reason
	if e.Part >= 0 {
		msg = fmt.Sprintf("malformed batch response: part %d: %s", e.Part, e.Reason)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// Parse decodes a combined response, reading the boundary from its content type
func Parse(body []byte, contentType string) ([]transport.Response, error) {
	boundary, err := BoundaryFromContentType(contentType)
	if err != nil {
		return nil, err
	}
	return ParseParts(body, boundary)
}

// ParseParts splits body on boundary and decodes each part's embedded
// HTTP response, preserving part order. Text before the first delimiter and
// after the closing delimiter is ignored. CRLF and bare LF line endings are
// both accepted.
func ParseParts(body []byte, boundary string) ([]transport.Response, error) {
	if boundary == "" {
		return nil, &ParseError{Part: -1, Reason: "empty boundary"}
	}
	parts := splitParts(string(body), "--"+boundary)

	results := make([]transport.Response, 0, len(parts))
	for i, p := range parts {
		resp, err := parsePart(p)
		if err != nil {
			err.Part = i
			return nil, err
		}
		results = append(results, resp)
	}
	return results, nil
}

// splitParts returns the raw content of each part between delimiter lines
func splitParts(text, delim string) []string {
	var parts []string
	start := -1

	for pos := 0; pos <= len(text); {
		lineEnd := strings.IndexByte(text[pos:], '\n')
		var line string
		next := len(text) + 1
		if lineEnd >= 0 {
			line = text[pos : pos+lineEnd]
			next = pos + lineEnd + 1
		} else {
			line = text[pos:]
		}

		if kind := delimiterKind(line, delim); kind != notDelimiter {
			if start >= 0 {
				parts = append(parts, trimLineEnding(text[start:pos]))
			}
			if kind == closeDelimiter {
				return parts
			}
			start = next
			if start > len(text) {
				start = len(text)
			}
		}
		pos = next
	}

	// No closing delimiter: the last part runs to the end of the body
	if start >= 0 && start < len(text) {
		if rest := trimLineEnding(text[start:]); strings.TrimSpace(rest) != "" {
			parts = append(parts, rest)
		}
	}
	return parts
}

type delimKind int

const (
	notDelimiter delimKind = iota
	partDelimiter
	closeDelimiter
)

func delimiterKind(line, delim string) delimKind {
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, delim) {
		return notDelimiter
	}
	rest := line[len(delim):]
	closing := strings.HasPrefix(rest, "--")
	if closing {
		rest = rest[2:]
	}
	// Transport padding is allowed after the delimiter
	if strings.Trim(rest, " \t") != "" {
		return notDelimiter
	}
	if closing {
		return closeDelimiter
	}
	return partDelimiter
}

// trimLineEnding removes the single line break that belongs to the next delimiter
func trimLineEnding(s string) string {
	if strings.HasSuffix(s, "\r\n") {
		return s[:len(s)-2]
	}
	return strings.TrimSuffix(s, "\n")
}

func nextLine(s string) (line, rest string) {
	i := strings.IndexByte(s, '\n')
	if i < 0 {
		return s, ""
	}
	return strings.TrimSuffix(s[:i], "\r"), s[i+1:]
}

func parsePart(raw string) (transport.Response, *ParseError) {
	var resp transport.Response

	// Wrapper headers (Content-Type: application/http, ...) end at the first blank line
	rest := raw
	for {
		if rest == "" {
			return resp, &ParseError{Part: -1, Reason: "part has no embedded response"}
		}
		var line string
		line, rest = nextLine(rest)
		if line == "" {
			break
		}
	}

	statusLine, rest := nextLine(rest)
	code, text, perr := parseStatusLine(statusLine)
	if perr != nil {
		return resp, perr
	}
	resp.StatusCode = code
	resp.StatusText = text

	for rest != "" {
		var line string
		line, rest = nextLine(rest)
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return resp, &ParseError{Part: -1, Reason: fmt.Sprintf("invalid header line %q", line)}
		}
		resp.Header.Add(strings.TrimSpace(name), trimHeaderSpace(value))
	}

	resp.Body = rest
	return resp, nil
}

// trimHeaderSpace drops the one optional space or tab after the colon.
// Anything beyond it belongs to the value.
func trimHeaderSpace(value string) string {
	if value != "" && (value[0] == ' ' || value[0] == '\t') {
		return value[1:]
	}
	return value
}

func parseStatusLine(line string) (int, string, *ParseError) {
	if !strings.HasPrefix(line, "HTTP/") {
		return 0, "", &ParseError{Part: -1, Reason: fmt.Sprintf("missing status line, got %q", line)}
	}
	fields := strings.SplitN(line, " ", 3)
	if len(fields) < 2 {
		return 0, "", &ParseError{Part: -1, Reason: fmt.Sprintf("incomplete status line %q", line)}
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil || code < 100 || code > 999 {
		return 0, "", &ParseError{Part: -1, Reason: fmt.Sprintf("invalid status code in %q", line), Cause: err}
	}
	text := ""
	if len(fields) == 3 {
		text = strings.TrimSpace(fields[2])
	}
	return code, text, nil
}
