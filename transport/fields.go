package transport

import (
	"net/url"
	"strings"
)

// Field is a single name/value pair
type Field struct {
	Name  string
	Value string
}

// Fields is an ordered multi-map of name/value pairs.
// Order is preserved exactly as added; it is how headers and query
// parameters appear on the wire.
type Fields []Field

// NewFields builds Fields from alternating name, value arguments.
// A trailing name without a value is ignored.
func NewFields(kv ...string) Fields {
	f := make(Fields, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		f = append(f, Field{Name: kv[i], Value: kv[i+1]})
	}
	return f
}

// Add appends a pair, keeping any existing pairs with the same name
func (f *Fields) Add(name, value string) {
	*f = append(*f, Field{Name: name, Value: value})
}

// Set replaces the value of the first pair named name (case-insensitive),
// removing later duplicates, or appends the pair if absent.
func (f *Fields) Set(name, value string) {
	out := (*f)[:0]
	found := false
	for _, fld := range *f {
		if strings.EqualFold(fld.Name, name) {
			if found {
				continue
			}
			fld.Value = value
			found = true
		}
		out = append(out, fld)
	}
	if !found {
		out = append(out, Field{Name: name, Value: value})
	}
	*f = out
}

// Get returns the first value for name, compared case-insensitively
func (f Fields) Get(name string) string {
	v, _ := f.Lookup(name)
	return v
}

// Lookup returns the first value for name and whether it was present
func (f Fields) Lookup(name string) (string, bool) {
	for _, fld := range f {
		if strings.EqualFold(fld.Name, name) {
			return fld.Value, true
		}
	}
	return "", false
}

// Len returns the number of pairs
func (f Fields) Len() int {
	return len(f)
}

// Clone returns an independent copy
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	c := make(Fields, len(f))
	copy(c, f)
	return c
}

// Encode renders the pairs as a URL query string in insertion order
func (f Fields) Encode() string {
	if len(f) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, fld := range f {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(fld.Name))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(fld.Value))
	}
	return sb.String()
}
