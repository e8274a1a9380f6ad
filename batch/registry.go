package batch

import (
	"github.com/dan-strohschein/adt-batch/transport"
)

// Resolve completes pending[i] with results[i] for every position, in order.
//
// A call's own Request.Success predicate decides the outcome; calls without
// one use fallback, and 2xx when fallback is nil. Accepted records fulfill
// the Future, others reject it with a *CallError wrapping the record.
//
// When the lengths differ no positional pairing exists: nothing is completed
// and an ErrPartCountMismatch error is returned.
func Resolve(results []transport.Response, pending []Pending, fallback transport.StatusPredicate) (fulfilled, rejected int, err error) {
	if len(results) != len(pending) {
		return 0, 0, errPartCountMismatch(len(pending), len(results))
	}
	if fallback == nil {
		fallback = transport.Success2xx
	}

	for i := range pending {
		p := pending[i]
		record := results[i]
		record.Header = record.Header.Clone()

		accept := p.Spec.Request.Success
		if accept == nil {
			accept = fallback
		}

		if accept(record.StatusCode) {
			if p.Completer.Fulfill(&record) {
				fulfilled++
			}
			continue
		}

		callErr := &CallError{
			Position: p.Spec.Position,
			Method:   p.Spec.Request.Method,
			Path:     p.Spec.Request.Path,
			Response: &record,
		}
		if p.Completer.Reject(callErr) {
			rejected++
		}
	}
	return fulfilled, rejected, nil
}

// rejectAll rejects every still-pending Future with the same error and
// returns how many were rejected.
func rejectAll(pending []Pending, err error) int {
	n := 0
	for _, p := range pending {
		if p.Completer.Reject(err) {
			n++
		}
	}
	return n
}
