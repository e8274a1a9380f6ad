package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dan-strohschein/adt-batch/testutil"
	"github.com/dan-strohschein/adt-batch/transport"
	"github.com/dan-strohschein/adt-batch/transport/mock"
)

func fixedBoundary(b string) Option {
	return WithBoundaryFunc(func() string { return b })
}

func get(path string) *transport.Request {
	return &transport.Request{Method: "GET", Path: path}
}

func waitAll(t *testing.T, futures []*transport.Future) ([]*transport.Response, []error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resps := make([]*transport.Response, len(futures))
	errs := make([]error, len(futures))
	for i, f := range futures {
		require.True(t, f.Ready(), "future %d left unresolved", i)
		resps[i], errs[i] = f.Wait(ctx)
	}
	return resps, errs
}

func TestFlushTwoCallScenario(t *testing.T) {
	conn := mock.NewConnection().WithResponse(testutil.BatchReply("srv_42",
		testutil.Part(200, "OK", "<a/>"),
		testutil.Part(201, "Created", "", "Location", "/b/1"),
	))
	b := New(conn, fixedBoundary("batch_1"))
	ctx := context.Background()

	rc := b.Connection()
	f1 := rc.PerformRequest(ctx, get("/a"))
	f2 := rc.PerformRequest(ctx, &transport.Request{Method: "POST", Path: "/b", Body: "x"})
	assert.False(t, f1.Ready())
	assert.False(t, f2.Ready())
	assert.Equal(t, 0, conn.GetCallCount(), "capture must not perform I/O")

	results, err := b.Flush(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, 1, conn.GetCallCount())

	sent := conn.LastRequest()
	assert.Equal(t, "POST", sent.Method)
	assert.Equal(t, DefaultEndpoint, sent.Path)
	assert.Equal(t, "multipart/mixed; boundary=batch_1", sent.Header.Get("Content-Type"))
	assert.Equal(t, "multipart/mixed", sent.Header.Get("Accept"))
	assert.Equal(t, "--batch_1\r\n"+
		"Content-Type: application/http\r\n"+
		"content-transfer-encoding: binary\r\n"+
		"\r\n"+
		"GET /a HTTP/1.1\r\n"+
		"\r\n"+
		"--batch_1\r\n"+
		"Content-Type: application/http\r\n"+
		"content-transfer-encoding: binary\r\n"+
		"\r\n"+
		"POST /b HTTP/1.1\r\n"+
		"\r\n"+
		"x\r\n"+
		"--batch_1--\r\n", sent.Body)

	resps, errs := waitAll(t, []*transport.Future{f1, f2})
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 200, resps[0].StatusCode)
	assert.Equal(t, 201, resps[1].StatusCode)
	assert.Equal(t, "/b/1", resps[1].Header.Get("Location"))
	assert.Equal(t, "", resps[1].Body, "response body must not echo the request body")
	assert.Equal(t, FLUSHED, b.State())
}

func TestPositionalFidelity(t *testing.T) {
	for n := 0; n <= 6; n++ {
		t.Run(fmt.Sprintf("calls=%d", n), func(t *testing.T) {
			statuses := make([]int, n)
			for i := range statuses {
				statuses[i] = 200 + i
			}
			conn := testutil.EchoBatchConnection(statuses...)
			b := New(conn)
			ctx := context.Background()

			futures := make([]*transport.Future, n)
			for i := 0; i < n; i++ {
				futures[i] = b.Connection().PerformRequest(ctx, get(fmt.Sprintf("/obj/%d", i)))
			}

			results, err := b.Flush(ctx)
			require.NoError(t, err)
			require.Len(t, results, n)

			resps, errs := waitAll(t, futures)
			for i := 0; i < n; i++ {
				require.NoError(t, errs[i])
				assert.Equal(t, 200+i, resps[i].StatusCode)
				assert.Equal(t, fmt.Sprintf("body-%d", i), resps[i].Body)
				assert.Equal(t, fmt.Sprint(i), resps[i].Header.Get("X-Part"))
				assert.Equal(t, results[i].Body, resps[i].Body)
			}
		})
	}
}

func TestFlushEmptyBatchPerformsNoRequest(t *testing.T) {
	conn := mock.NewConnection()
	b := New(conn)

	results, err := b.Flush(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Equal(t, 0, conn.GetCallCount())
	assert.Equal(t, FLUSHED, b.State())
}

func TestResetRejectsPendingAndRestartsAtZero(t *testing.T) {
	conn := testutil.EchoBatchConnection(200)
	b := New(conn)
	ctx := context.Background()

	var futures []*transport.Future
	for i := 0; i < 3; i++ {
		futures = append(futures, b.Connection().PerformRequest(ctx, get(fmt.Sprintf("/%d", i))))
	}
	require.Equal(t, CAPTURING, b.State())

	require.NoError(t, b.Reset())
	assert.Equal(t, IDLE, b.State())
	assert.Equal(t, 0, b.Len())

	_, errs := waitAll(t, futures)
	for i, err := range errs {
		assert.ErrorIs(t, err, ErrBatchDiscarded, "future %d", i)
	}
	assert.Same(t, errs[0], errs[2], "every pending call gets the same discard reason")

	f := b.Connection().PerformRequest(ctx, get("/fresh"))
	calls := b.Connection().Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 0, calls[0].Position)

	_, err := b.Flush(ctx)
	require.NoError(t, err)
	resp, err := f.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 1, conn.GetCallCount())
}

func TestResetOnEmptyBatch(t *testing.T) {
	b := New(mock.NewConnection())
	require.NoError(t, b.Reset())
	require.NoError(t, b.Reset())
	assert.Equal(t, IDLE, b.State())
}

func TestPartCountMismatchRejectsEverything(t *testing.T) {
	for _, parts := range []int{0, 1, 3} {
		t.Run(fmt.Sprintf("parts=%d", parts), func(t *testing.T) {
			statuses := make([]int, parts)
			for i := range statuses {
				statuses[i] = 200
			}
			b := New(testutil.EchoBatchConnection(statuses...))
			ctx := context.Background()

			futures := []*transport.Future{
				b.Connection().PerformRequest(ctx, get("/a")),
				b.Connection().PerformRequest(ctx, get("/b")),
			}

			results, err := b.Flush(ctx)
			assert.Nil(t, results)
			require.ErrorIs(t, err, ErrPartCountMismatch)

			var berr *BatchError
			require.True(t, errors.As(err, &berr))
			assert.Equal(t, 2, berr.Details["expected"])
			assert.Equal(t, parts, berr.Details["actual"])

			_, errs := waitAll(t, futures)
			for _, ferr := range errs {
				assert.Same(t, err, ferr)
			}
		})
	}
}

func TestCaptureAfterFlushIsProtocolMisuse(t *testing.T) {
	b := New(testutil.EchoBatchConnection(200))
	ctx := context.Background()

	b.Connection().PerformRequest(ctx, get("/a"))
	_, err := b.Flush(ctx)
	require.NoError(t, err)

	_, err = b.Connection().PerformRequest(ctx, get("/late")).Wait(ctx)
	require.ErrorIs(t, err, ErrProtocolMisuse)
	assert.Equal(t, 1, b.Len(), "rejected capture must not be recorded")

	_, err = b.Flush(ctx)
	require.ErrorIs(t, err, ErrProtocolMisuse)

	require.NoError(t, b.Reset())
	f := b.Connection().PerformRequest(ctx, get("/again"))
	assert.False(t, f.Ready())
	assert.Equal(t, CAPTURING, b.State())
}

func TestFlushIsNotReentrant(t *testing.T) {
	conn := testutil.EchoBatchConnection(200).WithDelay(100 * time.Millisecond)
	b := New(conn)
	ctx := context.Background()
	f := b.Connection().PerformRequest(ctx, get("/a"))

	started := make(chan struct{})
	b.OnStateChange(func(tr StateTransition) {
		if tr.To == FLUSHING {
			close(started)
		}
	})

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = b.Flush(ctx)
	}()

	<-started
	_, err := b.Flush(ctx)
	assert.ErrorIs(t, err, ErrFlushInProgress)
	assert.ErrorIs(t, b.Reset(), ErrFlushInProgress)
	_, err = b.Connection().PerformRequest(ctx, get("/during")).Wait(ctx)
	assert.ErrorIs(t, err, ErrFlushInProgress)

	wg.Wait()
	require.NoError(t, firstErr)
	assert.Equal(t, 1, conn.GetCallCount())
	resp, err := f.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestPerCallFailuresAreIsolated(t *testing.T) {
	b := New(testutil.EchoBatchConnection(200, 500, 404))
	ctx := context.Background()
	rc := b.Connection()

	ok := rc.PerformRequest(ctx, get("/ok"))
	broken := rc.PerformRequest(ctx, &transport.Request{Method: "DELETE", Path: "/broken"})
	probe := rc.PerformRequest(ctx, &transport.Request{Method: "GET", Path: "/maybe", Success: transport.AcceptStatus(404)})

	results, err := b.Flush(ctx)
	require.NoError(t, err, "per-call failures must not fail the flush")
	require.Len(t, results, 3)

	resps, errs := waitAll(t, []*transport.Future{ok, broken, probe})
	require.NoError(t, errs[0])
	assert.Equal(t, 200, resps[0].StatusCode)

	var callErr *CallError
	require.True(t, errors.As(errs[1], &callErr))
	assert.Equal(t, 1, callErr.Position)
	assert.Equal(t, "/broken", callErr.Path)
	assert.Equal(t, 500, callErr.Response.StatusCode)
	assert.Equal(t, "body-1", callErr.Response.Body)

	var statusErr *transport.StatusError
	require.True(t, errors.As(errs[1], &statusErr), "call errors should read as status errors")
	assert.Equal(t, 500, statusErr.Response.StatusCode)

	require.NoError(t, errs[2])
	assert.Equal(t, 404, resps[2].StatusCode)
}

func TestFallbackSuccessPredicate(t *testing.T) {
	b := New(testutil.EchoBatchConnection(404), WithSuccess(func(code int) bool { return code < 500 }))
	ctx := context.Background()
	f := b.Connection().PerformRequest(ctx, get("/x"))

	_, err := b.Flush(ctx)
	require.NoError(t, err)
	resp, err := f.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestMaxCalls(t *testing.T) {
	b := New(testutil.EchoBatchConnection(200, 200), WithMaxCalls(2))
	ctx := context.Background()

	b.Connection().PerformRequest(ctx, get("/1"))
	b.Connection().PerformRequest(ctx, get("/2"))
	_, err := b.Connection().PerformRequest(ctx, get("/3")).Wait(ctx)
	require.ErrorIs(t, err, ErrBatchTooLarge)
	assert.Equal(t, 2, b.Len())

	_, err = b.Flush(ctx)
	require.NoError(t, err)
}

func TestZeroBoundsDisableLimits(t *testing.T) {
	n := DefaultMaxCalls + 1
	statuses := make([]int, n)
	for i := range statuses {
		statuses[i] = 200
	}
	b := New(testutil.EchoBatchConnection(statuses...), WithMaxCalls(0), WithMaxPayloadBytes(0))
	ctx := context.Background()

	for i := 0; i < n; i++ {
		b.Connection().PerformRequest(ctx, get("/x"))
	}
	require.Equal(t, n, b.Len())

	results, err := b.Flush(ctx)
	require.NoError(t, err)
	assert.Len(t, results, n)
}

func TestMaxPayloadBytes(t *testing.T) {
	conn := testutil.EchoBatchConnection(200)
	b := New(conn, WithMaxPayloadBytes(64))
	ctx := context.Background()

	f := b.Connection().PerformRequest(ctx, &transport.Request{Method: "PUT", Path: "/big", Body: string(make([]byte, 128))})
	_, err := b.Flush(ctx)
	require.ErrorIs(t, err, ErrBatchTooLarge)
	assert.Equal(t, 0, conn.GetCallCount(), "oversized batches are not sent")

	_, ferr := f.Wait(ctx)
	assert.Same(t, err, ferr)
}

func TestStructuralTransportFailures(t *testing.T) {
	tests := []struct {
		name string
		conn *mock.Connection
		want error
	}{
		{
			name: "transport error",
			conn: mock.NewConnection().WithError(transport.ConnectionError("refused", nil)),
			want: ErrTransportFailure,
		},
		{
			name: "outer status rejected",
			conn: mock.NewConnection().WithResponse(&transport.Response{StatusCode: 403, StatusText: "Forbidden"}),
			want: ErrTransportFailure,
		},
		{
			name: "missing content type",
			conn: mock.NewConnection().WithResponse(&transport.Response{StatusCode: 200, Body: "--x--"}),
			want: ErrMalformedResponse,
		},
		{
			name: "undecodable part",
			conn: mock.NewConnection().WithResponse(&transport.Response{
				StatusCode: 200,
				Header:     transport.NewFields("Content-Type", "multipart/mixed; boundary=x"),
				Body:       "--x\r\nContent-Type: application/http\r\n\r\nnot a status line\r\n--x--",
			}),
			want: ErrMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(tt.conn)
			ctx := context.Background()
			f1 := b.Connection().PerformRequest(ctx, get("/a"))
			f2 := b.Connection().PerformRequest(ctx, get("/b"))

			_, err := b.Flush(ctx)
			require.ErrorIs(t, err, tt.want)

			_, errs := waitAll(t, []*transport.Future{f1, f2})
			assert.Same(t, err, errs[0])
			assert.Same(t, err, errs[1])
			assert.Equal(t, FLUSHED, b.State())
		})
	}
}

func TestOuterStatusDetails(t *testing.T) {
	b := New(mock.NewConnection().WithResponse(&transport.Response{StatusCode: 403, StatusText: "Forbidden"}))
	ctx := context.Background()
	b.Connection().PerformRequest(ctx, get("/a"))

	_, err := b.Flush(ctx)
	var berr *BatchError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, 403, berr.Details["status"])

	var serr *transport.StatusError
	assert.True(t, errors.As(err, &serr))
}

func TestOuterHeadersAndEndpoint(t *testing.T) {
	conn := testutil.EchoBatchConnection(200)
	b := New(conn,
		WithEndpoint("/sap/bc/adt/batch"),
		WithHeader("X-CSRF-Token", "tok"),
		WithHeader("Content-Type", "ignored/override"),
	)
	ctx := context.Background()
	b.Connection().PerformRequest(ctx, get("/a"))

	_, err := b.Flush(ctx)
	require.NoError(t, err)

	sent := conn.LastRequest()
	assert.Equal(t, "/sap/bc/adt/batch", sent.Path)
	assert.Equal(t, "tok", sent.Header.Get("X-CSRF-Token"))
	assert.Contains(t, sent.Header.Get("Content-Type"), "multipart/mixed; boundary=batch_")
}

func TestFreshBoundaryPerFlush(t *testing.T) {
	conn := testutil.EchoBatchConnection(200)
	b := New(conn)
	ctx := context.Background()

	var seen []string
	for i := 0; i < 3; i++ {
		b.Connection().PerformRequest(ctx, get("/a"))
		_, err := b.Flush(ctx)
		require.NoError(t, err)
		seen = append(seen, conn.LastRequest().Header.Get("Content-Type"))
		require.NoError(t, b.Reset())
	}
	assert.NotEqual(t, seen[0], seen[1])
	assert.NotEqual(t, seen[1], seen[2])
}

func TestCapturedSpecsAreImmutable(t *testing.T) {
	b := New(testutil.EchoBatchConnection(200))
	ctx := context.Background()

	req := &transport.Request{Method: "GET", Path: "/a", Query: transport.NewFields("q", "1")}
	b.Connection().PerformRequest(ctx, req)
	req.Path = "/mutated"
	req.Query.Set("q", "2")

	calls := b.Connection().Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/a", calls[0].Request.Path)
	assert.Equal(t, "1", calls[0].Request.Query.Get("q"))

	calls[0].Request.Query.Set("q", "3")
	assert.Equal(t, "1", b.Connection().Calls()[0].Request.Query.Get("q"))
}

func TestCaptureWithCancelledContext(t *testing.T) {
	b := New(mock.NewConnection())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Connection().PerformRequest(ctx, get("/a")).Wait(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, b.Len())
}

func TestStateTransitions(t *testing.T) {
	b := New(testutil.EchoBatchConnection(200))
	ctx := context.Background()

	var got []string
	b.OnStateChange(func(tr StateTransition) {
		got = append(got, tr.From.String()+"->"+tr.To.String())
	})

	b.Connection().PerformRequest(ctx, get("/a"))
	b.Connection().PerformRequest(ctx, get("/b"))
	_, _ = b.Flush(ctx)
	require.NoError(t, b.Reset())

	assert.Equal(t, []string{
		"IDLE->CAPTURING",
		"CAPTURING->FLUSHING",
		"FLUSHING->FLUSHED",
		"FLUSHED->IDLE",
	}, got)
}

func TestResolveMismatchCompletesNothing(t *testing.T) {
	f, c := transport.NewFuture()
	pending := []Pending{{Completer: c}}

	_, _, err := Resolve(nil, pending, nil)
	require.ErrorIs(t, err, ErrPartCountMismatch)
	assert.False(t, f.Ready())
}

func TestResolveSkipsCompletedFutures(t *testing.T) {
	f1, c1 := transport.NewFuture()
	f2, c2 := transport.NewFuture()
	c1.Reject(errors.New("already done"))

	fulfilled, rejected, err := Resolve(
		[]transport.Response{testutil.Part(200, "OK", "a"), testutil.Part(200, "OK", "b")},
		[]Pending{{Completer: c1}, {Completer: c2}},
		nil,
	)
	require.NoError(t, err)
	assert.Equal(t, 1, fulfilled)
	assert.Equal(t, 0, rejected)

	_, err = f1.Wait(context.Background())
	assert.EqualError(t, err, "already done")
	resp, err := f2.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b", resp.Body)
}

func TestRun(t *testing.T) {
	conn := testutil.EchoBatchConnection(200, 201)
	ctx := context.Background()

	var futures []*transport.Future
	results, err := Run(ctx, conn, func(c transport.Connection) error {
		futures = append(futures, c.PerformRequest(ctx, get("/a")))
		futures = append(futures, c.PerformRequest(ctx, get("/b")))
		return nil
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	resps, errs := waitAll(t, futures)
	require.NoError(t, errs[1])
	assert.Equal(t, 201, resps[1].StatusCode)

	boom := errors.New("boom")
	var dropped *transport.Future
	_, err = Run(ctx, conn, func(c transport.Connection) error {
		dropped = c.PerformRequest(ctx, get("/c"))
		return boom
	})
	require.ErrorIs(t, err, boom)
	_, err = dropped.Wait(ctx)
	assert.ErrorIs(t, err, ErrBatchDiscarded)
	assert.Equal(t, 1, conn.GetCallCount())
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	ctx := context.Background()

	b := New(testutil.EchoBatchConnection(200, 500), WithMetrics(m))
	b.Connection().PerformRequest(ctx, get("/a"))
	b.Connection().PerformRequest(ctx, get("/b"))
	_, err := b.Flush(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Reset())
	b.Connection().PerformRequest(ctx, get("/c"))
	require.NoError(t, b.Reset())

	_, err = b.Flush(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1.0, promtest.ToFloat64(m.flushes.WithLabelValues(FlushOK)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.flushes.WithLabelValues(FlushEmpty)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.calls.WithLabelValues(CallFulfilled)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.calls.WithLabelValues(CallRejected)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.calls.WithLabelValues(CallDiscarded)))

	var nilMetrics *Metrics
	nilMetrics.observeFlush(FlushOK, time.Second, 10)
	nilMetrics.addCalls(CallFulfilled, 1)
}

func BenchmarkFlush(b *testing.B) {
	const calls = 50
	statuses := make([]int, calls)
	for i := range statuses {
		statuses[i] = 200
	}
	conn := testutil.EchoBatchConnection(statuses...)
	ctx := context.Background()
	bt := New(conn)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for j := 0; j < calls; j++ {
			bt.Connection().PerformRequest(ctx, get("/sap/bc/adt/programs/programs/zfoo/source/main"))
		}
		if _, err := bt.Flush(ctx); err != nil {
			b.Fatal(err)
		}
		if err := bt.Reset(); err != nil {
			b.Fatal(err)
		}
	}
}
