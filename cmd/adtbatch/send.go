package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dan-strohschein/adt-batch/batch"
	"github.com/dan-strohschein/adt-batch/logging"
	"github.com/dan-strohschein/adt-batch/transport"
	"github.com/dan-strohschein/adt-batch/transport/httptransport"
)

func newSendCmd() *cobra.Command {
	var (
		callsPath string
		baseURL   string
		endpoint  string
		headers   []string
		timeout   time.Duration
		logLevel  string
		bodies    bool
		debug     bool
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Flush a call file as one batch against a live endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs, err := readCalls(callsPath)
			if err != nil {
				return err
			}
			extra, err := parseHeaders(headers)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			logger := logging.NewLogger(logLevel, os.Stderr)
			connect := httptransport.NewFactory(httptransport.Options{
				BaseURL: baseURL,
				Timeout: timeout,
				Logger:  logger,
			})
			conn, err := connect(ctx)
			if err != nil {
				return err
			}
			if c, ok := conn.(io.Closer); ok {
				defer c.Close()
			}

			opts := []batch.Option{
				batch.WithEndpoint(endpoint),
				batch.WithLogger(logger),
				batch.WithDebugMode(debug),
			}
			for _, h := range extra {
				opts = append(opts, batch.WithHeader(h.Name, h.Value))
			}

			return sendBatch(ctx, cmd, batch.New(conn, opts...), reqs, bodies, debug)
		},
	}

	cmd.Flags().StringVarP(&callsPath, "calls", "c", "", "JSON call file, - for stdin")
	cmd.Flags().StringVar(&baseURL, "base-url", envOr("ADT_BASE_URL", ""), "service root URL")
	cmd.Flags().StringVar(&endpoint, "endpoint", envOr("ADT_BATCH_ENDPOINT", batch.DefaultEndpoint), "batch endpoint path")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra outer header as Name:Value (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")
	cmd.Flags().StringVar(&logLevel, "log-level", envOr("ADT_LOG_LEVEL", "WARN"), "log level")
	cmd.Flags().BoolVar(&bodies, "bodies", false, "print each result body")
	cmd.Flags().BoolVar(&debug, "debug", false, "log structural failures with full detail")
	return cmd
}

// sendBatch captures reqs on b, flushes once and prints every result.
func sendBatch(ctx context.Context, cmd *cobra.Command, b *batch.Batch, reqs []*transport.Request, bodies, debug bool) error {
	futures := make([]*transport.Future, len(reqs))
	for i, r := range reqs {
		futures[i] = b.Connection().PerformRequest(ctx, r)
	}

	results, err := b.Flush(ctx)
	if err != nil {
		if debug {
			printTransportCause(cmd.ErrOrStderr(), err)
		}
		return fmt.Errorf("batch failed: %s", batch.FormatError(err, false))
	}
	printResults(cmd.OutOrStdout(), results, reqs, bodies)

	failed := 0
	for _, f := range futures {
		var callErr *batch.CallError
		if _, err := f.Peek(); errors.As(err, &callErr) {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d calls failed", failed, len(reqs))
	}
	return nil
}

// printTransportCause writes the structured connection-layer cause of a
// failed flush, if there is one.
func printTransportCause(w io.Writer, err error) {
	var terr *transport.TransportError
	if !errors.As(err, &terr) {
		return
	}
	data, jerr := terr.ToJSON()
	if jerr != nil {
		return
	}
	fmt.Fprintf(w, "transport error: %s\n", data)
}

func parseHeaders(raw []string) (transport.Fields, error) {
	var out transport.Fields
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q, want Name:Value", h)
		}
		out.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return out, nil
}
