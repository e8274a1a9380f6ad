package main

import (
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dan-strohschein/adt-batch/transport"
	"github.com/dan-strohschein/adt-batch/wire"
)

func newParseCmd() *cobra.Command {
	var (
		contentType string
		file        string
		bodies      bool
	)

	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Decode a captured multipart/mixed batch response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(file)
			if err != nil {
				return err
			}
			results, err := wire.Parse(data, contentType)
			if err != nil {
				return err
			}
			printResults(cmd.OutOrStdout(), results, nil, bodies)
			return nil
		},
	}

	cmd.Flags().StringVar(&contentType, "content-type", "", "Content-Type of the response, carrying its boundary")
	cmd.Flags().StringVarP(&file, "file", "f", "-", "response body file, - for stdin")
	cmd.Flags().BoolVar(&bodies, "bodies", false, "print each part's body")
	_ = cmd.MarkFlagRequired("content-type")
	return cmd
}

// printResults prints one row per Result Record. reqs, when given, labels
// each row with the call it answers.
func printResults(w io.Writer, results []transport.Response, reqs []*transport.Request, bodies bool) {
	headers := []string{"#", "STATUS", "TEXT", "BYTES"}
	if reqs != nil {
		headers = append(headers, "CALL")
	}

	rows := make([][]string, len(results))
	for i, r := range results {
		row := []string{strconv.Itoa(i), colorStatus(r.StatusCode), r.StatusText, strconv.Itoa(len(r.Body))}
		if reqs != nil && i < len(reqs) {
			row = append(row, reqs[i].Method+" "+reqs[i].Path)
		}
		rows[i] = row
	}
	printTable(w, headers, rows)

	if !bodies {
		return
	}
	for i, r := range results {
		io.WriteString(w, "\n")
		printHeader(w, "part "+strconv.Itoa(i))
		for _, h := range r.Header {
			io.WriteString(w, h.Name+": "+h.Value+"\n")
		}
		io.WriteString(w, "\n"+r.Body+"\n")
	}
}
