package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dan-strohschein/adt-batch/wire"
)

func newBuildCmd() *cobra.Command {
	var (
		callsPath string
		boundary  string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Render a call file as a batch payload without sending it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs, err := readCalls(callsPath)
			if err != nil {
				return err
			}
			if boundary == "" {
				boundary = wire.NewBoundary()
			}

			payload := wire.Build(callSpecs(reqs), boundary)
			fmt.Fprintf(cmd.ErrOrStderr(), "Content-Type: %s\n", wire.ContentType(boundary))
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %d calls, %d bytes, fingerprint %016x\n",
				colorDim("#"), len(reqs), len(payload), wire.Fingerprint(payload))
			_, err = cmd.OutOrStdout().Write(payload)
			return err
		},
	}

	cmd.Flags().StringVarP(&callsPath, "calls", "c", "", "JSON call file, - for stdin")
	cmd.Flags().StringVar(&boundary, "boundary", "", "boundary to use (default: random)")
	return cmd
}
