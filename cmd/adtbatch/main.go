// Command adtbatch builds, sends and decodes multipart/mixed ADT batches.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		printError(err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "adtbatch",
		Short: "Build, send and decode ADT multipart batches",
		Long: "adtbatch renders a JSON call file into one multipart/mixed batch request,\n" +
			"sends it to an ADT endpoint, and decodes combined batch responses.\n\n" +
			"Environment Variables:\n" +
			"  ADT_BASE_URL         Service root, e.g. https://host:44300\n" +
			"  ADT_BATCH_ENDPOINT   Batch endpoint path (default: /sap/bc/adt/debugger/batch)\n" +
			"  ADT_LOG_LEVEL        DEBUG, INFO, WARN or ERROR (default: WARN)",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newBuildCmd(),
		newSendCmd(),
		newParseCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "adtbatch v%s\n", version)
		},
	}
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
