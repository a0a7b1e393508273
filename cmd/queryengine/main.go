// cmd/queryengine is the operator CLI: start the HTTP server, run a
// one-shot export from the command line, or print the live statistics
// snapshot without needing a running server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "queryengine",
	Short: "Query engine operator CLI",
	Long:  "queryengine serves the query API, runs one-shot exports, and reports live statistics.",
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(statsCmd)
}
