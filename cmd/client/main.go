// Command client is a thin RPC client for a vecring backend or router: it
// dials a single websocket endpoint and issues one put or search request
// per invocation.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "client",
	Short: "vecring RPC client",
	Long: `client dials a vecring backend or router over its RPC websocket
endpoint and issues a single put or search request.

Examples:
  client --url ws://localhost:8080/rpc put --id 1 --vector 0.1,0.2,0.3
  client --url ws://localhost:8080/rpc search --vector 0.1,0.2,0.3 --k 5
  client --context prod search --file request.yaml

Use 'client config' to save named endpoints so you don't have to repeat
--url on every call.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.AddCommand(putCmd, searchCmd, snapshotCmd, configCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
