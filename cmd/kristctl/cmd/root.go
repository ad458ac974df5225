// Package cmd contains the kristctl commands. They talk to a running node
// through its loopback bridge.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tmpim/krist/internal/bridge"
)

var (
	bridgeURL string
	timeout   time.Duration
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&bridgeURL, "bridge", "b", "http://127.0.0.1:8081", "Address of the node's bridge server.")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout.")
}

var rootCmd = &cobra.Command{
	Use:           "kristctl",
	Short:         "Control a running Krist node",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func client() *bridge.Client {
	return bridge.NewClient(bridgeURL)
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}
