// File: cmd/relayd/main.go
// Command relayd runs the epoll fan-out relay server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "relayd: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := defaultServeOptions()

	root := &cobra.Command{
		Use:   "relayd",
		Short: "TCP fan-out relay",
		Long: `relayd accepts TCP clients on one port and forwards every chunk a
client sends to all other connected clients. A client that sends the
six byte command "quit\r\n" is disconnected.

Examples:
  relayd
  relayd --port=7000 --admin=127.0.0.1:9091
  relayd --host=127.0.0.1 --log-format=json --log-level=debug`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts, cmd.ErrOrStderr())
		},
	}
	opts.bind(root)

	root.AddCommand(versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "relayd %s (%s)\n", version, commit)
		},
	}
}
