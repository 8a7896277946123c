package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := notifyContext(context.Background())
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cellgraph",
		Short: "Cell graph connectivity engine",
		Long: `cellgraph maintains the connectivity graphs of simulation cells placed
in a chunked 3-D world.

It runs scripted world edits (scenarios), persists graphs and chunks to
SQLite or bbolt, and renders topology snapshots as text, DOT or JSON.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.cellgraph/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Override logging.level (info, debug, trace)")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newGraphsCmd(),
		newInspectCmd(),
		newEventsCmd(),
		newConfigCmd(),
	)
	return rootCmd
}
