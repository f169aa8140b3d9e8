// Command tiltctl inspects orientation math, unlock regions and recorded
// event logs, and watches a sensor source live.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "tiltctl",
		Short:        "Tools for the tiltlock tilt-to-unlock service",
		Version:      version,
		SilenceUsage: true,
	}
	root.AddCommand(newComputeCmd(), newRegionCmd(), newSummaryCmd(), newWatchCmd())
	return root
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
