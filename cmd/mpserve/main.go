// Command mpserve runs and inspects the media server.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags.
var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mpserve",
		Short:         "Embedded HTTP server for a media library",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(newServeCmd(), newCatalogCmd(), newRenderCmd())

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
