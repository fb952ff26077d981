package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sidkik/dfsync/pkg/version"
)

// New creates a new `version` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of dfsync.",
		Long: "Print the version of dfsync, and the name of the wire protocol\n" +
			"it speaks. Clients and servers must speak the same protocol.",
		Run: func(_ *cobra.Command, args []string) {
			run()
		},
	}
}

func run() {
	fmt.Printf("local version: %s\n", version.Version)
	fmt.Printf("protocol:      %s\n", version.ProtocolName)
}
