package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command for the logmux client.
// It registers the container, log and alias command groups.
func NewRoot(open TransportFunc, defaultContainer string) *cobra.Command {
	root := &cobra.Command{
		Use:   "logmux",
		Short: "logmux client commands",
	}
	root.AddCommand(
		NewContainerCommand(open, defaultContainer),
		NewLogCommand(open, defaultContainer),
		NewAliasCommand(open, defaultContainer),
	)
	return root
}
