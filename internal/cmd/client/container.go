package client

import (
	"github.com/dustin/go-humanize"
	transports "github.com/microsoft/service-fabric-sub058/internal/cmd/client/transports"
	"github.com/spf13/cobra"
)

// NewContainerCommand constructs the `container` command group.
func NewContainerCommand(open TransportFunc, defaultContainer string) *cobra.Command {
	containerCmd := &cobra.Command{Use: "container", Short: "Container (physical log) operations"}
	containerCmd.AddCommand(
		newContainerCreateCommand(open, defaultContainer),
		newContainerDeleteCommand(open, defaultContainer),
		newContainerStatCommand(open, defaultContainer),
	)
	return containerCmd
}

func newContainerCreateCommand(open TransportFunc, defaultContainer string) *cobra.Command {
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a container",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("container")
			capStr, _ := cmd.Flags().GetString("capacity")
			blockStr, _ := cmd.Flags().GetString("max-block-size")
			streams, _ := cmd.Flags().GetInt("max-streams")
			spec := transports.ContainerSpec{Path: path, MaxStreams: streams}
			if capStr != "" {
				n, err := humanize.ParseBytes(capStr)
				if err != nil {
					return err
				}
				spec.Capacity = int64(n)
			}
			if blockStr != "" {
				n, err := humanize.ParseBytes(blockStr)
				if err != nil {
					return err
				}
				spec.MaxBlockSize = int(n)
			}
			t, err := open()
			if err != nil {
				return err
			}
			id, err := t.CreateContainer(cmd.Context(), spec)
			if err != nil {
				return err
			}
			return writeJSON(cmd, map[string]string{"id": id.String(), "path": path})
		},
	}
	createCmd.Flags().StringP("container", "c", defaultContainer, "Container path")
	createCmd.Flags().String("capacity", "", "Capacity, e.g. 1GiB (default from config)")
	createCmd.Flags().String("max-block-size", "", "Largest record, e.g. 1MiB (default from config)")
	createCmd.Flags().Int("max-streams", 0, "Maximum logical logs (default from config)")
	return createCmd
}

func newContainerDeleteCommand(open TransportFunc, defaultContainer string) *cobra.Command {
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a container and every logical log in it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("container")
			t, err := open()
			if err != nil {
				return err
			}
			if err := t.DeleteContainer(cmd.Context(), path); err != nil {
				return err
			}
			return writeJSON(cmd, map[string]string{"status": "deleted", "path": path})
		},
	}
	deleteCmd.Flags().StringP("container", "c", defaultContainer, "Container path")
	return deleteCmd
}

func newContainerStatCommand(open TransportFunc, defaultContainer string) *cobra.Command {
	statCmd := &cobra.Command{
		Use:   "stat",
		Short: "Show container usage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("container")
			t, err := open()
			if err != nil {
				return err
			}
			st, err := t.StatContainer(cmd.Context(), path)
			if err != nil {
				return err
			}
			return writeJSON(cmd, map[string]any{
				"id":             st.ID.String(),
				"path":           path,
				"capacity":       humanize.IBytes(uint64(st.Capacity)),
				"used":           humanize.IBytes(uint64(st.Used)),
				"percent_used":   st.PercentUsed(),
				"streams":        st.Streams,
				"max_streams":    st.MaxStreams,
				"max_block_size": humanize.IBytes(uint64(st.MaxBlockSize)),
			})
		},
	}
	statCmd.Flags().StringP("container", "c", defaultContainer, "Container path")
	return statCmd
}
