package client

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewAliasCommand constructs the `alias` command group.
func NewAliasCommand(open TransportFunc, defaultContainer string) *cobra.Command {
	aliasCmd := &cobra.Command{Use: "alias", Short: "Logical log alias operations"}
	aliasCmd.PersistentFlags().StringP("container", "c", defaultContainer, "Container path")
	aliasCmd.AddCommand(
		newAliasAssignCommand(open),
		newAliasResolveCommand(open),
		newAliasRemoveCommand(open),
		newAliasReplaceCommand(open),
		newAliasRecoverCommand(open),
	)
	return aliasCmd
}

func newAliasAssignCommand(open TransportFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "assign ALIAS ID",
		Short: "Bind an alias to a logical log id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("container")
			id, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid id: %w", err)
			}
			t, err := open()
			if err != nil {
				return err
			}
			if err := t.AssignAlias(cmd.Context(), path, args[0], id); err != nil {
				return err
			}
			return writeJSON(cmd, map[string]string{"alias": args[0], "id": id.String()})
		},
	}
}

func newAliasResolveCommand(open TransportFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve ALIAS",
		Short: "Print the logical log id an alias names",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("container")
			t, err := open()
			if err != nil {
				return err
			}
			id, err := t.ResolveAlias(cmd.Context(), path, args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd, map[string]string{"alias": args[0], "id": id.String()})
		},
	}
}

func newAliasRemoveCommand(open TransportFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "remove ALIAS",
		Short: "Remove an alias",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("container")
			t, err := open()
			if err != nil {
				return err
			}
			if err := t.RemoveAlias(cmd.Context(), path, args[0]); err != nil {
				return err
			}
			return writeJSON(cmd, map[string]string{"status": "removed", "alias": args[0]})
		},
	}
}

func newAliasReplaceCommand(open TransportFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "replace SOURCE TARGET BACKUP",
		Short: "Point TARGET at SOURCE's log, keeping the old binding as BACKUP",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("container")
			t, err := open()
			if err != nil {
				return err
			}
			if err := t.ReplaceAlias(cmd.Context(), path, args[0], args[1], args[2]); err != nil {
				return err
			}
			return writeJSON(cmd, map[string]string{"status": "OK", "target": args[1]})
		},
	}
}

func newAliasRecoverCommand(open TransportFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "recover SOURCE TARGET BACKUP",
		Short: "Repair TARGET after an interrupted replace",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("container")
			t, err := open()
			if err != nil {
				return err
			}
			id, err := t.RecoverAlias(cmd.Context(), path, args[0], args[1], args[2])
			if err != nil {
				return err
			}
			return writeJSON(cmd, map[string]string{"alias": args[1], "id": id.String()})
		},
	}
}
