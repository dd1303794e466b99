package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"entity/internal/domain"
)

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "manage point-in-time state snapshots",
	}
	cmd.AddCommand(newSnapshotCreateCmd(), newSnapshotListCmd(), newSnapshotRestoreCmd(), newSnapshotVerifyCmd())
	return cmd
}

func newSnapshotCreateCmd() *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "capture the current state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *runtime) error {
				meta, err := rt.snapshot.Create(description)
				if err != nil {
					return err
				}
				return printJSON(cmd, meta)
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "human description of why this snapshot was taken")
	return cmd
}

func newSnapshotListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list recorded snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *runtime) error {
				metas, err := rt.snapshot.List()
				if err != nil {
					return err
				}
				return printJSON(cmd, metas)
			})
		},
	}
}

func newSnapshotRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>",
		Short: "extend the chain by restoring a snapshot's content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseID(args[0])
			if err != nil {
				return fmt.Errorf("invalid snapshot id: %w", err)
			}
			return withRuntime(func(rt *runtime) error {
				state, err := rt.snapshot.Restore(id)
				if err != nil {
					return err
				}
				return printJSON(cmd, state)
			})
		},
	}
}

func newSnapshotVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <id>",
		Short: "check a snapshot's content against its recorded digest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseID(args[0])
			if err != nil {
				return fmt.Errorf("invalid snapshot id: %w", err)
			}
			return withRuntime(func(rt *runtime) error {
				ok, err := rt.snapshot.Verify(id)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]bool{"valid": ok})
			})
		},
	}
}
