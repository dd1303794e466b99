package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"entity/internal/domain"
)

func newLearnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learn",
		Short: "inspect the agent's cycle memory (requires a running daemon)",
	}
	cmd.AddCommand(newLearnReportCmd(), newLearnSuggestCmd())
	return cmd
}

// fetchRecords talks to a running daemon over IPC; cycle memory is a
// single-owner, in-process cache (spec §9, C13) so it only exists inside
// whichever process has been running the sense-making loop.
func fetchRecords(cmd *cobra.Command) ([]domain.CycleRecord, error) {
	dir, err := resolveHome()
	if err != nil {
		return nil, err
	}
	var records []domain.CycleRecord
	if err := submitIPC(dir.SockPath(), "agent.records", nil, &records); err != nil {
		return nil, fmt.Errorf("daemon not running, no cycle history available")
	}
	return records, nil
}

func newLearnReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "list recorded sense-making cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := fetchRecords(cmd)
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), err)
				return nil
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no cycle history recorded yet")
				return nil
			}
			return printJSON(cmd, records)
		},
	}
}

func newLearnSuggestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest",
		Short: "suggest an action from the closest remembered cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveHome()
			if err != nil {
				return err
			}
			var result map[string]any
			if err := submitIPC(dir.SockPath(), "agent.suggest", nil, &result); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "daemon not running, no cycle history available")
				return nil
			}
			return printJSON(cmd, result)
		},
	}
}
