package main

import (
	"github.com/spf13/cobra"
)

func newMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "manage important memory entries",
	}
	cmd.AddCommand(newMemoryAddCmd(), newMemoryListCmd())
	return cmd
}

func newMemoryAddCmd() *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "record an important memory entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *runtime) error {
				outcome, err := rt.catalog.Invoke("memory.add", map[string]string{"text": text})
				if err != nil {
					return err
				}
				return printJSON(cmd, outcome)
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "memory text to record")
	return cmd
}

func newMemoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list recorded important memory entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *runtime) error {
				state, _ := rt.store.Read()
				return printJSON(cmd, state.ImportantMemory)
			})
		},
	}
}
