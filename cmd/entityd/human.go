package main

import (
	"github.com/spf13/cobra"
)

func newHumanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "human",
		Short: "manage human-supplied context",
	}
	cmd.AddCommand(newHumanSetCmd(), newHumanShowCmd())
	return cmd
}

func newHumanSetCmd() *cobra.Command {
	var name, context string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "set the human name and/or context",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *runtime) error {
				outcome, err := rt.catalog.Invoke("human.set", map[string]string{
					"name":    name,
					"context": context,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, outcome)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "human name")
	cmd.Flags().StringVar(&context, "context", "", "free-form human context")
	return cmd
}

func newHumanShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "show the current human context",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *runtime) error {
				state, _ := rt.store.Read()
				return printJSON(cmd, state.Human)
			})
		},
	}
}
