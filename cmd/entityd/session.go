package main

import (
	"github.com/spf13/cobra"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "manage coupling sessions",
	}
	cmd.AddCommand(newSessionStartCmd(), newSessionEndCmd())
	return cmd
}

func newSessionStartCmd() *cobra.Command {
	var partner string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start a coupling session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *runtime) error {
				outcome, err := rt.catalog.Invoke("session.start", map[string]string{"partner": partner})
				if err != nil {
					return err
				}
				return printJSON(cmd, outcome)
			})
		},
	}
	cmd.Flags().StringVar(&partner, "partner", "", "identity of the coupling partner")
	return cmd
}

func newSessionEndCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "end",
		Short: "end the active coupling session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *runtime) error {
				outcome, err := rt.catalog.Invoke("session.end", nil)
				if err != nil {
					return err
				}
				return printJSON(cmd, outcome)
			})
		},
	}
}
