package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"entity/internal/domain"
)

type statusReport struct {
	OrganizationHash string                `json:"organization_hash"`
	Created          string                `json:"created"`
	Status           domain.IntegrityStatus `json:"status"`
	Energy           domain.Energy         `json:"energy"`
	Lyapunov         domain.Lyapunov       `json:"lyapunov"`
	EventCount       uint64                `json:"event_count"`
	Coupling         domain.Coupling       `json:"coupling"`
	AllSatisfied     bool                  `json:"invariants_satisfied"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "print a summary of the current state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *runtime) error {
				state, ok := rt.store.Read()
				if !ok {
					return fmt.Errorf("no state available")
				}
				result := rt.verifier.Run()
				return printJSON(cmd, statusReport{
					OrganizationHash: state.OrganizationHash.String(),
					Created:          state.Created.Format("2006-01-02T15:04:05Z07:00"),
					Status:           state.Integrity.Status,
					Energy:           state.Energy,
					Lyapunov:         state.Lyapunov,
					EventCount:       state.Memory.EventCount,
					Coupling:         state.Coupling,
					AllSatisfied:     result.AllSatisfied,
				})
			})
		},
	}
}
