package main

import (
	"github.com/spf13/cobra"

	"entity/internal/domain"
)

// newRechargeCmd implements the operator escape hatch for restoring
// energy outside the catalog's cost-debiting path (spec §6: "recharge —
// restore energy to full, for when coupling has replenished the
// organization from outside the event model"). It is not a catalog
// operation: nothing else in the system is allowed to add energy.
func newRechargeCmd() *cobra.Command {
	var amount float64
	cmd := &cobra.Command{
		Use:   "recharge",
		Short: "restore energy (default: to full)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(rt *runtime) error {
				_, next, err := rt.store.AppendAtomic(domain.EventStateUpdate, domain.Record{
					"reason": "recharge",
					"amount": amount,
				}, domain.CategoryOperational, func(st domain.State, _ domain.Event) domain.State {
					if amount <= 0 {
						st.Energy.Current = 1.0
					} else {
						st.Energy.Current = clamp01(st.Energy.Current + amount)
					}
					if st.Integrity.Status == domain.StatusDormant && st.Energy.Current > st.Energy.Min {
						st.Integrity.Status = domain.StatusNominal
					}
					return st
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, next.Energy)
			})
		},
	}
	cmd.Flags().Float64Var(&amount, "amount", 0, "amount to add (default: recharge to 1.0)")
	return cmd
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
