package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// analyticsSummary is a deliberately thin aggregate over cycle memory:
// spec §9 scopes the agent's own learning to effectiveness/similarity
// bookkeeping inside cyclememory, so this command only restates that
// data rather than adding a second statistics engine on top of it.
type analyticsSummary struct {
	Cycles             int     `json:"cycles"`
	BlockedCycles      int     `json:"blocked_cycles"`
	AverageEffectiveness float64 `json:"average_effectiveness"`
	MostCommonAction   string  `json:"most_common_action,omitempty"`
}

func newAnalyticsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analytics",
		Short: "summarize recorded cycle effectiveness (requires a running daemon)",
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
			counts := map[string]int{}
			var total float64
			blocked := 0
			for _, r := range records {
				total += r.Effectiveness
				if r.ActionBlocked {
					blocked++
				}
				counts[r.Action]++
			}
			best := ""
			bestCount := 0
			for action, count := range counts {
				if count > bestCount {
					best, bestCount = action, count
				}
			}
			return printJSON(cmd, analyticsSummary{
				Cycles:               len(records),
				BlockedCycles:        blocked,
				AverageEffectiveness: total / float64(len(records)),
				MostCommonAction:     best,
			})
		},
	}
}
