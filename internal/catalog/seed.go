package catalog

import (
	"fmt"

	"entity/internal/domain"
	"entity/internal/invariant"
)

// SeedConfig carries the collaborators seeded handlers need to read
// ambient information (current verification result, session bookkeeping)
// without the catalog depending on those packages directly.
type SeedConfig struct {
	Verify func() invariant.Result
}

// RegisterDefaults installs the seed catalog SPEC_FULL.md fixes: the four
// operations spec §4.8 names by example plus session/human/coupling
// operations needed to exercise C8-C14 end to end (spec §8 scenarios 1-2).
func RegisterDefaults(c *Catalog, cfg SeedConfig) {
	c.Register(Entry{
		ID: "state.summary", Name: "State summary", Category: "introspection",
		Complexity: 1, EnergyCost: 0.0, RequiresCoupling: false,
		Handler: func(state domain.State, _ map[string]string) Outcome {
			msg := fmt.Sprintf("energy=%.3f V=%.4f status=%s", state.Energy.Current, state.Lyapunov.V, state.Integrity.Status)
			return Outcome{Success: true, Message: msg}
		},
	})

	c.Register(Entry{
		ID: "system.health", Name: "System health", Category: "introspection",
		Complexity: 1, EnergyCost: 0.0, RequiresCoupling: false,
		Handler: func(state domain.State, _ map[string]string) Outcome {
			result := invariant.Result{AllSatisfied: true}
			if cfg.Verify != nil {
				result = cfg.Verify()
			}
			return Outcome{Success: true, Message: fmt.Sprintf("all_satisfied=%t violations=%d", result.AllSatisfied, countViolations(result))}
		},
	})

	c.Register(Entry{
		ID: "energy.status", Name: "Energy status", Category: "introspection",
		Complexity: 1, EnergyCost: 0.03, RequiresCoupling: false,
		Handler: func(state domain.State, _ map[string]string) Outcome {
			return Outcome{Success: true, Message: fmt.Sprintf("current=%.3f min=%.3f threshold=%.3f", state.Energy.Current, state.Energy.Min, state.Energy.Threshold)}
		},
	})

	c.Register(Entry{
		ID: "memory.add", Name: "Add important memory", Category: "memory",
		Complexity: 1, EnergyCost: 0.01, RequiresCoupling: false,
		Handler: func(_ domain.State, params map[string]string) Outcome {
			text := params["text"]
			if text == "" {
				return Outcome{Success: false, Message: "memory.add requires a non-empty text param"}
			}
			return Outcome{Success: true, Message: "memory recorded", StateChanges: domain.Record{"important_memory_add": text}}
		},
	})

	c.Register(Entry{
		ID: "session.start", Name: "Start session", Category: "coupling",
		Complexity: 1, EnergyCost: 0.0, RequiresCoupling: false,
		Handler: func(_ domain.State, params map[string]string) Outcome {
			return Outcome{Success: true, Message: "session started", StateChanges: domain.Record{"coupling_active": true, "coupling_partner": params["partner"]}}
		},
	})

	c.Register(Entry{
		ID: "session.end", Name: "End session", Category: "coupling",
		Complexity: 1, EnergyCost: 0.05, RequiresCoupling: true,
		Handler: func(_ domain.State, _ map[string]string) Outcome {
			return Outcome{Success: true, Message: "session ended", StateChanges: domain.Record{"coupling_active": false, "coupling_partner": ""}}
		},
	})

	c.Register(Entry{
		ID: "human.set", Name: "Set human context", Category: "memory",
		Complexity: 1, EnergyCost: 0.0, RequiresCoupling: false,
		Handler: func(_ domain.State, params map[string]string) Outcome {
			changes := domain.Record{}
			if name := params["name"]; name != "" {
				changes["human_name"] = name
			}
			if ctx := params["context"]; ctx != "" {
				changes["human_context"] = ctx
			}
			return Outcome{Success: true, Message: "human context updated", StateChanges: changes}
		},
	})

	c.Register(Entry{
		ID: "coupling.request", Name: "Request coupling", Category: "coupling",
		Complexity: 2, EnergyCost: 0.01, RequiresCoupling: false,
		Handler: func(_ domain.State, params map[string]string) Outcome {
			reason := params["reason"]
			if reason == "" {
				return Outcome{Success: false, Message: "coupling.request requires a reason param"}
			}
			priority := params["priority"]
			if priority == "" {
				priority = string(domain.RequestNormal)
			}
			return Outcome{Success: true, Message: "coupling requested: " + reason, StateChanges: domain.Record{
				"enqueue_coupling_reason":   reason,
				"enqueue_coupling_priority": priority,
				"enqueue_coupling_context":  params["context"],
			}}
		},
	})
}

func countViolations(r invariant.Result) int {
	n := 0
	for _, c := range r.Invariants {
		if !c.Satisfied {
			n++
		}
	}
	return n
}
