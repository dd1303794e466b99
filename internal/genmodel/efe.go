package genmodel

import "entity/internal/domain"

// Weights is the (epistemic, pragmatic) pair for one cycle priority
// (spec §4.12).
type Weights struct {
	Epistemic float64
	Pragmatic float64
}

// WeightsFor returns the fixed per-priority weight pairs named in spec
// §4.12.
func WeightsFor(priority domain.Priority) Weights {
	switch priority {
	case domain.PrioritySurvival:
		return Weights{Epistemic: 0, Pragmatic: 1}
	case domain.PriorityIntegrity:
		return Weights{Epistemic: 0.1, Pragmatic: 0.9}
	case domain.PriorityStability:
		return Weights{Epistemic: 0.2, Pragmatic: 0.8}
	case domain.PriorityGrowth:
		return Weights{Epistemic: 0.5, Pragmatic: 0.5}
	default: // rest
		return Weights{Epistemic: 0.6, Pragmatic: 0.4}
	}
}

// Candidate is one action under consideration, in the order the chooser
// should break ties by (spec §4.12: "ties broken by preferring the
// earlier-listed action").
type Candidate struct {
	Action string
}

// Choice is the chooser's output for one candidate, retained so callers
// can inspect the full ranking (e.g. for a `learn suggest`-style report).
type Choice struct {
	Action     string
	G          float64
	Ambiguity  float64
	Risk       float64
	Predicted  PredictedState
}

// PreferredState is the agent's homeostatic setpoint the pragmatic term
// measures distance from (spec §4.12: "risk = 0.4*|predicted.energy -
// preferred.energy| + ..."). Preferred V is always 0 (the attractor).
type PreferredState struct {
	Energy float64
}

// Choose evaluates G for every candidate under priority's weights and
// returns the minimal-G choice plus the full ranking, in candidate
// order (spec §4.12, P10).
func Choose(m *Model, current domain.Feeling, priority domain.Priority, preferred PreferredState, candidates []Candidate) (Choice, []Choice) {
	w := WeightsFor(priority)
	ranking := make([]Choice, 0, len(candidates))
	bestIdx := -1

	for i, cand := range candidates {
		predicted := m.Predict(cand.Action, current)
		confidence := m.Confidence(cand.Action)
		ambiguity := 1 - confidence
		risk := 0.4*absFloat(predicted.Energy-preferred.Energy) + 0.4*predicted.V + 0.2*current.IntegrityFraction()
		g := w.Epistemic*ambiguity + w.Pragmatic*risk

		ranking = append(ranking, Choice{Action: cand.Action, G: g, Ambiguity: ambiguity, Risk: risk, Predicted: predicted})
		if bestIdx == -1 || ranking[i].G < ranking[bestIdx].G {
			bestIdx = i
		}
	}

	if bestIdx == -1 {
		return Choice{}, ranking
	}
	return ranking[bestIdx], ranking
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
