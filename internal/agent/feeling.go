// Package agent implements C14: the sense-making loop that composes the
// invariant verifier (C5), coupling queue (C11), generative model/EFE
// chooser (C12), cycle memory (C13), and operations catalog (C8) into
// one bounded cycle: sense, prioritise, choose, check, execute, learn
// (spec §4.14).
package agent

import (
	"math"

	"entity/internal/domain"
	"entity/internal/invariant"
)

// energyVitalThreshold and friends bucket the energy scalar into the
// four EnergyFeeling categories (spec §4.14). Vital/adequate/low mirror
// the maintenance monitor's own low/critical split; "critical" here
// aligns with invariant.DefaultWeights' energy distance pinning to 1 at
// current=0.
const (
	energyVitalThreshold    = 0.6
	energyAdequateThreshold = 0.3
	energyLowThreshold      = 0.1
)

func energyFeeling(current float64) domain.EnergyFeeling {
	switch {
	case current >= energyVitalThreshold:
		return domain.EnergyVital
	case current >= energyAdequateThreshold:
		return domain.EnergyAdequate
	case current >= energyLowThreshold:
		return domain.EnergyLow
	default:
		return domain.EnergyCritical
	}
}

func stabilityFeeling(v float64) domain.StabilityFeeling {
	switch {
	case v == 0:
		return domain.StabilityAttractor
	case v < 0.2:
		return domain.StabilityStable
	case v < 0.5:
		return domain.StabilityDrifting
	default:
		return domain.StabilityUnstable
	}
}

func integrityFeeling(satisfied, total int) domain.IntegrityFeeling {
	if total == 0 || satisfied == total {
		return domain.IntegrityWhole
	}
	if satisfied >= total-1 {
		return domain.IntegrityStressed
	}
	return domain.IntegrityViolated
}

// surpriseL1 is the L1 distance between two feeling vectors, normalised
// to [0,1] by dividing by the number of scalar dimensions compared
// (spec §4.14: "surprise is defined as the L1 distance ... normalised
// to [0,1]").
func surpriseL1(predicted, actual [3]float64) float64 {
	sum := 0.0
	for i := range predicted {
		sum += math.Abs(predicted[i] - actual[i])
	}
	return math.Min(1, sum/float64(len(predicted)))
}

func feelingVector(f domain.Feeling) [3]float64 {
	return [3]float64{f.Energy, f.LyapunovV, f.IntegrityFraction()}
}

// attractorVector is the distance origin used for the first cycle's
// surprise, when there is no prior prediction to compare against (spec
// §4.14: "at the first cycle it is the distance from the attractor").
var attractorVector = [3]float64{1, 0, 1}

// DeriveFeeling builds a Feeling from the current state and a
// verification result, computing surprise against predicted (the
// previous cycle's predicted feeling vector, or nil for the first
// cycle).
func DeriveFeeling(state domain.State, verification invariant.Result, predicted *[3]float64) domain.Feeling {
	satisfied := 0
	for _, c := range verification.Invariants {
		if c.Satisfied {
			satisfied++
		}
	}
	total := len(verification.Invariants)

	f := domain.Feeling{
		Energy:              state.Energy.Current,
		LyapunovV:           verification.LyapunovV,
		InvariantsSatisfied: satisfied,
		InvariantsTotal:     total,
	}
	f.EnergyFeeling = energyFeeling(f.Energy)
	f.StabilityFeeling = stabilityFeeling(f.LyapunovV)
	f.IntegrityFeeling = integrityFeeling(satisfied, total)

	f.ThreatsExistence = f.EnergyFeeling == domain.EnergyCritical || state.Integrity.Status == domain.StatusDormant
	f.ThreatsStability = f.StabilityFeeling == domain.StabilityUnstable || f.IntegrityFeeling == domain.IntegrityViolated
	f.NeedsGrowth = f.EnergyFeeling == domain.EnergyVital && f.StabilityFeeling == domain.StabilityAttractor

	actual := feelingVector(f)
	if predicted != nil {
		f.Surprise = surpriseL1(*predicted, actual)
	} else {
		f.Surprise = surpriseL1(attractorVector, actual)
	}
	return f
}

// Prioritize applies the constitutional hierarchy of spec §4.14 step 2.
func Prioritize(f domain.Feeling) domain.Priority {
	switch {
	case f.ThreatsExistence:
		return domain.PrioritySurvival
	case f.IntegrityFeeling != domain.IntegrityWhole:
		return domain.PriorityIntegrity
	case f.ThreatsStability:
		return domain.PriorityStability
	case f.NeedsGrowth:
		return domain.PriorityGrowth
	default:
		return domain.PriorityRest
	}
}
