package couplingqueue

import "entity/internal/domain"

// TriggerContext is the scalar signal set checkTriggers evaluates (spec
// §4.11).
type TriggerContext struct {
	Energy             float64
	EnergyCritical     float64
	EnergyLow          float64
	InvariantViolations int
	RecentBlocks       int
	Deprecations       int
	EFEAmbiguityHigh   bool
	AmbiguityHighCycles int
}

// CheckTriggers is a pure function mapping ctx to (priority, reason),
// evaluated urgent -> normal -> low with first match winning (spec
// §4.11). The zero Priority ("") means no trigger fired.
func CheckTriggers(ctx TriggerContext) (domain.Priority, string) {
	switch {
	case ctx.Energy <= ctx.EnergyCritical:
		return domain.RequestUrgent, "energy at or below critical threshold"
	case ctx.InvariantViolations > 0:
		return domain.RequestUrgent, "invariant violation detected"

	case ctx.Energy <= ctx.EnergyLow:
		return domain.RequestNormal, "energy below low threshold"
	case ctx.RecentBlocks >= 3:
		return domain.RequestNormal, "repeated constitutional blocks"
	case ctx.AmbiguityHighCycles >= 3:
		return domain.RequestNormal, "sustained high action-choice ambiguity"

	case ctx.Deprecations > 0:
		return domain.RequestLow, "deprecated capability in use"
	case ctx.EFEAmbiguityHigh:
		return domain.RequestLow, "elevated expected-free-energy ambiguity"
	default:
		return "", ""
	}
}
