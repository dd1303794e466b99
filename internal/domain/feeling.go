package domain

// EnergyFeeling categorises the energy scalar (spec §4.14).
type EnergyFeeling string

const (
	EnergyVital    EnergyFeeling = "vital"
	EnergyAdequate EnergyFeeling = "adequate"
	EnergyLow      EnergyFeeling = "low"
	EnergyCritical EnergyFeeling = "critical"
)

// StabilityFeeling categorises the Lyapunov/V trajectory.
type StabilityFeeling string

const (
	StabilityAttractor StabilityFeeling = "attractor"
	StabilityStable    StabilityFeeling = "stable"
	StabilityDrifting  StabilityFeeling = "drifting"
	StabilityUnstable  StabilityFeeling = "unstable"
)

// IntegrityFeeling categorises invariant-check outcomes.
type IntegrityFeeling string

const (
	IntegrityWhole    IntegrityFeeling = "whole"
	IntegrityStressed IntegrityFeeling = "stressed"
	IntegrityViolated IntegrityFeeling = "violated"
)

// Feeling is the derived scalar+categorical view of state consumed by the
// sense-making loop (C14) and the EFE chooser (C12).
type Feeling struct {
	Energy                float64 `json:"energy"`
	LyapunovV             float64 `json:"lyapunov_v"`
	InvariantsSatisfied   int     `json:"invariants_satisfied"`
	InvariantsTotal       int     `json:"invariants_total"`
	Surprise              float64 `json:"surprise"`

	EnergyFeeling    EnergyFeeling    `json:"energy_feeling"`
	StabilityFeeling StabilityFeeling `json:"stability_feeling"`
	IntegrityFeeling IntegrityFeeling `json:"integrity_feeling"`

	ThreatsExistence bool `json:"threats_existence"`
	ThreatsStability bool `json:"threats_stability"`
	NeedsGrowth      bool `json:"needs_growth"`
}

// IntegrityFraction returns satisfied/total invariants, or 1 if total is 0.
func (f Feeling) IntegrityFraction() float64 {
	if f.InvariantsTotal == 0 {
		return 1
	}
	return float64(f.InvariantsSatisfied) / float64(f.InvariantsTotal)
}
