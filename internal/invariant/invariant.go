// Package invariant implements C5: the five structural invariant checks
// and the Lyapunov-style scalar potential V (spec §4.5, §3).
package invariant

import (
	"fmt"
	"time"

	"entity/internal/digest"
	"entity/internal/domain"
	"entity/internal/projector"
)

// ID identifies one of the five fixed invariants, checked in this order
// so test output is stable (spec §4.5).
type ID string

const (
	INV001 ID = "INV-001" // organization hash immutability
	INV002 ID = "INV-002" // state == project(events)
	INV003 ID = "INV-003" // chain integrity
	INV004 ID = "INV-004" // V monotone non-increasing
	INV005 ID = "INV-005" // energy floor
)

// CheckOrder is the fixed evaluation order (spec §4.5).
var CheckOrder = []ID{INV001, INV002, INV003, INV004, INV005}

// Names gives the human label for each invariant.
var Names = map[ID]string{
	INV001: "organization hash immutability",
	INV002: "state equals log projection",
	INV003: "event chain integrity",
	INV004: "Lyapunov V non-increasing",
	INV005: "energy floor",
}

// Check is the outcome of a single invariant evaluation.
type Check struct {
	ID        ID     `json:"id"`
	Name      string `json:"name"`
	Satisfied bool   `json:"satisfied"`
	Details   string `json:"details,omitempty"`
}

// Result is the verifier's output (spec §4.5).
type Result struct {
	Timestamp    time.Time `json:"timestamp"`
	AllSatisfied bool      `json:"all_satisfied"`
	Invariants   []Check   `json:"invariants"`
	LyapunovV    float64   `json:"lyapunov_v"`
}

// Weights are the V formula's configurable coefficients (spec §3); the
// zero value is invalid, use DefaultWeights.
type Weights struct {
	Integrity  float64
	Coherence  float64
	Energy     float64
}

// DefaultWeights matches spec §3: "(0.4, 0.4, 0.2)".
var DefaultWeights = Weights{Integrity: 0.4, Coherence: 0.4, Energy: 0.2}

// Verify is a pure, non-mutating evaluation of the five invariants over
// (events, state), plus V. now is used only to stamp the result.
func Verify(events []domain.Event, state domain.State, weights Weights, now time.Time) Result {
	checks := make([]Check, 0, len(CheckOrder))
	projected := projector.Project(events)

	violatedCount := 0
	for _, id := range CheckOrder {
		c := runCheck(id, events, state, projected)
		checks = append(checks, c)
		if !c.Satisfied {
			violatedCount++
		}
	}

	v := ComputeV(violatedCount, len(CheckOrder), state, weights)

	all := violatedCount == 0
	return Result{Timestamp: now.UTC(), AllSatisfied: all, Invariants: checks, LyapunovV: v}
}

func runCheck(id ID, events []domain.Event, state domain.State, projected domain.State) Check {
	switch id {
	case INV001:
		return checkOrganizationHash(events, state)
	case INV002:
		return checkProjection(state, projected)
	case INV003:
		return checkChain(events)
	case INV004:
		return checkLyapunov(state)
	case INV005:
		return checkEnergyFloor(state)
	default:
		return Check{ID: id, Name: Names[id], Satisfied: false, Details: "unknown invariant"}
	}
}

func checkOrganizationHash(events []domain.Event, state domain.State) Check {
	c := Check{ID: INV001, Name: Names[INV001]}
	if len(events) == 0 {
		c.Details = "log is empty: no genesis event to compare against"
		return c
	}
	genesis := events[0]
	if genesis.Type != domain.EventGenesis {
		c.Details = "first event is not Genesis"
		return c
	}
	raw, ok := genesis.Data["organization_hash"].(string)
	if !ok {
		c.Details = "genesis event missing organization_hash"
		return c
	}
	genesisHash, err := domain.ParseDigest(raw)
	if err != nil {
		c.Details = fmt.Sprintf("genesis organization_hash unparseable: %v", err)
		return c
	}
	if genesisHash != state.OrganizationHash {
		c.Details = "state.organization_hash does not match genesis event"
		return c
	}
	c.Satisfied = true
	return c
}

func checkProjection(state domain.State, projected domain.State) Check {
	c := Check{ID: INV002, Name: Names[INV002]}
	// Non-projected fields (human context, important memory, the coupling
	// queue) are excluded from the comparison per spec §3/§4.4. The queue
	// is a session-scoped cache (C11) mutated directly under the store's
	// lock rather than replayed from events, the same way Human and
	// ImportantMemory are carve-outs rather than projection bugs.
	projected.Human = state.Human
	projected.ImportantMemory = state.ImportantMemory
	projected.Coupling.Queue = state.Coupling.Queue
	if digest.DigestObject(projected) != digest.DigestObject(state) {
		c.Details = "state diverges from project(events)"
		return c
	}
	c.Satisfied = true
	return c
}

func checkChain(events []domain.Event) Check {
	c := Check{ID: INV003, Name: Names[INV003]}
	for i, e := range events {
		wantSeq := domain.Seq(i + 1)
		if e.Seq != wantSeq {
			c.Details = fmt.Sprintf("seq %d out of sequence (expected %d)", e.Seq, wantSeq)
			return c
		}
		if i == 0 {
			if e.PrevHash != nil {
				c.Details = "genesis event has non-nil prev_hash"
				return c
			}
		} else {
			prev := events[i-1]
			if e.PrevHash == nil || *e.PrevHash != prev.Hash {
				c.Details = fmt.Sprintf("seq %d prev_hash does not match seq %d hash", e.Seq, prev.Seq)
				return c
			}
		}
		if digest.HashEvent(e.HashInput()) != e.Hash {
			c.Details = fmt.Sprintf("seq %d hash does not recompute", e.Seq)
			return c
		}
	}
	c.Satisfied = true
	return c
}

func checkLyapunov(state domain.State) Check {
	c := Check{ID: INV004, Name: Names[INV004]}
	if state.Lyapunov.V > state.Lyapunov.VPrevious {
		c.Details = fmt.Sprintf("V increased: %.6f > previous %.6f", state.Lyapunov.V, state.Lyapunov.VPrevious)
		return c
	}
	c.Satisfied = true
	return c
}

func checkEnergyFloor(state domain.State) Check {
	c := Check{ID: INV005, Name: Names[INV005]}
	if state.Energy.Current < state.Energy.Min && state.Integrity.Status != domain.StatusDormant {
		c.Details = fmt.Sprintf("energy %.6f below min %.6f and status is not dormant", state.Energy.Current, state.Energy.Min)
		return c
	}
	c.Satisfied = true
	return c
}

// ComputeV evaluates the Lyapunov potential (spec §3):
//
//	V = w1*integrityDistance + w2*coherenceDistance + w3*energyDistance
func ComputeV(violated, total int, state domain.State, weights Weights) float64 {
	integrityDistance := 0.0
	if total > 0 {
		integrityDistance = float64(violated) / float64(total)
	}
	coherenceDistance := integrityDistance

	energyDistance := 0.0
	if state.Energy.Threshold > 0 {
		energyDistance = (state.Energy.Threshold - state.Energy.Current) / state.Energy.Threshold
		if energyDistance < 0 {
			energyDistance = 0
		}
		if state.Energy.Current <= 0 {
			energyDistance = 1
		}
	}

	return weights.Integrity*integrityDistance + weights.Coherence*coherenceDistance + weights.Energy*energyDistance
}
