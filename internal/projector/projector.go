// Package projector implements C4: the pure function that reconstructs a
// State value from a prefix of the event log (spec §4.4). It is
// deterministic and side-effect-free so that replay -> writeState ->
// verify is idempotent, and is the authority INV-002 and the recovery
// engine's state-drift repair both defer to.
package projector

import (
	"entity/internal/domain"
)

// Project replays events in order and returns the resulting State.
// Unknown event kinds are skipped for forward compatibility (spec §4.4).
// Audit-category events participate only in Memory bookkeeping (seq/hash
// counters), never in the rest of the projection (spec glossary: "Audit
// category... excludes the event from operational projections").
func Project(events []domain.Event) domain.State {
	var st domain.State
	for _, e := range events {
		applyMemory(&st, e)
		if e.EffectiveCategory() == domain.CategoryAudit {
			continue
		}
		apply(&st, e)
	}
	return st
}

func applyMemory(st *domain.State, e domain.Event) {
	st.Memory.EventCount = uint64(e.Seq)
	st.Memory.LastEventHash = e.Hash
	st.Updated = e.Timestamp
}

func apply(st *domain.State, e domain.Event) {
	switch e.Type {
	case domain.EventGenesis:
		applyGenesis(st, e)
	case domain.EventSessionStart:
		st.Session.TotalCount++
		st.Coupling.Active = true
		st.Coupling.Since = e.Timestamp
		if partner, ok := e.Data["partner"].(string); ok {
			st.Coupling.Partner = partner
			st.Session.CurrentID = partner
		}
	case domain.EventSessionEnd:
		st.Coupling.Active = false
		st.Coupling.Partner = ""
		decayEnergy(st, 0.05)
	case domain.EventStateUpdate:
		applyStateUpdate(st, e)
	case domain.EventCouplingStart:
		st.Coupling.Active = true
		st.Coupling.Since = e.Timestamp
	case domain.EventCouplingEnd, domain.EventCouplingCompleted, domain.EventCouplingCanceled:
		st.Coupling.Active = false
	case domain.EventCouplingGranted:
		// queue bookkeeping only; no top-level state change.
	case domain.EventOperation:
		applyOperation(st, e)
	case domain.EventBlock:
		// Rejections don't mutate state beyond the audit trail.
	case domain.EventSnapshot:
		if ts, ok := e.Data["timestamp"].(string); ok {
			if parsed, err := parseTime(ts); err == nil {
				st.Memory.LastSnapshotAt = parsed
			}
		}
	case domain.EventVerification:
		applyVerification(st, e)
	case domain.EventLearning, domain.EventMetaOperation:
		// Catalogued for audit; no structural state effect beyond memory.
	case domain.EventAgentWake:
		ensureAgent(st).Awake = true
	case domain.EventAgentSleep:
		ensureAgent(st).Awake = false
	case domain.EventAgentResponse, domain.EventAgentRest:
		a := ensureAgent(st)
		a.LastCycleAt = e.Timestamp
		if p, ok := e.Data["priority"].(string); ok {
			a.LastPriority = p
		}
	case domain.EventAgentUltrastability:
		if interval, ok := e.Data["new_interval_ms"].(float64); ok {
			ensureAgent(st).WakeInterval = int64(interval)
		}
	case domain.EventObservationReceived, domain.EventPresenceSignalEmitted:
		// Audit-only kinds; reachable here only if mis-tagged operational.
	default:
		// Unknown kind: skip (forward compatibility, spec §4.4).
	}
}

func applyGenesis(st *domain.State, e domain.Event) {
	st.Created = e.Timestamp
	if h, ok := e.Data["organization_hash"].(string); ok {
		if d, err := domain.ParseDigest(h); err == nil {
			st.OrganizationHash = d
		}
	}
	if by, ok := e.Data["instantiated_by"].(string); ok {
		st.InstantiatedBy = by
	}
	if spec, ok := e.Data["specification"].(string); ok {
		st.Specification = spec
	}
	st.Energy = domain.Energy{Current: 1.0, Min: 0.01, Threshold: 0.2}
	st.Lyapunov = domain.Lyapunov{V: 0, VPrevious: 0}
	st.Integrity.Status = domain.StatusNominal
}

func applyStateUpdate(st *domain.State, e domain.Event) {
	if v, ok := e.Data["energy_current"].(float64); ok {
		st.Energy.Current = v
	}
	if v, ok := e.Data["energy_delta"].(float64); ok {
		st.Energy.Current = clamp01(st.Energy.Current + v)
	}
	if v, ok := e.Data["v"].(float64); ok {
		st.Lyapunov.VPrevious = st.Lyapunov.V
		st.Lyapunov.V = v
	}
	if v, ok := e.Data["v_delta"].(float64); ok {
		st.Lyapunov.VPrevious = st.Lyapunov.V
		st.Lyapunov.V = maxFloat(0, st.Lyapunov.V+v)
	}
	if status, ok := e.Data["status"].(string); ok {
		st.Integrity.Status = domain.IntegrityStatus(status)
	}
	if name, ok := e.Data["human_name"].(string); ok {
		st.Human.Name = name
	}
	if ctx, ok := e.Data["human_context"].(string); ok {
		st.Human.Context = ctx
	}
	if mem, ok := e.Data["important_memory_add"].(string); ok {
		st.ImportantMemory = append(st.ImportantMemory, mem)
	}
	if clearCoupling, ok := e.Data["clear_coupling"].(bool); ok && clearCoupling {
		st.Coupling.Active = false
		st.Coupling.Partner = ""
	}
	if pinEnergyToMin, ok := e.Data["pin_energy_to_min"].(bool); ok && pinEnergyToMin {
		st.Energy.Current = st.Energy.Min
	}
}

func applyOperation(st *domain.State, e domain.Event) {
	if cost, ok := e.Data["energy_cost"].(float64); ok {
		decayEnergy(st, cost)
	}
	// coupling_active/coupling_partner mirror catalog.applyChanges's live
	// update for the same two projected fields (session.start/session.end),
	// kept in sync so INV-002 holds for catalog-driven coupling sessions.
	if active, ok := e.Data["coupling_active"].(bool); ok {
		st.Coupling.Active = active
		if active {
			st.Coupling.Since = e.Timestamp
		}
	}
	if partner, ok := e.Data["coupling_partner"].(string); ok {
		st.Coupling.Partner = partner
	}
}

func applyVerification(st *domain.State, e domain.Event) {
	st.Integrity.LastVerification = e.Timestamp
	if v, ok := e.Data["violations"].(float64); ok {
		st.Integrity.InvariantViolations = int(v)
	}
	if status, ok := e.Data["status"].(string); ok {
		st.Integrity.Status = domain.IntegrityStatus(status)
	}
	if v, ok := e.Data["lyapunov_v"].(float64); ok {
		st.Lyapunov.VPrevious = st.Lyapunov.V
		st.Lyapunov.V = v
	}
}

func ensureAgent(st *domain.State) *domain.AgentTelemetry {
	if st.Agent == nil {
		st.Agent = &domain.AgentTelemetry{}
	}
	return st.Agent
}

func decayEnergy(st *domain.State, amount float64) {
	st.Energy.Current = clamp01(st.Energy.Current - amount)
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

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
