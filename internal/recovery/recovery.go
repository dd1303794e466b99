// Package recovery implements C6: per-invariant repair procedures,
// dispatched in a fixed priority order distinct from the verifier's
// check order (spec §4.6: "INV-001 → INV-003 → INV-002 → INV-004 →
// INV-005").
package recovery

import (
	"fmt"
	"os"
	"time"

	"entity/internal/digest"
	"entity/internal/domain"
	"entity/internal/eventlog"
	"entity/internal/invariant"
	"entity/internal/projector"
	"entity/internal/statestore"
)

// PriorityOrder is the fixed dispatch order for repair procedures.
var PriorityOrder = []invariant.ID{invariant.INV001, invariant.INV003, invariant.INV002, invariant.INV004, invariant.INV005}

// Status is a per-procedure or overall recovery outcome.
type Status string

const (
	StatusRecovered Status = "recovered"
	StatusDegraded  Status = "degraded"
	StatusTerminal  Status = "terminal"
)

// severity orders Status for "worst outcome wins" aggregation.
var severity = map[Status]int{StatusRecovered: 0, StatusDegraded: 1, StatusTerminal: 2}

// ProcedureResult is the outcome of one invariant's repair procedure.
type ProcedureResult struct {
	Invariant     invariant.ID `json:"invariant"`
	Status        Status       `json:"status"`
	Procedure     string       `json:"procedure"`
	ActionsTaken  []string     `json:"actions_taken"`
}

// Outcome is the overall recovery run result.
type Outcome struct {
	Timestamp  time.Time         `json:"timestamp"`
	Procedures []ProcedureResult `json:"procedures"`
	Status     Status            `json:"status"`
}

// Engine performs recovery against a log/store pair.
type Engine struct {
	Log     *eventlog.Log
	Store   *statestore.Store
	Weights invariant.Weights
	Now     func() time.Time
}

func New(log *eventlog.Log, store *statestore.Store) *Engine {
	return &Engine{Log: log, Store: store, Weights: invariant.DefaultWeights, Now: time.Now}
}

// Run verifies current state and dispatches repair procedures for every
// violated invariant, in PriorityOrder, then appends a single StateUpdate
// summarising the violations, recoveries, and final status (spec §4.6:
// "preserving INV-003 even when INV-002 was repaired" — i.e. the summary
// event is appended last, after any chain-repair truncation).
func (e *Engine) Run() (Outcome, error) {
	now := e.Now().UTC()
	events, err := e.Log.Load()
	var loadErr error
	if err != nil {
		loadErr = err
		events = nil
	}
	state, _ := e.Store.Read()

	violated := map[invariant.ID]invariant.Check{}
	if loadErr == nil {
		result := invariant.Verify(events, state, e.Weights, now)
		for _, c := range result.Invariants {
			if !c.Satisfied {
				violated[c.ID] = c
			}
		}
	} else {
		violated[invariant.INV003] = invariant.Check{ID: invariant.INV003, Details: loadErr.Error()}
	}

	var procedures []ProcedureResult
	overall := StatusRecovered
	terminal := false

	for _, id := range PriorityOrder {
		check, isViolated := violated[id]
		if !isViolated {
			continue
		}
		if terminal {
			// INV-001 already declared terminal: no further business
			// mutation, but we still record that later violations were
			// observed (spec §9 open question: "permits a final audit
			// record before halting but forbids any further business
			// mutation").
			procedures = append(procedures, ProcedureResult{Invariant: id, Status: StatusTerminal, Procedure: "skipped (terminal)", ActionsTaken: nil})
			continue
		}

		var pr ProcedureResult
		switch id {
		case invariant.INV001:
			pr = e.repairOrganizationDrift(check)
			terminal = true
		case invariant.INV003:
			pr, events = e.repairChainCorruption(check, events)
		case invariant.INV002:
			pr = e.repairStateDrift(events)
		case invariant.INV004:
			pr = e.repairLyapunov()
		case invariant.INV005:
			pr = e.repairEnergyFloor()
		}
		procedures = append(procedures, pr)
		if severity[pr.Status] > severity[overall] {
			overall = pr.Status
		}
	}

	if len(procedures) == 0 {
		return Outcome{Timestamp: now, Procedures: nil, Status: StatusRecovered}, nil
	}

	if !terminal {
		if _, _, err := e.appendSummary(procedures, overall); err != nil {
			return Outcome{}, err
		}
	} else {
		// spec §9: a final audit record is still permitted before halting.
		_, _, _ = e.appendSummary(procedures, overall)
	}

	return Outcome{Timestamp: now, Procedures: procedures, Status: overall}, nil
}

func (e *Engine) appendSummary(procedures []ProcedureResult, overall Status) (domain.Event, domain.State, error) {
	data := domain.Record{
		"reason":          "recovery summary",
		"recovery_status": string(overall),
		"violations":      float64(len(procedures)),
	}
	// Only a degraded or terminal outcome changes the integrity status; a
	// recovered run keeps whatever its procedures set (e.g. dormant).
	var integrity domain.IntegrityStatus
	switch overall {
	case StatusDegraded:
		integrity = domain.StatusDegraded
	case StatusTerminal:
		integrity = domain.StatusTerminal
	}
	if integrity != "" {
		data["status"] = string(integrity)
	}
	return e.Store.AppendAtomic(domain.EventStateUpdate, data, domain.CategoryOperational, func(state domain.State, _ domain.Event) domain.State {
		if integrity != "" {
			state.Integrity.Status = integrity
		}
		return state
	})
}

// repairOrganizationDrift (INV-001): terminal, no repair (spec §4.6).
func (e *Engine) repairOrganizationDrift(check invariant.Check) ProcedureResult {
	return ProcedureResult{
		Invariant: invariant.INV001,
		Status:    StatusTerminal,
		Procedure: "organization-drift: terminal, no repair",
		ActionsTaken: []string{
			fmt.Sprintf("logged terminal condition: %s", check.Details),
		},
	}
}

// repairChainCorruption (INV-003): find the longest valid prefix, delete
// the corrupted suffix files, then replay.
func (e *Engine) repairChainCorruption(check invariant.Check, events []domain.Event) (ProcedureResult, []domain.Event) {
	validLen := longestValidPrefix(events)
	removed := 0
	for i := validLen; i < len(events); i++ {
		path := e.Log.EventPath(events[i].Seq)
		if err := os.Remove(path); err == nil {
			removed++
		}
	}
	pr := ProcedureResult{
		Invariant: invariant.INV003,
		Status:    StatusDegraded,
		Procedure: "chain-corruption: truncate to longest valid prefix, replay",
		ActionsTaken: []string{
			fmt.Sprintf("kept events 1..%d, removed %d corrupted tail file(s)", validLen, removed),
		},
	}
	if removed == 0 && validLen == len(events) {
		pr.Status = StatusRecovered
		pr.ActionsTaken = append(pr.ActionsTaken, "no corruption found on re-check")
	}
	return pr, events[:validLen]
}

// longestValidPrefix returns the length of the longest prefix of events
// for which every hash recomputes, prevHash links are correct, and the
// genesis (if present) has a nil prevHash.
func longestValidPrefix(events []domain.Event) int {
	for i, e := range events {
		if domain.Seq(i+1) != e.Seq {
			return i
		}
		if i == 0 {
			if e.PrevHash != nil {
				return 0
			}
		} else if e.PrevHash == nil || *e.PrevHash != events[i-1].Hash {
			return i
		}
		if digest.HashEvent(e.HashInput()) != e.Hash {
			return i
		}
	}
	return len(events)
}

// repairStateDrift (INV-002): re-project from the (possibly truncated)
// log and overwrite state, preserving human context and important memory.
func (e *Engine) repairStateDrift(events []domain.Event) ProcedureResult {
	err := e.Log.WithLock(func(*eventlog.Log) error {
		cur, _ := e.Store.Read()
		rebuilt := projector.Project(events)
		rebuilt.Human = cur.Human
		rebuilt.ImportantMemory = cur.ImportantMemory
		return e.Store.WriteLocked(rebuilt)
	})
	if err != nil {
		return ProcedureResult{Invariant: invariant.INV002, Status: StatusDegraded, Procedure: "state-drift: re-project from log", ActionsTaken: []string{"failed: " + err.Error()}}
	}
	return ProcedureResult{Invariant: invariant.INV002, Status: StatusRecovered, Procedure: "state-drift: re-project from log", ActionsTaken: []string{"overwrote state with project(events), preserving human context and important memory"}}
}

// repairLyapunov (INV-004): reset V to VPrevious, or 0 if unknown.
func (e *Engine) repairLyapunov() ProcedureResult {
	var resetTo float64
	err := e.Log.WithLock(func(*eventlog.Log) error {
		cur, _ := e.Store.Read()
		resetTo = cur.Lyapunov.VPrevious
		cur.Lyapunov.V = resetTo
		return e.Store.WriteLocked(cur)
	})
	if err != nil {
		return ProcedureResult{Invariant: invariant.INV004, Status: StatusDegraded, Procedure: "lyapunov-reset", ActionsTaken: []string{"failed: " + err.Error()}}
	}
	return ProcedureResult{Invariant: invariant.INV004, Status: StatusRecovered, Procedure: "lyapunov-reset", ActionsTaken: []string{fmt.Sprintf("reset V to %.6f", resetTo)}}
}

// repairEnergyFloor (INV-005): dormant, clear coupling, pin energy to min.
func (e *Engine) repairEnergyFloor() ProcedureResult {
	err := e.Log.WithLock(func(*eventlog.Log) error {
		cur, _ := e.Store.Read()
		cur.Integrity.Status = domain.StatusDormant
		cur.Coupling.Active = false
		cur.Coupling.Partner = ""
		cur.Energy.Current = cur.Energy.Min
		return e.Store.WriteLocked(cur)
	})
	if err != nil {
		return ProcedureResult{Invariant: invariant.INV005, Status: StatusDegraded, Procedure: "energy-floor: enter dormancy", ActionsTaken: []string{"failed: " + err.Error()}}
	}
	return ProcedureResult{Invariant: invariant.INV005, Status: StatusRecovered, Procedure: "energy-floor: enter dormancy", ActionsTaken: []string{"set status=dormant, cleared coupling, pinned energy to min"}}
}
