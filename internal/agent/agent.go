package agent

import (
	"log/slog"
	"sync"
	"time"

	"entity/internal/catalog"
	"entity/internal/cyclememory"
	"entity/internal/domain"
	"entity/internal/genmodel"
	"entity/internal/invariant"
	"entity/internal/logging"
	"entity/internal/statestore"
)

// Candidate actions the chooser considers alongside the null (rest)
// action, per spec SPEC_FULL's seed catalog.
var defaultCandidates = []string{"null", "state.summary", "system.health", "energy.status", "memory.add"}

const nullAction = "null"

// ultrastability window and interval bounds (spec §4.14 step 6): a
// configurable followup, not named further by the spec beyond "a
// configurable window"; the values below are this package's fixed
// defaults.
const (
	ineffectivenessWindow = 3
	minWakeInterval       = 5 * time.Second
	maxWakeInterval       = 10 * time.Minute
	intervalExpandFactor  = 1.5
	intervalContractFactor = 0.8
)

// Config wires the Agent's collaborators.
type Config struct {
	Store    *statestore.Store
	Verifier *invariant.Verifier
	Catalog  *catalog.Catalog
	Model    *genmodel.Model
	Memory   *cyclememory.Memory
	Now      func() time.Time
	Logger   *slog.Logger

	WakeInterval time.Duration
}

// Agent is the internal sense-making loop (C14). It holds the awake/
// asleep state machine and the last cycle's predicted feeling vector
// used to compute the next cycle's surprise.
type Agent struct {
	mu sync.Mutex

	store    *statestore.Store
	verifier *invariant.Verifier
	catalog  *catalog.Catalog
	model    *genmodel.Model
	memory   *cyclememory.Memory
	now      func() time.Time
	logger   *slog.Logger

	awake        bool
	wakeInterval time.Duration
	lastPredict  *[3]float64

	consecutiveLowEff int
}

func New(cfg Config) *Agent {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.WakeInterval <= 0 {
		cfg.WakeInterval = 30 * time.Second
	}
	return &Agent{
		store:        cfg.Store,
		verifier:     cfg.Verifier,
		catalog:      cfg.Catalog,
		model:        cfg.Model,
		memory:       cfg.Memory,
		now:          cfg.Now,
		logger:       logging.Default(cfg.Logger).With("component", "agent"),
		wakeInterval: cfg.WakeInterval,
	}
}

// Wake transitions asleep -> awake and appends AgentWake (spec §4.14's
// state machine).
func (a *Agent) Wake() error {
	a.mu.Lock()
	a.awake = true
	a.mu.Unlock()
	_, _, err := a.store.AppendAtomic(domain.EventAgentWake, domain.Record{}, domain.CategoryOperational, func(st domain.State, _ domain.Event) domain.State {
		if st.Agent == nil {
			st.Agent = &domain.AgentTelemetry{}
		}
		st.Agent.Awake = true
		st.Agent.WakeInterval = a.WakeInterval().Milliseconds()
		return st
	})
	return err
}

// Sleep transitions awake -> asleep and appends AgentSleep.
func (a *Agent) Sleep() error {
	a.mu.Lock()
	a.awake = false
	a.mu.Unlock()
	_, _, err := a.store.AppendAtomic(domain.EventAgentSleep, domain.Record{}, domain.CategoryOperational, func(st domain.State, _ domain.Event) domain.State {
		if st.Agent != nil {
			st.Agent.Awake = false
		}
		return st
	})
	return err
}

// Awake reports whether the agent is currently awake.
func (a *Agent) Awake() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.awake
}

// WakeInterval returns the agent's current decision interval.
func (a *Agent) WakeInterval() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.wakeInterval
}

// Records exposes the agent's cycle memory for `learn report`/`analytics`.
// Cycle memory lives only in this process (spec §9's single-owner-cache
// rule, C13); it is empty unless queried against the running daemon.
func (a *Agent) Records() []domain.CycleRecord {
	return a.memory.Records()
}

// Suggest runs cyclememory.SuggestAction against the agent's current
// feeling for `learn suggest`.
func (a *Agent) Suggest() (action string, found bool, err error) {
	feeling, err := a.Feeling()
	if err != nil {
		return "", false, err
	}
	priority := Prioritize(feeling)
	action, found = a.memory.SuggestAction(feeling, priority, defaultCandidates)
	return action, found, nil
}

// Feeling returns the agent's current derived feeling without running a
// full cycle (used by the `agent feeling` CLI/IPC command).
func (a *Agent) Feeling() (domain.Feeling, error) {
	state, ok := a.store.Read()
	if !ok {
		return domain.Feeling{}, domain.NewError(domain.KindStateIo, "no state available", nil)
	}
	result := a.verifier.Run()
	a.mu.Lock()
	predicted := a.lastPredict
	a.mu.Unlock()
	return DeriveFeeling(state, result, predicted), nil
}

// CycleResult is what ForceCycle/RunOnce return, useful for tests and
// for `agent cycle`'s CLI output.
type CycleResult struct {
	Before        domain.Feeling
	Priority      domain.Priority
	Action        string
	Blocked       bool
	BlockReason   string
	After         domain.Feeling
	Effectiveness float64
	Record        domain.CycleRecord
}

// ForceCycle runs one cycle regardless of the wake-interval timer (spec
// §4.14: "Force-cycle works while awake but does not re-arm the
// timer"). It is a no-op returning an error if the agent is asleep.
func (a *Agent) ForceCycle() (CycleResult, error) {
	if !a.Awake() {
		return CycleResult{}, domain.NewError(domain.KindConstitutionalBlock, "agent is asleep", nil)
	}
	return a.runCycle()
}

// runCycle is the deterministic "run-one-cycle" entry spec §9 requires
// for tests: sense -> prioritise -> choose -> check -> execute -> learn.
func (a *Agent) runCycle() (CycleResult, error) {
	state, ok := a.store.Read()
	if !ok {
		return CycleResult{}, domain.NewError(domain.KindStateIo, "no state available", nil)
	}
	verification := a.verifier.Run()

	a.mu.Lock()
	predicted := a.lastPredict
	a.mu.Unlock()
	before := DeriveFeeling(state, verification, predicted)

	priority := Prioritize(before)

	candidates := make([]genmodel.Candidate, 0, len(defaultCandidates))
	for _, name := range defaultCandidates {
		candidates = append(candidates, genmodel.Candidate{Action: name})
	}
	preferred := genmodel.PreferredState{Energy: state.Energy.Threshold + (1-state.Energy.Threshold)/2}

	var choice genmodel.Choice
	if priority == domain.PrioritySurvival {
		// spec §4.14 step 3 override: "in survival mode force action =
		// null (conserve energy)".
		choice = genmodel.Choice{Action: nullAction, Predicted: a.model.Predict(nullAction, before)}
	} else {
		choice, _ = genmodel.Choose(a.model, before, priority, preferred, candidates)
	}
	action := choice.Action
	if action == "" {
		action = nullAction
	}

	blocked, blockReason := a.constitutionalCheck(action, state)
	energyCost := 0.0
	eventKind := domain.EventAgentResponse
	if action == nullAction {
		eventKind = domain.EventAgentRest
	}

	if !blocked && action != nullAction {
		entry, ok := a.catalog.Get(action)
		if ok {
			energyCost = entry.EnergyCost
		}
		if _, err := a.catalog.Invoke(action, nil); err != nil {
			blocked = true
			blockReason = err.Error()
		}
	}

	afterState, ok := a.store.Read()
	if !ok {
		afterState = state
	}
	afterVerification := a.verifier.Run()
	predictedVec := [3]float64{choice.Predicted.Energy, choice.Predicted.V, before.IntegrityFraction()}
	after := DeriveFeeling(afterState, afterVerification, &predictedVec)

	now := a.now().UTC()
	rec := a.memory.RecordCycle(now, before, priority, action, blocked, after, energyCost)

	a.model.Update(genmodel.Observation{
		Action:       action,
		EnergyBefore: before.Energy,
		EnergyAfter:  after.Energy,
		VBefore:      before.LyapunovV,
		VAfter:       after.LyapunovV,
	})

	a.mu.Lock()
	predictedCopy := predictedVec
	a.lastPredict = &predictedCopy
	a.mu.Unlock()

	data := domain.Record{
		"priority": string(priority),
		"action":   action,
		"blocked":  blocked,
	}
	if blockReason != "" {
		data["block_reason"] = blockReason
	}
	if _, _, err := a.store.AppendAtomic(eventKind, data, domain.CategoryOperational, func(st domain.State, ev domain.Event) domain.State {
		if st.Agent == nil {
			st.Agent = &domain.AgentTelemetry{}
		}
		st.Agent.LastCycleAt = ev.Timestamp
		st.Agent.LastPriority = string(priority)
		return st
	}); err != nil {
		return CycleResult{}, err
	}

	a.adapt(rec.Effectiveness)

	return CycleResult{
		Before: before, Priority: priority, Action: action, Blocked: blocked, BlockReason: blockReason,
		After: after, Effectiveness: rec.Effectiveness, Record: rec,
	}, nil
}

// constitutionalCheck applies spec §4.14 step 4's guard: coupling
// requirement and the energy floor. The null action is never blocked.
func (a *Agent) constitutionalCheck(action string, state domain.State) (blocked bool, reason string) {
	if action == nullAction {
		return false, ""
	}
	entry, ok := a.catalog.Get(action)
	if !ok {
		return true, "unknown operation"
	}
	if entry.RequiresCoupling && !state.Coupling.Active {
		return true, "requires coupling, none active"
	}
	if state.Energy.Current-entry.EnergyCost < state.Energy.Min {
		return true, "would drive energy below floor"
	}
	return false, ""
}

// adapt implements ultrastability: expand the wake interval after
// ineffectivenessWindow consecutive cycles of negative effectiveness, and
// contract it after any single cycle with positive effectiveness; a run
// of positive cycles is not required for contraction (spec §4.14 step 6).
func (a *Agent) adapt(effectiveness float64) {
	a.mu.Lock()
	if effectiveness < 0 {
		a.consecutiveLowEff++
	} else {
		a.consecutiveLowEff = 0
	}
	count := a.consecutiveLowEff
	current := a.wakeInterval
	a.mu.Unlock()

	var next time.Duration
	switch {
	case count >= ineffectivenessWindow:
		next = time.Duration(float64(current) * intervalExpandFactor)
		if next > maxWakeInterval {
			next = maxWakeInterval
		}
	case count == 0 && effectiveness > 0:
		next = time.Duration(float64(current) * intervalContractFactor)
		if next < minWakeInterval {
			next = minWakeInterval
		}
	default:
		return
	}
	if next == current {
		return
	}

	a.mu.Lock()
	a.wakeInterval = next
	a.mu.Unlock()

	_, _, _ = a.store.AppendAtomic(domain.EventAgentUltrastability, domain.Record{
		"old_interval_ms": float64(current.Milliseconds()),
		"new_interval_ms": float64(next.Milliseconds()),
	}, domain.CategoryOperational, func(st domain.State, _ domain.Event) domain.State {
		if st.Agent == nil {
			st.Agent = &domain.AgentTelemetry{}
		}
		st.Agent.WakeInterval = next.Milliseconds()
		st.Agent.ConsecutiveLowEff = count
		return st
	})
}

// RunLoop runs cycles on the wake-interval timer until stop is closed.
// The loop only runs while the agent is awake; it re-reads the interval
// (which ultrastability may have changed) before each sleep (spec §5:
// "The sense-making loop cannot be cancelled mid-cycle").
func (a *Agent) RunLoop(stop <-chan struct{}) {
	for {
		interval := a.WakeInterval()
		select {
		case <-stop:
			return
		case <-time.After(interval):
			if a.Awake() {
				if _, err := a.runCycle(); err != nil {
					a.logger.Warn("cycle failed", "error", err)
				}
			}
		}
	}
}
