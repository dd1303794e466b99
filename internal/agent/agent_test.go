package agent

import (
	"testing"
	"time"

	"entity/internal/catalog"
	"entity/internal/cyclememory"
	"entity/internal/domain"
	"entity/internal/eventlog"
	"entity/internal/genmodel"
	"entity/internal/invariant"
	"entity/internal/statestore"
)

func newTestAgent(t *testing.T) (*Agent, *statestore.Store) {
	t.Helper()
	dir := t.TempDir()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	nowFn := func() time.Time { return now }

	log, err := eventlog.New(eventlog.Config{Dir: dir, Now: nowFn})
	if err != nil {
		t.Fatalf("eventlog.New: %v", err)
	}
	store, err := statestore.New(statestore.Config{Dir: dir, Log: log, Now: nowFn})
	if err != nil {
		t.Fatalf("statestore.New: %v", err)
	}
	orgHash := domain.Digest{1, 2, 3}
	if _, _, err := store.AppendAtomic(domain.EventGenesis, domain.Record{"organization_hash": orgHash.String()}, domain.CategoryOperational, func(st domain.State, ev domain.Event) domain.State {
		st.OrganizationHash = orgHash
		st.Energy = domain.Energy{Current: 1, Min: 0.01, Threshold: 0.2}
		st.Integrity.Status = domain.StatusNominal
		return st
	}); err != nil {
		t.Fatalf("seed genesis: %v", err)
	}

	verifier := &invariant.Verifier{Log: log, Store: store, Weights: invariant.DefaultWeights, Now: nowFn}
	cat := catalog.New(store, nowFn)
	cat.Register(catalog.Entry{
		ID: "state.summary", EnergyCost: 0.01,
		Handler: func(_ domain.State, _ map[string]string) catalog.Outcome {
			return catalog.Outcome{Success: true, Message: "ok"}
		},
	})
	model := genmodel.New(20, 0.1)
	memory := cyclememory.New(50, 0.15)

	a := New(Config{
		Store: store, Verifier: verifier, Catalog: cat, Model: model, Memory: memory, Now: nowFn,
	})
	return a, store
}

func TestWakeSleepTogglesAwakeAndAppendsEvents(t *testing.T) {
	a, store := newTestAgent(t)

	if a.Awake() {
		t.Fatalf("expected agent to start asleep")
	}
	if err := a.Wake(); err != nil {
		t.Fatalf("Wake: %v", err)
	}
	if !a.Awake() {
		t.Fatalf("expected agent awake after Wake")
	}
	state, _ := store.Read()
	if state.Agent == nil || !state.Agent.Awake {
		t.Fatalf("expected state.Agent.Awake true, got %+v", state.Agent)
	}

	if err := a.Sleep(); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	if a.Awake() {
		t.Fatalf("expected agent asleep after Sleep")
	}
}

func TestForceCycleRequiresAwake(t *testing.T) {
	a, _ := newTestAgent(t)
	if _, err := a.ForceCycle(); err == nil {
		t.Fatalf("expected error forcing a cycle while asleep")
	}
}

func TestForceCycleRunsAndRecordsHistory(t *testing.T) {
	a, store := newTestAgent(t)
	if err := a.Wake(); err != nil {
		t.Fatalf("Wake: %v", err)
	}

	result, err := a.ForceCycle()
	if err != nil {
		t.Fatalf("ForceCycle: %v", err)
	}
	if result.Action == "" {
		t.Fatalf("expected a chosen action")
	}

	records := a.Records()
	if len(records) != 1 {
		t.Fatalf("expected 1 recorded cycle, got %d", len(records))
	}

	state, _ := store.Read()
	if state.Agent == nil || state.Agent.LastCycleAt.IsZero() {
		t.Fatalf("expected LastCycleAt set after a cycle")
	}
}

func TestConstitutionalCheckBlocksBelowEnergyFloor(t *testing.T) {
	a, store := newTestAgent(t)
	if _, err := store.Update(func(st domain.State) domain.State {
		st.Energy.Current = 0.015
		return st
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	state, _ := store.Read()

	blocked, reason := a.constitutionalCheck("state.summary", state)
	if !blocked || reason == "" {
		t.Fatalf("expected expensive action blocked near the energy floor")
	}

	blocked, _ = a.constitutionalCheck(nullAction, state)
	if blocked {
		t.Fatalf("expected null action never blocked")
	}
}

func TestFeelingWithoutRunningACycle(t *testing.T) {
	a, _ := newTestAgent(t)
	feeling, err := a.Feeling()
	if err != nil {
		t.Fatalf("Feeling: %v", err)
	}
	if feeling.Energy != 1 {
		t.Fatalf("expected energy 1, got %v", feeling.Energy)
	}
}
