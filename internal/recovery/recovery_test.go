package recovery

import (
	"testing"
	"time"

	"entity/internal/domain"
	"entity/internal/eventlog"
	"entity/internal/invariant"
	"entity/internal/statestore"
)

func newTestEngine(t *testing.T) (*Engine, *eventlog.Log, *statestore.Store) {
	t.Helper()
	dir := t.TempDir()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	log, err := eventlog.New(eventlog.Config{Dir: dir, Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("eventlog.New: %v", err)
	}
	store, err := statestore.New(statestore.Config{Dir: dir, Log: log, Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("statestore.New: %v", err)
	}
	orgHash := domain.Digest{1, 2, 3}
	if _, _, err := store.AppendAtomic(domain.EventGenesis, domain.Record{"organization_hash": orgHash.String()}, domain.CategoryOperational, func(st domain.State, ev domain.Event) domain.State {
		st.OrganizationHash = orgHash
		st.Created = ev.Timestamp
		st.Energy = domain.Energy{Current: 1, Min: 0.01, Threshold: 0.2}
		st.Integrity.Status = domain.StatusNominal
		return st
	}); err != nil {
		t.Fatalf("seed genesis: %v", err)
	}
	return &Engine{Log: log, Store: store, Weights: invariant.DefaultWeights, Now: func() time.Time { return now }}, log, store
}

func TestRunNoViolationsIsNoOp(t *testing.T) {
	e, _, _ := newTestEngine(t)
	outcome, err := e.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != StatusRecovered || len(outcome.Procedures) != 0 {
		t.Fatalf("expected a no-op recovered outcome, got %+v", outcome)
	}
}

func TestRunRepairsEnergyFloorViolation(t *testing.T) {
	e, _, store := newTestEngine(t)
	if _, err := store.Update(func(st domain.State) domain.State {
		st.Energy.Current = 0.0
		return st
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	outcome, err := e.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != StatusRecovered {
		t.Fatalf("expected recovered status, got %v (%+v)", outcome.Status, outcome.Procedures)
	}
	found := false
	for _, p := range outcome.Procedures {
		if p.Invariant == invariant.INV005 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected INV-005 procedure to run, got %+v", outcome.Procedures)
	}

	state, _ := store.Read()
	if state.Integrity.Status != domain.StatusDormant {
		t.Fatalf("expected dormant status after energy-floor repair, got %v", state.Integrity.Status)
	}
	if state.Energy.Current != state.Energy.Min {
		t.Fatalf("expected energy pinned to min, got %v", state.Energy.Current)
	}
}

func TestRunRepairsLyapunovViolation(t *testing.T) {
	e, _, store := newTestEngine(t)
	if _, err := store.Update(func(st domain.State) domain.State {
		st.Lyapunov = domain.Lyapunov{V: 0.5, VPrevious: 0.1}
		return st
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	outcome, err := e.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != StatusRecovered {
		t.Fatalf("expected recovered status, got %v (%+v)", outcome.Status, outcome.Procedures)
	}

	state, _ := store.Read()
	if state.Lyapunov.V != 0.1 {
		t.Fatalf("expected V reset to VPrevious=0.1, got %v", state.Lyapunov.V)
	}
}

func TestLongestValidPrefixStopsAtFirstBreak(t *testing.T) {
	events := []domain.Event{
		{Seq: 1, Type: domain.EventGenesis, Hash: domain.Digest{0xff}},
	}
	if got := longestValidPrefix(events); got != 0 {
		t.Fatalf("expected longestValidPrefix to reject a hash that doesn't recompute, got %d", got)
	}
}
