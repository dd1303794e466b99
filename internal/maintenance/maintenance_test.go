package maintenance

import (
	"testing"
	"time"

	"entity/internal/couplingqueue"
	"entity/internal/domain"
	"entity/internal/eventlog"
	"entity/internal/invariant"
	"entity/internal/recovery"
	"entity/internal/snapshot"
	"entity/internal/statestore"
)

func newTestMonitor(t *testing.T, energy domain.Energy) (*Monitor, *statestore.Store) {
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
		st.Energy = energy
		st.Integrity.Status = domain.StatusNominal
		return st
	}); err != nil {
		t.Fatalf("seed genesis: %v", err)
	}

	verifier := &invariant.Verifier{Log: log, Store: store, Weights: invariant.DefaultWeights, Now: nowFn}
	recov := &recovery.Engine{Log: log, Store: store, Weights: invariant.DefaultWeights, Now: nowFn}
	snapStore, err := snapshot.New(snapshot.Config{Dir: dir, Store: store, Now: nowFn})
	if err != nil {
		t.Fatalf("snapshot.New: %v", err)
	}

	m := New(Config{
		Store: store, Verifier: verifier, Recovery: recov, Snapshot: snapStore,
		EnergyLow: 0.3, EnergyCritical: 0.1, AutoRecovery: true,
		Coupling: couplingqueue.DefaultConfig(), Now: nowFn,
	})
	return m, store
}

func TestCheckEnergyEntersDormancyOnCritical(t *testing.T) {
	m, store := newTestMonitor(t, domain.Energy{Current: 0.05, Min: 0.01, Threshold: 0.2})
	m.checkEnergy(time.Now())

	state, _ := store.Read()
	if state.Integrity.Status != domain.StatusDormant {
		t.Fatalf("expected dormant status after critical energy check, got %v", state.Integrity.Status)
	}

	signals := m.Signals()
	found := false
	for _, s := range signals {
		if s.Kind == "energy_critical" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected energy_critical signal recorded, got %+v", signals)
	}
}

func TestCheckEnergyLowDoesNotEnterDormancy(t *testing.T) {
	m, store := newTestMonitor(t, domain.Energy{Current: 0.2, Min: 0.01, Threshold: 0.3})
	m.checkEnergy(time.Now())

	state, _ := store.Read()
	if state.Integrity.Status == domain.StatusDormant {
		t.Fatalf("expected low (not critical) energy to leave status alone")
	}
}

func TestCheckSnapshotCreatesOnFirstSweep(t *testing.T) {
	m, store := newTestMonitor(t, domain.Energy{Current: 1, Min: 0.01, Threshold: 0.2})
	m.checkSnapshot(time.Now())

	state, _ := store.Read()
	if state.Memory.LastSnapshotAt.IsZero() {
		t.Fatalf("expected a snapshot created on first sweep with no prior snapshot")
	}
}

func TestCheckSnapshotSkipsWithinInterval(t *testing.T) {
	m, store := newTestMonitor(t, domain.Energy{Current: 1, Min: 0.01, Threshold: 0.2})
	m.snapshotInterval = time.Hour
	m.checkSnapshot(time.Now())

	before, _ := store.Read()
	m.checkSnapshot(before.Memory.LastSnapshotAt.Add(time.Minute))
	after, _ := store.Read()

	if before.Memory.LastSnapshotAt != after.Memory.LastSnapshotAt {
		t.Fatalf("expected snapshot skipped within the interval")
	}
}

func TestCheckInvariantsDispatchesRecoveryOnViolation(t *testing.T) {
	m, store := newTestMonitor(t, domain.Energy{Current: 1, Min: 0.01, Threshold: 0.2})
	if _, err := store.Update(func(st domain.State) domain.State {
		st.Energy.Current = 0.0
		return st
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	violations := m.checkInvariants(time.Now())
	if violations == 0 {
		t.Fatalf("expected at least one invariant violation reported")
	}

	state, _ := store.Read()
	if state.Integrity.Status != domain.StatusDormant {
		t.Fatalf("expected recovery to have dispatched the energy-floor repair, got %v", state.Integrity.Status)
	}
}

func TestRunOnceRecordsASweepTimestamp(t *testing.T) {
	m, _ := newTestMonitor(t, domain.Energy{Current: 1, Min: 0.01, Threshold: 0.2})
	if !m.LastSweep().IsZero() {
		t.Fatalf("expected no sweep recorded before RunOnce")
	}
	m.RunOnce()
	if m.LastSweep().IsZero() {
		t.Fatalf("expected LastSweep set after RunOnce")
	}
}
