package daemon

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"entity/internal/agent"
	"entity/internal/catalog"
	"entity/internal/couplingqueue"
	"entity/internal/cyclememory"
	"entity/internal/domain"
	"entity/internal/eventlog"
	"entity/internal/genmodel"
	"entity/internal/invariant"
	"entity/internal/maintenance"
	"entity/internal/recovery"
	"entity/internal/scheduler"
	"entity/internal/snapshot"
	"entity/internal/statestore"
)

func newTestSupervisor(t *testing.T) (*Supervisor, string) {
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
	recov := &recovery.Engine{Log: log, Store: store, Weights: invariant.DefaultWeights, Now: nowFn}
	snapStore, err := snapshot.New(snapshot.Config{Dir: dir, Store: store, Now: nowFn})
	if err != nil {
		t.Fatalf("snapshot.New: %v", err)
	}
	mon := maintenance.New(maintenance.Config{
		Store: store, Verifier: verifier, Recovery: recov, Snapshot: snapStore,
		Interval: time.Hour, SnapshotInterval: time.Hour,
		EnergyLow: 0.3, EnergyCritical: 0.1, Coupling: couplingqueue.DefaultConfig(), Now: nowFn,
	})

	cat := catalog.New(store, nowFn)
	cat.Register(catalog.Entry{
		ID: "state.summary",
		Handler: func(_ domain.State, _ map[string]string) catalog.Outcome {
			return catalog.Outcome{Success: true}
		},
	})
	sched, err := scheduler.New(scheduler.Config{Dir: dir, Catalog: cat, Now: nowFn})
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}

	ag := agent.New(agent.Config{
		Store: store, Verifier: verifier, Catalog: cat,
		Model: genmodel.New(20, 0.1), Memory: cyclememory.New(50, 0.15), Now: nowFn,
	})

	sup := New(Config{Dir: dir, Scheduler: sched, Maintenance: mon, Agent: ag})
	return sup, dir
}

func TestStartClaimsPidfileAndStopReleasesIt(t *testing.T) {
	sup, dir := newTestSupervisor(t)
	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	pidPath := filepath.Join(dir, "daemon.pid")
	b, err := os.ReadFile(pidPath)
	if err != nil {
		t.Fatalf("expected pidfile written: %v", err)
	}
	pid, err := strconv.Atoi(string(b))
	if err != nil || pid != os.Getpid() {
		t.Fatalf("expected pidfile to contain this process's pid, got %q", b)
	}

	if err := sup.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Fatalf("expected pidfile removed after Stop")
	}
}

func TestStartRefusesSecondInstance(t *testing.T) {
	sup, dir := newTestSupervisor(t)
	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sup.Stop(context.Background())

	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "daemon.pid"), []byte(strconv.Itoa(os.Getpid())), 0o640); err != nil {
		t.Fatalf("seed pidfile: %v", err)
	}

	if err := sup.claimPidfile(); err == nil {
		t.Fatalf("expected claimPidfile to refuse a pidfile pointing at a live process")
	}
}

func TestSubmitStatusAndTasks(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sup.Stop(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := sup.Submit(ctx, "status", nil)
	if err != nil {
		t.Fatalf("Submit status: %v", err)
	}
	info, ok := result.(StatusInfo)
	if !ok || !info.Running {
		t.Fatalf("expected running StatusInfo, got %+v", result)
	}

	if _, err := sup.Submit(ctx, "tasks", nil); err != nil {
		t.Fatalf("Submit tasks: %v", err)
	}

	if _, err := sup.Submit(ctx, "no.such.command", nil); err == nil {
		t.Fatalf("expected error for unknown command")
	}
}

func TestSubmitAgentSleepAndFeeling(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sup.Stop(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := sup.Submit(ctx, "agent.sleep", nil); err != nil {
		t.Fatalf("Submit agent.sleep: %v", err)
	}
	if _, err := sup.Submit(ctx, "agent.feeling", nil); err != nil {
		t.Fatalf("Submit agent.feeling: %v", err)
	}
}
