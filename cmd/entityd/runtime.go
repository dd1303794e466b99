package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	petname "github.com/dustinkirkland/golang-petname"

	"entity/internal/agent"
	"entity/internal/catalog"
	"entity/internal/couplingqueue"
	"entity/internal/cyclememory"
	"entity/internal/daemon"
	"entity/internal/eventlog"
	"entity/internal/genmodel"
	"entity/internal/home"
	"entity/internal/invariant"
	"entity/internal/maintenance"
	"entity/internal/organization"
	"entity/internal/presence"
	"entity/internal/recovery"
	"entity/internal/restapi"
	"entity/internal/runtimeconfig"
	"entity/internal/scheduler"
	"entity/internal/snapshot"
	"entity/internal/statestore"
)

// runtime wires every component named in C1-C16 against one home
// directory. Every CLI command opens a fresh runtime (the log and state
// files are the source of truth, not an in-process cache shared across
// invocations); only `daemon start` keeps one alive past the command's
// own lifetime.
type runtime struct {
	dir    home.Dir
	cfg    *runtimeconfig.Manager
	logger *slog.Logger

	log      *eventlog.Log
	store    *statestore.Store
	verifier *invariant.Verifier
	recovery *recovery.Engine
	snapshot *snapshot.Store
	catalog  *catalog.Catalog
	model    *genmodel.Model
	memory   *cyclememory.Memory
	agent    *agent.Agent
	presence *presence.Broadcaster
	sched    *scheduler.Scheduler
	mon      *maintenance.Monitor
}

func couplingConfigFrom(v runtimeconfig.Values) couplingqueue.Config {
	return couplingqueue.Config{
		MaxPending:   v.CouplingMaxPending,
		DedupeWindow: time.Duration(v.CouplingDedupeWindowMs) * time.Millisecond,
		Cooldown:     time.Duration(v.CouplingCooldownMs) * time.Millisecond,
		HistorySize:  v.CouplingHistorySize,
		TTLUrgent:    time.Duration(v.CouplingTTLUrgentMs) * time.Millisecond,
		TTLNormal:    time.Duration(v.CouplingTTLNormalMs) * time.Millisecond,
		TTLLow:       time.Duration(v.CouplingTTLLowMs) * time.Millisecond,
	}
}

// openRuntime bootstraps the home directory (creating it and the
// organization identity block on first run) and wires every component.
func openRuntime(dir home.Dir, logger *slog.Logger) (*runtime, error) {
	if err := dir.EnsureExists(); err != nil {
		return nil, err
	}

	cfgMgr, err := runtimeconfig.Load(dir.ConfigPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("load runtime config: %w", err)
	}
	values := cfgMgr.Get()

	log, err := eventlog.New(eventlog.Config{Dir: dir.Root(), Logger: logger, Owner: "entityd"})
	if err != nil {
		return nil, err
	}
	store, err := statestore.New(statestore.Config{Dir: dir.Root(), Log: log, Logger: logger})
	if err != nil {
		return nil, err
	}

	if _, err := organization.Bootstrap(dir.Root(), store, organization.CanonicalSpecification(), instantiatedBy(), time.Now); err != nil {
		return nil, fmt.Errorf("bootstrap organization: %w", err)
	}

	verifier := &invariant.Verifier{Log: log, Store: store, Weights: values.LyapunovWeights, Now: time.Now}
	recoveryEngine := &recovery.Engine{Log: log, Store: store, Weights: values.LyapunovWeights, Now: time.Now}

	snapStore, err := snapshot.New(snapshot.Config{Dir: dir.Root(), Log: log, Store: store})
	if err != nil {
		return nil, err
	}

	cat := catalog.New(store, time.Now)
	cat.SetCouplingConfig(couplingConfigFrom(values))
	catalog.RegisterDefaults(cat, catalog.SeedConfig{Verify: verifier.Run})

	model := genmodel.New(100, 0.3)
	memory := cyclememory.New(values.CycleMemoryMaxCycles, values.CycleMemorySimilarityThresh)

	ag := agent.New(agent.Config{
		Store: store, Verifier: verifier, Catalog: cat, Model: model, Memory: memory, Logger: logger,
	})

	pres := presence.New(presence.Config{
		Store: store, Verifier: verifier,
		PollInterval: time.Duration(values.PresencePollIntervalMs) * time.Millisecond,
		Logger:       logger,
	})

	sched, err := scheduler.New(scheduler.Config{Dir: dir.Root(), Catalog: cat, Logger: logger})
	if err != nil {
		return nil, err
	}

	mon := maintenance.New(maintenance.Config{
		Store: store, Verifier: verifier, Recovery: recoveryEngine, Snapshot: snapStore,
		Interval:         time.Duration(values.MaintenanceCheckIntervalMs) * time.Millisecond,
		SnapshotInterval: time.Duration(values.MaintenanceSnapshotInterval) * time.Millisecond,
		EnergyLow:        values.EnergyLowThreshold,
		EnergyCritical:   values.EnergyCriticalThreshold,
		AutoRecovery:     values.AutoRecovery,
		Coupling:         couplingConfigFrom(values),
		Logger:           logger,
	})

	return &runtime{
		dir: dir, cfg: cfgMgr, logger: logger,
		log: log, store: store, verifier: verifier, recovery: recoveryEngine, snapshot: snapStore,
		catalog: cat, model: model, memory: memory, agent: ag, presence: pres, sched: sched, mon: mon,
	}, nil
}

func (r *runtime) close() {
	r.cfg.Close()
}

// supervisor builds the daemon.Supervisor that owns this runtime's
// scheduler, maintenance monitor, and agent for the lifetime of
// `daemon start`.
func (r *runtime) supervisor() *daemon.Supervisor {
	return daemon.New(daemon.Config{
		Dir: r.dir.Root(), Scheduler: r.sched, Maintenance: r.mon, Agent: r.agent, Logger: r.logger,
	})
}

func (r *runtime) restAPI() *restapi.Handler {
	return restapi.New(restapi.Config{Store: r.store, Verifier: r.verifier, Agent: r.agent, Logger: r.logger})
}

// instantiatedBy identifies who first bootstrapped this home directory
// (recorded once, in the Genesis event). Outside a shell with $USER set
// (containers, cron, the daemon under some init systems) it falls back
// to a generated petname rather than the uninformative literal
// "unknown", since this value is permanent once Bootstrap writes it.
func instantiatedBy() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return petname.Generate(2, "-")
}
