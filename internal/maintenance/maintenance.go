// Package maintenance implements C10: the periodic monitor that checks
// energy, runs invariant verification (dispatching to recovery when
// auto-recovery is enabled), and creates snapshots on a timer, entering
// dormancy when energy goes critical (spec §4.10). Grounded on the
// teacher's periodic sweep pattern in internal/orchestrator/scheduler.go,
// but running its own ticker loop rather than going through gocron,
// since its cadence is driven by wall-clock deltas against
// last-snapshot/last-verify state rather than cron expressions.
package maintenance

import (
	"log/slog"
	"sync"
	"time"

	"entity/internal/couplingqueue"
	"entity/internal/domain"
	"entity/internal/invariant"
	"entity/internal/logging"
	"entity/internal/recovery"
	"entity/internal/snapshot"
	"entity/internal/statestore"
)

// Signal is one observation the monitor makes during a sweep, retained
// in a small ring for `daemon status`/`maintenance` CLI reporting.
type Signal struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
}

// Config wires the Monitor's collaborators and thresholds.
type Config struct {
	Store    *statestore.Store
	Verifier *invariant.Verifier
	Recovery *recovery.Engine
	Snapshot *snapshot.Store

	Interval         time.Duration
	SnapshotInterval time.Duration
	EnergyLow        float64
	EnergyCritical   float64
	AutoRecovery     bool
	Coupling         couplingqueue.Config
	Now              func() time.Time
	Logger           *slog.Logger
}

// Monitor is C10, the maintenance sweep loop.
type Monitor struct {
	store    *statestore.Store
	verifier *invariant.Verifier
	recovery *recovery.Engine
	snapshot *snapshot.Store

	interval         time.Duration
	snapshotInterval time.Duration
	energyLow        float64
	energyCritical   float64
	autoRecovery     bool
	coupling         couplingqueue.Config
	now              func() time.Time
	logger           *slog.Logger

	mu                 sync.Mutex
	signals            []Signal
	lastSweep          time.Time
	recentBlocks       int
	stop               chan struct{}
	done               chan struct{}
}

const maxSignals = 100

func New(cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = time.Hour
	}
	if cfg.EnergyLow <= 0 {
		cfg.EnergyLow = 0.3
	}
	if cfg.EnergyCritical <= 0 {
		cfg.EnergyCritical = 0.1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if (cfg.Coupling == couplingqueue.Config{}) {
		cfg.Coupling = couplingqueue.DefaultConfig()
	}
	return &Monitor{
		store: cfg.Store, verifier: cfg.Verifier, recovery: cfg.Recovery, snapshot: cfg.Snapshot,
		interval: cfg.Interval, snapshotInterval: cfg.SnapshotInterval,
		energyLow: cfg.EnergyLow, energyCritical: cfg.EnergyCritical,
		autoRecovery: cfg.AutoRecovery, coupling: cfg.Coupling, now: cfg.Now,
		logger: logging.Default(cfg.Logger).With("component", "maintenance"),
	}
}

// Start begins the sweep loop in its own task.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.stop != nil {
		m.mu.Unlock()
		return
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.RunOnce()
			}
		}
	}()
}

// Stop halts the sweep loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	stop := m.stop
	done := m.done
	m.stop = nil
	m.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// RunOnce performs a single sweep: energy check, invariant verification
// (plus recovery dispatch), and snapshot-on-interval. It is exported so
// `daemon maintenance` can force an out-of-band sweep.
func (m *Monitor) RunOnce() {
	now := m.now().UTC()
	m.mu.Lock()
	m.lastSweep = now
	m.mu.Unlock()

	m.checkEnergy(now)
	violations := m.checkInvariants(now)
	m.checkSnapshot(now)
	m.checkCouplingTriggers(now, violations)
}

func (m *Monitor) record(kind, detail string) {
	m.mu.Lock()
	m.signals = append(m.signals, Signal{Timestamp: m.now().UTC(), Kind: kind, Detail: detail})
	if over := len(m.signals) - maxSignals; over > 0 {
		m.signals = m.signals[over:]
	}
	m.mu.Unlock()
}

func (m *Monitor) checkEnergy(now time.Time) {
	state, ok := m.store.Read()
	if !ok {
		return
	}
	switch {
	case state.Energy.Current <= m.energyCritical:
		m.record("energy_critical", "energy at or below critical threshold")
		m.logger.Warn("energy critical", "current", state.Energy.Current)
		m.enterDormancy(state)
	case state.Energy.Current <= m.energyLow:
		m.record("energy_low", "energy at or below low threshold")
		m.logger.Info("energy low", "current", state.Energy.Current)
	}
}

// enterDormancy marks Integrity.Status dormant, the recovery-independent
// conservation response to critical energy (spec §4.10: "energy
// critical enters dormancy"; distinct from the verifier's own
// INV-004-triggered recovery path).
func (m *Monitor) enterDormancy(state domain.State) {
	if state.Integrity.Status == domain.StatusDormant {
		return
	}
	if _, _, err := m.store.AppendAtomic(domain.EventStateUpdate, domain.Record{
		"reason": "dormancy_entered",
	}, domain.CategoryOperational, func(st domain.State, _ domain.Event) domain.State {
		st.Integrity.Status = domain.StatusDormant
		return st
	}); err != nil {
		m.logger.Error("failed to enter dormancy", "error", err)
	}
}

func (m *Monitor) checkInvariants(now time.Time) int {
	result, _, err := m.verifier.RunRecording()
	if err != nil {
		m.logger.Error("verification failed", "error", err)
		return 0
	}
	violations := 0
	for _, c := range result.Invariants {
		if !c.Satisfied {
			violations++
		}
	}
	if result.AllSatisfied {
		return 0
	}
	m.record("invariant_violation", "one or more invariants unsatisfied")
	if !m.autoRecovery {
		return violations
	}
	outcome, err := m.recovery.Run()
	if err != nil {
		m.logger.Error("recovery run failed", "error", err)
		return violations
	}
	m.record("recovery_"+string(outcome.Status), "automatic recovery dispatched")
	m.logger.Info("recovery dispatched", "status", outcome.Status, "procedures", len(outcome.Procedures))
	return violations
}

// checkCouplingTriggers evaluates couplingqueue.CheckTriggers against the
// sweep's findings and enqueues a coupling request when one fires (spec
// §4.11 composing C10 into C11).
func (m *Monitor) checkCouplingTriggers(now time.Time, violations int) {
	state, ok := m.store.Read()
	if !ok {
		return
	}
	priority, reason := couplingqueue.CheckTriggers(couplingqueue.TriggerContext{
		Energy: state.Energy.Current, EnergyCritical: m.energyCritical, EnergyLow: m.energyLow,
		InvariantViolations: violations,
	})
	if priority == "" {
		return
	}
	if _, _, err := m.store.AppendAtomic(domain.EventStateUpdate, domain.Record{
		"reason": "maintenance_coupling_trigger",
	}, domain.CategoryOperational, func(st domain.State, ev domain.Event) domain.State {
		if st.Coupling.Queue == nil {
			st.Coupling.Queue = &domain.QueueState{}
		}
		couplingqueue.Enqueue(st.Coupling.Queue, m.coupling, domain.CouplingRequest{
			ID: domain.NewID(), Priority: priority, Reason: reason,
		}, ev.Timestamp)
		return st
	}); err != nil {
		m.logger.Error("failed to enqueue triggered coupling request", "error", err)
		return
	}
	m.record("coupling_triggered", reason)
}

func (m *Monitor) checkSnapshot(now time.Time) {
	state, ok := m.store.Read()
	if !ok {
		return
	}
	if !state.Memory.LastSnapshotAt.IsZero() && now.Sub(state.Memory.LastSnapshotAt) < m.snapshotInterval {
		return
	}
	if _, err := m.snapshot.Create("scheduled maintenance sweep"); err != nil {
		m.logger.Error("scheduled snapshot failed", "error", err)
		return
	}
	m.record("snapshot_created", "snapshot interval elapsed")
}

// Signals returns a copy of the retained signal ring, oldest first.
func (m *Monitor) Signals() []Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Signal(nil), m.signals...)
}

// LastSweep reports when RunOnce last executed.
func (m *Monitor) LastSweep() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSweep
}
