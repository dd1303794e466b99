package domain

import "time"

// IntegrityStatus is the coarse operational status derived from invariant
// checks and energy (spec §3).
type IntegrityStatus string

const (
	StatusNominal  IntegrityStatus = "nominal"
	StatusDegraded IntegrityStatus = "degraded"
	StatusDormant  IntegrityStatus = "dormant"
	StatusTerminal IntegrityStatus = "terminal"
)

// Energy tracks the agent's scalar energy budget, clamped to [0,1].
type Energy struct {
	Current   float64 `json:"current"`
	Min       float64 `json:"min"`
	Threshold float64 `json:"threshold"`
}

// Lyapunov holds the current and previous scalar potential V (spec §3).
type Lyapunov struct {
	V         float64 `json:"v"`
	VPrevious float64 `json:"v_previous"`
}

// Memory mirrors the log projection (spec §3); it must equal
// project(events) under INV-002.
type Memory struct {
	EventCount     uint64    `json:"event_count"`
	LastEventHash  Digest    `json:"last_event_hash"`
	LastSnapshotAt time.Time `json:"last_snapshot_at,omitzero"`
}

// Session tracks coupling-session counters.
type Session struct {
	TotalCount int    `json:"total_count"`
	CurrentID  string `json:"current_id,omitempty"`
}

// Integrity summarises the last verification outcome.
type Integrity struct {
	InvariantViolations int             `json:"invariant_violations"`
	LastVerification    time.Time       `json:"last_verification,omitzero"`
	Status              IntegrityStatus `json:"status"`
}

// Coupling reflects whether a human-agent interaction session is active.
// Active/Partner/Since are projector-reconstructible; Queue is not (see
// State's doc comment below).
type Coupling struct {
	Active  bool      `json:"active"`
	Partner string    `json:"partner,omitempty"`
	Since   time.Time `json:"since,omitzero"`
	Queue   *QueueState `json:"queue,omitempty"`
}

// HumanContext carries free-form human-supplied context fields.
type HumanContext struct {
	Name    string `json:"name,omitempty"`
	Context string `json:"context,omitempty"`
}

// AutopoiesisEntry records a self-generated operation (meta catalog
// entries composed/specialized by the agent). Optional block.
type AutopoiesisEntry struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ComposedOf  []string  `json:"composed_of,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// AgentTelemetry is an optional block describing the internal agent's
// last-known operating parameters (C14).
type AgentTelemetry struct {
	Awake            bool      `json:"awake"`
	WakeInterval     int64     `json:"wake_interval_ms"`
	LastCycleAt      time.Time `json:"last_cycle_at,omitzero"`
	LastPriority     string    `json:"last_priority,omitempty"`
	ConsecutiveLowEff int      `json:"consecutive_low_effectiveness"`
}

// State is the single current-state document (spec §3). It is the sole
// mutable value in the system; every field except the immutable identity
// block is reconstructible by the projector (C4) from the event log,
// modulo HumanContext, ImportantMemory, and Coupling.Queue, which are not
// projected (spec §4.4, INV-002). The queue is C11's own session-scoped
// cache: it is mutated directly by catalog/CLI callers under the store's
// lock and is not rebuilt by replaying the log.
type State struct {
	OrganizationHash Digest    `json:"organization_hash"`
	Created          time.Time `json:"created"`
	InstantiatedBy   string    `json:"instantiated_by"`
	Specification    string    `json:"specification"`

	Updated time.Time `json:"updated"`

	Energy    Energy    `json:"energy"`
	Lyapunov  Lyapunov  `json:"lyapunov"`
	Memory    Memory    `json:"memory"`
	Session   Session   `json:"session"`
	Integrity Integrity `json:"integrity"`
	Coupling  Coupling  `json:"coupling"`

	Human            HumanContext       `json:"human"`
	ImportantMemory  []string           `json:"important_memory,omitempty"`
	Autopoiesis      []AutopoiesisEntry `json:"autopoiesis,omitempty"`
	Agent            *AgentTelemetry    `json:"agent,omitempty"`
}

// Clone returns a deep-enough copy of State for safe mutation by callers
// (update functions must not mutate the State passed to them in place).
func (s State) Clone() State {
	out := s
	out.ImportantMemory = append([]string(nil), s.ImportantMemory...)
	out.Autopoiesis = append([]AutopoiesisEntry(nil), s.Autopoiesis...)
	if s.Agent != nil {
		agent := *s.Agent
		out.Agent = &agent
	}
	if s.Coupling.Queue != nil {
		q := *s.Coupling.Queue
		q.Pending = append([]CouplingRequest(nil), s.Coupling.Queue.Pending...)
		q.History = append([]CouplingRequest(nil), s.Coupling.Queue.History...)
		out.Coupling.Queue = &q
	}
	return out
}
