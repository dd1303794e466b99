package domain

import "time"

// Priority orders coupling requests and sense-making cycles (spec §3, §4.14).
type Priority string

const (
	PrioritySurvival Priority = "survival"
	PriorityIntegrity Priority = "integrity"
	PriorityStability Priority = "stability"
	PriorityGrowth    Priority = "growth"
	PriorityRest      Priority = "rest"

	// Request priorities (spec §3's coupling request priority set) reuse
	// a distinct, smaller vocabulary than cycle priorities above.
	RequestUrgent Priority = "urgent"
	RequestNormal Priority = "normal"
	RequestLow    Priority = "low"
)

// RequestStatus is the lifecycle state of a CouplingRequest.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestGranted   RequestStatus = "granted"
	RequestExpired   RequestStatus = "expired"
	RequestCompleted RequestStatus = "completed"
	RequestCanceled  RequestStatus = "canceled"
)

// CouplingRequest is a single queued request for human attention
// (spec §3, C11).
type CouplingRequest struct {
	ID          ID            `json:"id"`
	Priority    Priority      `json:"priority"`
	Reason      string        `json:"reason"`
	Context     string        `json:"context,omitempty"`
	RequestedAt time.Time     `json:"requested_at"`
	ExpiresAt   time.Time     `json:"expires_at"`
	Status      RequestStatus `json:"status"`
	GrantedAt   time.Time     `json:"granted_at,omitzero"`
	CompletedAt time.Time     `json:"completed_at,omitzero"`
	Outcome     string        `json:"outcome,omitempty"`
	Note        string        `json:"note,omitempty"`
}

// QueueCounters tracks aggregate queue statistics for reporting.
type QueueCounters struct {
	TotalEnqueued      int     `json:"total_enqueued"`
	TotalGranted       int     `json:"total_granted"`
	TotalExpired       int     `json:"total_expired"`
	TotalCanceled      int     `json:"total_canceled"`
	AvgTimeToGrantMs   float64 `json:"avg_time_to_grant_ms"`
	AvgTimeToCompleteMs float64 `json:"avg_time_to_complete_ms"`
}

// QueueState is the persisted view of the coupling queue embedded in
// State.Coupling (spec §3: "Optional coupling queue (see C11)").
type QueueState struct {
	Pending       []CouplingRequest `json:"pending"`
	History       []CouplingRequest `json:"history"`
	Counters      QueueCounters     `json:"counters"`
	CooldownUntil time.Time         `json:"cooldown_until,omitzero"`
}
