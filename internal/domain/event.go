package domain

import "time"

// Seq is a dense, strictly positive, monotonically increasing event
// sequence number. The first event ever appended has Seq 1.
type Seq uint64

// EventKind is a closed set of event types (spec §3).
type EventKind string

const (
	EventGenesis                EventKind = "Genesis"
	EventSessionStart           EventKind = "SessionStart"
	EventSessionEnd             EventKind = "SessionEnd"
	EventStateUpdate            EventKind = "StateUpdate"
	EventCouplingStart          EventKind = "CouplingStart"
	EventCouplingEnd            EventKind = "CouplingEnd"
	EventOperation              EventKind = "Operation"
	EventBlock                  EventKind = "Block"
	EventSnapshot               EventKind = "Snapshot"
	EventVerification           EventKind = "Verification"
	EventLearning                EventKind = "Learning"
	EventMetaOperation           EventKind = "MetaOperation"
	EventAgentWake               EventKind = "AgentWake"
	EventAgentSleep              EventKind = "AgentSleep"
	EventAgentResponse           EventKind = "AgentResponse"
	EventAgentRest               EventKind = "AgentRest"
	EventAgentUltrastability     EventKind = "AgentUltrastability"
	EventObservationReceived     EventKind = "ObservationReceived"
	EventPresenceSignalEmitted   EventKind = "PresenceSignalEmitted"
	EventCouplingGranted         EventKind = "CouplingGranted"
	EventCouplingCompleted       EventKind = "CouplingCompleted"
	EventCouplingCanceled        EventKind = "CouplingCanceled"
)

// Category tags an event for filtering. Audit-category events (e.g.
// observations) are excluded from operational projections (spec glossary).
type Category string

const (
	CategoryOperational Category = "operational"
	CategoryAudit        Category = "audit"
)

// Record is a free-form key/value payload. Its canonical encoding
// participates in the event's hash (spec §3, C1).
type Record map[string]any

// Event is an immutable, appended-once entry in the hash-chained log.
type Event struct {
	Seq       Seq       `json:"seq"`
	Type      EventKind `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      Record    `json:"data"`
	PrevHash  *Digest   `json:"prev_hash,omitempty"`
	Hash      Digest    `json:"hash"`
	Category  Category  `json:"category,omitempty"`
}

// EffectiveCategory returns Category, defaulting to operational.
func (e Event) EffectiveCategory() Category {
	if e.Category == "" {
		return CategoryOperational
	}
	return e.Category
}

// HashInput is the subset of fields that participate in Event.Hash, in
// canonical field order (spec §3: "{seq, type, timestamp, data, prevHash,
// category?}").
type HashInput struct {
	Seq       Seq
	Type      EventKind
	Timestamp time.Time
	Data      Record
	PrevHash  *Digest
	Category  Category
}

func (e Event) HashInput() HashInput {
	return HashInput{
		Seq:       e.Seq,
		Type:      e.Type,
		Timestamp: e.Timestamp,
		Data:      e.Data,
		PrevHash:  e.PrevHash,
		Category:  e.EffectiveCategory(),
	}
}
