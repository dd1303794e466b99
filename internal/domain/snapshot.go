package domain

import "time"

// SnapshotMeta describes one point-in-time state copy (spec §3, C7).
type SnapshotMeta struct {
	ID          ID        `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	EventSeq    Seq       `json:"event_seq"`
	EventHash   Digest    `json:"event_hash"`
	StateHash   Digest    `json:"state_hash"`
	Description string    `json:"description"`
}

// CycleRecord is a past sense-making cycle kept in the cycle-memory ring
// buffer (spec §3, C13).
type CycleRecord struct {
	ID                ID        `json:"id"`
	Timestamp         time.Time `json:"timestamp"`
	FeelingBefore     Feeling   `json:"feeling_before"`
	Priority          Priority  `json:"priority"`
	Action            string    `json:"action"`
	ActionBlocked     bool      `json:"action_blocked"`
	FeelingAfter      Feeling   `json:"feeling_after"`
	Effectiveness     float64   `json:"effectiveness"`
	SurpriseReduction float64   `json:"surprise_reduction"`
	EnergyCost        float64   `json:"energy_cost"`
}
