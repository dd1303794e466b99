package projector

import (
	"testing"
	"time"

	"entity/internal/domain"
)

func TestProjectGenesisSeedsIdentity(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []domain.Event{
		{Seq: 1, Type: domain.EventGenesis, Timestamp: ts, Data: domain.Record{"organization_hash": domain.Digest{1}.String()}},
	}
	st := Project(events)
	if st.Energy.Current != 1.0 {
		t.Fatalf("expected fresh energy 1.0, got %v", st.Energy.Current)
	}
	if st.Memory.EventCount != 1 {
		t.Fatalf("expected event count 1, got %d", st.Memory.EventCount)
	}
}

func TestProjectSessionLifecycle(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []domain.Event{
		{Seq: 1, Type: domain.EventGenesis, Timestamp: ts},
		{Seq: 2, Type: domain.EventSessionStart, Timestamp: ts, Data: domain.Record{"partner": "alice"}},
		{Seq: 3, Type: domain.EventSessionEnd, Timestamp: ts},
	}
	st := Project(events)
	if st.Session.TotalCount != 1 {
		t.Fatalf("expected total session count 1, got %d", st.Session.TotalCount)
	}
	if st.Coupling.Active {
		t.Fatalf("expected coupling inactive after session end")
	}
	if st.Energy.Current >= 1.0 {
		t.Fatalf("expected energy decay on session end, got %v", st.Energy.Current)
	}
}

func TestProjectAuditEventsDoNotAffectOperationalState(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []domain.Event{
		{Seq: 1, Type: domain.EventGenesis, Timestamp: ts},
		{Seq: 2, Type: domain.EventObservationReceived, Timestamp: ts, Category: domain.CategoryAudit, Data: domain.Record{"energy_current": 0.1}},
	}
	st := Project(events)
	if st.Energy.Current != 1.0 {
		t.Fatalf("audit event should not affect operational state, got energy=%v", st.Energy.Current)
	}
	if st.Memory.EventCount != 2 {
		t.Fatalf("audit event should still advance memory bookkeeping, got %d", st.Memory.EventCount)
	}
}

func TestProjectIsDeterministic(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []domain.Event{
		{Seq: 1, Type: domain.EventGenesis, Timestamp: ts},
		{Seq: 2, Type: domain.EventOperation, Timestamp: ts, Data: domain.Record{"energy_cost": 0.1}},
	}
	a := Project(events)
	b := Project(events)
	if a.Energy.Current != b.Energy.Current {
		t.Fatalf("expected deterministic projection")
	}
}
