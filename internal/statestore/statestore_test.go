package statestore

import (
	"testing"
	"time"

	"entity/internal/domain"
	"entity/internal/eventlog"
)

func newTestStore(t *testing.T) (*Store, *eventlog.Log) {
	t.Helper()
	dir := t.TempDir()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	log, err := eventlog.New(eventlog.Config{Dir: dir, Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("eventlog.New: %v", err)
	}
	store, err := New(Config{Dir: dir, Log: log, Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("statestore.New: %v", err)
	}
	return store, log
}

func TestReadBeforeAnyWrite(t *testing.T) {
	store, _ := newTestStore(t)
	if _, ok := store.Read(); ok {
		t.Fatalf("expected no state before any write")
	}
}

func TestAppendAtomicUpdatesMemory(t *testing.T) {
	store, _ := newTestStore(t)

	ev, st, err := store.AppendAtomic(domain.EventGenesis, domain.Record{"organization_hash": domain.Digest{9}.String()}, "", func(state domain.State, ev domain.Event) domain.State {
		state.Energy = domain.Energy{Current: 1, Min: 0.01, Threshold: 0.2}
		return state
	})
	if err != nil {
		t.Fatalf("AppendAtomic: %v", err)
	}
	if st.Memory.EventCount != 1 || st.Memory.LastEventHash != ev.Hash {
		t.Fatalf("expected memory bookkeeping to reflect the appended event, got %+v", st.Memory)
	}

	read, ok := store.Read()
	if !ok {
		t.Fatalf("expected state to be readable after write")
	}
	if read.Energy.Current != 1 {
		t.Fatalf("expected cached read to reflect latest write")
	}
}

func TestAppendAtomicUpdatedMatchesEventTimestamp(t *testing.T) {
	dir := t.TempDir()
	logTime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	storeTime := logTime.Add(250 * time.Millisecond)

	log, err := eventlog.New(eventlog.Config{Dir: dir, Now: func() time.Time { return logTime }})
	if err != nil {
		t.Fatalf("eventlog.New: %v", err)
	}
	store, err := New(Config{Dir: dir, Log: log, Now: func() time.Time { return storeTime }})
	if err != nil {
		t.Fatalf("statestore.New: %v", err)
	}

	ev, st, err := store.AppendAtomic(domain.EventGenesis, domain.Record{}, "", func(s domain.State, _ domain.Event) domain.State { return s })
	if err != nil {
		t.Fatalf("AppendAtomic: %v", err)
	}
	if !st.Updated.Equal(ev.Timestamp) {
		t.Fatalf("expected state.Updated to equal the appended event's timestamp (%v), got %v", ev.Timestamp, st.Updated)
	}
}

func TestUpdateMonotonicTimestamp(t *testing.T) {
	store, _ := newTestStore(t)
	_, _, err := store.AppendAtomic(domain.EventGenesis, domain.Record{}, "", func(s domain.State, _ domain.Event) domain.State { return s })
	if err != nil {
		t.Fatalf("AppendAtomic: %v", err)
	}
	first, _ := store.Read()

	updated, err := store.Update(func(s domain.State) domain.State { return s })
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Updated.Before(first.Updated) {
		t.Fatalf("expected monotonic non-decreasing Updated timestamp")
	}
}
