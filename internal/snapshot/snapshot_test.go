package snapshot

import (
	"testing"
	"time"

	"entity/internal/atomicfile"
	"entity/internal/domain"
	"entity/internal/eventlog"
	"entity/internal/statestore"
)

func newTestStore(t *testing.T, dir string) *statestore.Store {
	t.Helper()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	log, err := eventlog.New(eventlog.Config{Dir: dir, Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("eventlog.New: %v", err)
	}
	store, err := statestore.New(statestore.Config{Dir: dir, Log: log, Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("statestore.New: %v", err)
	}
	if _, _, err := store.AppendAtomic(domain.EventGenesis, domain.Record{}, domain.CategoryOperational, func(st domain.State, ev domain.Event) domain.State {
		st.Energy = domain.Energy{Current: 1, Min: 0.01, Threshold: 0.2}
		return st
	}); err != nil {
		t.Fatalf("seed genesis: %v", err)
	}
	return store
}

func newTestSnapshotStore(t *testing.T) (*Store, *statestore.Store) {
	t.Helper()
	dir := t.TempDir()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newTestStore(t, dir)
	s, err := New(Config{Dir: dir, Store: store, Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, store
}

func TestCreateThenVerify(t *testing.T) {
	s, _ := newTestSnapshotStore(t)

	meta, err := s.Create("before maintenance")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if meta.Description != "before maintenance" {
		t.Fatalf("expected description preserved, got %q", meta.Description)
	}

	ok, err := s.Verify(meta.ID)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected freshly created snapshot to verify clean")
	}
}

func TestListReturnsAllInTimestampOrder(t *testing.T) {
	s, _ := newTestSnapshotStore(t)

	first, err := s.Create("first")
	if err != nil {
		t.Fatalf("Create first: %v", err)
	}
	second, err := s.Create("second")
	if err != nil {
		t.Fatalf("Create second: %v", err)
	}

	entries, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != first.ID || entries[1].ID != second.ID {
		t.Fatalf("expected entries in creation order, got %+v", entries)
	}
}

func TestRestoreExtendsRatherThanRollsBack(t *testing.T) {
	s, store := newTestSnapshotStore(t)

	meta, err := s.Create("checkpoint")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	beforeRestore, _ := store.Read()
	seqBeforeRestore := beforeRestore.Memory.EventCount

	restored, err := s.Restore(meta.ID)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.Memory.EventCount <= seqBeforeRestore {
		t.Fatalf("expected restore to extend the chain with a new event, seq was %d now %d", seqBeforeRestore, restored.Memory.EventCount)
	}

	final, ok := store.Read()
	if !ok {
		t.Fatalf("expected state after restore")
	}
	if final.Memory.EventCount != restored.Memory.EventCount {
		t.Fatalf("expected stored state to match restore return value")
	}
}

func TestVerifyDetectsTamperedBytes(t *testing.T) {
	s, _ := newTestSnapshotStore(t)

	meta, err := s.Create("checkpoint")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	tampered, err := s.ReadState(meta.ID)
	if err != nil {
		t.Fatalf("ReadState: %v", err)
	}
	tampered.Human.Name = "someone else entirely"
	if err := atomicfile.WriteJSON(s.bytesPath(meta.ID), tampered, 0o640); err != nil {
		t.Fatalf("tamper: %v", err)
	}

	ok, err := s.Verify(meta.ID)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatalf("expected Verify to detect tampered snapshot bytes")
	}
}

func TestVerifyUnknownIDReturnsError(t *testing.T) {
	s, _ := newTestSnapshotStore(t)
	if _, err := s.Verify(domain.NewID()); err == nil {
		t.Fatalf("expected error verifying an unknown snapshot id")
	}
}
