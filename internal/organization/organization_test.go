package organization

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"entity/internal/eventlog"
	"entity/internal/statestore"
)

func newTestStore(t *testing.T) *statestore.Store {
	t.Helper()
	dir := t.TempDir()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	log, err := eventlog.New(eventlog.Config{Dir: dir, Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("eventlog.New: %v", err)
	}
	store, err := statestore.New(statestore.Config{Dir: dir, Log: log, Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("statestore.New: %v", err)
	}
	return store
}

func TestBootstrapWritesIdentityAndGenesis(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	hash, err := Bootstrap(t.TempDir(), store, "identity text", "tester", func() time.Time { return now })
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	state, ok := store.Read()
	if !ok {
		t.Fatalf("expected state after bootstrap")
	}
	if state.OrganizationHash != hash {
		t.Fatalf("expected state organization hash to match returned hash")
	}
	if state.InstantiatedBy != "tester" {
		t.Fatalf("expected instantiated_by tester, got %q", state.InstantiatedBy)
	}
	if state.Energy.Current != 1.0 {
		t.Fatalf("expected fresh energy 1.0, got %v", state.Energy.Current)
	}
}

func TestBootstrapIsNoOpOnSecondCall(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dir := t.TempDir()

	first, err := Bootstrap(dir, store, "identity text", "tester", func() time.Time { return now })
	if err != nil {
		t.Fatalf("first Bootstrap: %v", err)
	}
	second, err := Bootstrap(dir, store, "different text entirely", "someone-else", func() time.Time { return now })
	if err != nil {
		t.Fatalf("second Bootstrap: %v", err)
	}
	if first != second {
		t.Fatalf("expected second Bootstrap to be a no-op returning the same hash")
	}
	state, _ := store.Read()
	if state.InstantiatedBy != "tester" {
		t.Fatalf("expected instantiated_by unchanged by no-op bootstrap, got %q", state.InstantiatedBy)
	}
}

func TestVerifyOnDiskDetectsMismatch(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dir := t.TempDir()

	if _, err := Bootstrap(dir, store, "identity text", "tester", func() time.Time { return now }); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if err := VerifyOnDisk(dir); err != nil {
		t.Fatalf("expected VerifyOnDisk to pass immediately after bootstrap: %v", err)
	}

	specPath := filepath.Join(dir, specRelPath)
	if err := os.WriteFile(specPath, []byte("tampered text"), 0o640); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	if err := VerifyOnDisk(dir); err == nil {
		t.Fatalf("expected VerifyOnDisk to detect tampered specification")
	}
}
