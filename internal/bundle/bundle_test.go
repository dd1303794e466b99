package bundle

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"entity/internal/domain"
	"entity/internal/eventlog"
	"entity/internal/snapshot"
	"entity/internal/statestore"
)

func newTestFixtures(t *testing.T) (*eventlog.Log, *snapshot.Store, domain.Digest) {
	t.Helper()
	dir := t.TempDir()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	nowFn := func() time.Time { return now }

	log, err := eventlog.New(eventlog.Config{Dir: dir, Now: nowFn})
	if err != nil {
		t.Fatalf("eventlog.New: %v", err)
	}
	store, err := statestore.New(statestore.Config{Dir: dir, Log: log, Now: nowFn})
	if err != nil {
		t.Fatalf("statestore.New: %v", err)
	}
	orgHash := domain.Digest{9, 9, 9}
	if _, _, err := store.AppendAtomic(domain.EventGenesis, domain.Record{"organization_hash": orgHash.String()}, domain.CategoryOperational, func(st domain.State, ev domain.Event) domain.State {
		st.OrganizationHash = orgHash
		st.Energy = domain.Energy{Current: 1, Min: 0.01, Threshold: 0.2}
		return st
	}); err != nil {
		t.Fatalf("seed genesis: %v", err)
	}

	snapStore, err := snapshot.New(snapshot.Config{Dir: dir, Store: store, Now: nowFn})
	if err != nil {
		t.Fatalf("snapshot.New: %v", err)
	}
	if _, err := snapStore.Create("fixture checkpoint"); err != nil {
		t.Fatalf("Create snapshot: %v", err)
	}
	return log, snapStore, orgHash
}

func TestBuildWriteReadRoundTrips(t *testing.T) {
	log, snapStore, orgHash := newTestFixtures(t)
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	b, err := Build(log, snapStore, orgHash, func() time.Time { return now })
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if b.Format != FormatTag {
		t.Fatalf("expected format %q, got %q", FormatTag, b.Format)
	}
	if len(b.Events) == 0 {
		t.Fatalf("expected at least one event in the bundle")
	}
	if len(b.Snapshots) != 1 {
		t.Fatalf("expected 1 snapshot entry, got %d", len(b.Snapshots))
	}

	dir := t.TempDir()
	path := ExportPath(dir, orgHash, now)
	if err := Write(path, b); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.OrganizationHash != orgHash {
		t.Fatalf("expected organization hash preserved through round trip")
	}
	if len(got.Events) != len(b.Events) {
		t.Fatalf("expected %d events after round trip, got %d", len(b.Events), len(got.Events))
	}
}

func TestReadRejectsUnrecognisedFormat(t *testing.T) {
	log, snapStore, orgHash := newTestFixtures(t)
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	b, err := Build(log, snapStore, orgHash, func() time.Time { return now })
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b.Format = "something-else"

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.bundle.json")
	if err := Write(path, b); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := Read(path); err == nil {
		t.Fatalf("expected an error reading a bundle with an unrecognised format tag")
	}
}

func TestVerifyIdentity(t *testing.T) {
	log, snapStore, orgHash := newTestFixtures(t)
	b, err := Build(log, snapStore, orgHash, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !VerifyIdentity(b, orgHash) {
		t.Fatalf("expected matching organization hash to verify")
	}
	if VerifyIdentity(b, domain.Digest{1, 1, 1}) {
		t.Fatalf("expected mismatched organization hash to fail verification")
	}
}

func TestImportRefusesNonEmptyEventsDirectory(t *testing.T) {
	log, snapStore, orgHash := newTestFixtures(t)
	b, err := Build(log, snapStore, orgHash, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	dir := t.TempDir()
	eventsDir := filepath.Join(dir, "events")
	if err := os.MkdirAll(eventsDir, 0o750); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(eventsDir, "000001.json"), []byte("{}"), 0o640); err != nil {
		t.Fatalf("seed existing event: %v", err)
	}

	if err := Import(dir, b); err == nil {
		t.Fatalf("expected Import to refuse a non-empty events directory")
	}
}

func TestImportWritesEventsAndSnapshots(t *testing.T) {
	log, snapStore, orgHash := newTestFixtures(t)
	b, err := Build(log, snapStore, orgHash, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	dir := t.TempDir()
	if err := Import(dir, b); err != nil {
		t.Fatalf("Import: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "events"))
	if err != nil {
		t.Fatalf("ReadDir events: %v", err)
	}
	if len(entries) != len(b.Events) {
		t.Fatalf("expected %d imported event files, got %d", len(b.Events), len(entries))
	}

	if _, err := os.Stat(filepath.Join(dir, "state", "snapshots", "index.json")); err != nil {
		t.Fatalf("expected snapshot index written: %v", err)
	}
}
