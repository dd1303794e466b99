package runtimeconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadSeedsDefaultsWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	m, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer m.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file seeded on disk: %v", err)
	}
	if got, want := m.Get().LockTimeoutMs, Defaults().LockTimeoutMs; got != want {
		t.Fatalf("expected seeded defaults, got LockTimeoutMs=%d want %d", got, want)
	}
}

func TestLoadReadsExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	vals := Defaults()
	vals.EnergyLowThreshold = 0.42
	data, err := json.Marshal(envelope{Version: currentVersion, Config: vals})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	m, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer m.Close()

	if got := m.Get().EnergyLowThreshold; got != 0.42 {
		t.Fatalf("expected EnergyLowThreshold=0.42, got %v", got)
	}
}

func TestLoadRejectsUnsupportedVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	data, err := json.Marshal(envelope{Version: currentVersion + 1, Config: Defaults()})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(path, nil); err == nil {
		t.Fatalf("expected error loading an unsupported config version")
	}
}

func TestWatchLoopPicksUpExternalEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	m, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer m.Close()
	if m.watcher == nil {
		t.Skip("fsnotify watcher unavailable in this environment")
	}

	vals := Defaults()
	vals.EnergyCriticalThreshold = 0.9
	data, err := json.Marshal(envelope{Version: currentVersion, Config: vals})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.Get().EnergyCriticalThreshold == 0.9 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected watch loop to pick up the external edit within the deadline")
}
