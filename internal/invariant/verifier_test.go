package invariant

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"entity/internal/domain"
	"entity/internal/eventlog"
	"entity/internal/projector"
	"entity/internal/statestore"
)

func newTestVerifier(t *testing.T) *Verifier {
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
	orgHash := domain.Digest{1, 2, 3}
	if _, _, err := store.AppendAtomic(domain.EventGenesis, domain.Record{"organization_hash": orgHash.String()}, domain.CategoryOperational, func(st domain.State, ev domain.Event) domain.State {
		st.OrganizationHash = orgHash
		st.Created = ev.Timestamp
		st.Energy = domain.Energy{Current: 1, Min: 0.01, Threshold: 0.2}
		st.Integrity.Status = domain.StatusNominal
		return st
	}); err != nil {
		t.Fatalf("seed genesis: %v", err)
	}

	return &Verifier{Log: log, Store: store, Weights: DefaultWeights, Now: nowFn}
}

func TestRunReturnsAllSatisfiedOnFreshGenesis(t *testing.T) {
	v := newTestVerifier(t)
	result := v.Run()
	if !result.AllSatisfied {
		t.Fatalf("expected a freshly bootstrapped chain to satisfy all invariants, got %+v", result.Invariants)
	}
}

func TestRunRecordingWritesLyapunovVAndReplays(t *testing.T) {
	v := newTestVerifier(t)

	result, _, err := v.RunRecording()
	if err != nil {
		t.Fatalf("RunRecording: %v", err)
	}

	st, ok := v.Store.Read()
	if !ok {
		t.Fatalf("expected state after RunRecording")
	}
	if st.Lyapunov.V != result.LyapunovV {
		t.Fatalf("expected state.Lyapunov.V to reflect the verification result (%v), got %v", result.LyapunovV, st.Lyapunov.V)
	}

	events, err := v.Log.Load()
	if err != nil {
		t.Fatalf("Log.Load: %v", err)
	}
	projected := projector.Project(events)
	if projected.Lyapunov.V != st.Lyapunov.V {
		t.Fatalf("expected replay to reproduce Lyapunov.V=%v, got %v", st.Lyapunov.V, projected.Lyapunov.V)
	}
	if projected.Lyapunov.VPrevious != st.Lyapunov.VPrevious {
		t.Fatalf("expected replay to reproduce Lyapunov.VPrevious=%v, got %v", st.Lyapunov.VPrevious, projected.Lyapunov.VPrevious)
	}
}

func TestRunDedupesConcurrentCalls(t *testing.T) {
	v := newTestVerifier(t)

	var calls atomic.Int64
	const n = 20
	var wg sync.WaitGroup
	results := make([]Result, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = v.Run()
			calls.Add(1)
		}(i)
	}
	wg.Wait()

	if calls.Load() != n {
		t.Fatalf("expected all %d goroutines to complete, got %d", n, calls.Load())
	}
	for i, r := range results {
		if len(r.Invariants) != 5 {
			t.Fatalf("result %d: expected 5 invariant checks, got %d", i, len(r.Invariants))
		}
	}
}
