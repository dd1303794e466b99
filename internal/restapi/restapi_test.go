package restapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"entity/internal/agent"
	"entity/internal/catalog"
	"entity/internal/cyclememory"
	"entity/internal/domain"
	"entity/internal/eventlog"
	"entity/internal/genmodel"
	"entity/internal/invariant"
	"entity/internal/statestore"
)

func newTestHandler(t *testing.T) *Handler {
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
		st.Energy = domain.Energy{Current: 1, Min: 0.01, Threshold: 0.2}
		st.Integrity.Status = domain.StatusNominal
		return st
	}); err != nil {
		t.Fatalf("seed genesis: %v", err)
	}

	verifier := &invariant.Verifier{Log: log, Store: store, Weights: invariant.DefaultWeights, Now: nowFn}
	cat := catalog.New(store, nowFn)
	ag := agent.New(agent.Config{
		Store: store, Verifier: verifier, Catalog: cat,
		Model: genmodel.New(20, 0.1), Memory: cyclememory.New(50, 0.15), Now: nowFn,
	})

	return New(Config{Store: store, Verifier: verifier, Agent: ag, Now: nowFn})
}

func TestHandleRootReturnsMeta(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got metaResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.OrganizationHash == "" {
		t.Fatalf("expected a non-empty organization hash")
	}
}

func TestHandleObserveIncludesFeelingAndState(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/observe", nil)
	req.Header.Set("X-Observer", "tester")
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got observeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Observed.Observer != "tester" {
		t.Fatalf("expected observer echoed back, got %q", got.Observed.Observer)
	}
	if got.Feeling.Energy != 1 {
		t.Fatalf("expected feeling energy 1, got %v", got.Feeling.Energy)
	}
}

func TestHandleVerifyReturnsInvariantResult(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/verify", nil)
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got invariant.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Invariants) != 5 {
		t.Fatalf("expected 5 invariant checks, got %d", len(got.Invariants))
	}
}

func TestNonGetMethodRejected(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for POST, got %d", rec.Code)
	}
}

func TestEveryCallAppendsObservationEvent(t *testing.T) {
	h := newTestHandler(t)
	before, _ := h.store.Read()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.Mux().ServeHTTP(rec, req)

	after, _ := h.store.Read()
	if after.Memory.EventCount != before.Memory.EventCount+1 {
		t.Fatalf("expected exactly one ObservationReceived event appended per call")
	}
}
