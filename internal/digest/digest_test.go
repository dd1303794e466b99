package digest

import (
	"testing"
	"time"

	"entity/internal/domain"
)

func TestCanonicalBytesKeyOrdering(t *testing.T) {
	a := map[string]any{"b": 1, "a": 2}
	b := map[string]any{"a": 2, "b": 1}
	if string(CanonicalBytes(a)) != string(CanonicalBytes(b)) {
		t.Fatalf("expected map key order to not affect canonical bytes")
	}
	got := string(CanonicalBytes(a))
	want := `{"a":2,"b":1}`
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestCanonicalFloatQuantized(t *testing.T) {
	a := CanonicalBytes(0.1 + 0.2)
	b := CanonicalBytes(0.3)
	if string(a) != string(b) {
		t.Fatalf("expected float quantization to make 0.1+0.2 == 0.3, got %q vs %q", a, b)
	}
}

func TestDigestObjectDeterministic(t *testing.T) {
	d1 := DigestObject(map[string]any{"x": 1, "y": "z"})
	d2 := DigestObject(map[string]any{"y": "z", "x": 1})
	if d1 != d2 {
		t.Fatalf("expected identical digests regardless of key insertion order")
	}
}

func TestHashEventStableAcrossFieldOrder(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	prev := domain.Digest{1, 2, 3}
	in := domain.HashInput{
		Seq:       2,
		Type:      domain.EventStateUpdate,
		Timestamp: ts,
		Data:      domain.Record{"reason": "test"},
		PrevHash:  &prev,
		Category:  domain.CategoryOperational,
	}
	h1 := HashEvent(in)
	h2 := HashEvent(in)
	if h1 != h2 {
		t.Fatalf("expected deterministic hash for identical input")
	}

	in.Data = domain.Record{"reason": "different"}
	h3 := HashEvent(in)
	if h1 == h3 {
		t.Fatalf("expected different data to change the hash")
	}
}

func TestHashEventGenesisNilPrev(t *testing.T) {
	ts := time.Unix(0, 0).UTC()
	in := domain.HashInput{Seq: 1, Type: domain.EventGenesis, Timestamp: ts, Data: domain.Record{"organization_hash": "abc"}}
	h := HashEvent(in)
	if h.IsZero() {
		t.Fatalf("expected non-zero hash for genesis event")
	}
}
