// Package snapshot implements C7: an indexed set of point-in-time state
// copies, verified by content digest (spec §4.7). Grounded on
// internal/chunk/file's sealed-chunk layout (an index file plus one
// payload file per sealed unit) and internal/digest for the verbatim
// state bytes' digest.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"entity/internal/atomicfile"
	"entity/internal/digest"
	"entity/internal/domain"
	"entity/internal/eventlog"
	"entity/internal/statestore"
)

// Config configures a Store.
type Config struct {
	Dir   string // base directory; snapshots live under Dir/state/snapshots
	Log   *eventlog.Log
	Store *statestore.Store
	Now   func() time.Time
}

// Store owns state/snapshots/index.json and the per-snapshot state-bytes
// files.
type Store struct {
	dir   string
	log   *eventlog.Log
	store *statestore.Store
	now   func() time.Time
}

type index struct {
	Entries []domain.SnapshotMeta `json:"entries"`
}

func New(cfg Config) (*Store, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	dir := filepath.Join(cfg.Dir, "state", "snapshots")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, domain.NewError(domain.KindStateIo, "create snapshots directory", err)
	}
	return &Store{dir: dir, log: cfg.Log, store: cfg.Store, now: cfg.Now}, nil
}

func (s *Store) indexPath() string { return filepath.Join(s.dir, "index.json") }
func (s *Store) bytesPath(id domain.ID) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.json", id.String()))
}

func (s *Store) readIndex() (index, error) {
	var idx index
	if _, err := atomicfile.ReadJSON(s.indexPath(), &idx); err != nil {
		return index{}, domain.NewError(domain.KindStateIo, "read snapshot index", err)
	}
	return idx, nil
}

func (s *Store) writeIndex(idx index) error {
	if err := atomicfile.WriteJSON(s.indexPath(), idx, 0o640); err != nil {
		return domain.NewError(domain.KindStateIo, "write snapshot index", err)
	}
	return nil
}

// List returns all snapshot metadata entries.
func (s *Store) List() ([]domain.SnapshotMeta, error) {
	idx, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	out := append([]domain.SnapshotMeta(nil), idx.Entries...)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Create captures the current state verbatim, records its digest and
// provenance, appends a Snapshot event, and resyncs memory bookkeeping
// (spec §4.7).
func (s *Store) Create(description string) (domain.SnapshotMeta, error) {
	cur, ok := s.store.Read()
	if !ok {
		return domain.SnapshotMeta{}, domain.NewError(domain.KindStateIo, "no state to snapshot", nil)
	}
	stateBytes := digest.CanonicalBytes(cur)
	stateHash := digest.Digest(stateBytes)
	id := domain.NewID()

	if err := atomicfile.WriteJSON(s.bytesPath(id), cur, 0o640); err != nil {
		return domain.SnapshotMeta{}, domain.NewError(domain.KindStateIo, "write snapshot bytes", err)
	}

	meta := domain.SnapshotMeta{
		ID:          id,
		Timestamp:   s.now().UTC(),
		EventSeq:    domain.Seq(cur.Memory.EventCount),
		EventHash:   cur.Memory.LastEventHash,
		StateHash:   stateHash,
		Description: description,
	}

	idx, err := s.readIndex()
	if err != nil {
		return domain.SnapshotMeta{}, err
	}
	idx.Entries = append(idx.Entries, meta)
	if err := s.writeIndex(idx); err != nil {
		return domain.SnapshotMeta{}, err
	}

	data := domain.Record{
		"snapshot_id": id.String(),
		"timestamp":   meta.Timestamp.Format(time.RFC3339Nano),
		"event_seq":   float64(meta.EventSeq),
		"state_hash":  stateHash.String(),
		"description": description,
	}
	if _, _, err := s.store.AppendAtomic(domain.EventSnapshot, data, domain.CategoryOperational, func(st domain.State, ev domain.Event) domain.State {
		st.Memory.LastSnapshotAt = ev.Timestamp
		return st
	}); err != nil {
		return domain.SnapshotMeta{}, err
	}
	return meta, nil
}

// ReadState loads the verbatim state bytes recorded for snapshot id,
// without re-verifying the digest (callers that need that guarantee
// should call Verify first). Used by internal/bundle to embed full
// snapshot contents in a continuity export.
func (s *Store) ReadState(id domain.ID) (domain.State, error) {
	var st domain.State
	ok, err := atomicfile.ReadJSON(s.bytesPath(id), &st)
	if err != nil {
		return domain.State{}, domain.NewError(domain.KindStateIo, "read snapshot bytes", err)
	}
	if !ok {
		return domain.State{}, domain.NewError(domain.KindStateIo, fmt.Sprintf("snapshot %s bytes missing", id), nil)
	}
	return st, nil
}

func (s *Store) findMeta(id domain.ID) (domain.SnapshotMeta, error) {
	idx, err := s.readIndex()
	if err != nil {
		return domain.SnapshotMeta{}, err
	}
	for _, e := range idx.Entries {
		if e.ID == id {
			return e, nil
		}
	}
	return domain.SnapshotMeta{}, domain.NewError(domain.KindStateIo, fmt.Sprintf("snapshot %s not found", id), nil)
}

// Verify rehashes the on-disk bytes for id and compares against the
// recorded StateHash.
func (s *Store) Verify(id domain.ID) (bool, error) {
	meta, err := s.findMeta(id)
	if err != nil {
		return false, err
	}
	var st domain.State
	ok, err := atomicfile.ReadJSON(s.bytesPath(id), &st)
	if err != nil {
		return false, domain.NewError(domain.KindStateIo, "read snapshot bytes", err)
	}
	if !ok {
		return false, domain.NewError(domain.KindStateIo, "snapshot bytes missing", nil)
	}
	return digest.Digest(digest.CanonicalBytes(st)) == meta.StateHash, nil
}

// Restore verifies the snapshot's digest, appends a StateUpdate (reason:
// restored), then overwrites state with the snapshot bytes patched to
// carry the current log's memory bookkeeping (spec §4.7: "the chain is
// extended, not rolled back").
func (s *Store) Restore(id domain.ID) (domain.State, error) {
	meta, err := s.findMeta(id)
	if err != nil {
		return domain.State{}, err
	}
	var snap domain.State
	ok, err := atomicfile.ReadJSON(s.bytesPath(id), &snap)
	if err != nil {
		return domain.State{}, domain.NewError(domain.KindStateIo, "read snapshot bytes", err)
	}
	if !ok {
		return domain.State{}, domain.NewError(domain.KindStateIo, "snapshot bytes missing", nil)
	}
	if digest.Digest(digest.CanonicalBytes(snap)) != meta.StateHash {
		return domain.State{}, domain.NewError(domain.KindLogCorrupt, "snapshot content digest mismatch", nil)
	}

	data := domain.Record{
		"reason":      "restored",
		"snapshot_id": id.String(),
	}
	_, next, err := s.store.AppendAtomic(domain.EventStateUpdate, data, domain.CategoryOperational, func(_ domain.State, ev domain.Event) domain.State {
		restored := snap
		restored.Memory.EventCount = uint64(ev.Seq)
		restored.Memory.LastEventHash = ev.Hash
		restored.Updated = ev.Timestamp
		return restored
	})
	if err != nil {
		return domain.State{}, err
	}
	return next, nil
}
