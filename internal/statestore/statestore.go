// Package statestore implements C3: the single current-state document,
// read lock-free and mutated only under the event log's exclusive lock so
// that every "append event + project delta" pair is one linearisable
// critical section (spec §4.3, §5).
package statestore

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"entity/internal/atomicfile"
	"entity/internal/domain"
	"entity/internal/eventlog"
	"entity/internal/logging"
)

// Config configures a Store.
type Config struct {
	Dir    string // base directory; state lives under Dir/state/current.json
	Log    *eventlog.Log
	Now    func() time.Time
	Logger *slog.Logger
}

// Store owns state/current.json.
type Store struct {
	path string
	log  *eventlog.Log
	now  func() time.Time
	logger *slog.Logger

	cached atomic.Pointer[domain.State]
}

// New constructs a Store. It does not require the state file to already
// exist; Read returns (State{}, false) until the first write.
func New(cfg Config) (*Store, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	dir := filepath.Join(cfg.Dir, "state")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, domain.NewError(domain.KindStateIo, "create state directory", err)
	}
	s := &Store{path: filepath.Join(dir, "current.json"), log: cfg.Log, now: cfg.Now, logger: logging.Default(cfg.Logger).With("component", "statestore")}

	var st domain.State
	ok, err := atomicfile.ReadJSON(s.path, &st)
	if err != nil {
		return nil, domain.NewError(domain.KindStateIo, "read state file", err)
	}
	if ok {
		s.cached.Store(&st)
	}
	return s, nil
}

// Read is a lock-free optimistic read; it may return a stale-but-
// consistent snapshot that predates a concurrent writer's in-flight
// update (spec §4.3). ok is false only before any state has ever been
// written.
func (s *Store) Read() (domain.State, bool) {
	p := s.cached.Load()
	if p == nil {
		return domain.State{}, false
	}
	return *p, true
}

// ReadLocked reads the state under the event log's exclusive lock, for
// callers that need a guaranteed-fresh value (e.g. before computing a
// delta to pass to AppendAtomic's updater).
func (s *Store) ReadLocked() (domain.State, error) {
	var out domain.State
	var found bool
	err := s.log.WithLock(func(*eventlog.Log) error {
		st, ok, rerr := s.readFromDisk()
		if rerr != nil {
			return rerr
		}
		out, found = st, ok
		return nil
	})
	if err != nil {
		return domain.State{}, err
	}
	if !found {
		return domain.State{}, domain.NewError(domain.KindStateIo, "no state has been written yet", nil)
	}
	return out, nil
}

func (s *Store) readFromDisk() (domain.State, bool, error) {
	var st domain.State
	ok, err := atomicfile.ReadJSON(s.path, &st)
	if err != nil {
		return domain.State{}, false, domain.NewError(domain.KindStateIo, "read state file", err)
	}
	return st, ok, nil
}

// Update applies fn under the event log's exclusive lock and writes the
// result atomically, refreshing Updated. It enforces the store's
// monotonic-timestamp invariant (spec §4.3): fn's Updated field is
// ignored and overwritten with max(previous Updated, now).
func (s *Store) Update(fn func(domain.State) domain.State) (domain.State, error) {
	var result domain.State
	err := s.log.WithLock(func(*eventlog.Log) error {
		cur, _, rerr := s.readFromDisk()
		if rerr != nil {
			return rerr
		}
		next := fn(cur.Clone())
		next.Updated = s.monotonicTimestamp(cur.Updated)
		if werr := s.writeLocked(next); werr != nil {
			return werr
		}
		result = next
		return nil
	})
	if err != nil {
		return domain.State{}, err
	}
	return result, nil
}

func (s *Store) monotonicTimestamp(prev time.Time) time.Time {
	now := s.now().UTC()
	if now.Before(prev) {
		return prev
	}
	return now
}

// writeLocked writes state to disk and refreshes the in-memory cache.
// Caller must already hold the event log's lock.
func (s *Store) writeLocked(st domain.State) error {
	if err := atomicfile.WriteJSON(s.path, st, 0o640); err != nil {
		return domain.NewError(domain.KindStateIo, "write state file", err)
	}
	s.cached.Store(&st)
	return nil
}

// WriteLocked exposes writeLocked to callers (recovery, snapshot restore)
// that already hold the lock via Log.WithLock and need to replace the
// entire state document rather than apply a delta.
func (s *Store) WriteLocked(st domain.State) error {
	return s.writeLocked(st)
}
