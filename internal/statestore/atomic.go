package statestore

import (
	"entity/internal/domain"
	"entity/internal/eventlog"
)

// Updater computes the new state given the previous state and the event
// that was just appended.
type Updater func(state domain.State, event domain.Event) domain.State

// AppendAtomic is the sole mutation path mandated by spec §4.2/§9: under
// one critical section it appends an event to the log, invokes updater to
// compute the new state, refreshes Memory.EventCount/LastEventHash, and
// writes the resulting state. Any subsequent reader observes the pair as
// one atomic step (spec §4.2's "Guarantees", §5's "linearisable").
func (s *Store) AppendAtomic(kind domain.EventKind, data domain.Record, category domain.Category, updater Updater) (domain.Event, domain.State, error) {
	var ev domain.Event
	var next domain.State
	err := s.log.WithLock(func(log *eventlog.Log) error {
		appended, aerr := log.AppendLocked(kind, data, category)
		if aerr != nil {
			return aerr
		}
		ev = appended

		cur, _, rerr := s.readFromDisk()
		if rerr != nil {
			return rerr
		}

		st := updater(cur.Clone(), ev)
		st.Memory.EventCount = uint64(ev.Seq)
		st.Memory.LastEventHash = ev.Hash
		st.Updated = ev.Timestamp

		if werr := s.writeLocked(st); werr != nil {
			return werr
		}
		next = st
		return nil
	})
	if err != nil {
		return domain.Event{}, domain.State{}, err
	}
	return ev, next, nil
}
