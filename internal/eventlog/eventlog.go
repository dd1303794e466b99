// Package eventlog implements C2: the append-only, per-record-file,
// Merkle-chained journal (spec §4.2), grounded on the locking and
// atomic-write discipline of internal/chunk/file's Manager and
// internal/config/file's Store.
package eventlog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"entity/internal/atomicfile"
	"entity/internal/digest"
	"entity/internal/domain"
	"entity/internal/logging"
)

// seqWidth is the zero-padding width for event filenames (spec §6:
// "events/NNNNNN.json — one event per file, zero-padded 6-digit seq").
const seqWidth = 6

// Config configures a Log.
type Config struct {
	Dir    string // base directory; events live under Dir/events
	Now    func() time.Time
	Logger *slog.Logger
	Owner  string // identity recorded in the lock file contents
}

// Log is the event-log store (C2). It owns the events/ directory and its
// advisory lock; callers never touch the filesystem directly.
type Log struct {
	dir    string
	now    func() time.Time
	logger *slog.Logger
	owner  string
}

// New constructs a Log rooted at cfg.Dir/events, creating the directory
// if needed.
func New(cfg Config) (*Log, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Owner == "" {
		cfg.Owner = "entityd"
	}
	dir := filepath.Join(cfg.Dir, "events")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, domain.NewError(domain.KindLogIo, "create events directory", err)
	}
	return &Log{dir: dir, now: cfg.Now, logger: logging.Default(cfg.Logger).With("component", "eventlog"), owner: cfg.Owner}, nil
}

func (l *Log) eventPath(seq domain.Seq) string {
	return filepath.Join(l.dir, fmt.Sprintf("%0*d.json", seqWidth, seq))
}

func (l *Log) lock() *fileLock {
	return newFileLock(l.dir, l.owner)
}

// wireEvent is the on-disk schema (spec §6: stable field ordering
// "{seq, type, timestamp, data, prev_hash, hash}" plus optional category).
type wireEvent struct {
	Seq       domain.Seq       `json:"seq"`
	Type      domain.EventKind `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Data      domain.Record    `json:"data"`
	PrevHash  *domain.Digest   `json:"prev_hash,omitempty"`
	Hash      domain.Digest    `json:"hash"`
	Category  domain.Category  `json:"category,omitempty"`
}

func toWire(e domain.Event) wireEvent {
	return wireEvent{Seq: e.Seq, Type: e.Type, Timestamp: e.Timestamp, Data: e.Data, PrevHash: e.PrevHash, Hash: e.Hash, Category: e.Category}
}

func fromWire(w wireEvent) domain.Event {
	return domain.Event{Seq: w.Seq, Type: w.Type, Timestamp: w.Timestamp, Data: w.Data, PrevHash: w.PrevHash, Hash: w.Hash, Category: w.Category}
}

// Load reads all event files in the directory, sorted ascending by seq,
// and returns them in order. It fails with LogCorrupt if any file is
// unparseable or a seq is missing from the dense 1..N range.
func (l *Log) Load() ([]domain.Event, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, domain.NewError(domain.KindLogIo, "read events directory", err)
	}

	type found struct {
		seq  domain.Seq
		path string
	}
	var files []found
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		base := strings.TrimSuffix(e.Name(), ".json")
		n, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue // not an event file (e.g. stray file); ignore
		}
		files = append(files, found{seq: domain.Seq(n), path: filepath.Join(l.dir, e.Name())})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].seq < files[j].seq })

	events := make([]domain.Event, 0, len(files))
	for i, f := range files {
		wantSeq := domain.Seq(i + 1)
		if f.seq != wantSeq {
			return nil, domain.NewError(domain.KindLogCorrupt, fmt.Sprintf("gap in sequence: expected seq %d, found %d", wantSeq, f.seq), nil)
		}
		var w wireEvent
		if _, err := atomicfile.ReadJSON(f.path, &w); err != nil {
			return nil, domain.NewError(domain.KindLogCorrupt, fmt.Sprintf("unparseable event file %s", f.path), err)
		}
		events = append(events, fromWire(w))
	}
	return events, nil
}

// tail returns the last event in a loaded sequence, or nil if empty.
func tail(events []domain.Event) *domain.Event {
	if len(events) == 0 {
		return nil
	}
	return &events[len(events)-1]
}

// Append computes seq and prevHash from the current tail, composes and
// hashes the event, and writes it atomically. Callers that need
// event+state linearisability must use AppendAtomic instead (the state
// store wraps this).
func (l *Log) Append(kind domain.EventKind, data domain.Record, category domain.Category) (domain.Event, error) {
	lk := l.lock()
	if err := lk.Acquire(); err != nil {
		return domain.Event{}, err
	}
	defer lk.Release()
	return l.appendLocked(kind, data, category)
}

// appendLocked performs the append assuming the caller already holds the
// lock (used by AppendAtomic-style callers that also need to touch the
// state store within the same critical section).
func (l *Log) appendLocked(kind domain.EventKind, data domain.Record, category domain.Category) (domain.Event, error) {
	events, err := l.Load()
	if err != nil {
		return domain.Event{}, err
	}
	prev := tail(events)

	var prevHash *domain.Digest
	seq := domain.Seq(1)
	if prev != nil {
		h := prev.Hash
		prevHash = &h
		seq = prev.Seq + 1
	}

	ts := l.now().UTC()
	ev := domain.Event{Seq: seq, Type: kind, Timestamp: ts, Data: data, PrevHash: prevHash, Category: category}
	ev.Hash = digest.HashEvent(ev.HashInput())

	if err := atomicfile.WriteJSON(l.eventPath(seq), toWire(ev), 0o640); err != nil {
		return domain.Event{}, domain.NewError(domain.KindLogIo, fmt.Sprintf("write event %d", seq), err)
	}
	l.logger.Debug("appended event", "seq", seq, "type", kind, "category", category)
	return ev, nil
}

// Dir returns the events directory path (used by the recovery engine to
// delete corrupted tail files directly).
func (l *Log) Dir() string { return l.dir }

// EventPath exposes the on-disk path for a given seq (recovery engine).
func (l *Log) EventPath(seq domain.Seq) string { return l.eventPath(seq) }

// WithLock runs fn while holding the exclusive lock, giving callers
// (principally the state store's AppendAtomic) a critical section that
// spans both the log append and the state write.
func (l *Log) WithLock(fn func(*Log) error) error {
	lk := l.lock()
	if err := lk.Acquire(); err != nil {
		return err
	}
	defer lk.Release()
	return fn(l)
}

// AppendLocked is Append without acquiring the lock; callers must already
// hold it (via WithLock).
func (l *Log) AppendLocked(kind domain.EventKind, data domain.Record, category domain.Category) (domain.Event, error) {
	return l.appendLocked(kind, data, category)
}
