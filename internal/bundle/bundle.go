// Package bundle is a boundary concern outside C1-C16: a portable
// continuity export/import format, zstd-compressed, matching the
// exports/entity-{shortOrgHash}-{isoTime}.bundle.json path named in
// spec §6. Only the bundle's hash structure is part of the core's
// testable surface; the rest is a thin convenience layer grounded on
// the teacher's zstd encoder/decoder setup in internal/chunk/file's
// manager.go, minus that package's seekable-frame random-access
// machinery, which a one-shot whole-document bundle doesn't need.
package bundle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"entity/internal/digest"
	"entity/internal/domain"
	"entity/internal/eventlog"
	"entity/internal/snapshot"
)

// FormatTag identifies the bundle wire format (spec §6).
const FormatTag = "entity-bundle-v1"

// Bundle is the portable continuity document.
type Bundle struct {
	Format           string               `json:"format"`
	OrganizationHash domain.Digest        `json:"organization_hash"`
	ExportedAt       time.Time            `json:"exported_at"`
	Events           []domain.Event       `json:"events"`
	Snapshots        []snapshotEntry      `json:"snapshots"`
}

type snapshotEntry struct {
	Meta  domain.SnapshotMeta `json:"meta"`
	State domain.State        `json:"state"`
}

// Build assembles a Bundle from the current log and snapshot store.
func Build(log *eventlog.Log, snapStore *snapshot.Store, orgHash domain.Digest, now func() time.Time) (Bundle, error) {
	if now == nil {
		now = time.Now
	}
	events, err := log.Load()
	if err != nil {
		return Bundle{}, err
	}
	metas, err := snapStore.List()
	if err != nil {
		return Bundle{}, err
	}
	entries := make([]snapshotEntry, 0, len(metas))
	for _, meta := range metas {
		st, err := snapStore.ReadState(meta.ID)
		if err != nil {
			return Bundle{}, err
		}
		entries = append(entries, snapshotEntry{Meta: meta, State: st})
	}
	return Bundle{
		Format: FormatTag, OrganizationHash: orgHash, ExportedAt: now().UTC(),
		Events: events, Snapshots: entries,
	}, nil
}

// Digest returns a digest over b's format tag, organization hash and
// event count. The contents of the events and snapshots are not covered:
// two bundles with the same identity and event count digest the same.
func (b Bundle) Digest() domain.Digest {
	return digest.DigestObject(map[string]any{
		"format":            b.Format,
		"organization_hash": b.OrganizationHash.String(),
		"event_count":       float64(len(b.Events)),
	})
}

// ExportPath renders the spec §6 export filename for orgHash at t.
func ExportPath(dir string, orgHash domain.Digest, t time.Time) string {
	short := orgHash.String()
	if len(short) > 12 {
		short = short[:12]
	}
	name := fmt.Sprintf("entity-%s-%s.bundle.json", short, t.UTC().Format("20060102T150405Z"))
	return filepath.Join(dir, "exports", name)
}

// Write zstd-compresses b's JSON encoding to path, creating parent
// directories as needed.
func Write(path string, b Bundle) error {
	plain, err := json.Marshal(b)
	if err != nil {
		return domain.NewError(domain.KindStateIo, "marshal bundle", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return domain.NewError(domain.KindStateIo, "create zstd encoder", err)
	}
	defer enc.Close()
	compressed := enc.EncodeAll(plain, nil)

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return domain.NewError(domain.KindStateIo, "create exports directory", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".bundle-*")
	if err != nil {
		return domain.NewError(domain.KindStateIo, "create temp bundle file", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return domain.NewError(domain.KindStateIo, "write bundle bytes", err)
	}
	if err := tmp.Chmod(0o640); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return domain.NewError(domain.KindStateIo, "chmod bundle file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return domain.NewError(domain.KindStateIo, "close temp bundle file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return domain.NewError(domain.KindStateIo, "rename bundle file", err)
	}
	return nil
}

// Read decompresses and decodes a bundle written by Write.
func Read(path string) (Bundle, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return Bundle{}, domain.NewError(domain.KindStateIo, "read bundle file", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return Bundle{}, domain.NewError(domain.KindStateIo, "create zstd decoder", err)
	}
	defer dec.Close()
	plain, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return Bundle{}, domain.NewError(domain.KindLogCorrupt, "decompress bundle", err)
	}
	var b Bundle
	if err := json.Unmarshal(plain, &b); err != nil {
		return Bundle{}, domain.NewError(domain.KindLogCorrupt, "decode bundle", err)
	}
	if b.Format != FormatTag {
		return Bundle{}, fmt.Errorf("unrecognised bundle format: %q", b.Format)
	}
	return b, nil
}

// VerifyIdentity reports whether b's organization hash matches want
// (used by `continuity verify`).
func VerifyIdentity(b Bundle, want domain.Digest) bool {
	return bytes.Equal(b.OrganizationHash[:], want[:])
}

// eventFile mirrors eventlog's on-disk wire schema (spec §6). It is
// duplicated here rather than exported from eventlog because Import
// writes raw event files directly, bypassing the log's own
// load-compute-append path: a continuity import seeds an empty
// directory with someone else's already-hashed history verbatim, it
// does not append new events to one.
type eventFile struct {
	Seq       domain.Seq       `json:"seq"`
	Type      domain.EventKind `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Data      domain.Record    `json:"data"`
	PrevHash  *domain.Digest   `json:"prev_hash,omitempty"`
	Hash      domain.Digest    `json:"hash"`
	Category  domain.Category  `json:"category,omitempty"`
}

// Import writes b's events verbatim into dir/events (spec §6's
// continuity import: "seeds an empty home directory from a bundle").
// It refuses to run against a directory that already holds events, so
// import can never silently interleave two histories.
func Import(dir string, b Bundle) error {
	eventsDir := filepath.Join(dir, "events")
	if entries, err := os.ReadDir(eventsDir); err == nil && len(entries) > 0 {
		return fmt.Errorf("refusing to import into non-empty events directory %s", eventsDir)
	}
	if err := os.MkdirAll(eventsDir, 0o750); err != nil {
		return domain.NewError(domain.KindStateIo, "create events directory", err)
	}
	for _, ev := range b.Events {
		path := filepath.Join(eventsDir, fmt.Sprintf("%06d.json", ev.Seq))
		wire := eventFile{Seq: ev.Seq, Type: ev.Type, Timestamp: ev.Timestamp, Data: ev.Data, PrevHash: ev.PrevHash, Hash: ev.Hash, Category: ev.Category}
		raw, err := json.MarshalIndent(wire, "", "  ")
		if err != nil {
			return domain.NewError(domain.KindStateIo, "marshal imported event", err)
		}
		if err := os.WriteFile(path, raw, 0o640); err != nil {
			return domain.NewError(domain.KindStateIo, fmt.Sprintf("write imported event %d", ev.Seq), err)
		}
	}
	snapDir := filepath.Join(dir, "state", "snapshots")
	if err := os.MkdirAll(snapDir, 0o750); err != nil {
		return domain.NewError(domain.KindStateIo, "create snapshots directory", err)
	}
	var idx struct {
		Entries []domain.SnapshotMeta `json:"entries"`
	}
	for _, entry := range b.Snapshots {
		statePath := filepath.Join(snapDir, entry.Meta.ID.String()+".json")
		raw, err := json.MarshalIndent(entry.State, "", "  ")
		if err != nil {
			return domain.NewError(domain.KindStateIo, "marshal imported snapshot", err)
		}
		if err := os.WriteFile(statePath, raw, 0o640); err != nil {
			return domain.NewError(domain.KindStateIo, "write imported snapshot", err)
		}
		idx.Entries = append(idx.Entries, entry.Meta)
	}
	idxRaw, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return domain.NewError(domain.KindStateIo, "marshal snapshot index", err)
	}
	if err := os.WriteFile(filepath.Join(snapDir, "index.json"), idxRaw, 0o640); err != nil {
		return domain.NewError(domain.KindStateIo, "write snapshot index", err)
	}
	return nil
}
