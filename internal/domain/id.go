// Package domain holds the core data model shared by every component of the
// runtime: events, the projected state document, snapshots, coupling
// requests, and cycle records (spec §3).
package domain

import (
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// idEncoding is base32hex (RFC 4648), lowercase, unpadded. The alphabet
// 0-9a-v preserves lexicographic sort order, so IDs minted later always
// sort after IDs minted earlier.
var idEncoding = base32.HexEncoding.WithPadding(base32.NoPadding)

// ID is a UUIDv7-backed identifier used for snapshots, coupling requests,
// and cycle records. Its string form is a 26-character lowercase
// base32hex string that sorts by creation time.
type ID [16]byte

// NewID mints an ID from a fresh UUIDv7.
func NewID() ID {
	return ID(uuid.Must(uuid.NewV7()))
}

// ParseID parses a 26-character base32hex string into an ID.
func ParseID(value string) (ID, error) {
	if len(value) != 26 {
		return ID{}, fmt.Errorf("invalid id length: %d (want 26)", len(value))
	}
	decoded, err := idEncoding.DecodeString(strings.ToUpper(value))
	if err != nil {
		return ID{}, fmt.Errorf("invalid id: %w", err)
	}
	var id ID
	copy(id[:], decoded)
	return id, nil
}

func (id ID) String() string {
	return strings.ToLower(idEncoding.EncodeToString(id[:]))
}

// Time returns the creation time embedded in the UUIDv7.
func (id ID) Time() time.Time {
	ms := int64(id[0])<<40 | int64(id[1])<<32 | int64(id[2])<<24 |
		int64(id[3])<<16 | int64(id[4])<<8 | int64(id[5])
	return time.UnixMilli(ms)
}

// IsZero reports whether the ID is the zero value.
func (id ID) IsZero() bool {
	return id == ID{}
}

func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
