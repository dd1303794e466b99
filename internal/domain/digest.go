package domain

import "encoding/hex"

// Digest is a fixed-length, opaque, collision-resistant content hash.
// The concrete size and algorithm live in internal/digest; domain only
// needs equality and hex rendering (spec §3, C1).
type Digest [32]byte

// ZeroDigest is the well-known empty digest, used as the genesis event's
// absent prevHash sentinel is represented by a *Digest instead (nil means
// "no previous hash"); ZeroDigest itself only shows up in tests and
// placeholders.
var ZeroDigest Digest

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

func (d Digest) IsZero() bool {
	return d == Digest{}
}

func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Digest) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	var out Digest
	copy(out[:], b)
	*d = out
	return nil
}

// ParseDigest decodes a hex string into a Digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	if err := d.UnmarshalText([]byte(s)); err != nil {
		return Digest{}, err
	}
	return d, nil
}
