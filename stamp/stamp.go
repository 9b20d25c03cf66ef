// Package stamp mints short sortable strings that order database-backed lists.
//
// A Stamp is an opaque byte string whose plain bytewise order is the list
// order, the same comparison a database index performs on a key column.
// Repositioning an item is a single-row write: mint a stamp between the
// item's new neighbors with Between (or at the list edges with Start and
// End), persist it on that one row, and leave every other row untouched.
//
// Stamps are built from bytes in [CharMin, CharMax). Byte 0 is excluded so a
// stamp never collides with string-terminator conventions in storage layers,
// and byte 254 is reserved as the right-edge sentinel RightEdge. Generated
// stamps end in a SuffixLen-byte random suffix, so independent writers
// minting stamps for the same gap collide only with negligible probability;
// uniqueness is probabilistic, not exact.
//
// The generator is stateless. Every operation is a pure function of its
// inputs plus a time source and a randomness source, both injectable for
// deterministic tests, and is safe for concurrent use without coordination.
package stamp

import (
	"encoding/hex"
	"strings"
)

const (
	// CharMin is the smallest byte value a stamp may contain.
	CharMin = 1

	// CharMax bounds stamp bytes from above, exclusive. Byte 254 itself is
	// reserved for RightEdge.
	CharMax = 254

	// SuffixLen is the length of the random suffix on generated stamps.
	SuffixLen = 16
)

// Stamp is an immutable position string. The zero value is LeftEdge.
//
// Raw stamp bytes are rarely valid UTF-8; String and MarshalText render
// lowercase hex, which preserves bytewise order, so stamps carried through
// JSON or logged as text still sort correctly.
type Stamp string

// LeftEdge sorts before every stamp. Pass it to Between as prev to mint a
// stamp ahead of the first item.
const LeftEdge Stamp = ""

// RightEdge sorts after every stamp the generator can mint. Pass it to
// Between as next to mint a stamp behind the last item.
const RightEdge Stamp = "\xfe"

// Compare returns -1, 0, or 1 ordering s relative to other.
func (s Stamp) Compare(other Stamp) int {
	return strings.Compare(string(s), string(other))
}

// String renders the stamp as lowercase hex.
func (s Stamp) String() string {
	return hex.EncodeToString([]byte(s))
}

// MarshalText renders the stamp as lowercase hex.
func (s Stamp) MarshalText() ([]byte, error) {
	dst := make([]byte, hex.EncodedLen(len(s)))
	hex.Encode(dst, []byte(s))
	return dst, nil
}

// UnmarshalText decodes a hex-encoded stamp.
func (s *Stamp) UnmarshalText(text []byte) error {
	dst := make([]byte, hex.DecodedLen(len(text)))
	n, err := hex.Decode(dst, text)
	if err != nil {
		return err
	}
	*s = Stamp(dst[:n])
	return nil
}

// FromHex decodes the hex form produced by String and MarshalText.
func FromHex(text string) (Stamp, error) {
	b, err := hex.DecodeString(text)
	if err != nil {
		return "", err
	}
	return Stamp(b), nil
}

// CommonPrefixLen reports the number of leading bytes a and b share, stopping
// at the first divergence or at the end of the shorter input.
func CommonPrefixLen(a, b Stamp) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
