// Package lexnum encodes real numbers as fixed-width strings that sort in
// numeric order.
//
// Encode maps every float64 to EncodedLen lowercase hex characters such that
// x < y implies Encode(x) < Encode(y) under bytewise comparison, and equal
// values encode identically. Fixed width means no encoding is a prefix of
// another, so encodings remain comparable even when callers append their own
// suffixes.
package lexnum

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
)

// EncodedLen is the length of every encoded value.
const EncodedLen = 16

// Encode renders v as a fixed-width, order-preserving hex string.
//
// The IEEE 754 bit pattern of a non-negative float sorts correctly as an
// unsigned integer on its own; setting the sign bit lifts non-negatives
// above all negatives, and inverting every bit of a negative reverses the
// negative range into ascending order. NaN is unsupported input and encodes
// to an unspecified value.
func Encode(v float64) string {
	if v == 0 {
		v = 0 // folds -0 into +0 so both encode identically
	}
	bits := math.Float64bits(v)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], bits)
	return hex.EncodeToString(buf[:])
}

// Decode inverts Encode.
func Decode(s string) (float64, error) {
	if len(s) != EncodedLen {
		return 0, fmt.Errorf("lexnum: encoded value must be %d characters, got %d", EncodedLen, len(s))
	}
	var buf [8]byte
	if _, err := hex.Decode(buf[:], []byte(s)); err != nil {
		return 0, fmt.Errorf("lexnum: decode: %w", err)
	}
	bits := binary.BigEndian.Uint64(buf[:])
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits), nil
}
