// Package uid provides unique identifier generation for RankStamp.
package uid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New generates a 32-character hex string suitable for use as a unique
// identifier (item IDs, request IDs, etc.) using crypto/rand.
func New() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// Fallback: timestamp-based ID. Should never happen with crypto/rand.
		return fmt.Sprintf("%032x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// NewSortable generates an identifier whose lexicographic order follows
// creation time: a fixed-width hex millisecond timestamp followed by a random
// tail. Snapshot IDs use this so listings come back in creation order.
func NewSortable() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%012x-%08x", time.Now().UnixMilli(), time.Now().UnixNano()&0xffffffff)
	}
	return fmt.Sprintf("%012x-%s", time.Now().UnixMilli(), hex.EncodeToString(b))
}
