// Package archive defines the interface and implementations for the snapshot
// archive, the blob store holding exported list snapshots.
//
// Snapshots are opaque JSON documents produced by the serialization package.
// The archive only moves bytes; it never inspects snapshot contents.
package archive

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the snapshot does not exist.
var ErrNotFound = errors.New("archive: snapshot not found")

// Backend stores snapshot blobs. Implementations must be safe for
// concurrent use.
//
// Snapshots are addressed by list ID and snapshot ID; backends lay them out
// as {prefix}{listID}/{snapshotID}.json or the filesystem equivalent.
type Backend interface {
	// Put stores a snapshot blob, overwriting any existing one with the
	// same IDs.
	Put(ctx context.Context, listID, snapshotID string, data []byte) error

	// Get retrieves a snapshot blob. Returns ErrNotFound when absent.
	Get(ctx context.Context, listID, snapshotID string) ([]byte, error)

	// List returns the snapshot IDs stored for a list, sorted ascending.
	// A list with no snapshots yields an empty slice, not an error.
	List(ctx context.Context, listID string) ([]string, error)

	// Delete removes a snapshot blob. Deleting a missing snapshot is not
	// an error.
	Delete(ctx context.Context, listID, snapshotID string) error

	// HealthCheck verifies the archive backend is operational.
	HealthCheck(ctx context.Context) error
}

// snapshotSuffix is the file extension every stored snapshot carries.
const snapshotSuffix = ".json"
