package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rankstamp/rankstamp/internal/uid"
)

// LocalBackend stores snapshots as files on the local filesystem, one
// directory per list under a configurable root.
type LocalBackend struct {
	// RootDir is the base directory under which all snapshots are stored.
	RootDir string
}

// NewLocalBackend creates a LocalBackend rooted at the given directory.
// It creates the root directory and the temp directory if they do not exist.
func NewLocalBackend(rootDir string) (*LocalBackend, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive root directory %q: %w", rootDir, err)
	}
	// The .tmp directory backs atomic writes.
	tmpDir := filepath.Join(rootDir, ".tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating temp directory %q: %w", tmpDir, err)
	}
	return &LocalBackend{RootDir: rootDir}, nil
}

// snapshotPath returns the full filesystem path for a snapshot.
func (b *LocalBackend) snapshotPath(listID, snapshotID string) string {
	return filepath.Join(b.RootDir, listID, snapshotID+snapshotSuffix)
}

// tempPath returns a unique temporary file path in the .tmp directory.
func (b *LocalBackend) tempPath() string {
	return filepath.Join(b.RootDir, ".tmp", "tmp-"+uid.New())
}

// Put writes a snapshot file using the atomic write pattern: write to a temp
// file, fsync, rename.
func (b *LocalBackend) Put(ctx context.Context, listID, snapshotID string, data []byte) error {
	path := b.snapshotPath(listID, snapshotID)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory for %q: %w", listID, err)
	}

	tmpPath := b.tempPath()
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing snapshot data: %w", err)
	}

	// Fsync before rename to guarantee durability.
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file to final path: %w", err)
	}

	return nil
}

// Get reads a snapshot file.
func (b *LocalBackend) Get(ctx context.Context, listID, snapshotID string) ([]byte, error) {
	data, err := os.ReadFile(b.snapshotPath(listID, snapshotID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, listID, snapshotID)
		}
		return nil, fmt.Errorf("reading snapshot %q/%q: %w", listID, snapshotID, err)
	}
	return data, nil
}

// List returns the snapshot IDs stored for a list, sorted ascending.
func (b *LocalBackend) List(ctx context.Context, listID string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(b.RootDir, listID))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("listing snapshots for %q: %w", listID, err)
	}

	ids := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, snapshotSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, snapshotSuffix))
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes a snapshot file. Idempotent: deleting a missing snapshot is
// not an error. The list directory is removed once it empties.
func (b *LocalBackend) Delete(ctx context.Context, listID, snapshotID string) error {
	path := b.snapshotPath(listID, snapshotID)

	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing snapshot %q/%q: %w", listID, snapshotID, err)
	}

	// Fails silently when the directory still holds snapshots.
	os.Remove(filepath.Join(b.RootDir, listID))
	return nil
}

// HealthCheck verifies that the archive root directory is accessible.
func (b *LocalBackend) HealthCheck(ctx context.Context) error {
	_, err := os.Stat(b.RootDir)
	return err
}

// Ensure LocalBackend implements Backend at compile time.
var _ Backend = (*LocalBackend)(nil)
