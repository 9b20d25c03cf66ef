package archive

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryBackend keeps snapshots in process memory. It backs tests and
// throwaway servers; nothing survives a restart.
type MemoryBackend struct {
	mu        sync.RWMutex
	snapshots map[string]map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		snapshots: make(map[string]map[string][]byte),
	}
}

func (b *MemoryBackend) Put(ctx context.Context, listID, snapshotID string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.snapshots[listID] == nil {
		b.snapshots[listID] = make(map[string][]byte)
	}
	b.snapshots[listID][snapshotID] = append([]byte(nil), data...)
	return nil
}

func (b *MemoryBackend) Get(ctx context.Context, listID, snapshotID string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, ok := b.snapshots[listID][snapshotID]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, listID, snapshotID)
	}
	return append([]byte(nil), data...), nil
}

func (b *MemoryBackend) List(ctx context.Context, listID string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0, len(b.snapshots[listID]))
	for id := range b.snapshots[listID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (b *MemoryBackend) Delete(ctx context.Context, listID, snapshotID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.snapshots[listID], snapshotID)
	if len(b.snapshots[listID]) == 0 {
		delete(b.snapshots, listID)
	}
	return nil
}

func (b *MemoryBackend) HealthCheck(ctx context.Context) error {
	return nil
}

// Ensure MemoryBackend implements Backend at compile time.
var _ Backend = (*MemoryBackend)(nil)
