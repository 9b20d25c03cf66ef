package liststore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rankstamp/rankstamp/stamp"
)

// MemoryStore keeps lists and items in process memory. It backs tests and
// throwaway servers; nothing survives a restart.
type MemoryStore struct {
	mu    sync.RWMutex
	lists map[string]*ListRecord
	items map[string]map[string]*ItemRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lists: make(map[string]*ListRecord),
		items: make(map[string]map[string]*ItemRecord),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) CreateList(ctx context.Context, list *ListRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.lists[list.ID]; exists {
		return fmt.Errorf("%w: %s", ErrListExists, list.ID)
	}

	listCopy := *list
	s.lists[list.ID] = &listCopy
	s.items[list.ID] = make(map[string]*ItemRecord)
	return nil
}

func (s *MemoryStore) GetList(ctx context.Context, listID string) (*ListRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, exists := s.lists[listID]
	if !exists {
		return nil, nil
	}
	listCopy := *list
	return &listCopy, nil
}

func (s *MemoryStore) DeleteList(ctx context.Context, listID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.lists[listID]; !exists {
		return fmt.Errorf("%w: %s", ErrListNotFound, listID)
	}

	delete(s.lists, listID)
	delete(s.items, listID)
	return nil
}

func (s *MemoryStore) ListLists(ctx context.Context) ([]*ListRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lists := make([]*ListRecord, 0, len(s.lists))
	for _, list := range s.lists {
		listCopy := *list
		lists = append(lists, &listCopy)
	}

	sort.Slice(lists, func(i, j int) bool {
		return lists[i].ID < lists[j].ID
	})

	return lists, nil
}

func (s *MemoryStore) PutItem(ctx context.Context, item *ItemRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	listItems, exists := s.items[item.ListID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrListNotFound, item.ListID)
	}
	if _, exists := listItems[item.ID]; exists {
		return fmt.Errorf("%w: %s/%s", ErrItemExists, item.ListID, item.ID)
	}

	itemCopy := *item
	if itemCopy.Payload == nil {
		itemCopy.Payload = json.RawMessage("{}")
	}
	listItems[item.ID] = &itemCopy
	return nil
}

func (s *MemoryStore) GetItem(ctx context.Context, listID, itemID string) (*ItemRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if listItems, exists := s.items[listID]; exists {
		if item, exists := listItems[itemID]; exists {
			itemCopy := *item
			return &itemCopy, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) DeleteItem(ctx context.Context, listID, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	listItems, exists := s.items[listID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrListNotFound, listID)
	}
	if _, exists := listItems[itemID]; !exists {
		return fmt.Errorf("%w: %s/%s", ErrItemNotFound, listID, itemID)
	}

	delete(listItems, itemID)
	return nil
}

func (s *MemoryStore) UpdateItemStamp(ctx context.Context, listID, itemID string, st stamp.Stamp, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	listItems, exists := s.items[listID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrListNotFound, listID)
	}
	item, exists := listItems[itemID]
	if !exists {
		return fmt.Errorf("%w: %s/%s", ErrItemNotFound, listID, itemID)
	}
	item.Stamp = st
	item.UpdatedAt = updatedAt
	return nil
}

func (s *MemoryStore) UpdateItemPayload(ctx context.Context, listID, itemID string, payload json.RawMessage, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	listItems, exists := s.items[listID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrListNotFound, listID)
	}
	item, exists := listItems[itemID]
	if !exists {
		return fmt.Errorf("%w: %s/%s", ErrItemNotFound, listID, itemID)
	}
	if payload == nil {
		payload = json.RawMessage("{}")
	}
	item.Payload = payload
	item.UpdatedAt = updatedAt
	return nil
}

func (s *MemoryStore) ListItems(ctx context.Context, listID string, opts ListItemsOptions) (*ListItemsResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	listItems, exists := s.items[listID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrListNotFound, listID)
	}

	items := make([]*ItemRecord, 0, len(listItems))
	for _, item := range listItems {
		if item.Stamp.Compare(opts.After) <= 0 {
			continue
		}
		itemCopy := *item
		items = append(items, &itemCopy)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Stamp.Compare(items[j].Stamp) < 0
	})

	result := &ListItemsResult{Items: items}
	if opts.Limit > 0 && len(items) > opts.Limit {
		result.Items = items[:opts.Limit]
		result.IsTruncated = true
		result.NextAfter = result.Items[opts.Limit-1].Stamp
	}

	return result, nil
}

func (s *MemoryStore) NextItem(ctx context.Context, listID string, after stamp.Stamp) (*ItemRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var next *ItemRecord
	for _, item := range s.items[listID] {
		if item.Stamp.Compare(after) <= 0 {
			continue
		}
		if next == nil || item.Stamp.Compare(next.Stamp) < 0 {
			next = item
		}
	}
	if next == nil {
		return nil, nil
	}
	nextCopy := *next
	return &nextCopy, nil
}

func (s *MemoryStore) PrevItem(ctx context.Context, listID string, before stamp.Stamp) (*ItemRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var prev *ItemRecord
	for _, item := range s.items[listID] {
		if item.Stamp.Compare(before) >= 0 {
			continue
		}
		if prev == nil || item.Stamp.Compare(prev.Stamp) > 0 {
			prev = item
		}
	}
	if prev == nil {
		return nil, nil
	}
	prevCopy := *prev
	return &prevCopy, nil
}

func (s *MemoryStore) CountItems(ctx context.Context, listID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.items[listID])), nil
}
