package liststore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/rankstamp/rankstamp/stamp"
)

// Key layout. List and item IDs never contain '/', so the separators are
// unambiguous.
//
//	l/{listID}                          -> list record JSON
//	i/{listID}/{itemID}                 -> item record JSON
//	o/{listID}/{stamp}\x00{itemID}      -> item record JSON
//
// The o/ keys embed the raw stamp bytes, so Pebble's key order is item
// order; listing and neighbor lookups are range scans. Stamp bytes never
// contain 0x00, so the 0x00 separator keeps composite keys in stamp order
// even when one stamp is a prefix of another. Each item is stored under
// both its i/ key and its o/ key; every write keeps the two in step inside
// one batch.
const (
	listPrefix  = "l/"
	itemPrefix  = "i/"
	orderPrefix = "o/"
)

// PebbleStore implements the Store interface on an embedded Pebble
// database. It fills the niche between the throwaway memory store and a
// networked database: durable local storage with ordered keys.
type PebbleStore struct {
	db *pebble.DB

	// mu serializes writes so existence checks and the batch that follows
	// them act as one step. Reads go straight to Pebble.
	mu sync.Mutex
}

// NewPebbleStore opens or creates a Pebble database at dir.
func NewPebbleStore(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble database: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Ping(ctx context.Context) error {
	return nil
}

func (s *PebbleStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- keys ----

func keyList(listID string) []byte {
	k := make([]byte, 0, len(listPrefix)+len(listID))
	k = append(k, listPrefix...)
	k = append(k, listID...)
	return k
}

func keyItem(listID, itemID string) []byte {
	k := make([]byte, 0, len(itemPrefix)+len(listID)+1+len(itemID))
	k = append(k, itemPrefix...)
	k = append(k, listID...)
	k = append(k, '/')
	k = append(k, itemID...)
	return k
}

func keyOrder(listID string, st stamp.Stamp, itemID string) []byte {
	k := keyOrderScan(listID)
	k = append(k, st...)
	k = append(k, 0x00)
	k = append(k, itemID...)
	return k
}

// keyOrderScan returns the o/ prefix for one list.
func keyOrderScan(listID string) []byte {
	k := make([]byte, 0, len(orderPrefix)+len(listID)+1+32)
	k = append(k, orderPrefix...)
	k = append(k, listID...)
	k = append(k, '/')
	return k
}

func keyItemScan(listID string) []byte {
	k := make([]byte, 0, len(itemPrefix)+len(listID)+1)
	k = append(k, itemPrefix...)
	k = append(k, listID...)
	k = append(k, '/')
	return k
}

// prefixEnd returns the exclusive upper bound for keys starting with prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// ---- stored records ----

type pebbleList struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type pebbleItem struct {
	ListID    string          `json:"list_id"`
	ID        string          `json:"id"`
	Stamp     []byte          `json:"stamp"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func encodeItem(item *ItemRecord) ([]byte, error) {
	payload := item.Payload
	if payload == nil {
		payload = json.RawMessage("{}")
	}
	return json.Marshal(pebbleItem{
		ListID:    item.ListID,
		ID:        item.ID,
		Stamp:     []byte(item.Stamp),
		Payload:   payload,
		CreatedAt: item.CreatedAt.UTC(),
		UpdatedAt: item.UpdatedAt.UTC(),
	})
}

func decodeItem(value []byte) (*ItemRecord, error) {
	var rec pebbleItem
	if err := json.Unmarshal(value, &rec); err != nil {
		return nil, fmt.Errorf("decoding item record: %w", err)
	}
	return &ItemRecord{
		ListID:    rec.ListID,
		ID:        rec.ID,
		Stamp:     stamp.Stamp(rec.Stamp),
		Payload:   rec.Payload,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

// getRaw copies the value for key, or returns (nil, nil) when absent.
func (s *PebbleStore) getRaw(key []byte) ([]byte, error) {
	val, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

// ---- List operations ----

func (s *PebbleStore) CreateList(ctx context.Context, list *ListRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyList(list.ID)
	existing, err := s.getRaw(key)
	if err != nil {
		return fmt.Errorf("checking list %q: %w", list.ID, err)
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrListExists, list.ID)
	}

	value, err := json.Marshal(pebbleList{
		ID:        list.ID,
		Title:     list.Title,
		CreatedAt: list.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding list record: %w", err)
	}
	if err := s.db.Set(key, value, pebble.Sync); err != nil {
		return fmt.Errorf("creating list %q: %w", list.ID, err)
	}
	return nil
}

func (s *PebbleStore) GetList(ctx context.Context, listID string) (*ListRecord, error) {
	value, err := s.getRaw(keyList(listID))
	if err != nil {
		return nil, fmt.Errorf("getting list %q: %w", listID, err)
	}
	if value == nil {
		return nil, nil
	}

	var rec pebbleList
	if err := json.Unmarshal(value, &rec); err != nil {
		return nil, fmt.Errorf("decoding list record: %w", err)
	}
	return &ListRecord{ID: rec.ID, Title: rec.Title, CreatedAt: rec.CreatedAt}, nil
}

func (s *PebbleStore) DeleteList(ctx context.Context, listID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.getRaw(keyList(listID))
	if err != nil {
		return fmt.Errorf("checking list %q: %w", listID, err)
	}
	if existing == nil {
		return fmt.Errorf("%w: %s", ErrListNotFound, listID)
	}

	b := s.db.NewBatch()
	defer b.Close()

	if err := b.Delete(keyList(listID), nil); err != nil {
		return fmt.Errorf("deleting list key: %w", err)
	}
	itemScan := keyItemScan(listID)
	if err := b.DeleteRange(itemScan, prefixEnd(itemScan), nil); err != nil {
		return fmt.Errorf("deleting item keys: %w", err)
	}
	orderScan := keyOrderScan(listID)
	if err := b.DeleteRange(orderScan, prefixEnd(orderScan), nil); err != nil {
		return fmt.Errorf("deleting order keys: %w", err)
	}

	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("deleting list %q: %w", listID, err)
	}
	return nil
}

func (s *PebbleStore) ListLists(ctx context.Context) ([]*ListRecord, error) {
	lower := []byte(listPrefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: prefixEnd(lower),
	})
	if err != nil {
		return nil, fmt.Errorf("listing lists: %w", err)
	}
	defer iter.Close()

	var lists []*ListRecord
	for iter.First(); iter.Valid(); iter.Next() {
		var rec pebbleList
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("decoding list record: %w", err)
		}
		lists = append(lists, &ListRecord{ID: rec.ID, Title: rec.Title, CreatedAt: rec.CreatedAt})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterating lists: %w", err)
	}
	return lists, nil
}

// ---- Item operations ----

func (s *PebbleStore) PutItem(ctx context.Context, item *ItemRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.getRaw(keyList(item.ListID))
	if err != nil {
		return fmt.Errorf("checking list %q: %w", item.ListID, err)
	}
	if list == nil {
		return fmt.Errorf("%w: %s", ErrListNotFound, item.ListID)
	}

	itemKey := keyItem(item.ListID, item.ID)
	existing, err := s.getRaw(itemKey)
	if err != nil {
		return fmt.Errorf("checking item %q/%q: %w", item.ListID, item.ID, err)
	}
	if existing != nil {
		return fmt.Errorf("%w: %s/%s", ErrItemExists, item.ListID, item.ID)
	}

	value, err := encodeItem(item)
	if err != nil {
		return fmt.Errorf("encoding item record: %w", err)
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(itemKey, value, nil); err != nil {
		return fmt.Errorf("setting item key: %w", err)
	}
	if err := b.Set(keyOrder(item.ListID, item.Stamp, item.ID), value, nil); err != nil {
		return fmt.Errorf("setting order key: %w", err)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("putting item %q/%q: %w", item.ListID, item.ID, err)
	}
	return nil
}

func (s *PebbleStore) GetItem(ctx context.Context, listID, itemID string) (*ItemRecord, error) {
	value, err := s.getRaw(keyItem(listID, itemID))
	if err != nil {
		return nil, fmt.Errorf("getting item %q/%q: %w", listID, itemID, err)
	}
	if value == nil {
		return nil, nil
	}
	return decodeItem(value)
}

func (s *PebbleStore) DeleteItem(ctx context.Context, listID, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	itemKey := keyItem(listID, itemID)
	value, err := s.getRaw(itemKey)
	if err != nil {
		return fmt.Errorf("checking item %q/%q: %w", listID, itemID, err)
	}
	if value == nil {
		return s.missingItemErrLocked(listID, itemID)
	}
	item, err := decodeItem(value)
	if err != nil {
		return err
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Delete(itemKey, nil); err != nil {
		return fmt.Errorf("deleting item key: %w", err)
	}
	if err := b.Delete(keyOrder(listID, item.Stamp, itemID), nil); err != nil {
		return fmt.Errorf("deleting order key: %w", err)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("deleting item %q/%q: %w", listID, itemID, err)
	}
	return nil
}

func (s *PebbleStore) UpdateItemStamp(ctx context.Context, listID, itemID string, st stamp.Stamp, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	itemKey := keyItem(listID, itemID)
	value, err := s.getRaw(itemKey)
	if err != nil {
		return fmt.Errorf("checking item %q/%q: %w", listID, itemID, err)
	}
	if value == nil {
		return s.missingItemErrLocked(listID, itemID)
	}
	item, err := decodeItem(value)
	if err != nil {
		return err
	}

	oldOrderKey := keyOrder(listID, item.Stamp, itemID)
	item.Stamp = st
	item.UpdatedAt = updatedAt
	newValue, err := encodeItem(item)
	if err != nil {
		return fmt.Errorf("encoding item record: %w", err)
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Delete(oldOrderKey, nil); err != nil {
		return fmt.Errorf("deleting order key: %w", err)
	}
	if err := b.Set(keyOrder(listID, st, itemID), newValue, nil); err != nil {
		return fmt.Errorf("setting order key: %w", err)
	}
	if err := b.Set(itemKey, newValue, nil); err != nil {
		return fmt.Errorf("setting item key: %w", err)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("updating stamp for %q/%q: %w", listID, itemID, err)
	}
	return nil
}

func (s *PebbleStore) UpdateItemPayload(ctx context.Context, listID, itemID string, payload json.RawMessage, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	itemKey := keyItem(listID, itemID)
	value, err := s.getRaw(itemKey)
	if err != nil {
		return fmt.Errorf("checking item %q/%q: %w", listID, itemID, err)
	}
	if value == nil {
		return s.missingItemErrLocked(listID, itemID)
	}
	item, err := decodeItem(value)
	if err != nil {
		return err
	}

	if payload == nil {
		payload = json.RawMessage("{}")
	}
	item.Payload = payload
	item.UpdatedAt = updatedAt
	newValue, err := encodeItem(item)
	if err != nil {
		return fmt.Errorf("encoding item record: %w", err)
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(itemKey, newValue, nil); err != nil {
		return fmt.Errorf("setting item key: %w", err)
	}
	if err := b.Set(keyOrder(listID, item.Stamp, itemID), newValue, nil); err != nil {
		return fmt.Errorf("setting order key: %w", err)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("updating payload for %q/%q: %w", listID, itemID, err)
	}
	return nil
}

func (s *PebbleStore) ListItems(ctx context.Context, listID string, opts ListItemsOptions) (*ListItemsResult, error) {
	list, err := s.getRaw(keyList(listID))
	if err != nil {
		return nil, fmt.Errorf("checking list %q: %w", listID, err)
	}
	if list == nil {
		return nil, fmt.Errorf("%w: %s", ErrListNotFound, listID)
	}

	scan := keyOrderScan(listID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: scan,
		UpperBound: prefixEnd(scan),
	})
	if err != nil {
		return nil, fmt.Errorf("listing items in %q: %w", listID, err)
	}
	defer iter.Close()

	// Seek past every order key whose stamp is <= After. Keys for stamp s
	// continue with 0x00, so appending 0x01 to the marker skips exactly the
	// entries at the marker stamp and below.
	seek := append(append([]byte(nil), scan...), opts.After...)
	seek = append(seek, 0x01)

	items := []*ItemRecord{}
	result := &ListItemsResult{}
	for valid := iter.SeekGE(seek); valid; valid = iter.Next() {
		if opts.Limit > 0 && len(items) == opts.Limit {
			result.IsTruncated = true
			result.NextAfter = items[len(items)-1].Stamp
			break
		}
		item, err := decodeItem(iter.Value())
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterating items in %q: %w", listID, err)
	}

	result.Items = items
	return result, nil
}

func (s *PebbleStore) NextItem(ctx context.Context, listID string, after stamp.Stamp) (*ItemRecord, error) {
	scan := keyOrderScan(listID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: scan,
		UpperBound: prefixEnd(scan),
	})
	if err != nil {
		return nil, fmt.Errorf("finding item after stamp in %q: %w", listID, err)
	}
	defer iter.Close()

	seek := append(append([]byte(nil), scan...), after...)
	seek = append(seek, 0x01)
	if !iter.SeekGE(seek) {
		if err := iter.Error(); err != nil {
			return nil, fmt.Errorf("finding item after stamp in %q: %w", listID, err)
		}
		return nil, nil
	}
	return decodeItem(iter.Value())
}

func (s *PebbleStore) PrevItem(ctx context.Context, listID string, before stamp.Stamp) (*ItemRecord, error) {
	scan := keyOrderScan(listID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: scan,
		UpperBound: prefixEnd(scan),
	})
	if err != nil {
		return nil, fmt.Errorf("finding item before stamp in %q: %w", listID, err)
	}
	defer iter.Close()

	// Order keys at the boundary stamp start with before||0x00, so SeekLT
	// on that prefix lands on the last strictly earlier stamp.
	seek := append(append([]byte(nil), scan...), before...)
	seek = append(seek, 0x00)
	if !iter.SeekLT(seek) {
		if err := iter.Error(); err != nil {
			return nil, fmt.Errorf("finding item before stamp in %q: %w", listID, err)
		}
		return nil, nil
	}
	return decodeItem(iter.Value())
}

func (s *PebbleStore) CountItems(ctx context.Context, listID string) (int64, error) {
	scan := keyItemScan(listID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: scan,
		UpperBound: prefixEnd(scan),
	})
	if err != nil {
		return 0, fmt.Errorf("counting items in %q: %w", listID, err)
	}
	defer iter.Close()

	var count int64
	for valid := iter.First(); valid; valid = iter.Next() {
		count++
	}
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("counting items in %q: %w", listID, err)
	}
	return count, nil
}

// missingItemErrLocked reports the right sentinel for a missing item. The
// caller holds mu.
func (s *PebbleStore) missingItemErrLocked(listID, itemID string) error {
	list, err := s.getRaw(keyList(listID))
	if err == nil && list == nil {
		return fmt.Errorf("%w: %s", ErrListNotFound, listID)
	}
	return fmt.Errorf("%w: %s/%s", ErrItemNotFound, listID, itemID)
}
