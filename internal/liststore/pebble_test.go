package liststore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rankstamp/rankstamp/stamp"
)

// newPebbleTestStore creates a PebbleStore backed by a temporary directory.
func newPebbleTestStore(t *testing.T) *PebbleStore {
	t.Helper()
	store, err := NewPebbleStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewPebbleStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPebbleListCRUD(t *testing.T) {
	store := newPebbleTestStore(t)
	ctx := context.Background()

	list := &ListRecord{
		ID:        "groceries",
		Title:     "Grocery run",
		CreatedAt: time.Date(2026, 2, 22, 12, 0, 0, 0, time.UTC),
	}
	if err := store.CreateList(ctx, list); err != nil {
		t.Fatalf("CreateList: %v", err)
	}

	got, err := store.GetList(ctx, "groceries")
	if err != nil {
		t.Fatalf("GetList: %v", err)
	}
	if got == nil {
		t.Fatal("GetList returned nil")
	}
	if got.Title != "Grocery run" {
		t.Errorf("Title = %q, want %q", got.Title, "Grocery run")
	}
	if !got.CreatedAt.Equal(list.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, list.CreatedAt)
	}

	// Duplicate create.
	err = store.CreateList(ctx, &ListRecord{ID: "groceries", CreatedAt: time.Now().UTC()})
	if !errors.Is(err, ErrListExists) {
		t.Errorf("CreateList(duplicate) = %v, want ErrListExists", err)
	}

	// Lists come back sorted by ID; pebble stores them in key order.
	seedList(t, store, "apples")
	lists, err := store.ListLists(ctx)
	if err != nil {
		t.Fatalf("ListLists: %v", err)
	}
	if len(lists) != 2 {
		t.Fatalf("ListLists returned %d lists, want 2", len(lists))
	}
	if lists[0].ID != "apples" || lists[1].ID != "groceries" {
		t.Errorf("Lists not sorted: %v", []string{lists[0].ID, lists[1].ID})
	}

	// Delete.
	if err := store.DeleteList(ctx, "groceries"); err != nil {
		t.Fatalf("DeleteList: %v", err)
	}
	got, err = store.GetList(ctx, "groceries")
	if err != nil {
		t.Fatalf("GetList: %v", err)
	}
	if got != nil {
		t.Error("GetList returned a record after deletion")
	}
	err = store.DeleteList(ctx, "groceries")
	if !errors.Is(err, ErrListNotFound) {
		t.Errorf("DeleteList(deleted) = %v, want ErrListNotFound", err)
	}
}

func TestPebbleItemCRUD(t *testing.T) {
	store := newPebbleTestStore(t)
	ctx := context.Background()

	seedList(t, store, "todo")

	now := time.Now().UTC().Truncate(time.Millisecond)
	item := &ItemRecord{
		ListID:    "todo",
		ID:        "milk",
		Stamp:     stamp.Stamp("\x80\x41"),
		Payload:   json.RawMessage(`{"title":"Buy milk"}`),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.PutItem(ctx, item); err != nil {
		t.Fatalf("PutItem: %v", err)
	}

	got, err := store.GetItem(ctx, "todo", "milk")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got == nil {
		t.Fatal("GetItem returned nil")
	}
	if got.Stamp != item.Stamp {
		t.Errorf("Stamp = %s, want %s", got.Stamp, item.Stamp)
	}
	if string(got.Payload) != `{"title":"Buy milk"}` {
		t.Errorf("Payload = %s", string(got.Payload))
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, now)
	}

	// Sentinels.
	err = store.PutItem(ctx, item)
	if !errors.Is(err, ErrItemExists) {
		t.Errorf("PutItem(duplicate) = %v, want ErrItemExists", err)
	}
	err = store.PutItem(ctx, &ItemRecord{ListID: "no-such-list", ID: "x", Stamp: stamp.Stamp("\x80")})
	if !errors.Is(err, ErrListNotFound) {
		t.Errorf("PutItem(missing list) = %v, want ErrListNotFound", err)
	}
	err = store.DeleteItem(ctx, "todo", "no-such-item")
	if !errors.Is(err, ErrItemNotFound) {
		t.Errorf("DeleteItem(missing item) = %v, want ErrItemNotFound", err)
	}
	err = store.DeleteItem(ctx, "no-such-list", "milk")
	if !errors.Is(err, ErrListNotFound) {
		t.Errorf("DeleteItem(missing list) = %v, want ErrListNotFound", err)
	}

	// Delete removes both the item record and its order entry.
	if err := store.DeleteItem(ctx, "todo", "milk"); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	got, err = store.GetItem(ctx, "todo", "milk")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got != nil {
		t.Error("GetItem returned a record after deletion")
	}
	result, err := store.ListItems(ctx, "todo", ListItemsOptions{})
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(result.Items) != 0 {
		t.Errorf("ListItems returned %d items after deletion, want 0", len(result.Items))
	}
}

func TestPebbleOrderingAndNeighbors(t *testing.T) {
	store := newPebbleTestStore(t)
	ctx := context.Background()

	seedList(t, store, "sorted")

	// Out-of-order inserts, including a prefix pair: the 0x00 separator in
	// order keys must keep "\x80" ahead of "\x80\x01".
	seedItem(t, store, "sorted", "y", stamp.Stamp("\x80\x01"))
	seedItem(t, store, "sorted", "w", stamp.Stamp("\x40"))
	seedItem(t, store, "sorted", "z", stamp.Stamp("\xfd"))
	seedItem(t, store, "sorted", "v", stamp.Stamp("\x01\x02"))
	seedItem(t, store, "sorted", "x", stamp.Stamp("\x80"))

	result, err := store.ListItems(ctx, "sorted", ListItemsOptions{})
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	checkOrder(t, result.Items, []string{"v", "w", "x", "y", "z"})

	// After an exact stamp excludes that item, even with a longer stamp
	// continuing it.
	result, err = store.ListItems(ctx, "sorted", ListItemsOptions{After: stamp.Stamp("\x80")})
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	checkOrder(t, result.Items, []string{"y", "z"})

	// Neighbor walk.
	next, err := store.NextItem(ctx, "sorted", stamp.LeftEdge)
	if err != nil {
		t.Fatalf("NextItem: %v", err)
	}
	if next == nil || next.ID != "v" {
		t.Fatalf("NextItem(LeftEdge) = %v, want v", next)
	}
	next, err = store.NextItem(ctx, "sorted", stamp.Stamp("\x80"))
	if err != nil {
		t.Fatalf("NextItem: %v", err)
	}
	if next == nil || next.ID != "y" {
		t.Fatalf("NextItem(x) = %v, want y", next)
	}
	prev, err := store.PrevItem(ctx, "sorted", stamp.RightEdge)
	if err != nil {
		t.Fatalf("PrevItem: %v", err)
	}
	if prev == nil || prev.ID != "z" {
		t.Fatalf("PrevItem(RightEdge) = %v, want z", prev)
	}
	prev, err = store.PrevItem(ctx, "sorted", stamp.Stamp("\x80\x01"))
	if err != nil {
		t.Fatalf("PrevItem: %v", err)
	}
	if prev == nil || prev.ID != "x" {
		t.Fatalf("PrevItem(y) = %v, want x", prev)
	}
	prev, err = store.PrevItem(ctx, "sorted", stamp.Stamp("\x01\x02"))
	if err != nil {
		t.Fatalf("PrevItem: %v", err)
	}
	if prev != nil {
		t.Errorf("PrevItem(first) = %v, want nil", prev)
	}
}

func TestPebblePagination(t *testing.T) {
	store := newPebbleTestStore(t)
	ctx := context.Background()

	seedList(t, store, "pages")
	stamps := []stamp.Stamp{"\x20", "\x40", "\x60", "\x80", "\xa0"}
	ids := []string{"item0", "item1", "item2", "item3", "item4"}
	for i, st := range stamps {
		seedItem(t, store, "pages", ids[i], st)
	}

	result, err := store.ListItems(ctx, "pages", ListItemsOptions{Limit: 2})
	if err != nil {
		t.Fatalf("ListItems page 1: %v", err)
	}
	checkOrder(t, result.Items, []string{"item0", "item1"})
	if !result.IsTruncated {
		t.Error("Page 1 IsTruncated should be true")
	}
	if result.NextAfter != stamps[1] {
		t.Errorf("Page 1 NextAfter = %s, want %s", result.NextAfter, stamps[1])
	}

	result, err = store.ListItems(ctx, "pages", ListItemsOptions{Limit: 2, After: result.NextAfter})
	if err != nil {
		t.Fatalf("ListItems page 2: %v", err)
	}
	checkOrder(t, result.Items, []string{"item2", "item3"})

	result, err = store.ListItems(ctx, "pages", ListItemsOptions{Limit: 2, After: result.NextAfter})
	if err != nil {
		t.Fatalf("ListItems page 3: %v", err)
	}
	checkOrder(t, result.Items, []string{"item4"})
	if result.IsTruncated {
		t.Error("Page 3 IsTruncated should be false")
	}
}

func TestPebbleMove(t *testing.T) {
	store := newPebbleTestStore(t)
	ctx := context.Background()

	seedList(t, store, "todo")
	seedItem(t, store, "todo", "a", stamp.Stamp("\x40"))
	seedItem(t, store, "todo", "b", stamp.Stamp("\x80"))
	seedItem(t, store, "todo", "c", stamp.Stamp("\xc0"))

	movedAt := time.Now().UTC().Add(time.Minute).Truncate(time.Millisecond)
	if err := store.UpdateItemStamp(ctx, "todo", "a", stamp.Stamp("\xa0"), movedAt); err != nil {
		t.Fatalf("UpdateItemStamp: %v", err)
	}

	// The item record and its order entry must agree after the move.
	got, err := store.GetItem(ctx, "todo", "a")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.Stamp != stamp.Stamp("\xa0") {
		t.Errorf("Stamp = %s, want %s", got.Stamp, stamp.Stamp("\xa0"))
	}
	result, err := store.ListItems(ctx, "todo", ListItemsOptions{})
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	checkOrder(t, result.Items, []string{"b", "a", "c"})

	// The old order entry is gone: still exactly three items.
	count, err := store.CountItems(ctx, "todo")
	if err != nil {
		t.Fatalf("CountItems: %v", err)
	}
	if count != 3 {
		t.Errorf("CountItems = %d, want 3", count)
	}
	if len(result.Items) != 3 {
		t.Errorf("ListItems returned %d entries, want 3", len(result.Items))
	}
}

func TestPebbleUpdatePayloadBothCopies(t *testing.T) {
	store := newPebbleTestStore(t)
	ctx := context.Background()

	seedList(t, store, "todo")
	seedItem(t, store, "todo", "milk", stamp.Stamp("\x80"))

	newPayload := json.RawMessage(`{"title":"Buy oat milk"}`)
	changedAt := time.Now().UTC().Add(time.Minute).Truncate(time.Millisecond)
	if err := store.UpdateItemPayload(ctx, "todo", "milk", newPayload, changedAt); err != nil {
		t.Fatalf("UpdateItemPayload: %v", err)
	}

	// GetItem reads the item record, ListItems reads the order entry; both
	// must show the new payload.
	got, err := store.GetItem(ctx, "todo", "milk")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if string(got.Payload) != string(newPayload) {
		t.Errorf("GetItem payload = %s, want %s", string(got.Payload), string(newPayload))
	}
	result, err := store.ListItems(ctx, "todo", ListItemsOptions{})
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("ListItems returned %d items, want 1", len(result.Items))
	}
	if string(result.Items[0].Payload) != string(newPayload) {
		t.Errorf("ListItems payload = %s, want %s", string(result.Items[0].Payload), string(newPayload))
	}
}

func TestPebbleDeleteListCascades(t *testing.T) {
	store := newPebbleTestStore(t)
	ctx := context.Background()

	seedList(t, store, "doomed")
	seedItem(t, store, "doomed", "one", stamp.Stamp("\x40"))
	seedItem(t, store, "doomed", "two", stamp.Stamp("\x80"))
	seedList(t, store, "spared")
	seedItem(t, store, "spared", "keep", stamp.Stamp("\x80"))

	if err := store.DeleteList(ctx, "doomed"); err != nil {
		t.Fatalf("DeleteList: %v", err)
	}

	item, err := store.GetItem(ctx, "doomed", "one")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if item != nil {
		t.Error("GetItem returned a record after list deletion")
	}
	count, err := store.CountItems(ctx, "doomed")
	if err != nil {
		t.Fatalf("CountItems: %v", err)
	}
	if count != 0 {
		t.Errorf("CountItems = %d, want 0", count)
	}

	// The range deletes stay inside the doomed list's keyspace.
	item, err = store.GetItem(ctx, "spared", "keep")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if item == nil {
		t.Error("neighboring list lost its item")
	}

	// Recreating the list starts it empty.
	seedList(t, store, "doomed")
	result, err := store.ListItems(ctx, "doomed", ListItemsOptions{})
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(result.Items) != 0 {
		t.Errorf("recreated list has %d items, want 0", len(result.Items))
	}
}

func TestPebbleReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("NewPebbleStore: %v", err)
	}
	seedList(t, store, "persistent")
	seedItem(t, store, "persistent", "a", stamp.Stamp("\x40"))
	seedItem(t, store, "persistent", "b", stamp.Stamp("\x80"))
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Everything survives a reopen, including the order index.
	reopened, err := NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("NewPebbleStore(reopen): %v", err)
	}
	t.Cleanup(func() { reopened.Close() })

	list, err := reopened.GetList(ctx, "persistent")
	if err != nil {
		t.Fatalf("GetList: %v", err)
	}
	if list == nil {
		t.Fatal("GetList returned nil after reopen")
	}
	result, err := reopened.ListItems(ctx, "persistent", ListItemsOptions{})
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	checkOrder(t, result.Items, []string{"a", "b"})
}
