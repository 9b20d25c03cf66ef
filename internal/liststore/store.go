// Package liststore defines the list store interface and its implementations.
//
// A list store persists ordered lists and their items. Every item carries a
// position stamp, and item order is stamp order; backends keep items
// retrievable in stamp order natively (an indexed column, a sort key, or key
// order in an ordered KV), so repositioning an item is a write to that one
// item and nothing else.
//
// List and item IDs are restricted to [A-Za-z0-9_-], which keeps them safe
// inside composite keys in every backend.
package liststore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/rankstamp/rankstamp/stamp"
)

// Store errors reported by mutating operations. Reads return (nil, nil) for
// missing records.
var (
	// ErrListExists is returned by CreateList when the ID is taken.
	ErrListExists = errors.New("liststore: list already exists")
	// ErrListNotFound is returned by item writes against a missing list.
	ErrListNotFound = errors.New("liststore: list not found")
	// ErrItemExists is returned by PutItem when the item ID is taken.
	ErrItemExists = errors.New("liststore: item already exists")
	// ErrItemNotFound is returned by item updates and deletes when the item
	// does not exist.
	ErrItemNotFound = errors.New("liststore: item not found")
)

// ListRecord holds the stored state of a list.
type ListRecord struct {
	ID        string
	Title     string
	CreatedAt time.Time
}

// ItemRecord holds the stored state of a single list item.
type ItemRecord struct {
	ListID    string
	ID        string
	Stamp     stamp.Stamp
	Payload   json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ListItemsOptions controls an item listing.
type ListItemsOptions struct {
	// After restricts the listing to items whose stamp sorts after it.
	// The zero value (stamp.LeftEdge) starts from the beginning.
	After stamp.Stamp
	// Limit caps the number of returned items. Zero means no cap.
	Limit int
}

// ListItemsResult is a page of items in stamp order.
type ListItemsResult struct {
	Items []*ItemRecord
	// IsTruncated reports whether more items follow this page.
	IsTruncated bool
	// NextAfter is the marker to pass as After for the following page.
	// Only set when IsTruncated is true.
	NextAfter stamp.Stamp
}

// Store is the interface all list store backends implement.
//
// Reads (GetList, GetItem, NextItem, PrevItem) return (nil, nil) when the
// record does not exist. Writes report the Err* sentinel errors above for
// the conditions handlers need to distinguish; anything else is a backend
// failure.
type Store interface {
	io.Closer

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// CreateList creates a new, empty list.
	CreateList(ctx context.Context, list *ListRecord) error

	// GetList retrieves a list by ID.
	GetList(ctx context.Context, listID string) (*ListRecord, error)

	// DeleteList removes a list and all of its items.
	DeleteList(ctx context.Context, listID string) error

	// ListLists returns all lists ordered by ID.
	ListLists(ctx context.Context) ([]*ListRecord, error)

	// PutItem inserts a new item carrying its stamp.
	PutItem(ctx context.Context, item *ItemRecord) error

	// GetItem retrieves an item by ID.
	GetItem(ctx context.Context, listID, itemID string) (*ItemRecord, error)

	// DeleteItem removes an item.
	DeleteItem(ctx context.Context, listID, itemID string) error

	// UpdateItemStamp repositions an item by replacing its stamp. No other
	// item is touched.
	UpdateItemStamp(ctx context.Context, listID, itemID string, s stamp.Stamp, updatedAt time.Time) error

	// UpdateItemPayload replaces an item's payload, leaving its position
	// untouched.
	UpdateItemPayload(ctx context.Context, listID, itemID string, payload json.RawMessage, updatedAt time.Time) error

	// ListItems returns items in stamp order, paginated by an after-stamp
	// marker.
	ListItems(ctx context.Context, listID string, opts ListItemsOptions) (*ListItemsResult, error)

	// NextItem returns the first item whose stamp sorts after the given
	// stamp. Passing stamp.LeftEdge yields the list's first item.
	NextItem(ctx context.Context, listID string, after stamp.Stamp) (*ItemRecord, error)

	// PrevItem returns the last item whose stamp sorts before the given
	// stamp. Passing stamp.RightEdge yields the list's last item.
	PrevItem(ctx context.Context, listID string, before stamp.Stamp) (*ItemRecord, error)

	// CountItems reports the number of items in a list.
	CountItems(ctx context.Context, listID string) (int64, error)
}
