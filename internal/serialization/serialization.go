// Package serialization handles list export/import between a list store and JSON.
//
// The export document is a schema-versioned envelope plus two sections,
// "lists" and "items", in deterministic order (lists by ID, items by list
// then stamp). Stamps travel hex-encoded. The same document format backs
// list snapshots and the offline export/import tool.
package serialization

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rankstamp/rankstamp/internal/liststore"
	"github.com/rankstamp/rankstamp/stamp"
)

const (
	Version       = "0.1.0"
	ExportVersion = 1
)

// timeFormat renders timestamps in UTC with millisecond precision.
const timeFormat = "2006-01-02T15:04:05.000Z"

// exportPageSize bounds a single ListItems call during export.
const exportPageSize = 1000

// ExportOptions configures what to export.
type ExportOptions struct {
	// Lists restricts the export to the named lists. Empty means all lists.
	Lists []string
}

// ImportOptions configures how to import.
type ImportOptions struct {
	// Replace deletes existing lists named in the document before
	// importing. Without it, records that already exist are skipped.
	Replace bool
}

// ImportResult holds the result of an import operation.
type ImportResult struct {
	Counts   map[string]int
	Skipped  map[string]int
	Warnings []string
}

// document is the export file layout.
type document struct {
	Export exportInfo  `json:"rankstamp_export"`
	Lists  []listEntry `json:"lists"`
	Items  []itemEntry `json:"items"`
}

type exportInfo struct {
	Version    int    `json:"version"`
	ExportedAt string `json:"exported_at"`
	Source     string `json:"source"`
}

type listEntry struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	CreatedAt string `json:"created_at"`
}

type itemEntry struct {
	ListID    string          `json:"list_id"`
	ID        string          `json:"id"`
	Stamp     stamp.Stamp     `json:"stamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

// Export serializes lists and their items from the store to JSON.
func Export(ctx context.Context, st liststore.Store, opts *ExportOptions) ([]byte, error) {
	if opts == nil {
		opts = &ExportOptions{}
	}

	var lists []*liststore.ListRecord
	if len(opts.Lists) == 0 {
		all, err := st.ListLists(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing lists: %w", err)
		}
		lists = all
	} else {
		for _, id := range opts.Lists {
			list, err := st.GetList(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("getting list %q: %w", id, err)
			}
			if list == nil {
				return nil, fmt.Errorf("list %q not found", id)
			}
			lists = append(lists, list)
		}
		sort.Slice(lists, func(i, j int) bool { return lists[i].ID < lists[j].ID })
	}

	doc := document{
		Export: exportInfo{
			Version:    ExportVersion,
			ExportedAt: time.Now().UTC().Format(timeFormat),
			Source:     "go/" + Version,
		},
		Lists: make([]listEntry, 0, len(lists)),
		Items: []itemEntry{},
	}

	for _, list := range lists {
		doc.Lists = append(doc.Lists, listEntry{
			ID:        list.ID,
			Title:     list.Title,
			CreatedAt: list.CreatedAt.UTC().Format(timeFormat),
		})

		// Page through the list in stamp order.
		after := stamp.LeftEdge
		for {
			page, err := st.ListItems(ctx, list.ID, liststore.ListItemsOptions{
				After: after,
				Limit: exportPageSize,
			})
			if err != nil {
				return nil, fmt.Errorf("listing items of %q: %w", list.ID, err)
			}
			for _, item := range page.Items {
				doc.Items = append(doc.Items, itemEntry{
					ListID:    item.ListID,
					ID:        item.ID,
					Stamp:     item.Stamp,
					Payload:   item.Payload,
					CreatedAt: item.CreatedAt.UTC().Format(timeFormat),
					UpdatedAt: item.UpdatedAt.UTC().Format(timeFormat),
				})
			}
			if !page.IsTruncated {
				break
			}
			after = page.NextAfter
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling export: %w", err)
	}
	return data, nil
}

// Import loads an export document into the store.
//
// Lists are created before their items. With Replace, every list named in
// the document is dropped first, so the import is authoritative for those
// lists; otherwise existing lists and items are left in place and clashing
// records are counted as skipped.
func Import(ctx context.Context, st liststore.Store, data []byte, opts *ImportOptions) (*ImportResult, error) {
	if opts == nil {
		opts = &ImportOptions{}
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	if doc.Export.Version < 1 || doc.Export.Version > ExportVersion {
		return nil, fmt.Errorf("unsupported export version: %d", doc.Export.Version)
	}

	result := &ImportResult{
		Counts:  map[string]int{"lists": 0, "items": 0},
		Skipped: map[string]int{"lists": 0, "items": 0},
	}

	if opts.Replace {
		for _, entry := range doc.Lists {
			if err := st.DeleteList(ctx, entry.ID); err != nil && !errors.Is(err, liststore.ErrListNotFound) {
				return nil, fmt.Errorf("replacing list %q: %w", entry.ID, err)
			}
		}
	}

	for _, entry := range doc.Lists {
		createdAt, err := parseTime(entry.CreatedAt)
		if err != nil {
			result.Skipped["lists"]++
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Skipped list %q: bad created_at: %v", entry.ID, err))
			continue
		}

		err = st.CreateList(ctx, &liststore.ListRecord{
			ID:        entry.ID,
			Title:     entry.Title,
			CreatedAt: createdAt,
		})
		switch {
		case err == nil:
			result.Counts["lists"]++
		case errors.Is(err, liststore.ErrListExists):
			result.Skipped["lists"]++
		default:
			result.Skipped["lists"]++
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Skipped list %q: %v", entry.ID, err))
		}
	}

	for _, entry := range doc.Items {
		createdAt, err := parseTime(entry.CreatedAt)
		if err != nil {
			result.Skipped["items"]++
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Skipped item %q/%q: bad created_at: %v", entry.ListID, entry.ID, err))
			continue
		}
		updatedAt, err := parseTime(entry.UpdatedAt)
		if err != nil {
			result.Skipped["items"]++
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Skipped item %q/%q: bad updated_at: %v", entry.ListID, entry.ID, err))
			continue
		}

		err = st.PutItem(ctx, &liststore.ItemRecord{
			ListID:    entry.ListID,
			ID:        entry.ID,
			Stamp:     entry.Stamp,
			Payload:   entry.Payload,
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		})
		switch {
		case err == nil:
			result.Counts["items"]++
		case errors.Is(err, liststore.ErrItemExists):
			result.Skipped["items"]++
		default:
			result.Skipped["items"]++
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Skipped item %q/%q: %v", entry.ListID, entry.ID, err))
		}
	}

	return result, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
