package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/rankstamp/rankstamp/internal/archive"
	apierr "github.com/rankstamp/rankstamp/internal/errors"
	"github.com/rankstamp/rankstamp/internal/liststore"
	"github.com/rankstamp/rankstamp/internal/metrics"
	"github.com/rankstamp/rankstamp/internal/serialization"
	"github.com/rankstamp/rankstamp/internal/uid"
)

// SnapshotHandler contains handlers for snapshot operations. Snapshots
// are full-list exports written to the archive backend; restoring one
// replaces the live list with the archived state.
type SnapshotHandler struct {
	store liststore.Store
	arch  archive.Backend
}

// NewSnapshotHandler creates a SnapshotHandler with the given
// dependencies. arch may be nil when no archive is configured; the
// handlers then refuse with a 501.
func NewSnapshotHandler(store liststore.Store, arch archive.Backend) *SnapshotHandler {
	return &SnapshotHandler{store: store, arch: arch}
}

// Snapshot is the wire form of a snapshot descriptor.
type Snapshot struct {
	ID        string    `json:"id" doc:"Snapshot identifier, sorts by creation time"`
	ListID    string    `json:"list_id" doc:"List the snapshot captures"`
	ItemCount int64     `json:"item_count" doc:"Items captured"`
	CreatedAt time.Time `json:"created_at" doc:"Capture time"`
}

// SnapshotOutput wraps a snapshot descriptor response.
type SnapshotOutput struct {
	Body Snapshot
}

// SnapshotListOutput wraps the snapshot collection response.
type SnapshotListOutput struct {
	Body SnapshotList
}

// SnapshotList is the collection of snapshot IDs for one list, oldest
// first.
type SnapshotList struct {
	ListID    string   `json:"list_id" doc:"List the snapshots capture"`
	Snapshots []string `json:"snapshots"`
}

// SnapshotPathInput identifies a snapshot by path parameters.
type SnapshotPathInput struct {
	ListID     string `path:"listID" doc:"List identifier"`
	SnapshotID string `path:"snapshotID" doc:"Snapshot identifier"`
}

// RestoreOutput wraps the result of a restore.
type RestoreOutput struct {
	Body RestoreResult
}

// RestoreResult reports what a restore changed.
type RestoreResult struct {
	SnapshotID    string   `json:"snapshot_id"`
	ListID        string   `json:"list_id"`
	ItemsRestored int      `json:"items_restored" doc:"Items now in the list"`
	Warnings      []string `json:"warnings,omitempty" doc:"Entries skipped during restore"`
}

// CreateSnapshot handles POST /v1/lists/{listID}/snapshots.
func (h *SnapshotHandler) CreateSnapshot(ctx context.Context, input *ListPathInput) (out *SnapshotOutput, err error) {
	defer func() { recordOp("CreateSnapshot", err) }()

	if h.arch == nil {
		return nil, apierr.ErrArchiveNotConfigured
	}
	if _, lerr := ensureListExists(ctx, h.store, input.ListID); lerr != nil {
		return nil, lerr
	}

	data, serr := serialization.Export(ctx, h.store, &serialization.ExportOptions{Lists: []string{input.ListID}})
	if serr != nil {
		return nil, storeErr("CreateSnapshot export", serr)
	}

	snapID := uid.NewSortable()
	if aerr := h.arch.Put(ctx, input.ListID, snapID, data); aerr != nil {
		return nil, archiveErr("CreateSnapshot", aerr)
	}

	count, serr := h.store.CountItems(ctx, input.ListID)
	if serr != nil {
		return nil, storeErr("CreateSnapshot count", serr)
	}

	return &SnapshotOutput{Body: Snapshot{
		ID:        snapID,
		ListID:    input.ListID,
		ItemCount: count,
		CreatedAt: time.Now().UTC(),
	}}, nil
}

// ListSnapshots handles GET /v1/lists/{listID}/snapshots. Snapshots of
// a deleted list stay listable so it can be restored.
func (h *SnapshotHandler) ListSnapshots(ctx context.Context, input *ListPathInput) (out *SnapshotListOutput, err error) {
	defer func() { recordOp("ListSnapshots", err) }()

	if h.arch == nil {
		return nil, apierr.ErrArchiveNotConfigured
	}

	ids, aerr := h.arch.List(ctx, input.ListID)
	if aerr != nil {
		return nil, archiveErr("ListSnapshots", aerr)
	}
	if ids == nil {
		ids = []string{}
	}
	return &SnapshotListOutput{Body: SnapshotList{
		ListID:    input.ListID,
		Snapshots: ids,
	}}, nil
}

// RestoreSnapshot handles POST /v1/lists/{listID}/snapshots/{snapshotID}/restore.
// The live list is dropped and rebuilt from the archived export.
func (h *SnapshotHandler) RestoreSnapshot(ctx context.Context, input *SnapshotPathInput) (out *RestoreOutput, err error) {
	defer func() { recordOp("RestoreSnapshot", err) }()

	if h.arch == nil {
		return nil, apierr.ErrArchiveNotConfigured
	}

	data, aerr := h.arch.Get(ctx, input.ListID, input.SnapshotID)
	if aerr != nil {
		if errors.Is(aerr, archive.ErrNotFound) {
			return nil, apierr.ErrSnapshotNotFound.WithDetail("%s/%s", input.ListID, input.SnapshotID)
		}
		return nil, archiveErr("RestoreSnapshot", aerr)
	}

	listsBefore := 0
	var itemsBefore int64
	if rec, serr := h.store.GetList(ctx, input.ListID); serr == nil && rec != nil {
		listsBefore = 1
		itemsBefore, _ = h.store.CountItems(ctx, input.ListID)
	}

	res, serr := serialization.Import(ctx, h.store, data, &serialization.ImportOptions{Replace: true})
	if serr != nil {
		return nil, storeErr("RestoreSnapshot import", serr)
	}

	metrics.ListsTotal.Add(float64(res.Counts["lists"] - listsBefore))
	metrics.ItemsTotal.Add(float64(int64(res.Counts["items"]) - itemsBefore))

	return &RestoreOutput{Body: RestoreResult{
		SnapshotID:    input.SnapshotID,
		ListID:        input.ListID,
		ItemsRestored: res.Counts["items"],
		Warnings:      res.Warnings,
	}}, nil
}
