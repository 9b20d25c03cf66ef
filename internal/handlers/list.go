package handlers

import (
	"context"
	"errors"
	"time"

	apierr "github.com/rankstamp/rankstamp/internal/errors"
	"github.com/rankstamp/rankstamp/internal/liststore"
	"github.com/rankstamp/rankstamp/internal/metrics"
)

// ListHandler contains handlers for list-level operations.
type ListHandler struct {
	store liststore.Store
}

// NewListHandler creates a ListHandler with the given dependencies.
func NewListHandler(store liststore.Store) *ListHandler {
	return &ListHandler{store: store}
}

// List is the wire form of a list.
type List struct {
	ID        string    `json:"id" doc:"List identifier"`
	Title     string    `json:"title,omitempty" doc:"Display title"`
	CreatedAt time.Time `json:"created_at" doc:"Creation time"`
}

// ListDetail is a list plus its current item count.
type ListDetail struct {
	List
	ItemCount int64 `json:"item_count" doc:"Number of items in the list"`
}

func listFromRecord(rec *liststore.ListRecord) List {
	return List{
		ID:        rec.ID,
		Title:     rec.Title,
		CreatedAt: rec.CreatedAt,
	}
}

// CreateListRequest is the body of a list creation.
type CreateListRequest struct {
	ID    string `json:"id" doc:"List identifier ([A-Za-z0-9_-], 1-128 chars)"`
	Title string `json:"title,omitempty" doc:"Optional display title"`
}

// CreateListInput is the huma input for creating a list.
type CreateListInput struct {
	Body CreateListRequest
}

// ListOutput wraps a single list response.
type ListOutput struct {
	Body List
}

// ListDetailOutput wraps a list-with-count response.
type ListDetailOutput struct {
	Body ListDetail
}

// ListPathInput identifies a list by path parameter.
type ListPathInput struct {
	ListID string `path:"listID" doc:"List identifier"`
}

// DeleteListOutput is the empty response of a list deletion.
type DeleteListOutput struct{}

// ListListsOutput wraps the collection response.
type ListListsOutput struct {
	Body ListPage
}

// ListPage is the collection of all lists, ordered by ID.
type ListPage struct {
	Lists []List `json:"lists"`
}

// CreateList handles POST /v1/lists.
func (h *ListHandler) CreateList(ctx context.Context, input *CreateListInput) (out *ListOutput, err error) {
	defer func() { recordOp("CreateList", err) }()

	if verr := validateListID(input.Body.ID); verr != nil {
		return nil, verr
	}

	rec := &liststore.ListRecord{
		ID:        input.Body.ID,
		Title:     input.Body.Title,
		CreatedAt: time.Now().UTC(),
	}
	if serr := h.store.CreateList(ctx, rec); serr != nil {
		if errors.Is(serr, liststore.ErrListExists) {
			return nil, apierr.ErrListAlreadyExists.WithDetail("%s", rec.ID)
		}
		return nil, storeErr("CreateList", serr)
	}

	metrics.ListsTotal.Inc()
	return &ListOutput{Body: listFromRecord(rec)}, nil
}

// GetList handles GET /v1/lists/{listID}.
func (h *ListHandler) GetList(ctx context.Context, input *ListPathInput) (out *ListDetailOutput, err error) {
	defer func() { recordOp("GetList", err) }()

	rec, serr := h.store.GetList(ctx, input.ListID)
	if serr != nil {
		return nil, storeErr("GetList", serr)
	}
	if rec == nil {
		return nil, apierr.ErrListNotFound.WithDetail("%s", input.ListID)
	}

	count, serr := h.store.CountItems(ctx, input.ListID)
	if serr != nil {
		return nil, storeErr("GetList count", serr)
	}

	return &ListDetailOutput{Body: ListDetail{
		List:      listFromRecord(rec),
		ItemCount: count,
	}}, nil
}

// DeleteList handles DELETE /v1/lists/{listID}. The list's items go with it.
func (h *ListHandler) DeleteList(ctx context.Context, input *ListPathInput) (out *DeleteListOutput, err error) {
	defer func() { recordOp("DeleteList", err) }()

	count, _ := h.store.CountItems(ctx, input.ListID)

	if serr := h.store.DeleteList(ctx, input.ListID); serr != nil {
		if errors.Is(serr, liststore.ErrListNotFound) {
			return nil, apierr.ErrListNotFound.WithDetail("%s", input.ListID)
		}
		return nil, storeErr("DeleteList", serr)
	}

	metrics.ListsTotal.Dec()
	metrics.ItemsTotal.Sub(float64(count))
	return &DeleteListOutput{}, nil
}

// ListLists handles GET /v1/lists.
func (h *ListHandler) ListLists(ctx context.Context, input *struct{}) (out *ListListsOutput, err error) {
	defer func() { recordOp("ListLists", err) }()

	recs, serr := h.store.ListLists(ctx)
	if serr != nil {
		return nil, storeErr("ListLists", serr)
	}

	lists := make([]List, 0, len(recs))
	for _, rec := range recs {
		lists = append(lists, listFromRecord(rec))
	}
	return &ListListsOutput{Body: ListPage{Lists: lists}}, nil
}

// ensureListExists returns the list record or an API error when it is
// missing or the lookup fails.
func ensureListExists(ctx context.Context, store liststore.Store, listID string) (*liststore.ListRecord, error) {
	rec, err := store.GetList(ctx, listID)
	if err != nil {
		return nil, storeErr("GetList", err)
	}
	if rec == nil {
		return nil, apierr.ErrListNotFound.WithDetail("%s", listID)
	}
	return rec, nil
}
