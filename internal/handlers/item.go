package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	apierr "github.com/rankstamp/rankstamp/internal/errors"
	"github.com/rankstamp/rankstamp/internal/liststore"
	"github.com/rankstamp/rankstamp/internal/metrics"
	"github.com/rankstamp/rankstamp/internal/uid"
	"github.com/rankstamp/rankstamp/stamp"
)

// ItemHandler contains handlers for item-level operations.
type ItemHandler struct {
	store       liststore.Store
	gen         *stamp.Generator
	maxPayload  int
	defaultPage int
	maxPage     int
}

// NewItemHandler creates an ItemHandler with the given dependencies.
func NewItemHandler(store liststore.Store, gen *stamp.Generator, maxPayload, defaultPage, maxPage int) *ItemHandler {
	return &ItemHandler{
		store:       store,
		gen:         gen,
		maxPayload:  maxPayload,
		defaultPage: defaultPage,
		maxPage:     maxPage,
	}
}

// Item is the wire form of an item. The stamp travels as hex.
type Item struct {
	ID        string          `json:"id" doc:"Item identifier"`
	Stamp     stamp.Stamp     `json:"stamp" doc:"Ordering stamp, hex encoded"`
	Payload   json.RawMessage `json:"payload,omitempty" doc:"Caller-owned JSON document"`
	CreatedAt time.Time       `json:"created_at" doc:"Creation time"`
	UpdatedAt time.Time       `json:"updated_at" doc:"Last write time"`
}

func itemFromRecord(rec *liststore.ItemRecord) Item {
	return Item{
		ID:        rec.ID,
		Stamp:     rec.Stamp,
		Payload:   rec.Payload,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

// ItemPage is one page of items in stamp order.
type ItemPage struct {
	Items       []Item      `json:"items"`
	IsTruncated bool        `json:"is_truncated" doc:"More items follow this page"`
	NextAfter   stamp.Stamp `json:"next_after,omitempty" doc:"Marker for the next page"`
}

// CreateItemRequest is the body of an item creation.
type CreateItemRequest struct {
	ID      string          `json:"id,omitempty" doc:"Item identifier; generated when omitted"`
	Payload json.RawMessage `json:"payload,omitempty" doc:"Caller-owned JSON document"`
	Placement
}

// CreateItemInput is the huma input for creating an item.
type CreateItemInput struct {
	ListID string `path:"listID" doc:"List identifier"`
	Body   CreateItemRequest
}

// ItemPathInput identifies an item by path parameters.
type ItemPathInput struct {
	ListID string `path:"listID" doc:"List identifier"`
	ItemID string `path:"itemID" doc:"Item identifier"`
}

// ListItemsInput is the huma input for listing items.
type ListItemsInput struct {
	ListID string `path:"listID" doc:"List identifier"`
	After  string `query:"after" doc:"Return items after this stamp (hex)"`
	Limit  int    `query:"limit" doc:"Page size cap"`
}

// UpdateItemRequest is the body of a payload replacement.
type UpdateItemRequest struct {
	Payload json.RawMessage `json:"payload" doc:"Replacement JSON document"`
}

// UpdateItemInput is the huma input for replacing an item payload.
type UpdateItemInput struct {
	ListID string `path:"listID" doc:"List identifier"`
	ItemID string `path:"itemID" doc:"Item identifier"`
	Body   UpdateItemRequest
}

// MoveItemInput is the huma input for restamping an item.
type MoveItemInput struct {
	ListID string `path:"listID" doc:"List identifier"`
	ItemID string `path:"itemID" doc:"Item identifier"`
	Body   Placement
}

// ItemOutput wraps a single item response.
type ItemOutput struct {
	Body Item
}

// ItemPageOutput wraps a page of items.
type ItemPageOutput struct {
	Body ItemPage
}

// DeleteItemOutput is the empty response of an item deletion.
type DeleteItemOutput struct{}

// CreateItem handles POST /v1/lists/{listID}/items. The new item's
// stamp comes from its placement; the default is the end of the list.
func (h *ItemHandler) CreateItem(ctx context.Context, input *CreateItemInput) (out *ItemOutput, err error) {
	defer func() { recordOp("CreateItem", err) }()

	itemID := input.Body.ID
	if itemID == "" {
		itemID = uid.New()
	} else if verr := validateItemID(itemID); verr != nil {
		return nil, verr
	}
	if verr := validatePlacement(input.Body.Placement); verr != nil {
		return nil, verr
	}
	if len(input.Body.Payload) > h.maxPayload {
		return nil, apierr.ErrPayloadTooLarge.WithDetail("payload is %d bytes, limit %d", len(input.Body.Payload), h.maxPayload)
	}
	if !validPayload(input.Body.Payload) {
		return nil, apierr.ErrMalformedJSON.WithDetail("payload is not valid JSON")
	}

	if _, lerr := ensureListExists(ctx, h.store, input.ListID); lerr != nil {
		return nil, lerr
	}

	s, op, perr := h.resolvePlacement(ctx, input.ListID, input.Body.Placement)
	if perr != nil {
		return nil, perr
	}
	recordMint(op, s)

	now := time.Now().UTC()
	rec := &liststore.ItemRecord{
		ListID:    input.ListID,
		ID:        itemID,
		Stamp:     s,
		Payload:   input.Body.Payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if serr := h.store.PutItem(ctx, rec); serr != nil {
		switch {
		case errors.Is(serr, liststore.ErrItemExists):
			return nil, apierr.ErrItemAlreadyExists.WithDetail("%s", itemID)
		case errors.Is(serr, liststore.ErrListNotFound):
			// List deleted between the existence check and the write.
			return nil, apierr.ErrListNotFound.WithDetail("%s", input.ListID)
		default:
			return nil, storeErr("PutItem", serr)
		}
	}

	metrics.ItemsTotal.Inc()
	return &ItemOutput{Body: itemFromRecord(rec)}, nil
}

// GetItem handles GET /v1/lists/{listID}/items/{itemID}.
func (h *ItemHandler) GetItem(ctx context.Context, input *ItemPathInput) (out *ItemOutput, err error) {
	defer func() { recordOp("GetItem", err) }()

	rec, serr := h.store.GetItem(ctx, input.ListID, input.ItemID)
	if serr != nil {
		return nil, storeErr("GetItem", serr)
	}
	if rec == nil {
		return nil, apierr.ErrItemNotFound.WithDetail("%s/%s", input.ListID, input.ItemID)
	}
	return &ItemOutput{Body: itemFromRecord(rec)}, nil
}

// ListItems handles GET /v1/lists/{listID}/items with keyset pagination.
func (h *ItemHandler) ListItems(ctx context.Context, input *ListItemsInput) (out *ItemPageOutput, err error) {
	defer func() { recordOp("ListItems", err) }()

	limit := input.Limit
	if limit <= 0 {
		limit = h.defaultPage
	}
	if limit > h.maxPage {
		limit = h.maxPage
	}

	after := stamp.LeftEdge
	if input.After != "" {
		after, err = stamp.FromHex(input.After)
		if err != nil {
			return nil, apierr.ErrInvalidArgument.WithDetail("after marker %q is not a hex stamp", input.After)
		}
	}

	res, serr := h.store.ListItems(ctx, input.ListID, liststore.ListItemsOptions{After: after, Limit: limit})
	if serr != nil {
		if errors.Is(serr, liststore.ErrListNotFound) {
			return nil, apierr.ErrListNotFound.WithDetail("%s", input.ListID)
		}
		return nil, storeErr("ListItems", serr)
	}

	items := make([]Item, 0, len(res.Items))
	for _, rec := range res.Items {
		items = append(items, itemFromRecord(rec))
	}
	return &ItemPageOutput{Body: ItemPage{
		Items:       items,
		IsTruncated: res.IsTruncated,
		NextAfter:   res.NextAfter,
	}}, nil
}

// UpdateItem handles PUT /v1/lists/{listID}/items/{itemID}. Only the
// payload changes; the stamp stays put.
func (h *ItemHandler) UpdateItem(ctx context.Context, input *UpdateItemInput) (out *ItemOutput, err error) {
	defer func() { recordOp("UpdateItem", err) }()

	if len(input.Body.Payload) > h.maxPayload {
		return nil, apierr.ErrPayloadTooLarge.WithDetail("payload is %d bytes, limit %d", len(input.Body.Payload), h.maxPayload)
	}
	if !validPayload(input.Body.Payload) {
		return nil, apierr.ErrMalformedJSON.WithDetail("payload is not valid JSON")
	}

	rec, serr := h.store.GetItem(ctx, input.ListID, input.ItemID)
	if serr != nil {
		return nil, storeErr("GetItem", serr)
	}
	if rec == nil {
		return nil, apierr.ErrItemNotFound.WithDetail("%s/%s", input.ListID, input.ItemID)
	}

	now := time.Now().UTC()
	if serr := h.store.UpdateItemPayload(ctx, input.ListID, input.ItemID, input.Body.Payload, now); serr != nil {
		switch {
		case errors.Is(serr, liststore.ErrListNotFound):
			return nil, apierr.ErrListNotFound.WithDetail("%s", input.ListID)
		case errors.Is(serr, liststore.ErrItemNotFound):
			return nil, apierr.ErrItemNotFound.WithDetail("%s/%s", input.ListID, input.ItemID)
		default:
			return nil, storeErr("UpdateItemPayload", serr)
		}
	}

	rec.Payload = input.Body.Payload
	if len(rec.Payload) == 0 {
		rec.Payload = json.RawMessage("{}")
	}
	rec.UpdatedAt = now
	return &ItemOutput{Body: itemFromRecord(rec)}, nil
}

// DeleteItem handles DELETE /v1/lists/{listID}/items/{itemID}.
func (h *ItemHandler) DeleteItem(ctx context.Context, input *ItemPathInput) (out *DeleteItemOutput, err error) {
	defer func() { recordOp("DeleteItem", err) }()

	if serr := h.store.DeleteItem(ctx, input.ListID, input.ItemID); serr != nil {
		switch {
		case errors.Is(serr, liststore.ErrListNotFound):
			return nil, apierr.ErrListNotFound.WithDetail("%s", input.ListID)
		case errors.Is(serr, liststore.ErrItemNotFound):
			return nil, apierr.ErrItemNotFound.WithDetail("%s/%s", input.ListID, input.ItemID)
		default:
			return nil, storeErr("DeleteItem", serr)
		}
	}

	metrics.ItemsTotal.Dec()
	return &DeleteItemOutput{}, nil
}

// MoveItem handles POST /v1/lists/{listID}/items/{itemID}/move. The
// item keeps its identity and payload and gets a fresh stamp for the
// requested placement. This is the single-row write that makes
// reordering cheap.
func (h *ItemHandler) MoveItem(ctx context.Context, input *MoveItemInput) (out *ItemOutput, err error) {
	defer func() { recordOp("MoveItem", err) }()

	if verr := validatePlacement(input.Body); verr != nil {
		return nil, verr
	}
	if input.Body.After == input.ItemID || input.Body.Before == input.ItemID {
		return nil, apierr.ErrInvalidPlacement.WithDetail("cannot anchor on the item being moved")
	}

	rec, serr := h.store.GetItem(ctx, input.ListID, input.ItemID)
	if serr != nil {
		return nil, storeErr("GetItem", serr)
	}
	if rec == nil {
		return nil, apierr.ErrItemNotFound.WithDetail("%s/%s", input.ListID, input.ItemID)
	}

	s, op, perr := h.resolvePlacement(ctx, input.ListID, input.Body)
	if perr != nil {
		return nil, perr
	}
	recordMint(op, s)

	now := time.Now().UTC()
	if serr := h.store.UpdateItemStamp(ctx, input.ListID, input.ItemID, s, now); serr != nil {
		switch {
		case errors.Is(serr, liststore.ErrListNotFound):
			return nil, apierr.ErrListNotFound.WithDetail("%s", input.ListID)
		case errors.Is(serr, liststore.ErrItemNotFound):
			return nil, apierr.ErrItemNotFound.WithDetail("%s/%s", input.ListID, input.ItemID)
		default:
			return nil, storeErr("UpdateItemStamp", serr)
		}
	}

	rec.Stamp = s
	rec.UpdatedAt = now
	return &ItemOutput{Body: itemFromRecord(rec)}, nil
}
