package handlers

import (
	"context"
	"errors"
	"fmt"

	apierr "github.com/rankstamp/rankstamp/internal/errors"
	"github.com/rankstamp/rankstamp/stamp"
)

// Placement selects where an item lands in a list. At most one of the
// three modes may be used: a position keyword, an after anchor, or a
// before anchor. Both anchors together pin the item between two known
// neighbors. An empty placement appends to the end.
type Placement struct {
	Position string `json:"position,omitempty" enum:"first,last" doc:"Place at an end of the list"`
	After    string `json:"after,omitempty" doc:"Place after this item ID"`
	Before   string `json:"before,omitempty" doc:"Place before this item ID"`
}

func validatePlacement(p Placement) error {
	if p.Position != "" && (p.After != "" || p.Before != "") {
		return apierr.ErrInvalidPlacement.WithDetail("position cannot be combined with after or before")
	}
	switch p.Position {
	case "", "first", "last":
		return nil
	default:
		return apierr.ErrInvalidPlacement.WithDetail("unknown position %q", p.Position)
	}
}

// resolvePlacement turns a placement into a concrete stamp. The second
// return value names the generator operation used, for metrics.
func (h *ItemHandler) resolvePlacement(ctx context.Context, listID string, p Placement) (stamp.Stamp, string, error) {
	switch {
	case p.After != "" && p.Before != "":
		a, err := h.anchor(ctx, listID, p.After)
		if err != nil {
			return "", "", err
		}
		b, err := h.anchor(ctx, listID, p.Before)
		if err != nil {
			return "", "", err
		}
		s, err := h.gen.Between(a, b)
		if err != nil {
			return "", "", betweenErr(err, a, b)
		}
		return s, "between", nil

	case p.After != "":
		a, err := h.anchor(ctx, listID, p.After)
		if err != nil {
			return "", "", err
		}
		next, serr := h.store.NextItem(ctx, listID, a)
		if serr != nil {
			return "", "", storeErr("NextItem", serr)
		}
		if next == nil {
			return h.lastBoundary(a)
		}
		s, err := h.gen.Between(a, next.Stamp)
		if err != nil {
			return "", "", betweenErr(err, a, next.Stamp)
		}
		return s, "between", nil

	case p.Before != "":
		b, err := h.anchor(ctx, listID, p.Before)
		if err != nil {
			return "", "", err
		}
		prev, serr := h.store.PrevItem(ctx, listID, b)
		if serr != nil {
			return "", "", storeErr("PrevItem", serr)
		}
		if prev == nil {
			return h.firstBoundary(b)
		}
		s, err := h.gen.Between(prev.Stamp, b)
		if err != nil {
			return "", "", betweenErr(err, prev.Stamp, b)
		}
		return s, "between", nil

	case p.Position == "first":
		min, serr := h.store.NextItem(ctx, listID, stamp.LeftEdge)
		if serr != nil {
			return "", "", storeErr("NextItem", serr)
		}
		if min == nil {
			return h.gen.Start(), "start", nil
		}
		return h.firstBoundary(min.Stamp)

	default: // "last" and the empty placement both append
		max, serr := h.store.PrevItem(ctx, listID, stamp.RightEdge)
		if serr != nil {
			return "", "", storeErr("PrevItem", serr)
		}
		if max == nil {
			return h.gen.End(), "end", nil
		}
		return h.lastBoundary(max.Stamp)
	}
}

// anchor fetches the stamp of an anchor item named in a placement.
func (h *ItemHandler) anchor(ctx context.Context, listID, itemID string) (stamp.Stamp, error) {
	rec, err := h.store.GetItem(ctx, listID, itemID)
	if err != nil {
		return "", storeErr("GetItem", err)
	}
	if rec == nil {
		return "", apierr.ErrItemNotFound.WithDetail("anchor %s", itemID)
	}
	return rec.Stamp, nil
}

// lastBoundary mints a stamp after max. End() usually lands past the
// current maximum because it encodes the current time, but an item
// minted in the same millisecond can tie or pass it, so fall back to a
// midpoint against the right edge.
func (h *ItemHandler) lastBoundary(max stamp.Stamp) (stamp.Stamp, string, error) {
	if s := h.gen.End(); s.Compare(max) > 0 {
		return s, "end", nil
	}
	s, err := h.gen.Between(max, stamp.RightEdge)
	if err != nil {
		return "", "", betweenErr(err, max, stamp.RightEdge)
	}
	return s, "between", nil
}

// firstBoundary mints a stamp before min, mirroring lastBoundary.
func (h *ItemHandler) firstBoundary(min stamp.Stamp) (stamp.Stamp, string, error) {
	if s := h.gen.Start(); s.Compare(min) < 0 {
		return s, "start", nil
	}
	s, err := h.gen.Between(stamp.LeftEdge, min)
	if err != nil {
		return "", "", betweenErr(err, stamp.LeftEdge, min)
	}
	return s, "between", nil
}

func betweenErr(err error, a, b stamp.Stamp) error {
	if errors.Is(err, stamp.ErrEqualStamps) {
		return apierr.ErrInvalidArgument.WithDetail("anchors share the stamp %s", a)
	}
	return storeErr("Between", fmt.Errorf("%w: between %s and %s", err, a, b))
}
