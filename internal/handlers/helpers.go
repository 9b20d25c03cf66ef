// Package handlers implements the HTTP operations of the list API.
//
// Each resource gets a handler struct holding its dependencies; methods
// follow the huma operation signature and return *errors.Error values,
// which carry their own HTTP status. Backend failures are logged here and
// surface as InternalError.
package handlers

import (
	"encoding/json"
	"log/slog"
	"regexp"

	apierr "github.com/rankstamp/rankstamp/internal/errors"
	"github.com/rankstamp/rankstamp/internal/metrics"
	"github.com/rankstamp/rankstamp/stamp"
)

// idRegex constrains list and item IDs. The character set is safe inside
// composite keys in every store backend.
var idRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// validateListID checks a list ID, returning nil when valid.
func validateListID(id string) *apierr.Error {
	if !idRegex.MatchString(id) {
		return apierr.ErrInvalidListID.WithDetail("list ID %q must match [A-Za-z0-9_-]{1,128}", id)
	}
	return nil
}

// validateItemID checks an item ID, returning nil when valid.
func validateItemID(id string) *apierr.Error {
	if !idRegex.MatchString(id) {
		return apierr.ErrInvalidItemID.WithDetail("item ID %q must match [A-Za-z0-9_-]{1,128}", id)
	}
	return nil
}

// validPayload reports whether raw is either empty or well-formed JSON.
func validPayload(raw json.RawMessage) bool {
	return len(raw) == 0 || json.Valid(raw)
}

// storeErr logs a backend failure and returns the generic internal error.
func storeErr(op string, err error) error {
	slog.Error(op+" store error", "error", err)
	return apierr.ErrInternalError
}

// archiveErr is storeErr for the archive backend.
func archiveErr(op string, err error) error {
	slog.Error(op+" archive error", "error", err)
	return apierr.ErrInternalError
}

// recordOp counts one operation outcome. Meant to be deferred with the
// handler's named error return.
func recordOp(op string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.OperationsTotal.WithLabelValues(op, status).Inc()
}

// recordMint tracks a minted stamp and its length.
func recordMint(op string, s stamp.Stamp) {
	metrics.StampsMintedTotal.WithLabelValues(op).Inc()
	metrics.StampLengthChars.Observe(float64(len(s)))
}
