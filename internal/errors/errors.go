// Package errors defines the API error types used throughout RankStamp.
package errors

import "fmt"

// Error represents a RankStamp API error with a machine-readable code,
// human-readable message, and HTTP status code. The zero Detail is omitted
// from responses.
type Error struct {
	// Code is the API error code (e.g., "ListNotFound", "InvalidPlacement").
	Code string `json:"code"`
	// Message is a human-readable description of the error.
	Message string `json:"message"`
	// Detail carries request-specific context, such as the offending ID.
	Detail string `json:"detail,omitempty"`
	// HTTPStatus is the HTTP status code to return (e.g., 404, 409).
	HTTPStatus int `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.HTTPStatus, e.Message)
}

// GetStatus reports the HTTP status, satisfying huma's StatusError so
// handlers can return these values directly.
func (e *Error) GetStatus() int {
	return e.HTTPStatus
}

// WithDetail returns a copy of the error with the given detail attached.
func (e *Error) WithDetail(format string, args ...any) *Error {
	cp := *e
	cp.Detail = fmt.Sprintf(format, args...)
	return &cp
}

// Pre-defined API errors for common conditions.
var (
	// ErrInvalidArgument is returned when an argument value is invalid,
	// including asking for a position between two identical stamps.
	ErrInvalidArgument = &Error{
		Code:       "InvalidArgument",
		Message:    "Invalid argument",
		HTTPStatus: 400,
	}

	// ErrListNotFound is returned when the specified list does not exist.
	ErrListNotFound = &Error{
		Code:       "ListNotFound",
		Message:    "The specified list does not exist",
		HTTPStatus: 404,
	}

	// ErrItemNotFound is returned when the specified item does not exist.
	ErrItemNotFound = &Error{
		Code:       "ItemNotFound",
		Message:    "The specified item does not exist",
		HTTPStatus: 404,
	}

	// ErrListAlreadyExists is returned when creating a list whose ID is taken.
	ErrListAlreadyExists = &Error{
		Code:       "ListAlreadyExists",
		Message:    "A list with the requested ID already exists",
		HTTPStatus: 409,
	}

	// ErrItemAlreadyExists is returned when inserting an item whose ID is
	// already present in the list.
	ErrItemAlreadyExists = &Error{
		Code:       "ItemAlreadyExists",
		Message:    "An item with the requested ID already exists in the list",
		HTTPStatus: 409,
	}

	// ErrInvalidListID is returned when the list ID is empty, too long, or
	// contains characters outside the permitted set.
	ErrInvalidListID = &Error{
		Code:       "InvalidListID",
		Message:    "The specified list ID is not valid",
		HTTPStatus: 400,
	}

	// ErrInvalidItemID is returned when the item ID is empty, too long, or
	// contains characters outside the permitted set.
	ErrInvalidItemID = &Error{
		Code:       "InvalidItemID",
		Message:    "The specified item ID is not valid",
		HTTPStatus: 400,
	}

	// ErrInvalidPlacement is returned when a placement request names an
	// unknown mode or an inconsistent anchor combination.
	ErrInvalidPlacement = &Error{
		Code:       "InvalidPlacement",
		Message:    "The requested placement is not valid",
		HTTPStatus: 400,
	}

	// ErrPayloadTooLarge is returned when an item payload exceeds the
	// configured limit.
	ErrPayloadTooLarge = &Error{
		Code:       "PayloadTooLarge",
		Message:    "The item payload exceeds the maximum allowed size",
		HTTPStatus: 413,
	}

	// ErrMalformedJSON is returned when the request body is not valid JSON.
	ErrMalformedJSON = &Error{
		Code:       "MalformedJSON",
		Message:    "The JSON you provided was not well-formed",
		HTTPStatus: 400,
	}

	// ErrSnapshotNotFound is returned when the specified snapshot does not exist.
	ErrSnapshotNotFound = &Error{
		Code:       "SnapshotNotFound",
		Message:    "The specified snapshot does not exist",
		HTTPStatus: 404,
	}

	// ErrArchiveNotConfigured is returned when a snapshot operation is made
	// against a server with no archive backend.
	ErrArchiveNotConfigured = &Error{
		Code:       "ArchiveNotConfigured",
		Message:    "No snapshot archive is configured for this server",
		HTTPStatus: 501,
	}

	// ErrInternalError is returned for unexpected internal failures.
	ErrInternalError = &Error{
		Code:       "InternalError",
		Message:    "We encountered an internal error. Please try again.",
		HTTPStatus: 500,
	}

	// ErrNotImplemented is returned when a feature is not yet implemented.
	ErrNotImplemented = &Error{
		Code:       "NotImplemented",
		Message:    "The requested functionality is not implemented",
		HTTPStatus: 501,
	}

	// ErrServiceUnavailable is returned when a store backend is unreachable.
	ErrServiceUnavailable = &Error{
		Code:       "ServiceUnavailable",
		Message:    "Service is not available. Please retry.",
		HTTPStatus: 503,
	}
)
