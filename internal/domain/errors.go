// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a unique-constraint race on creation. Callers that
// create-or-identify treat it as success; it never reaches the HTTP layer.
var ErrConflict = errors.New("conflict: resource already exists")

// ErrForbidden indicates the caller may not perform the operation on the resource.
var ErrForbidden = errors.New("forbidden")

// ErrInvalidOperation indicates a mutation that would violate an invariant,
// such as an owner tenant uninstalling its own app.
var ErrInvalidOperation = errors.New("invalid operation")

// ErrValidation indicates malformed caller input.
var ErrValidation = errors.New("validation failed")

// ErrStoreUnavailable indicates a persistence failure. Nothing was committed
// and the caller may retry.
var ErrStoreUnavailable = errors.New("store unavailable")

// Kind returns a stable machine-readable name for the sentinel wrapped by err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidOperation):
		return "invalid_operation"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal"
	}
}
