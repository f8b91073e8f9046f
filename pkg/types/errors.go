package types

import "errors"

// Storage error taxonomy. Engine-level failures are translated into these
// categories at the store boundary; repository callers match them with
// errors.Is.
var (
	// ErrNotFound is returned when the target id is absent or soft-deleted.
	// Repositories raise it explicitly so callers can distinguish "no rows"
	// from "this specific id does not exist".
	ErrNotFound = errors.New("not found")

	// ErrUniqueConstraint is returned when a write would violate a
	// uniqueness invariant, such as a duplicate case-insensitive name.
	ErrUniqueConstraint = errors.New("unique constraint violation")

	// ErrForeignKey is returned when a child row references a missing or
	// deleted parent.
	ErrForeignKey = errors.New("referential integrity violation")

	// ErrRequiredField is returned when a non-nullable column is omitted.
	ErrRequiredField = errors.New("required field missing")

	// ErrStorage wraps any engine error that does not fall into one of the
	// typed categories above.
	ErrStorage = errors.New("storage error")
)

// Input validation errors raised before any statement reaches the engine.
var (
	ErrInvalidID   = errors.New("invalid ID")
	ErrInvalidName = errors.New("invalid name")
)
