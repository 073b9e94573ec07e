package errors

import "errors"

var (
	ErrNotFound = errors.New("swap listing not found")

	ErrInvalidID = errors.New("invalid swap listing ID format")

	// ErrStatusConflict is returned by compare-and-set updates when the listing
	// is no longer in the expected status.
	ErrStatusConflict = errors.New("swap listing status changed concurrently")

	ErrDuplicate = errors.New("swap listing already exists")
)
