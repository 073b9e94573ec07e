package errors

import "errors"

var (
	ErrNotFound = errors.New("targeting edge not found")

	ErrInvalidID = errors.New("invalid targeting edge ID format")

	// ErrStatusConflict is returned by compare-and-set updates when the edge
	// is no longer in the expected status.
	ErrStatusConflict = errors.New("targeting edge status changed concurrently")

	ErrDuplicate = errors.New("targeting edge already exists")

	// ErrTraversalBound is returned when cycle detection visits more listings
	// than exist, which means the graph changed under the traversal.
	ErrTraversalBound = errors.New("cycle detection exceeded listing count")
)
