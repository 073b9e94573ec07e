// Package sanitizer provides input normalization for free text attached to
// swap proposals and listings.
//
// All normalization functions are idempotent - applying them multiple times produces
// the same result. Functions handle invalid input gracefully, typically by returning
// empty strings or empty slices rather than errors.
//
// Normalization includes:
//   - Strings: Collapse whitespace, trim leading/trailing spaces
//   - Messages: Drop control characters, keep paragraph breaks
//   - Slices: Remove duplicates and empty values after normalization
package sanitizer
