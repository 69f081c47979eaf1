// Package apperr holds the sentinel errors shared across the service.
package apperr

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrExtraction means the source text produced no problems at all.
	ErrExtraction = errors.New("extraction failed")
	// ErrFetch means the source document could not be retrieved.
	ErrFetch = errors.New("fetch failed")

	// Recovered locally: logged, never surfaced to callers.
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrDeserialization  = errors.New("deserialization failed")
)
