// Package feed provides read-side use cases over story clusters: the
// ranked feed, single-story lookup, and keyword search that cmd/api serves.
package feed

import "errors"

var (
	// ErrStoryNotFound indicates the requested story cluster does not exist
	// in the given category partition.
	ErrStoryNotFound = errors.New("story not found")

	// ErrInvalidStoryID indicates an empty or malformed story ID.
	ErrInvalidStoryID = errors.New("invalid story id")

	// ErrEmptyQuery indicates a search request with no keyword.
	ErrEmptyQuery = errors.New("search query must not be empty")

	// ErrUnknownCategory indicates a category filter outside the fixed
	// topic-group partition set (§4.3).
	ErrUnknownCategory = errors.New("unknown category")
)
