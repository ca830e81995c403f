package search

import "errors"

var (
	// ErrIndexRequired is returned by NewSearcher without an IndexSource.
	ErrIndexRequired = errors.New("search: index source required")

	// ErrEmbedderRequired is returned by NewSearcher without a query embedder.
	ErrEmbedderRequired = errors.New("search: embedder required")
)
