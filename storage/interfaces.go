package storage

import (
	"context"

	"github.com/poiesic/recall/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the repository and releases resources.
	Close() error
}

// CatalogRepository records the documents that have been ingested into the index.
type CatalogRepository interface {
	Repository

	// AddDocuments stores one or more documents.
	// Every document gets a new ID from a sequence, and IngestedAt is set
	// when it is zero. Returns the documents with IDs populated.
	AddDocuments(ctx context.Context, docs ...*core.Document) ([]*core.Document, error)

	// GetDocument retrieves a single document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// ListDocuments returns every document in ingestion order.
	ListDocuments(ctx context.Context) ([]*core.Document, error)

	// FindDocumentsBySource returns the documents ingested from source, oldest first.
	FindDocumentsBySource(ctx context.Context, source string) ([]*core.Document, error)
}

// StateRepository persists metadata about the vector index that built on
// this data directory.
type StateRepository interface {
	// SaveIndexState stores state, replacing any previous value.
	SaveIndexState(ctx context.Context, state *core.IndexState) error

	// LoadIndexState returns the stored state, or nil, nil when none exists.
	LoadIndexState(ctx context.Context) (*core.IndexState, error)
}
