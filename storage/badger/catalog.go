// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
)

// CatalogRepository implements storage.CatalogRepository for BadgerDB.
type CatalogRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.CatalogRepository = (*CatalogRepository)(nil)

// NewCatalogRepository creates a catalog backed by backend.
//
// Returns storage.CatalogRepository to keep callers independent of BadgerDB.
func NewCatalogRepository(backend *Backend) (storage.CatalogRepository, error) {
	return newCatalogRepository(backend)
}

func newCatalogRepository(backend *Backend) (*CatalogRepository, error) {
	idSeq, err := backend.Sequence(documentIDSeq)
	if err != nil {
		return nil, err
	}

	return &CatalogRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *CatalogRepository) Close() error {
	return r.idSeq.Release()
}

// WithTransaction runs fn in one write transaction; catalog calls made
// with the context fn receives are committed or discarded together.
func (r *CatalogRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddDocuments stores one or more documents under new sequence IDs.
func (r *CatalogRepository) AddDocuments(ctx context.Context, docs ...*core.Document) ([]*core.Document, error) {
	for _, doc := range docs {
		if doc == nil {
			return nil, fmt.Errorf("%w: document is nil", storage.ErrInvalidDocument)
		}
		if doc.Source == "" {
			return nil, fmt.Errorf("%w: source cannot be empty", storage.ErrInvalidDocument)
		}
	}

	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		for _, doc := range docs {
			nextID, err := r.idSeq.Next()
			if err != nil {
				return err
			}
			// BadgerDB sequences can return 0 on first call, so we skip it
			if nextID == 0 {
				nextID, err = r.idSeq.Next()
				if err != nil {
					return err
				}
			}
			doc.Id = core.ID(nextID)
			if doc.IngestedAt.IsZero() {
				doc.IngestedAt = time.Now().UTC()
			}

			if err := tx.Set(makeDocumentKey(doc.Id), storage.MarshalDocument(doc)); err != nil {
				return err
			}
			if err := tx.Set(makeDocumentSourceKey(doc.Source, doc.Id), storage.MarshalID(doc.Id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
	}

	return docs, nil
}

// GetDocument retrieves a single document by ID.
func (r *CatalogRepository) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	var result *core.Document
	err := r.backend.View(ctx, func(tx *badger.Txn) error {
		var err error
		result, err = readDocument(tx, id)
		return err
	})
	return result, err
}

// ListDocuments returns every document in ingestion order.
func (r *CatalogRepository) ListDocuments(ctx context.Context) ([]*core.Document, error) {
	var docs []*core.Document
	err := r.backend.View(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(documentPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := iter.Item().Value(func(val []byte) error {
				doc, err := storage.UnmarshalDocument(val)
				if err != nil {
					return err
				}
				docs = append(docs, doc)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return docs, err
}

// FindDocumentsBySource returns the documents ingested from source, oldest first.
func (r *CatalogRepository) FindDocumentsBySource(ctx context.Context, source string) ([]*core.Document, error) {
	var docs []*core.Document
	err := r.backend.View(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = makePartialDocumentSourceKey(source)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			doc, err := readDocument(tx, documentIDFromSourceKey(iter.Item().Key()))
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return nil
	})
	return docs, err
}

func readDocument(tx *badger.Txn, id core.ID) (*core.Document, error) {
	item, err := tx.Get(makeDocumentKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	var doc *core.Document
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		doc, unmarshalErr = storage.UnmarshalDocument(val)
		return unmarshalErr
	})
	return doc, err
}
