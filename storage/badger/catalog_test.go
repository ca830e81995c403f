package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
)

func TestCatalogRepository(t *testing.T) {
	repos, err := OpenMemory()
	require.NoError(t, err)
	defer repos.Close()
	catalog := repos.Catalog

	ctx := context.Background()

	added, err := catalog.AddDocuments(ctx,
		&core.Document{Source: "user", Type: "text", Texts: 2, ChunkCount: 2, FirstRecord: 1, LastRecord: 2},
		&core.Document{Source: "handbook.pdf", Type: "pdf", Pages: 3, Texts: 3, ChunkCount: 9, FirstRecord: 3, LastRecord: 11},
		&core.Document{Source: "user", Type: "text", Texts: 1, ChunkCount: 1, FirstRecord: 12, LastRecord: 12},
	)
	require.NoError(t, err)
	require.Len(t, added, 3)

	t.Run("assigns increasing ids and timestamps", func(t *testing.T) {
		for i, doc := range added {
			assert.NotZero(t, doc.Id)
			assert.False(t, doc.IngestedAt.IsZero())
			if i > 0 {
				assert.Greater(t, doc.Id, added[i-1].Id)
			}
		}
	})

	t.Run("get by id", func(t *testing.T) {
		doc, err := catalog.GetDocument(ctx, added[1].Id)
		require.NoError(t, err)
		assert.Equal(t, "handbook.pdf", doc.Source)
		assert.Equal(t, 3, doc.Pages)
		assert.Equal(t, 9, doc.ChunkCount)
		assert.True(t, added[1].IngestedAt.Equal(doc.IngestedAt))
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := catalog.GetDocument(ctx, core.ID(9999))
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("list in ingestion order", func(t *testing.T) {
		docs, err := catalog.ListDocuments(ctx)
		require.NoError(t, err)
		require.Len(t, docs, 3)
		for i := range docs {
			assert.Equal(t, added[i].Id, docs[i].Id)
		}
	})

	t.Run("find by source", func(t *testing.T) {
		docs, err := catalog.FindDocumentsBySource(ctx, "user")
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, added[0].Id, docs[0].Id)
		assert.Equal(t, added[2].Id, docs[1].Id)

		docs, err = catalog.FindDocumentsBySource(ctx, "use")
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("keeps supplied timestamp", func(t *testing.T) {
		at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
		docs, err := catalog.AddDocuments(ctx, &core.Document{Source: "old", IngestedAt: at})
		require.NoError(t, err)
		got, err := catalog.GetDocument(ctx, docs[0].Id)
		require.NoError(t, err)
		assert.True(t, at.Equal(got.IngestedAt))
	})

	t.Run("rejects documents without source", func(t *testing.T) {
		_, err := catalog.AddDocuments(ctx, &core.Document{Type: "text"})
		assert.ErrorIs(t, err, storage.ErrInvalidDocument)

		_, err = catalog.AddDocuments(ctx, nil)
		assert.ErrorIs(t, err, storage.ErrInvalidDocument)
	})
}
