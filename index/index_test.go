package index

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/recall/core"
)

func entry(text string, vector ...float32) Entry {
	return Entry{Vector: vector, Chunk: core.Chunk{Text: text, Source: "test"}}
}

func TestIndex_Add(t *testing.T) {
	t.Run("first insert fixes the dimension", func(t *testing.T) {
		x := New()
		assert.Equal(t, 0, x.Dimension())

		ids, err := x.Add(entry("a", 1, 0, 0), entry("b", 0, 1, 0))
		require.NoError(t, err)
		assert.Equal(t, []core.ID{1, 2}, ids)
		assert.Equal(t, 3, x.Dimension())
		assert.Equal(t, 2, x.Len())
		assert.True(t, x.Dirty())
	})

	t.Run("mismatched vector rejects the whole batch", func(t *testing.T) {
		x := New()
		_, err := x.Add(entry("a", 1, 0, 0))
		require.NoError(t, err)

		_, err = x.Add(entry("b", 0, 1, 0), entry("c", 1, 1))
		assert.ErrorIs(t, err, core.ErrIndex)
		assert.ErrorIs(t, err, core.ErrDimensionMismatch)
		assert.Equal(t, 1, x.Len())
	})

	t.Run("empty vector", func(t *testing.T) {
		_, err := New().Add(entry("a"))
		assert.ErrorIs(t, err, core.ErrIndex)
		assert.ErrorIs(t, err, core.ErrEmptyVector)
	})

	t.Run("empty chunk text", func(t *testing.T) {
		_, err := New().Add(entry("", 1))
		assert.ErrorIs(t, err, core.ErrInvalidChunk)
	})

	t.Run("nothing to add", func(t *testing.T) {
		x := New()
		ids, err := x.Add()
		require.NoError(t, err)
		assert.Empty(t, ids)
		assert.False(t, x.Dirty())
	})

	t.Run("caller mutations do not leak in", func(t *testing.T) {
		x := New()
		v := []float32{1, 2}
		meta := map[string]string{"k": "v"}
		_, err := x.Add(Entry{Vector: v, Chunk: core.Chunk{Text: "a", Metadata: meta}})
		require.NoError(t, err)

		v[0] = 99
		meta["k"] = "changed"
		rec := x.Records()[0]
		assert.Equal(t, []float32{1, 2}, rec.Vector)
		assert.Equal(t, "v", rec.Chunk.Metadata["k"])
	})
}

func TestIndex_Search(t *testing.T) {
	x := New()
	_, err := x.Add(
		entry("east", 1, 0),
		entry("north", 0, 1),
		entry("northeast", 1, 1),
		entry("west", -1, 0),
	)
	require.NoError(t, err)

	t.Run("orders by descending similarity", func(t *testing.T) {
		results, err := x.Search([]float32{1, 0.1}, 4)
		require.NoError(t, err)
		require.Len(t, results, 4)
		assert.Equal(t, "east", results[0].Chunk.Text)
		assert.Equal(t, "northeast", results[1].Chunk.Text)
		assert.Equal(t, "north", results[2].Chunk.Text)
		assert.Equal(t, "west", results[3].Chunk.Text)
		for i := 1; i < len(results); i++ {
			assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
		}
	})

	t.Run("scores are cosine similarity", func(t *testing.T) {
		results, err := x.Search([]float32{2, 0}, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	})

	t.Run("k larger than the index", func(t *testing.T) {
		results, err := x.Search([]float32{0, 1}, 10)
		require.NoError(t, err)
		assert.Len(t, results, 4)
	})

	t.Run("k not positive", func(t *testing.T) {
		for _, k := range []int{0, -1} {
			_, err := x.Search([]float32{0, 1}, k)
			assert.ErrorIs(t, err, core.ErrValidation)
		}
	})

	t.Run("query dimension mismatch", func(t *testing.T) {
		_, err := x.Search([]float32{1, 0, 0}, 1)
		assert.ErrorIs(t, err, core.ErrIndex)
		assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	})

	t.Run("zero query scores everything zero", func(t *testing.T) {
		results, err := x.Search([]float32{0, 0}, 4)
		require.NoError(t, err)
		require.Len(t, results, 4)
		assert.Equal(t, "east", results[0].Chunk.Text)
		for _, r := range results {
			assert.Zero(t, r.Score)
		}
	})
}

func TestIndex_SearchTiesKeepInsertionOrder(t *testing.T) {
	x := New()
	for i := range 5 {
		_, err := x.Add(entry(fmt.Sprintf("copy %d", i), 0.5, 0.5))
		require.NoError(t, err)
	}

	results, err := x.Search([]float32{1, 1}, 5)
	require.NoError(t, err)
	require.Len(t, results, 5)
	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("copy %d", i), r.Chunk.Text)
	}
}

func TestIndex_SearchEmpty(t *testing.T) {
	x := New()
	results, err := x.Search([]float32{1, 2, 3}, 3)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestIndex_Clone(t *testing.T) {
	x := New()
	_, err := x.Add(entry("a", 1, 0))
	require.NoError(t, err)

	c := x.Clone()
	ids, err := c.Add(entry("b", 0, 1))
	require.NoError(t, err)

	assert.Equal(t, []core.ID{2}, ids)
	assert.Equal(t, 1, x.Len())
	assert.Equal(t, 2, c.Len())
}

func TestIndex_ConcurrentSearchDuringAdd(t *testing.T) {
	x := New()
	_, err := x.Add(entry("seed", 1, 0))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := x.Add(entry(fmt.Sprintf("w%d", i), float32(i), 1))
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			results, err := x.Search([]float32{1, 1}, 3)
			assert.NoError(t, err)
			assert.NotEmpty(t, results)
		}()
	}
	wg.Wait()
	assert.Equal(t, 9, x.Len())
}
