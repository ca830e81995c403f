package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/recall/ai/mock"
	"github.com/poiesic/recall/core"
)

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("text number %d", i)
	}
	return out
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, core.ErrConfig)

	_, err = New(mock.NewMockEmbedder(), WithBatchSize(0))
	assert.ErrorIs(t, err, core.ErrConfig)

	_, err = New(mock.NewMockEmbedder(), WithWorkers(0))
	assert.ErrorIs(t, err, core.ErrConfig)

	a, err := New(mock.NewMockEmbedder(), WithDimension(12))
	require.NoError(t, err)
	defer a.Release()
	assert.Equal(t, 12, a.Dimension())
}

func TestAdapter_EmbedBatchPreservesOrder(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.Dimension = 8

	a, err := New(embedder, WithBatchSize(3), WithWorkers(4))
	require.NoError(t, err)
	defer a.Release()

	input := texts(20)
	vectors, err := a.EmbedBatch(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, vectors, len(input))

	for i, text := range input {
		assert.Equal(t, mock.BagOfWords(text, 8), vectors[i], "vector %d", i)
	}
	assert.Equal(t, 7, embedder.CallCount())
	assert.Equal(t, 8, a.Dimension())
}

func TestAdapter_EmbedBatchEmpty(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	a, err := New(embedder)
	require.NoError(t, err)
	defer a.Release()

	vectors, err := a.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Zero(t, embedder.CallCount())
}

func TestAdapter_EmbedBatchFailure(t *testing.T) {
	boom := errors.New("model unavailable")
	var calls atomic.Int64
	embedder := &mock.MockEmbedder{
		EmbedTextsFunc: func(ctx context.Context, batch []string) ([][]float32, error) {
			calls.Add(1)
			if strings.HasSuffix(batch[0], " 4") {
				return nil, boom
			}
			out := make([][]float32, len(batch))
			for i := range out {
				out[i] = []float32{1, 2}
			}
			return out, nil
		},
	}

	a, err := New(embedder, WithBatchSize(2), WithWorkers(1))
	require.NoError(t, err)
	defer a.Release()

	vectors, err := a.EmbedBatch(context.Background(), texts(10))
	assert.Nil(t, vectors)
	assert.ErrorIs(t, err, core.ErrEmbedding)
	assert.ErrorIs(t, err, boom)
	assert.LessOrEqual(t, calls.Load(), int64(5))
}

func TestAdapter_ResultCountMismatch(t *testing.T) {
	embedder := &mock.MockEmbedder{
		EmbedTextsFunc: func(ctx context.Context, batch []string) ([][]float32, error) {
			return [][]float32{{1}}, nil
		},
	}
	a, err := New(embedder)
	require.NoError(t, err)
	defer a.Release()

	_, err = a.EmbedBatch(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, core.ErrEmbedding)
}

func TestAdapter_DimensionIsFixed(t *testing.T) {
	embedder := &mock.MockEmbedder{
		EmbedTextFunc: func(ctx context.Context, text string) ([]float32, error) {
			return make([]float32, len(text)), nil
		},
	}
	a, err := New(embedder)
	require.NoError(t, err)
	defer a.Release()

	_, err = a.Embed(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, 3, a.Dimension())

	_, err = a.Embed(context.Background(), "abcd")
	assert.ErrorIs(t, err, core.ErrEmbedding)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	_, err = a.Embed(context.Background(), "")
	assert.ErrorIs(t, err, core.ErrEmptyVector)
}

func TestAdapter_EmbedFailure(t *testing.T) {
	boom := errors.New("timeout")
	embedder := &mock.MockEmbedder{
		EmbedTextFunc: func(ctx context.Context, text string) ([]float32, error) {
			return nil, boom
		},
	}
	a, err := New(embedder)
	require.NoError(t, err)
	defer a.Release()

	_, err = a.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, core.ErrEmbedding)
	assert.ErrorIs(t, err, boom)
}

func TestAdapter_CanceledContext(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.Dimension = 4
	embedder.EmbedTextsFunc = func(ctx context.Context, batch []string) ([][]float32, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return [][]float32{{1, 2, 3, 4}}, nil
	}

	a, err := New(embedder, WithBatchSize(1))
	require.NoError(t, err)
	defer a.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.EmbedBatch(ctx, texts(5))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAdapter_ConcurrentCallers(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.Dimension = 16
	a, err := New(embedder, WithBatchSize(4), WithWorkers(2))
	require.NoError(t, err)
	defer a.Release()

	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vectors, err := a.EmbedBatch(context.Background(), texts(13))
			assert.NoError(t, err)
			assert.Len(t, vectors, 13)
		}()
	}
	wg.Wait()
}
