package reembed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/recall/ai/mock"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/index"
	"github.com/poiesic/recall/storage/badger"
)

var corpus = []string{
	"The cat sat on the mat.",
	"Dogs bark at night.",
	"Birds sing in the morning.",
	"Fish swim in the river.",
	"The cat chased a mouse.",
}

// seedStore builds an index of corpus embedded with dimension dim.
func seedStore(t *testing.T, dim int) (*index.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.snap")
	store, err := index.NewStore(path)
	require.NoError(t, err)

	_, err = store.Commit(context.Background(), func(next *index.Index) error {
		for i, text := range corpus {
			chunk := core.Chunk{Text: text, Source: "user", Index: i, Metadata: map[string]string{core.MetaSource: "user"}}
			if _, err := next.Add(index.Entry{Vector: mock.BagOfWords(text, dim), Chunk: chunk}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return store, path
}

func fastConfig() *Config {
	return &Config{BatchSize: 2, ReportInterval: 1, MaxRetries: 2, RetryDelay: time.Millisecond}
}

func TestNewReembedder(t *testing.T) {
	store, _ := seedStore(t, 8)

	_, err := NewReembedder(nil, mock.NewMockEmbedder(), nil, nil)
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = NewReembedder(store, nil, nil, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	r, err := NewReembedder(store, mock.NewMockEmbedder(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), r.config)
}

func TestReembedder_Run(t *testing.T) {
	ctx := context.Background()
	store, path := seedStore(t, 8)
	before, err := store.Index(ctx)
	require.NoError(t, err)

	repos, err := badger.OpenMemory()
	require.NoError(t, err)
	defer repos.Close()
	state := repos.State

	embedder := mock.NewMockEmbedder()
	embedder.Dimension = 32

	var progress bytes.Buffer
	r, err := NewReembedder(store, embedder, fastConfig(), &progress, WithState(state, "new-model"))
	require.NoError(t, err)

	result, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(corpus), result.Records)
	assert.Equal(t, 32, result.Dimension)
	assert.Greater(t, result.Elapsed, time.Duration(0))
	assert.Equal(t, 3, embedder.CallCount(), "5 chunks in batches of 2")

	t.Run("chunks keep their order and payload", func(t *testing.T) {
		after, err := store.Index(ctx)
		require.NoError(t, err)
		oldRecords, newRecords := before.Records(), after.Records()
		require.Len(t, newRecords, len(oldRecords))
		for i := range newRecords {
			assert.Equal(t, oldRecords[i].Chunk, newRecords[i].Chunk)
			assert.Len(t, newRecords[i].Vector, 32)
		}
	})

	t.Run("snapshot replaced", func(t *testing.T) {
		loaded, err := index.Load(path)
		require.NoError(t, err)
		assert.Equal(t, 32, loaded.Dimension())
	})

	t.Run("search with the new model", func(t *testing.T) {
		after, err := store.Index(ctx)
		require.NoError(t, err)
		results, err := after.Search(mock.BagOfWords("Where is the cat?", 32), 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Contains(t, results[0].Chunk.Text, "cat")
		assert.Contains(t, results[1].Chunk.Text, "cat")
	})

	t.Run("state updated", func(t *testing.T) {
		st, err := state.LoadIndexState(ctx)
		require.NoError(t, err)
		require.NotNil(t, st)
		assert.Equal(t, "new-model", st.EmbeddingModel)
		assert.Equal(t, 32, st.Dimension)
		assert.Equal(t, len(corpus), st.Records)
	})

	t.Run("progress reported", func(t *testing.T) {
		out := progress.String()
		assert.Contains(t, out, fmt.Sprintf("Starting reembedding of %d chunks", len(corpus)))
		assert.Contains(t, out, "Reembedding complete")
	})
}

func TestReembedder_EmptyIndex(t *testing.T) {
	store, err := index.NewStore(filepath.Join(t.TempDir(), "index.snap"))
	require.NoError(t, err)
	embedder := mock.NewMockEmbedder()

	var progress bytes.Buffer
	r, err := NewReembedder(store, embedder, fastConfig(), &progress)
	require.NoError(t, err)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Records)
	assert.Zero(t, embedder.CallCount())
	assert.Contains(t, progress.String(), "No chunks found")
}

func TestReembedder_FailureKeepsOldIndex(t *testing.T) {
	ctx := context.Background()
	store, path := seedStore(t, 8)
	snapshot, err := os.ReadFile(path)
	require.NoError(t, err)
	before, err := store.Index(ctx)
	require.NoError(t, err)

	embedder := mock.NewMockEmbedder()
	embedder.Dimension = 16
	boom := errors.New("model crashed")
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if texts[0] == corpus[4] {
			return nil, boom
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.BagOfWords(text, 16)
		}
		return out, nil
	}

	r, err := NewReembedder(store, embedder, fastConfig(), nil)
	require.NoError(t, err)

	_, err = r.Run(ctx)
	assert.ErrorIs(t, err, boom)

	after, err := store.Index(ctx)
	require.NoError(t, err)
	assert.Same(t, before, after)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, snapshot, onDisk)
}

func TestReembedder_Canceled(t *testing.T) {
	store, _ := seedStore(t, 8)
	ctx, cancel := context.WithCancel(context.Background())

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		cancel()
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.BagOfWords(text, 8)
		}
		return out, nil
	}

	r, err := NewReembedder(store, embedder, fastConfig(), nil)
	require.NoError(t, err)

	_, err = r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, embedder.CallCount())
}
