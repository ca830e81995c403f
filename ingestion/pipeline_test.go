package ingestion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/ai/mock"
	"github.com/poiesic/recall/chunker"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/embedding"
	"github.com/poiesic/recall/index"
	"github.com/poiesic/recall/storage"
	"github.com/poiesic/recall/storage/badger"
)

const testDimension = 64

type fixture struct {
	pipeline *Pipeline
	store    *index.Store
	catalog  storage.CatalogRepository
	state    storage.StateRepository
	path     string
}

func setupPipeline(t *testing.T, embedder ai.Embedder, config chunker.Config, opts ...Option) *fixture {
	t.Helper()

	path := filepath.Join(t.TempDir(), "index.snap")
	store, err := index.NewStore(path)
	require.NoError(t, err)

	adapter, err := embedding.New(embedder, embedding.WithBatchSize(4), embedding.WithWorkers(2))
	require.NoError(t, err)
	t.Cleanup(adapter.Release)

	splitter, err := chunker.New(config)
	require.NoError(t, err)

	repos, err := badger.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })
	catalog, state := repos.Catalog, repos.State

	opts = append([]Option{WithCatalog(catalog), WithState(state, "test-model")}, opts...)
	pipeline, err := NewPipeline(store, adapter, splitter, opts...)
	require.NoError(t, err)

	return &fixture{pipeline: pipeline, store: store, catalog: catalog, state: state, path: path}
}

func newEmbedder() *mock.MockEmbedder {
	e := mock.NewMockEmbedder()
	e.Dimension = testDimension
	return e
}

func (f *fixture) records(t *testing.T) []core.IndexRecord {
	t.Helper()
	idx, err := f.store.Index(context.Background())
	require.NoError(t, err)
	return idx.Records()
}

type recordingMonitor struct {
	mu      sync.Mutex
	stages  []core.Stage
	started int
	results []*Result
	errs    []error
}

func (m *recordingMonitor) Start(_ string, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
}

func (m *recordingMonitor) Stage(stage core.Stage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append(m.stages, stage)
}

func (m *recordingMonitor) Finish(result *Result, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
	m.errs = append(m.errs, err)
}

func TestNewPipeline(t *testing.T) {
	store, err := index.NewStore(filepath.Join(t.TempDir(), "index.snap"))
	require.NoError(t, err)
	adapter, err := embedding.New(newEmbedder())
	require.NoError(t, err)
	defer adapter.Release()
	splitter, err := chunker.New(chunker.DefaultConfig())
	require.NoError(t, err)

	_, err = NewPipeline(nil, adapter, splitter)
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = NewPipeline(store, nil, splitter)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewPipeline(store, adapter, nil)
	assert.ErrorIs(t, err, ErrSplitterRequired)

	p, err := NewPipeline(store, adapter, splitter, WithLogger(nil), WithMonitor(nil))
	require.NoError(t, err)
	assert.NotNil(t, p.logger)
	assert.NotNil(t, p.monitor)
}

func TestPipeline_Ingest(t *testing.T) {
	ctx := context.Background()
	monitor := &recordingMonitor{}
	f := setupPipeline(t, newEmbedder(), chunker.DefaultConfig(), WithMonitor(monitor))

	result, err := f.pipeline.Ingest(ctx, []string{"The cat sat on the mat.", "Dogs bark at night."}, core.SourceMetadata{
		Source: "user",
		Type:   "text",
		Extra:  map[string]string{"lang": "en"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.ChunkCount)
	assert.NotZero(t, result.DocumentID)

	t.Run("records carry text and metadata", func(t *testing.T) {
		records := f.records(t)
		require.Len(t, records, 2)
		assert.Equal(t, "The cat sat on the mat.", records[0].Chunk.Text)
		assert.Equal(t, "Dogs bark at night.", records[1].Chunk.Text)
		for i, r := range records {
			assert.Equal(t, i, r.Chunk.Index)
			assert.Equal(t, "user", r.Chunk.Source)
			assert.Equal(t, map[string]string{
				core.MetaSource: "user",
				core.MetaType:   "text",
				"lang":          "en",
			}, r.Chunk.Metadata)
			assert.Len(t, r.Vector, testDimension)
		}
	})

	t.Run("snapshot is persisted", func(t *testing.T) {
		loaded, err := index.Load(f.path)
		require.NoError(t, err)
		assert.Equal(t, f.records(t), loaded.Records())
	})

	t.Run("catalog entry", func(t *testing.T) {
		doc, err := f.catalog.GetDocument(ctx, result.DocumentID)
		require.NoError(t, err)
		assert.Equal(t, "user", doc.Source)
		assert.Equal(t, "text", doc.Type)
		assert.Equal(t, 2, doc.Texts)
		assert.Equal(t, 2, doc.ChunkCount)
		assert.Equal(t, core.ID(1), doc.FirstRecord)
		assert.Equal(t, core.ID(2), doc.LastRecord)
		assert.Equal(t, core.DigestTexts("The cat sat on the mat.", "Dogs bark at night."), doc.Digest)
	})

	t.Run("index state", func(t *testing.T) {
		state, err := f.state.LoadIndexState(ctx)
		require.NoError(t, err)
		require.NotNil(t, state)
		assert.Equal(t, "test-model", state.EmbeddingModel)
		assert.Equal(t, testDimension, state.Dimension)
		assert.Equal(t, 2, state.Records)
	})

	t.Run("monitor", func(t *testing.T) {
		assert.Equal(t, 1, monitor.started)
		assert.Equal(t, []core.Stage{
			core.StageChunking,
			core.StageEmbedding,
			core.StageIndexing,
			core.StagePersisting,
			core.StageIdle,
		}, monitor.stages)
		require.Len(t, monitor.results, 1)
		assert.Equal(t, result, monitor.results[0])
		assert.NoError(t, monitor.errs[0])
	})
}

func TestPipeline_IngestRunningIndexAcrossTexts(t *testing.T) {
	f := setupPipeline(t, newEmbedder(), chunker.Config{ChunkSize: 40, ChunkOverlap: 10})

	long := strings.Repeat("alpha beta gamma delta. ", 8)
	result, err := f.pipeline.Ingest(context.Background(), []string{long, "short one", long}, core.SourceMetadata{
		Source: "handbook.pdf",
		Type:   "pdf",
		Pages:  3,
	})
	require.NoError(t, err)

	records := f.records(t)
	require.Len(t, records, result.ChunkCount)
	assert.Greater(t, result.ChunkCount, 3)
	for i, r := range records {
		assert.Equal(t, i, r.Chunk.Index)
		assert.Equal(t, "3", r.Chunk.Metadata[core.MetaPages])
		assert.Equal(t, "pdf", r.Chunk.Metadata[core.MetaType])
		assert.LessOrEqual(t, len([]rune(r.Chunk.Text)), 40)
	}
}

func TestPipeline_IngestValidation(t *testing.T) {
	embedder := newEmbedder()
	f := setupPipeline(t, embedder, chunker.DefaultConfig())

	_, err := f.pipeline.Ingest(context.Background(), nil, core.SourceMetadata{Source: "user"})
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.ErrorIs(t, err, core.ErrMissingDocuments)
	assert.Zero(t, embedder.CallCount())
}

func TestPipeline_IngestNothingToIndex(t *testing.T) {
	ctx := context.Background()
	embedder := newEmbedder()
	f := setupPipeline(t, embedder, chunker.DefaultConfig())

	for _, texts := range [][]string{{}, {"", "   ", "\n\t"}} {
		result, err := f.pipeline.Ingest(ctx, texts, core.SourceMetadata{Source: "user"})
		require.NoError(t, err)
		assert.Zero(t, result.ChunkCount)
		assert.Zero(t, result.DocumentID)
	}

	assert.Zero(t, embedder.CallCount())
	_, err := os.Stat(f.path)
	assert.True(t, os.IsNotExist(err))

	docs, err := f.catalog.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestPipeline_IngestSkipsBlankTexts(t *testing.T) {
	f := setupPipeline(t, newEmbedder(), chunker.DefaultConfig())

	result, err := f.pipeline.Ingest(context.Background(), []string{"", "one", "  ", "two"}, core.SourceMetadata{Source: "user"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.ChunkCount)

	doc, err := f.catalog.GetDocument(context.Background(), result.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Texts)
	assert.Equal(t, core.DigestTexts("one", "two"), doc.Digest)
}

func TestPipeline_IngestEmbeddingFailureIsAtomic(t *testing.T) {
	ctx := context.Background()
	embedder := newEmbedder()
	monitor := &recordingMonitor{}
	f := setupPipeline(t, embedder, chunker.DefaultConfig(), WithMonitor(monitor))

	_, err := f.pipeline.Ingest(ctx, []string{"first document"}, core.SourceMetadata{Source: "user"})
	require.NoError(t, err)
	before, err := os.ReadFile(f.path)
	require.NoError(t, err)

	boom := errors.New("model crashed")
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		for _, text := range texts {
			if strings.Contains(text, "poison") {
				return nil, boom
			}
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.BagOfWords(text, testDimension)
		}
		return out, nil
	}

	texts := []string{"a", "b", "c", "d", "e", "f", "poison", "h", "i"}
	_, err = f.pipeline.Ingest(ctx, texts, core.SourceMetadata{Source: "user"})
	assert.ErrorIs(t, err, core.ErrEmbedding)
	assert.ErrorIs(t, err, boom)

	assert.Len(t, f.records(t), 1)
	after, err := os.ReadFile(f.path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	docs, err := f.catalog.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	require.Len(t, monitor.errs, 2)
	assert.ErrorIs(t, monitor.errs[1], boom)
	assert.Nil(t, monitor.results[1])
}

func TestPipeline_IngestDimensionChangeRejected(t *testing.T) {
	ctx := context.Background()
	embedder := newEmbedder()
	f := setupPipeline(t, embedder, chunker.DefaultConfig())

	_, err := f.pipeline.Ingest(ctx, []string{"first document"}, core.SourceMetadata{Source: "user"})
	require.NoError(t, err)

	// A different model behind a fresh adapter.
	other := mock.NewMockEmbedder()
	other.Dimension = testDimension / 2
	adapter, err := embedding.New(other)
	require.NoError(t, err)
	defer adapter.Release()
	splitter, err := chunker.New(chunker.DefaultConfig())
	require.NoError(t, err)
	p, err := NewPipeline(f.store, adapter, splitter)
	require.NoError(t, err)

	_, err = p.Ingest(ctx, []string{"second document"}, core.SourceMetadata{Source: "user"})
	assert.ErrorIs(t, err, core.ErrIndex)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	assert.Len(t, f.records(t), 1)
}

func TestPipeline_ConcurrentIngestionsLoseNothing(t *testing.T) {
	ctx := context.Background()
	f := setupPipeline(t, newEmbedder(), chunker.DefaultConfig())

	const callers = 8
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			texts := []string{
				fmt.Sprintf("caller %d first", i),
				fmt.Sprintf("caller %d second", i),
				fmt.Sprintf("caller %d third", i),
			}
			result, err := f.pipeline.Ingest(ctx, texts, core.SourceMetadata{Source: fmt.Sprintf("caller-%d", i)})
			assert.NoError(t, err)
			assert.Equal(t, 3, result.ChunkCount)
		}()
	}
	wg.Wait()

	assert.Len(t, f.records(t), 3*callers)

	loaded, err := index.Load(f.path)
	require.NoError(t, err)
	assert.Equal(t, 3*callers, loaded.Len())

	docs, err := f.catalog.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, callers)

	state, err := f.state.LoadIndexState(ctx)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 3*callers, state.Records)
}

func TestPipeline_RecordStateUsesPublishedIndex(t *testing.T) {
	ctx := context.Background()
	f := setupPipeline(t, newEmbedder(), chunker.DefaultConfig())

	_, err := f.pipeline.Ingest(ctx, []string{"first text"}, core.SourceMetadata{Source: "a"})
	require.NoError(t, err)
	stale, err := f.store.Index(ctx)
	require.NoError(t, err)

	_, err = f.pipeline.Ingest(ctx, []string{"second text", "third text"}, core.SourceMetadata{Source: "b"})
	require.NoError(t, err)
	require.Equal(t, 3, f.store.Len())

	// A late writer still holding the first commit must not roll the count back.
	f.pipeline.recordState(ctx, stale)

	state, err := f.state.LoadIndexState(ctx)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 3, state.Records)
	assert.Equal(t, testDimension, state.Dimension)
}

func TestPipeline_IngestSurvivesReload(t *testing.T) {
	ctx := context.Background()
	f := setupPipeline(t, newEmbedder(), chunker.DefaultConfig())

	_, err := f.pipeline.Ingest(ctx, []string{"persist me"}, core.SourceMetadata{Source: "user"})
	require.NoError(t, err)

	reopened, err := index.NewStore(f.path)
	require.NoError(t, err)
	idx, err := reopened.Index(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, idx.Len())
	assert.Equal(t, "persist me", idx.Records()[0].Chunk.Text)
}
