package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/recall/chunker"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/index"
	"github.com/poiesic/recall/storage"
)

// Embedder produces one vector per text, in input order.
// embedding.Adapter is the production implementation.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Result describes a committed ingestion.
type Result struct {
	ChunkCount int
	// DocumentID is the catalog entry for the ingestion, or 0 when nothing was
	// indexed or no catalog is configured.
	DocumentID core.ID
}

// Pipeline orchestrates chunking, embedding and indexing of texts.
type Pipeline struct {
	store    *index.Store
	embedder Embedder
	splitter *chunker.Splitter
	catalog  storage.CatalogRepository
	state    storage.StateRepository
	model    string
	monitor  Monitor
	logger   *slog.Logger

	stateMu sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger.With("component", "ingestion")
		return nil
	}
}

// WithCatalog records every committed ingestion in catalog.
func WithCatalog(catalog storage.CatalogRepository) Option {
	return func(p *Pipeline) error {
		p.catalog = catalog
		return nil
	}
}

// WithState saves the index dimension, size and embedding model name to state
// after every commit.
func WithState(state storage.StateRepository, embeddingModel string) Option {
	return func(p *Pipeline) error {
		p.state = state
		p.model = embeddingModel
		return nil
	}
}

// WithMonitor sets the monitor notified of ingestion progress.
func WithMonitor(monitor Monitor) Option {
	return func(p *Pipeline) error {
		if monitor == nil {
			monitor = &noopMonitor{}
		}
		p.monitor = monitor
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(store *index.Store, embedder Embedder, splitter *chunker.Splitter, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if splitter == nil {
		return nil, ErrSplitterRequired
	}

	p := &Pipeline{
		store:    store,
		embedder: embedder,
		splitter: splitter,
		monitor:  &noopMonitor{},
		logger:   slog.Default().With("component", "ingestion"),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Ingest chunks, embeds and indexes texts, all tagged with meta. Blank texts
// are skipped. Either every chunk becomes searchable and is persisted, or the
// call fails and the index is unchanged. A nil texts slice is a validation
// error; an empty one is a successful no-op.
func (p *Pipeline) Ingest(ctx context.Context, texts []string, meta core.SourceMetadata) (*Result, error) {
	if texts == nil {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, core.ErrMissingDocuments)
	}

	started := time.Now()
	p.monitor.Start(meta.Source, len(texts))

	var (
		ids  []core.ID
		kept []string
	)
	committed, err := p.store.Commit(ctx, func(next *index.Index) error {
		p.monitor.Stage(core.StageChunking)
		var chunks []core.Chunk
		chunks, kept = p.chunk(texts, meta)
		if len(chunks) == 0 {
			return nil
		}
		p.logger.Debug("chunked texts", "source", meta.Source, "texts", len(kept), "chunks", len(chunks))

		p.monitor.Stage(core.StageEmbedding)
		contents := make([]string, len(chunks))
		for i := range chunks {
			contents[i] = chunks[i].Text
		}
		vectors, err := p.embedder.EmbedBatch(ctx, contents)
		if err != nil {
			return err
		}
		if len(vectors) != len(chunks) {
			return fmt.Errorf("%w: embedding result mismatch, expected %d, received %d", core.ErrEmbedding, len(chunks), len(vectors))
		}

		p.monitor.Stage(core.StageIndexing)
		entries := make([]index.Entry, len(chunks))
		for i := range chunks {
			entries[i] = index.Entry{Vector: vectors[i], Chunk: chunks[i]}
		}
		if ids, err = next.Add(entries...); err != nil {
			return err
		}

		p.monitor.Stage(core.StagePersisting)
		return nil
	})
	p.monitor.Stage(core.StageIdle)
	if err != nil {
		p.logger.Error("ingestion failed", "source", meta.Source, "err", err)
		p.monitor.Finish(nil, time.Since(started), err)
		return nil, err
	}

	result := &Result{ChunkCount: len(ids)}
	if len(ids) > 0 {
		// The index is committed; bookkeeping must not be lost to a departing caller.
		bookkeeping := context.WithoutCancel(ctx)
		result.DocumentID = p.recordDocument(bookkeeping, meta, kept, ids)
		p.recordState(bookkeeping, committed)
	}

	p.logger.Info("ingested texts", "source", meta.Source, "texts", len(kept), "chunks", result.ChunkCount)
	p.monitor.Finish(result, time.Since(started), nil)
	return result, nil
}

// chunk splits every non-blank text and tags the chunks with the shared
// metadata and a running sequence index. It also returns the non-blank texts.
func (p *Pipeline) chunk(texts []string, meta core.SourceMetadata) ([]core.Chunk, []string) {
	metadata := chunkMetadata(meta)

	var (
		chunks []core.Chunk
		kept   []string
	)
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		kept = append(kept, text)
		for c := range p.splitter.Chunks(text) {
			c.Index = len(chunks)
			c.Source = meta.Source
			c.Metadata = metadata
			chunks = append(chunks, c)
		}
	}
	return chunks, kept
}

func chunkMetadata(meta core.SourceMetadata) map[string]string {
	metadata := make(map[string]string, len(meta.Extra)+3)
	for k, v := range meta.Extra {
		metadata[k] = v
	}
	if meta.Source != "" {
		metadata[core.MetaSource] = meta.Source
	}
	if meta.Type != "" {
		metadata[core.MetaType] = meta.Type
	}
	if meta.Pages > 0 {
		metadata[core.MetaPages] = strconv.Itoa(meta.Pages)
	}
	return metadata
}

func (p *Pipeline) recordDocument(ctx context.Context, meta core.SourceMetadata, texts []string, ids []core.ID) core.ID {
	if p.catalog == nil {
		return 0
	}
	digest := core.DigestTexts(texts...)
	p.warnDuplicate(ctx, meta.Source, digest)

	added, err := p.catalog.AddDocuments(ctx, &core.Document{
		Source:      meta.Source,
		Type:        meta.Type,
		Pages:       meta.Pages,
		Texts:       len(texts),
		ChunkCount:  len(ids),
		FirstRecord: ids[0],
		LastRecord:  ids[len(ids)-1],
		Digest:      digest,
	})
	if err != nil {
		p.logger.Error("error recording document in catalog", "source", meta.Source, "err", err)
		return 0
	}
	return added[0].Id
}

// warnDuplicate logs when source already ingested the same texts. The index
// keeps both copies.
func (p *Pipeline) warnDuplicate(ctx context.Context, source string, digest core.ID) {
	previous, err := p.catalog.FindDocumentsBySource(ctx, source)
	if err != nil {
		p.logger.Warn("error reading catalog", "source", source, "err", err)
		return
	}
	for _, doc := range previous {
		if doc.Digest == digest {
			p.logger.Warn("texts already ingested from this source", "source", source, "document", doc.Id)
			return
		}
	}
}

// recordState saves the published index, not committed: a concurrent
// ingestion may have published a larger one since committed was made.
func (p *Pipeline) recordState(ctx context.Context, committed *index.Index) {
	if p.state == nil {
		return
	}
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	latest, err := p.store.Index(ctx)
	if err != nil {
		latest = committed
	}
	err = p.state.SaveIndexState(ctx, &core.IndexState{
		EmbeddingModel: p.model,
		Dimension:      latest.Dimension(),
		Records:        latest.Len(),
		UpdatedAt:      time.Now().UTC(),
	})
	if err != nil {
		p.logger.Error("error saving index state", "err", err)
	}
}
