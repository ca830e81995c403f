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

package recall

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/ai/openai"
	"github.com/poiesic/recall/chunker"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/embedding"
	"github.com/poiesic/recall/index"
	"github.com/poiesic/recall/ingestion"
	"github.com/poiesic/recall/metrics"
	"github.com/poiesic/recall/reembed"
	"github.com/poiesic/recall/search"
	"github.com/poiesic/recall/storage"
	"github.com/poiesic/recall/storage/badger"
)

// DefaultChatTimeout bounds a single Chat call.
const DefaultChatTimeout = 60 * time.Second

// File names inside an engine's data directory.
const (
	IndexFile  = "index.snap"
	CatalogDir = "catalog"
)

// Engine wires the retrieval pipeline over one data directory: the vector
// index snapshot, the document catalog and the AI provider.
type Engine struct {
	dir         string
	repos       *badger.Repositories
	catalog     storage.CatalogRepository
	state       storage.StateRepository
	store       *index.Store
	provider    ai.AIProvider
	adapter     *embedding.Adapter
	pipeline    *ingestion.Pipeline
	searcher    *search.Searcher
	metrics     *metrics.Collector
	model       string
	chatTimeout time.Duration
	logger      *slog.Logger
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	aiConfig    *ai.Config
	provider    ai.AIProvider
	chunker     chunker.Config
	topK        int
	batchSize   int
	workers     int
	chatTimeout time.Duration
	metrics     *metrics.Collector
	logger      *slog.Logger
}

// WithAIConfig sets the configuration used to build the OpenAI-compatible provider.
func WithAIConfig(config *ai.Config) Option {
	return func(o *engineOptions) {
		o.aiConfig = config
	}
}

// WithProvider uses provider instead of building one from the AI configuration.
// The engine takes ownership and closes it.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *engineOptions) {
		o.provider = provider
	}
}

// WithChunker sets the chunking parameters.
func WithChunker(config chunker.Config) Option {
	return func(o *engineOptions) {
		o.chunker = config
	}
}

// WithTopK sets how many passages are retrieved per query.
func WithTopK(k int) Option {
	return func(o *engineOptions) {
		o.topK = k
	}
}

// WithEmbeddingBatch sets the embedding batch size and the number of batches in flight.
func WithEmbeddingBatch(size, workers int) Option {
	return func(o *engineOptions) {
		o.batchSize = size
		o.workers = workers
	}
}

// WithChatTimeout bounds retrieval plus generation for one Chat call.
func WithChatTimeout(timeout time.Duration) Option {
	return func(o *engineOptions) {
		o.chatTimeout = timeout
	}
}

// WithMetrics feeds pipeline events into collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(o *engineOptions) {
		o.metrics = collector
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// Open opens or creates the data directory dir.
func Open(dir string, opts ...Option) (*Engine, error) {
	options := &engineOptions{
		aiConfig:    ai.DefaultConfig(),
		chunker:     chunker.DefaultConfig(),
		topK:        search.DefaultTopK,
		batchSize:   embedding.DefaultBatchSize,
		chatTimeout: DefaultChatTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if dir == "" {
		return nil, fmt.Errorf("%w: data directory cannot be empty", core.ErrConfig)
	}
	if options.chatTimeout <= 0 {
		return nil, fmt.Errorf("%w: chat timeout must be positive, got %v", core.ErrConfig, options.chatTimeout)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrPersistence, err)
	}

	e := &Engine{
		dir:         dir,
		metrics:     options.metrics,
		model:       options.aiConfig.EmbeddingModel,
		chatTimeout: options.chatTimeout,
		logger:      options.logger.With("component", "engine"),
	}
	if err := e.open(options); err != nil {
		e.Close()
		return nil, err
	}
	e.checkEmbeddingModel()
	return e, nil
}

func (e *Engine) open(options *engineOptions) error {
	var err error
	if e.repos, err = badger.OpenRepositories(filepath.Join(e.dir, CatalogDir)); err != nil {
		return fmt.Errorf("%w: %w", core.ErrPersistence, err)
	}
	e.catalog, e.state = e.repos.Catalog, e.repos.State

	if e.store, err = index.NewStore(filepath.Join(e.dir, IndexFile), index.WithLogger(options.logger)); err != nil {
		return err
	}

	e.provider = options.provider
	if e.provider == nil {
		if e.provider, err = openai.NewProvider(options.aiConfig); err != nil {
			return fmt.Errorf("%w: %w", core.ErrConfig, err)
		}
	}

	adapterOpts := []embedding.Option{
		embedding.WithBatchSize(options.batchSize),
		embedding.WithLogger(options.logger),
	}
	if options.workers > 0 {
		adapterOpts = append(adapterOpts, embedding.WithWorkers(options.workers))
	}
	if e.adapter, err = embedding.New(e.provider.Embedder(), adapterOpts...); err != nil {
		return err
	}

	splitter, err := chunker.New(options.chunker)
	if err != nil {
		return err
	}

	pipelineOpts := []ingestion.Option{
		ingestion.WithLogger(options.logger),
		ingestion.WithCatalog(e.catalog),
		ingestion.WithState(e.state, e.model),
	}
	searchOpts := []search.Option{
		search.WithLogger(options.logger),
		search.WithTopK(options.topK),
	}
	if e.metrics != nil {
		pipelineOpts = append(pipelineOpts, ingestion.WithMonitor(e.metrics.IngestionMonitor()))
		searchOpts = append(searchOpts, search.WithMonitor(e.metrics.SearchMonitor()))
		e.metrics.WatchIndex(e.store.Len)
	}
	if e.pipeline, err = ingestion.NewPipeline(e.store, e.adapter, splitter, pipelineOpts...); err != nil {
		return err
	}
	if e.searcher, err = search.NewSearcher(e.store, e.adapter, searchOpts...); err != nil {
		return err
	}
	return nil
}

// checkEmbeddingModel warns when the index was built with another model.
// Vectors from different models are not comparable; reembed fixes that.
func (e *Engine) checkEmbeddingModel() {
	st, err := e.state.LoadIndexState(context.Background())
	if err != nil {
		e.logger.Warn("error reading index state", "err", err)
		return
	}
	if st != nil && st.EmbeddingModel != "" && st.EmbeddingModel != e.model {
		e.logger.Warn("index was built with a different embedding model, run reembed",
			"index_model", st.EmbeddingModel, "configured_model", e.model)
	}
}

// Close releases every resource held by the engine.
func (e *Engine) Close() error {
	if e.adapter != nil {
		e.adapter.Release()
	}
	if e.provider != nil {
		if err := e.provider.Close(); err != nil {
			e.logger.Error("error closing AI provider", "err", err)
		}
	}
	if e.repos != nil {
		if err := e.repos.Close(); err != nil {
			e.logger.Error("error closing catalog", "err", err)
			return err
		}
	}
	return nil
}

// Dir returns the data directory.
func (e *Engine) Dir() string {
	return e.dir
}

// Store returns the index store.
func (e *Engine) Store() *index.Store {
	return e.store
}

// Ingest chunks, embeds and indexes texts as one atomic batch.
func (e *Engine) Ingest(ctx context.Context, texts []string, meta core.SourceMetadata) (*ingestion.Result, error) {
	return e.pipeline.Ingest(ctx, texts, meta)
}

// Search returns the passages most relevant to query, best first.
func (e *Engine) Search(ctx context.Context, query string) ([]core.QueryResult, error) {
	return e.searcher.Search(ctx, query)
}

// Retrieve returns the context string assembled for query.
func (e *Engine) Retrieve(ctx context.Context, query string) (string, error) {
	return e.searcher.Context(ctx, query)
}

// Chat answers message from the retrieved context. The whole call is bounded
// by the chat timeout.
func (e *Engine) Chat(ctx context.Context, message string) (string, error) {
	if err := core.ValidateQuery(message); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, e.chatTimeout)
	defer cancel()

	contextText, err := e.Retrieve(ctx, message)
	if err != nil {
		return "", err
	}
	answer, err := e.provider.Generator().Generate(ctx, contextText, message)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return "", err
	}
	return answer, nil
}

// Documents lists the catalog in ingestion order.
func (e *Engine) Documents(ctx context.Context) ([]*core.Document, error) {
	return e.catalog.ListDocuments(ctx)
}

// Stats describes the current index.
type Stats struct {
	Records        int
	Dimension      int
	Documents      int
	EmbeddingModel string
}

// Stats loads the index if needed and reports its size.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	idx, err := e.store.Index(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := e.catalog.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	stats := &Stats{
		Records:        idx.Len(),
		Dimension:      idx.Dimension(),
		Documents:      len(docs),
		EmbeddingModel: e.model,
	}
	if st, err := e.state.LoadIndexState(ctx); err == nil && st != nil && st.EmbeddingModel != "" {
		stats.EmbeddingModel = st.EmbeddingModel
	}
	return stats, nil
}

// NewReembedder returns a reembedder rebuilding this engine's index with its
// current embedder. A nil config uses reembed.DefaultConfig.
func (e *Engine) NewReembedder(config *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	return reembed.NewReembedder(e.store, e.provider.Embedder(), config, progress,
		reembed.WithState(e.state, e.model),
		reembed.WithLogger(e.logger),
	)
}
