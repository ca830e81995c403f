package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/index"
)

// DefaultTopK is the number of chunks retrieved per query.
const DefaultTopK = 3

// ContextSeparator joins retrieved chunk texts into a context string.
const ContextSeparator = "\n\n"

// Embedder embeds a single query text.
// embedding.Adapter is the production implementation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// IndexSource yields the index queries run against. index.Store is the
// production implementation; it loads the persisted index on first use.
type IndexSource interface {
	Searcher(ctx context.Context) (index.Searcher, error)
}

// Searcher provides semantic search over indexed chunks.
type Searcher struct {
	source   IndexSource
	embedder Embedder
	topK     int
	monitor  Monitor
	logger   *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger.With("component", "search")
		return nil
	}
}

// WithTopK sets how many chunks a query retrieves.
func WithTopK(k int) Option {
	return func(s *Searcher) error {
		if k < 1 {
			return fmt.Errorf("%w: top k must be positive, got %d", core.ErrConfig, k)
		}
		s.topK = k
		return nil
	}
}

// WithMonitor sets the monitor notified of query progress.
func WithMonitor(monitor Monitor) Option {
	return func(s *Searcher) error {
		if monitor == nil {
			monitor = &noopMonitor{}
		}
		s.monitor = monitor
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(source IndexSource, embedder Embedder, opts ...Option) (*Searcher, error) {
	if source == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		source:   source,
		embedder: embedder,
		topK:     DefaultTopK,
		monitor:  &noopMonitor{},
		logger:   slog.Default().With("component", "search"),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// TopK returns the number of chunks a query retrieves.
func (s *Searcher) TopK() int {
	return s.topK
}

// Search returns the chunks most similar to query, best first.
func (s *Searcher) Search(ctx context.Context, query string) ([]core.QueryResult, error) {
	started := time.Now()
	s.monitor.Start(query)

	results, err := s.search(ctx, query)
	s.monitor.Stage(core.StageIdle)
	s.monitor.Finish(results, time.Since(started), err)
	return results, err
}

// Context retrieves the chunks most similar to query and joins their texts,
// best first, with ContextSeparator. An empty index yields an empty context.
func (s *Searcher) Context(ctx context.Context, query string) (string, error) {
	started := time.Now()
	s.monitor.Start(query)

	results, err := s.search(ctx, query)
	if err != nil {
		s.monitor.Stage(core.StageIdle)
		s.monitor.Finish(nil, time.Since(started), err)
		return "", err
	}

	s.monitor.Stage(core.StageAssemblingContext)
	contextText := JoinContext(results)
	s.monitor.Stage(core.StageIdle)
	s.monitor.Finish(results, time.Since(started), nil)
	return contextText, nil
}

func (s *Searcher) search(ctx context.Context, query string) ([]core.QueryResult, error) {
	if err := core.ValidateQuery(query); err != nil {
		return nil, err
	}

	idx, err := s.source.Searcher(ctx)
	if err != nil {
		s.logger.Error("error loading index", "err", err)
		return nil, err
	}
	if idx.Len() == 0 {
		s.logger.Debug("index is empty, nothing to search")
		return []core.QueryResult{}, nil
	}

	s.monitor.Stage(core.StageEmbedding)
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "err", err)
		return nil, err
	}

	s.monitor.Stage(core.StageSearching)
	results, err := idx.Search(vector, s.topK)
	if err != nil {
		s.logger.Error("error searching index", "err", err)
		return nil, err
	}

	s.logger.Debug("search complete", "hits", len(results), "records", idx.Len())
	return results, nil
}

// JoinContext concatenates result texts in rank order.
func JoinContext(results []core.QueryResult) string {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Chunk.Text
	}
	return strings.Join(texts, ContextSeparator)
}
