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

package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/index"
	"github.com/poiesic/recall/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of chunks embedded per request
	BatchSize int

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int

	// MaxRetries is the maximum number of attempts per batch
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Result summarizes a completed rebuild.
type Result struct {
	Records   int
	Dimension int
	Elapsed   time.Duration
}

// Reembedder rebuilds an index store with a (possibly different) embedder.
type Reembedder struct {
	store     *index.Store
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	state     storage.StateRepository
	model     string
	logger    *slog.Logger
}

// Option configures a Reembedder.
type Option func(*Reembedder)

// WithState records the rebuilt index and embeddingModel in state on success.
func WithState(state storage.StateRepository, embeddingModel string) Option {
	return func(r *Reembedder) {
		r.state = state
		r.model = embeddingModel
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reembedder) {
		if logger != nil {
			r.logger = logger.With("component", "reembed")
		}
	}
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(store *index.Store, embedder ai.Embedder, config *Config, progress io.Writer, opts ...Option) (*Reembedder, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	r := &Reembedder{
		store:    store,
		config:   config,
		progress: progress,
		logger:   slog.Default().With("component", "reembed"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.processor = NewBatchProcessor(embedder, Backoff{
		Attempts: max(config.MaxRetries, 1),
		Delay:    config.RetryDelay,
		MaxDelay: DefaultMaxDelay,
		Logger:   r.logger,
	})
	return r, nil
}

// Run re-embeds every chunk of the current index, in order, and publishes the
// rebuilt index. On any failure the current index stays in place.
func (r *Reembedder) Run(ctx context.Context) (*Result, error) {
	current, err := r.store.Index(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load index: %w", err)
	}

	records := current.Records()
	if len(records) == 0 {
		fmt.Fprintf(r.progress, "No chunks found in index (0 records)\n")
		return &Result{}, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d chunks (batch size: %d)\n",
		len(records), r.config.BatchSize)

	progress := NewProgress(r.progress, len(records), r.config.ReportInterval)

	rebuilt, err := r.store.Rebuild(ctx, func(next *index.Index) error {
		for batch := range Batches(ctx, records, r.config.BatchSize) {
			entries, err := r.processor.Process(ctx, batch)
			if err != nil {
				return fmt.Errorf("failed to process batch: %w", err)
			}
			if _, err := next.Add(entries...); err != nil {
				return err
			}
			progress.Advance(len(batch))
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		progress.Abort()
		r.logger.Error("reembedding failed, index left unchanged", "processed", progress.Snapshot().Done, "err", err)
		return nil, err
	}

	done := progress.Complete()
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d chunks in %v (%.1f chunks/sec)\n",
		done.Done, done.Elapsed.Round(time.Millisecond), done.Rate())

	if r.state != nil {
		err := r.state.SaveIndexState(context.WithoutCancel(ctx), &core.IndexState{
			EmbeddingModel: r.model,
			Dimension:      rebuilt.Dimension(),
			Records:        rebuilt.Len(),
			UpdatedAt:      time.Now().UTC(),
		})
		if err != nil {
			r.logger.Error("error saving index state", "err", err)
		}
	}

	return &Result{Records: rebuilt.Len(), Dimension: rebuilt.Dimension(), Elapsed: done.Elapsed}, nil
}
