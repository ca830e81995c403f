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

package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/core"
)

// DefaultBatchSize is the number of texts sent to the model per request.
const DefaultBatchSize = 32

// Adapter embeds texts with an ai.Embedder. It is safe for concurrent use.
type Adapter struct {
	embedder  ai.Embedder
	pool      *ants.Pool
	workers   int
	batchSize int
	dimension atomic.Int64
	logger    *slog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter) error

// WithBatchSize sets how many texts go to the model in one request.
func WithBatchSize(size int) Option {
	return func(a *Adapter) error {
		if size < 1 {
			return fmt.Errorf("%w: batch size must be positive, got %d", core.ErrConfig, size)
		}
		a.batchSize = size
		return nil
	}
}

// WithWorkers sets how many batches may be in flight at once.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithWorkers(workers int) Option {
	return func(a *Adapter) error {
		if workers < 1 {
			return fmt.Errorf("%w: workers must be positive, got %d", core.ErrConfig, workers)
		}
		a.workers = workers
		return nil
	}
}

// WithDimension fixes the expected vector dimension up front, typically from
// an existing index. Without it the first vector returned decides.
func WithDimension(dimension int) Option {
	return func(a *Adapter) error {
		if dimension < 0 {
			return fmt.Errorf("%w: dimension cannot be negative", core.ErrConfig)
		}
		a.dimension.Store(int64(dimension))
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) error {
		if logger == nil {
			logger = slog.Default()
		}
		a.logger = logger.With("component", "embedding")
		return nil
	}
}

// New creates an Adapter around embedder. Call Release when done with it.
func New(embedder ai.Embedder, opts ...Option) (*Adapter, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder required", core.ErrConfig)
	}

	a := &Adapter{
		embedder:  embedder,
		workers:   max(runtime.NumCPU()/2, 1),
		batchSize: DefaultBatchSize,
		logger:    slog.Default().With("component", "embedding"),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}

	pool, err := ants.NewPool(a.workers)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfig, err)
	}
	a.pool = pool
	return a, nil
}

// Release stops the worker pool.
func (a *Adapter) Release() {
	a.pool.Release()
}

// Dimension returns the vector dimension seen so far, or 0 before the first call.
func (a *Adapter) Dimension() int {
	return int(a.dimension.Load())
}

// Embed returns the vector for a single text.
func (a *Adapter) Embed(ctx context.Context, text string) ([]float32, error) {
	vector, err := a.embedder.EmbedText(ctx, text)
	if err != nil {
		a.logger.Error("embedding failed", "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrEmbedding, err)
	}
	if err := a.check(vector); err != nil {
		return nil, err
	}
	return vector, nil
}

// EmbedBatch returns one vector per text, in input order. The first failing
// batch cancels the batches still waiting and its error is returned.
func (a *Adapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if len(texts) <= a.batchSize {
		vectors := make([][]float32, len(texts))
		if err := a.embedInto(ctx, texts, vectors); err != nil {
			return nil, err
		}
		return vectors, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	vectors := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += a.batchSize {
		end := min(start+a.batchSize, len(texts))
		wg.Add(1)
		err := a.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				fail(fmt.Errorf("%w: %w", core.ErrEmbedding, ctx.Err()))
				return
			}
			if err := a.embedInto(ctx, texts[start:end], vectors[start:end]); err != nil {
				fail(err)
			}
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("%w: submit batch: %w", core.ErrEmbedding, err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	a.logger.Debug("embedded texts", "texts", len(texts), "batches", (len(texts)+a.batchSize-1)/a.batchSize)
	return vectors, nil
}

// embedInto embeds one batch and stores the vectors in out.
func (a *Adapter) embedInto(ctx context.Context, texts []string, out [][]float32) error {
	vectors, err := a.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		a.logger.Error("embedding batch failed", "texts", len(texts), "err", err)
		return fmt.Errorf("%w: %w", core.ErrEmbedding, err)
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("%w: embedding result mismatch, expected %d, received %d", core.ErrEmbedding, len(texts), len(vectors))
	}
	for _, v := range vectors {
		if err := a.check(v); err != nil {
			return err
		}
	}
	copy(out, vectors)
	return nil
}

// check enforces a single dimension across every vector the adapter returns.
func (a *Adapter) check(vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: %w", core.ErrEmbedding, core.ErrEmptyVector)
	}
	a.dimension.CompareAndSwap(0, int64(len(vector)))
	if err := core.ValidateVector(vector, a.Dimension()); err != nil {
		return fmt.Errorf("%w: %w", core.ErrEmbedding, err)
	}
	return nil
}
