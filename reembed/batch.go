package reembed

import (
	"context"
	"fmt"

	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/index"
)

// BatchProcessor re-embeds the chunks of a batch of records.
type BatchProcessor struct {
	embedder ai.Embedder
	backoff  Backoff
}

// NewBatchProcessor returns a processor retrying each embedding call per backoff.
func NewBatchProcessor(embedder ai.Embedder, backoff Backoff) *BatchProcessor {
	return &BatchProcessor{embedder: embedder, backoff: backoff}
}

// Process returns one index entry per record, in record order, pairing the
// record's unchanged chunk with its new vector.
func (bp *BatchProcessor) Process(ctx context.Context, records []core.IndexRecord) ([]index.Entry, error) {
	if len(records) == 0 {
		return nil, nil
	}

	texts := make([]string, len(records))
	for i := range records {
		texts[i] = records[i].Chunk.Text
	}

	var vectors [][]float32
	err := bp.backoff.Do(ctx, func(ctx context.Context) error {
		var err error
		if vectors, err = bp.embedder.EmbedTexts(ctx, texts); err != nil {
			return err
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("embedded %d of %d texts", len(vectors), len(texts))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: batch of %d records: %w", core.ErrEmbedding, len(records), err)
	}

	entries := make([]index.Entry, len(records))
	for i := range records {
		entries[i] = index.Entry{Vector: vectors[i], Chunk: records[i].Chunk}
	}
	return entries, nil
}
