package reembed

import (
	"context"
	"iter"
	"slices"

	"github.com/poiesic/recall/core"
)

const (
	// DefaultBatchSize is the default number of chunks embedded per request
	DefaultBatchSize = 100
)

// Batches yields records in consecutive batches of at most size records,
// preserving order. It stops early once ctx is done.
func Batches(ctx context.Context, records []core.IndexRecord, size int) iter.Seq[[]core.IndexRecord] {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return func(yield func([]core.IndexRecord) bool) {
		if len(records) == 0 {
			return
		}
		for batch := range slices.Chunk(records, size) {
			if ctx.Err() != nil || !yield(batch) {
				return
			}
		}
	}
}
