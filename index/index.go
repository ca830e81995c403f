package index

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/poiesic/recall/core"
)

// Searcher is the read side of a vector index. Index is the exact
// implementation; an approximate one can satisfy the same contract.
type Searcher interface {
	// Search returns at most k results ordered by descending score.
	Search(query []float32, k int) ([]core.QueryResult, error)
	// Len returns the number of records.
	Len() int
	// Dimension returns the vector dimension, or 0 while empty.
	Dimension() int
}

var _ Searcher = (*Index)(nil)

// Entry is a vector and the chunk it embeds, as handed to Add.
type Entry struct {
	Vector []float32
	Chunk  core.Chunk
}

// Index is an in-memory exact vector index. It is safe for concurrent use.
type Index struct {
	mu        sync.RWMutex
	dimension int
	records   []core.IndexRecord
	norms     []float64
	nextID    core.ID
	dirty     bool
}

// New returns an empty index.
func New() *Index {
	return &Index{nextID: 1}
}

// Len returns the number of records.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.records)
}

// Dimension returns the vector dimension, or 0 if nothing was ever added.
func (x *Index) Dimension() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dimension
}

// Dirty reports whether records were added since the index was loaded or saved.
func (x *Index) Dirty() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dirty
}

// Records returns a copy of the records in insertion order.
func (x *Index) Records() []core.IndexRecord {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return slices.Clone(x.records)
}

// Add appends entries as one batch and returns their IDs. Every vector must
// have the index dimension; an empty index takes its dimension from the first
// entry. If any entry is invalid nothing is added.
func (x *Index) Add(entries ...Entry) ([]core.ID, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	dimension := x.dimension
	if dimension == 0 {
		dimension = len(entries[0].Vector)
	}
	for i := range entries {
		if err := core.ValidateVector(entries[i].Vector, dimension); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %w", core.ErrIndex, i, err)
		}
		if err := core.ValidateChunk(&entries[i].Chunk); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %w", core.ErrIndex, i, err)
		}
	}

	ids := make([]core.ID, len(entries))
	for i, e := range entries {
		chunk := e.Chunk
		chunk.Metadata = maps.Clone(e.Chunk.Metadata)
		record := core.IndexRecord{
			ID:     x.nextID,
			Vector: slices.Clone(e.Vector),
			Chunk:  chunk,
		}
		x.records = append(x.records, record)
		x.norms = append(x.norms, norm(record.Vector))
		ids[i] = record.ID
		x.nextID++
	}
	x.dimension = dimension
	x.dirty = true
	return ids, nil
}

type scored struct {
	pos   int
	score float64
}

// Search returns the k records most similar to query by cosine similarity,
// best first. Equal scores keep insertion order. An empty index returns an
// empty result whatever the query.
func (x *Index) Search(query []float32, k int) ([]core.QueryResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", core.ErrValidation, k)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.records) == 0 {
		return []core.QueryResult{}, nil
	}
	if err := core.ValidateVector(query, x.dimension); err != nil {
		return nil, fmt.Errorf("%w: query: %w", core.ErrIndex, err)
	}

	queryNorm := norm(query)
	hits := make([]scored, len(x.records))
	for i := range x.records {
		hits[i] = scored{pos: i, score: cosine(query, queryNorm, x.records[i].Vector, x.norms[i])}
	}
	slices.SortStableFunc(hits, func(a, b scored) int {
		return cmp.Compare(b.score, a.score)
	})

	hits = hits[:min(k, len(hits))]
	results := make([]core.QueryResult, len(hits))
	for i, h := range hits {
		results[i] = core.QueryResult{
			Chunk: x.records[h.pos].Chunk,
			Score: float32(h.score),
		}
	}
	return results, nil
}

// Clone returns an independent copy sharing the immutable record payloads.
func (x *Index) Clone() *Index {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return &Index{
		dimension: x.dimension,
		records:   slices.Clone(x.records),
		norms:     slices.Clone(x.norms),
		nextID:    x.nextID,
		dirty:     x.dirty,
	}
}
