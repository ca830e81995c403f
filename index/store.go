package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/poiesic/recall/core"
)

// Store owns the index published to readers and the snapshot file backing it.
//
// The snapshot is loaded once, on first use, however many callers race for
// it. Writers are serialized; each commit works on a private clone that is
// saved and then swapped in, so readers keep searching the previous index
// until the new one is durable.
type Store struct {
	path    string
	logger  *slog.Logger
	current atomic.Pointer[Index]
	initSem chan struct{}
	writeMu sync.Mutex
}

// StoreOption configures a Store.
type StoreOption func(*Store) error

// WithLogger sets the logger used by the store.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) error {
		if logger == nil {
			return fmt.Errorf("%w: logger cannot be nil", core.ErrConfig)
		}
		s.logger = logger.With("component", "index-store")
		return nil
	}
}

// WithIndex publishes idx immediately instead of loading the snapshot.
func WithIndex(idx *Index) StoreOption {
	return func(s *Store) error {
		if idx == nil {
			return fmt.Errorf("%w: index cannot be nil", core.ErrConfig)
		}
		s.current.Store(idx)
		return nil
	}
}

// NewStore creates a store persisting to path. Nothing is read until the
// index is first needed.
func NewStore(path string, opts ...StoreOption) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: index path cannot be empty", core.ErrConfig)
	}
	s := &Store{
		path:    path,
		logger:  slog.Default().With("component", "index-store"),
		initSem: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Path returns the snapshot file path.
func (s *Store) Path() string {
	return s.path
}

// Index returns the published index, loading the snapshot on first call.
// A missing snapshot yields an empty index. A failed load is not cached, so
// the next call retries.
func (s *Store) Index(ctx context.Context) (*Index, error) {
	if idx := s.current.Load(); idx != nil {
		return idx, nil
	}

	select {
	case s.initSem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.initSem }()

	if idx := s.current.Load(); idx != nil {
		return idx, nil
	}

	idx, err := Load(s.path)
	switch {
	case errors.Is(err, core.ErrNotFound):
		s.logger.Info("no index snapshot, starting empty", "path", s.path)
		idx = New()
	case err != nil:
		s.logger.Error("failed to load index snapshot", "path", s.path, "err", err)
		return nil, err
	default:
		s.logger.Info("loaded index snapshot", "path", s.path, "records", idx.Len(), "dimension", idx.Dimension())
	}
	s.current.Store(idx)
	return idx, nil
}

// Len returns the number of records in the published index, or 0 before the
// first load.
func (s *Store) Len() int {
	if idx := s.current.Load(); idx != nil {
		return idx.Len()
	}
	return 0
}

// Searcher returns the published index as a Searcher.
func (s *Store) Searcher(ctx context.Context) (Searcher, error) {
	idx, err := s.Index(ctx)
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// Commit applies fn to a clone of the published index, saves the clone and
// publishes it. If fn or the save fails, the published index and the snapshot
// on disk are unchanged.
func (s *Store) Commit(ctx context.Context, fn func(*Index) error) (*Index, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	base, err := s.Index(ctx)
	if err != nil {
		return nil, err
	}
	return s.publish(base, base.Clone(), fn)
}

// Rebuild is Commit starting from an empty index. The published index keeps
// serving until the rebuilt one is saved.
func (s *Store) Rebuild(ctx context.Context, fn func(*Index) error) (*Index, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	base, err := s.Index(ctx)
	if err != nil {
		return nil, err
	}
	next := New()
	next.dirty = true
	return s.publish(base, next, fn)
}

func (s *Store) publish(base, next *Index, fn func(*Index) error) (*Index, error) {
	if err := fn(next); err != nil {
		return nil, err
	}
	if !next.Dirty() {
		return base, nil
	}
	if err := next.Save(s.path); err != nil {
		s.logger.Error("failed to save index", "path", s.path, "err", err)
		return nil, err
	}
	s.current.Store(next)
	s.logger.Debug("index committed", "records", next.Len(), "dimension", next.Dimension())
	return next, nil
}
