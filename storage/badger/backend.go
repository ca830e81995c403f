package badger

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/poiesic/recall/storage"
)

// Catalog entries are small; a 100-wide lease keeps sequence writes rare.
const sequenceLease = 100

// Backend owns the BadgerDB handle shared by the catalog and state repositories.
type Backend struct {
	db     *badger.DB
	logger *slog.Logger
}

type txnKey struct{}

// slogAdapter routes badger's printf-style logging into slog.
type slogAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*slogAdapter)(nil)

func (a *slogAdapter) Errorf(format string, args ...any) {
	a.logger.Error(fmt.Sprintf(format, args...))
}

func (a *slogAdapter) Warningf(format string, args ...any) {
	a.logger.Warn(fmt.Sprintf(format, args...))
}

// Badger reports compactions and value log rotation at info; that is debug noise here.
func (a *slogAdapter) Infof(format string, args ...any) {
	a.logger.Debug(fmt.Sprintf(format, args...))
}

func (a *slogAdapter) Debugf(format string, args ...any) {
	a.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBackend opens the catalog database in dir, creating dir when needed.
// With inMemory set, dir is ignored and nothing touches the disk.
func OpenBackend(dir string, inMemory bool) (*Backend, error) {
	logger := slog.Default().With("component", "catalog-db")

	opts := badger.DefaultOptions(dir)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else if err := ensureDir(dir); err != nil {
		return nil, err
	}

	opts = opts.
		WithLogger(&slogAdapter{logger: logger}).
		WithCompression(options.None).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open catalog at %q: %w", dir, err)
	}
	logger.Debug("catalog opened", "dir", dir, "in_memory", inMemory)

	return &Backend{db: db, logger: logger}, nil
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

// Close closes the database. Repositories must release their sequences first.
func (b *Backend) Close() error {
	return b.db.Close()
}

// IsClosed reports whether Close has been called.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// View runs fn in a read-only transaction, or in the write transaction
// carried by ctx when called under WithTransaction.
func (b *Backend) View(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := b.ready(ctx); err != nil {
		return err
	}
	if txn, ok := ctx.Value(txnKey{}).(*badger.Txn); ok {
		return fn(txn)
	}
	return b.db.View(fn)
}

// Update runs fn in a read-write transaction committed when fn returns nil.
// Under WithTransaction it joins the outer transaction instead.
func (b *Backend) Update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := b.ready(ctx); err != nil {
		return err
	}
	if txn, ok := ctx.Value(txnKey{}).(*badger.Txn); ok {
		return fn(txn)
	}
	return b.db.Update(fn)
}

// WithTransaction runs fn with a write transaction in its context. Every
// View and Update issued with that context joins it, and nothing is
// committed unless fn returns nil.
func (b *Backend) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.ready(ctx); err != nil {
		return err
	}
	if _, ok := ctx.Value(txnKey{}).(*badger.Txn); ok {
		return fn(ctx)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return fn(context.WithValue(ctx, txnKey{}, txn))
	})
}

// Sequence leases a named monotonic counter.
func (b *Backend) Sequence(name string) (*badger.Sequence, error) {
	if b.db.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	return b.db.GetSequence([]byte(name), sequenceLease)
}

func (b *Backend) ready(ctx context.Context) error {
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}
	return ctx.Err()
}
