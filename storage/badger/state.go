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

package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
)

// StateRepository implements storage.StateRepository for BadgerDB.
type StateRepository struct {
	backend *Backend
}

var _ storage.StateRepository = (*StateRepository)(nil)

// NewStateRepository creates a new StateRepository.
func NewStateRepository(backend *Backend) *StateRepository {
	return &StateRepository{
		backend: backend,
	}
}

// SaveIndexState persists the index state.
func (r *StateRepository) SaveIndexState(ctx context.Context, state *core.IndexState) error {
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}
	return r.backend.Update(ctx, func(tx *badger.Txn) error {
		return tx.Set([]byte(indexStateKey), storage.MarshalIndexState(state))
	})
}

// LoadIndexState retrieves the index state.
// Returns nil, nil if no state exists.
func (r *StateRepository) LoadIndexState(ctx context.Context) (*core.IndexState, error) {
	var state *core.IndexState
	err := r.backend.View(ctx, func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(indexStateKey))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}

		return item.Value(func(val []byte) error {
			var unmarshalErr error
			state, unmarshalErr = storage.UnmarshalIndexState(val)
			return unmarshalErr
		})
	})

	return state, err
}
