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
	"errors"

	"github.com/poiesic/recall/storage"
)

// Repositories bundles the catalog and state repositories over one backend.
type Repositories struct {
	Backend *Backend
	Catalog storage.CatalogRepository
	State   storage.StateRepository
}

// OpenRepositories opens a backend in dir and the repositories on top of it.
func OpenRepositories(dir string) (*Repositories, error) {
	return openRepositories(dir, false)
}

// OpenMemory opens repositories over an in-memory backend. Used by tests.
func OpenMemory() (*Repositories, error) {
	return openRepositories("", true)
}

func openRepositories(dir string, inMemory bool) (*Repositories, error) {
	backend, err := OpenBackend(dir, inMemory)
	if err != nil {
		return nil, err
	}

	catalog, err := NewCatalogRepository(backend)
	if err != nil {
		return nil, errors.Join(err, backend.Close())
	}

	return &Repositories{
		Backend: backend,
		Catalog: catalog,
		State:   NewStateRepository(backend),
	}, nil
}

// Close releases the catalog's sequence and then closes the backend.
func (r *Repositories) Close() error {
	return errors.Join(r.Catalog.Close(), r.Backend.Close())
}
