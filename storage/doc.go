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

// Package storage provides the storage abstraction layer for recall.
//
// The vector index persists itself as a single snapshot file (see package
// index). This package covers everything around it: the document catalog,
// which records every committed ingestion, the index state marker, and the
// mus-format serializers shared by the catalog and the snapshot codec.
//
// # Constructor Return Type Pattern
//
// Public constructors return interface types to keep callers independent of
// BadgerDB:
//
//	catalog, err := badger.NewCatalogRepository(backend) // returns storage.CatalogRepository
//
// # Usage
//
// Use in tests with in-memory storage:
//
//	repos, err := badger.OpenMemory()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repos.Close()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
