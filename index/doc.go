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

// Package index implements the exact vector index behind retrieval.
//
// An Index holds IndexRecords in insertion order together with the vector
// dimension D, established by the first insert. Search computes cosine
// similarity against every record and breaks ties by insertion order, so
// results are fully deterministic. Indexes persist to a single
// self-describing snapshot file written atomically (see Save and Load).
//
// A Store owns the index a process serves from. It loads the snapshot on first
// use, serializes writers, and publishes each committed index atomically so
// readers never wait on ingestion:
//
//	store, err := index.NewStore(filepath.Join(dataDir, "index.snap"))
//	_, err = store.Commit(ctx, func(next *index.Index) error {
//	    _, err := next.Add(entries...)
//	    return err
//	})
//	searcher, err := store.Searcher(ctx)
//	results, err := searcher.Search(queryVector, 3)
package index
