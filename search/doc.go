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

// Package search answers queries against the vector index.
//
// A Searcher validates the query, embeds it, runs an exact k-nearest-neighbour
// search and, for Context, joins the retrieved chunk texts into the context
// string handed to the generator. Queries never take the index writer lock;
// they search whatever index was last committed.
package search
