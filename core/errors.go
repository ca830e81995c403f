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

package core

import "errors"

// Error classes. Every error returned by the pipeline wraps exactly one of these
// so callers can branch with errors.Is.
var (
	// ErrValidation indicates malformed caller input.
	ErrValidation = errors.New("validation error")

	// ErrConfig indicates an invalid component configuration.
	ErrConfig = errors.New("configuration error")

	// ErrEmbedding indicates the embedding model call failed.
	ErrEmbedding = errors.New("embedding error")

	// ErrIndex indicates a dimension mismatch or a corrupted persisted index.
	ErrIndex = errors.New("index error")

	// ErrPersistence indicates writing or renaming persisted state failed.
	ErrPersistence = errors.New("persistence error")

	// ErrNotFound indicates no persisted index exists yet.
	ErrNotFound = errors.New("not found")
)

var (
	// ErrEmptyQuery indicates a query string is empty or whitespace.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrMissingDocuments indicates an ingestion call carried no document sequence.
	ErrMissingDocuments = errors.New("documents array required")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrDimensionMismatch indicates a vector does not match the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrEmptyVector indicates a zero-length vector.
	ErrEmptyVector = errors.New("vector cannot be empty")

	// ErrCorruptSnapshot indicates a persisted index failed integrity checks.
	ErrCorruptSnapshot = errors.New("corrupt index snapshot")

	// ErrUnsupportedVersion indicates a persisted index was written by an unknown format version.
	ErrUnsupportedVersion = errors.New("unsupported index snapshot version")
)
