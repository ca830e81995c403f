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

package storage

import "errors"

// Catalog errors.
var (
	// ErrNotFound is returned when no catalog document has the requested ID.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidDocument is returned for a nil document or one without a source.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrTransactionFailed wraps a failed catalog write.
	ErrTransactionFailed = errors.New("catalog transaction failed")

	// ErrStorageClosed is returned by operations on a closed backend.
	ErrStorageClosed = errors.New("catalog is closed")
)

// Codec errors, shared by the catalog and the index snapshot.
var (
	ErrSerializationFailed = errors.New("serialization failed")
	ErrTruncatedData       = errors.New("truncated data")
)
