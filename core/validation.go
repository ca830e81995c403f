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

import (
	"fmt"
	"strings"
)

// ValidateQuery checks that a query string carries text.
func ValidateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyQuery)
	}
	return nil
}

// ValidateChunk checks that a chunk is usable as an index record payload.
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}
	if chunk.Text == "" {
		return fmt.Errorf("%w: text cannot be empty", ErrInvalidChunk)
	}
	if chunk.Index < 0 || chunk.Offset < 0 {
		return fmt.Errorf("%w: negative position (index %d, offset %d)", ErrInvalidChunk, chunk.Index, chunk.Offset)
	}
	return nil
}

// ValidateVector checks a vector against an expected dimension.
// A dimension of zero accepts any non-empty vector.
func ValidateVector(vector []float32, dimension int) error {
	if len(vector) == 0 {
		return ErrEmptyVector
	}
	if dimension > 0 && len(vector) != dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), dimension)
	}
	return nil
}
