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

// Package chunker splits raw text into overlapping, size-bounded chunks.
//
// Cuts are placed on the highest-priority boundary found inside the size
// window: paragraph break, line break, sentence end, space. When none exists
// the text is cut at exactly ChunkSize characters. Sizes and overlaps are
// counted in runes of the source text, and every chunk is a contiguous slice
// of it, so stripping the overlap from each chunk and concatenating the rest
// reproduces the input.
package chunker

import (
	"fmt"
	"iter"
	"slices"
	"unicode"

	"github.com/poiesic/recall/core"
)

const (
	// DefaultChunkSize is the maximum number of characters per chunk.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is the number of characters shared by consecutive chunks.
	DefaultChunkOverlap = 200
)

// defaultSeparators in priority order. The empty-string fallback is implicit.
var defaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", " "}

// Config holds chunking parameters. They are fixed for the life of a Splitter.
type Config struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// DefaultConfig returns the default chunking parameters.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", core.ErrConfig, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("%w: chunk overlap cannot be negative, got %d", core.ErrConfig, c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk overlap (%d) must be less than chunk size (%d)",
			core.ErrConfig, c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// Splitter cuts text into chunks.
type Splitter struct {
	config     Config
	separators [][]rune
}

// New creates a Splitter. It fails with core.ErrConfig when the configuration is invalid.
func New(config Config) (*Splitter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	separators := make([][]rune, len(defaultSeparators))
	for i, sep := range defaultSeparators {
		separators[i] = []rune(sep)
	}
	return &Splitter{config: config, separators: separators}, nil
}

// Config returns the splitter's configuration.
func (s *Splitter) Config() Config {
	return s.config
}

// Split returns every chunk of text. Empty text yields no chunks.
func (s *Splitter) Split(text string) []core.Chunk {
	return slices.Collect(s.Chunks(text))
}

// Chunks returns the chunks of text as a sequence. The sequence can be ranged
// over any number of times. Chunk.Index counts from zero and Chunk.Offset is
// the rune offset of the chunk inside text.
func (s *Splitter) Chunks(text string) iter.Seq[core.Chunk] {
	return func(yield func(core.Chunk) bool) {
		runes := []rune(text)
		start := 0
		for seq := 0; start < len(runes); seq++ {
			end := s.cut(runes, start)
			chunk := core.Chunk{
				Text:   string(runes[start:end]),
				Index:  seq,
				Offset: start,
			}
			if !yield(chunk) || end == len(runes) {
				return
			}
			start = s.next(runes, start, end)
		}
	}
}

// cut returns the end of the chunk beginning at start.
func (s *Splitter) cut(runes []rune, start int) int {
	limit := start + s.config.ChunkSize
	if limit >= len(runes) {
		return len(runes)
	}
	// The following chunk starts ChunkOverlap runes before this one ends, so
	// the cut has to leave room for it to advance.
	lo := start + s.config.ChunkOverlap + 1
	for _, sep := range s.separators {
		if p := lastCut(runes, sep, lo, limit); p > 0 {
			return p
		}
	}
	return limit
}

// next returns the start of the chunk following [start, end). It backs up
// ChunkOverlap runes, then moves forward to the first word start inside the
// overlap so the chunk does not open mid-word. With no word start available
// the overlap is kept whole.
func (s *Splitter) next(runes []rune, start, end int) int {
	next := end - s.config.ChunkOverlap
	if next <= start {
		next = start + 1
	}
	if next == end || unicode.IsSpace(runes[next-1]) {
		return next
	}
	for i := next + 1; i < end; i++ {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return next
}

// lastCut finds the largest p in [lo, hi] such that runes[p-len(sep):p] equals
// sep, and returns -1 if there is none.
func lastCut(runes, sep []rune, lo, hi int) int {
	if lo < len(sep) {
		lo = len(sep)
	}
	for p := hi; p >= lo; p-- {
		if slices.Equal(runes[p-len(sep):p], sep) {
			return p
		}
	}
	return -1
}
