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

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"

	"github.com/poiesic/recall/core"
)

// The serializers below follow the mus layout: Size reports the encoded
// length, Marshal writes into a buffer of at least that length and returns the
// bytes written, Unmarshal returns the value and the bytes consumed.

type idMUS struct{}

// IDMUS encodes core.ID values as varints.
var IDMUS = idMUS{}

func (idMUS) Size(id core.ID) int {
	return varint.Uint64.Size(uint64(id))
}

func (idMUS) Marshal(id core.ID, bs []byte) int {
	return varint.Uint64.Marshal(uint64(id), bs)
}

func (idMUS) Unmarshal(bs []byte) (core.ID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return core.ID(v), n, err
}

type intMUS struct{}

// IntMUS encodes non-negative ints as varints.
var IntMUS = intMUS{}

func (intMUS) Size(v int) int {
	return varint.Uint64.Size(uint64(v))
}

func (intMUS) Marshal(v int, bs []byte) int {
	return varint.Uint64.Marshal(uint64(v), bs)
}

func (intMUS) Unmarshal(bs []byte) (int, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	if err != nil {
		return 0, n, err
	}
	if v > uint64(maxInt) {
		return 0, n, fmt.Errorf("%w: integer %d out of range", ErrSerializationFailed, v)
	}
	return int(v), n, nil
}

const maxInt = int(^uint(0) >> 1)

type stringMUS struct{}

// StringMUS decodes ord.String values after checking the declared length
// against the remaining bytes, so a corrupt length cannot overflow.
var StringMUS = stringMUS{}

func (stringMUS) Unmarshal(bs []byte) (string, int, error) {
	length, n, err := varint.PositiveInt.Unmarshal(bs)
	if err != nil {
		return "", n, err
	}
	if length > len(bs)-n {
		return "", n, fmt.Errorf("%w: string of %d bytes", ErrTruncatedData, length)
	}
	return ord.String.Unmarshal(bs)
}

type vectorMUS struct{}

// VectorMUS encodes a float32 vector as a varint length followed by raw IEEE 754 values.
// Values round-trip bit for bit.
var VectorMUS = vectorMUS{}

func (vectorMUS) Size(v []float32) int {
	size := IntMUS.Size(len(v))
	for _, f := range v {
		size += raw.Float32.Size(f)
	}
	return size
}

func (vectorMUS) Marshal(v []float32, bs []byte) int {
	n := IntMUS.Marshal(len(v), bs)
	for _, f := range v {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return n
}

func (vectorMUS) Unmarshal(bs []byte) ([]float32, int, error) {
	length, n, err := IntMUS.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length > (len(bs)-n)/4 {
		return nil, n, fmt.Errorf("%w: vector of %d values", ErrTruncatedData, length)
	}
	v := make([]float32, length)
	for i := range v {
		f, m, err := raw.Float32.Unmarshal(bs[n:])
		n += m
		if err != nil {
			return nil, n, err
		}
		v[i] = f
	}
	return v, n, nil
}

type metadataMUS struct{}

// MetadataMUS encodes a string map with keys in sorted order, so equal maps
// always encode to equal bytes.
var MetadataMUS = metadataMUS{}

func (metadataMUS) Size(m map[string]string) int {
	size := IntMUS.Size(len(m))
	for k, v := range m {
		size += ord.String.Size(k) + ord.String.Size(v)
	}
	return size
}

func (metadataMUS) Marshal(m map[string]string, bs []byte) int {
	n := IntMUS.Marshal(len(m), bs)
	for _, k := range slices.Sorted(maps.Keys(m)) {
		n += ord.String.Marshal(k, bs[n:])
		n += ord.String.Marshal(m[k], bs[n:])
	}
	return n
}

func (metadataMUS) Unmarshal(bs []byte) (map[string]string, int, error) {
	length, n, err := IntMUS.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	// Every pair takes at least two length bytes.
	if length > (len(bs)-n)/2 {
		return nil, n, fmt.Errorf("%w: metadata with %d entries", ErrTruncatedData, length)
	}
	if length == 0 {
		return nil, n, nil
	}
	m := make(map[string]string, length)
	for range length {
		k, kn, err := StringMUS.Unmarshal(bs[n:])
		n += kn
		if err != nil {
			return nil, n, err
		}
		v, vn, err := StringMUS.Unmarshal(bs[n:])
		n += vn
		if err != nil {
			return nil, n, err
		}
		m[k] = v
	}
	return m, n, nil
}

type chunkMUS struct{}

// ChunkMUS encodes core.Chunk values.
var ChunkMUS = chunkMUS{}

func (chunkMUS) Size(c core.Chunk) int {
	return ord.String.Size(c.Text) +
		ord.String.Size(c.Source) +
		IntMUS.Size(c.Index) +
		IntMUS.Size(c.Offset) +
		MetadataMUS.Size(c.Metadata)
}

func (chunkMUS) Marshal(c core.Chunk, bs []byte) int {
	n := ord.String.Marshal(c.Text, bs)
	n += ord.String.Marshal(c.Source, bs[n:])
	n += IntMUS.Marshal(c.Index, bs[n:])
	n += IntMUS.Marshal(c.Offset, bs[n:])
	n += MetadataMUS.Marshal(c.Metadata, bs[n:])
	return n
}

func (chunkMUS) Unmarshal(bs []byte) (c core.Chunk, n int, err error) {
	var m int
	if c.Text, m, err = StringMUS.Unmarshal(bs); err != nil {
		return c, n + m, err
	}
	n += m
	if c.Source, m, err = StringMUS.Unmarshal(bs[n:]); err != nil {
		return c, n + m, err
	}
	n += m
	if c.Index, m, err = IntMUS.Unmarshal(bs[n:]); err != nil {
		return c, n + m, err
	}
	n += m
	if c.Offset, m, err = IntMUS.Unmarshal(bs[n:]); err != nil {
		return c, n + m, err
	}
	n += m
	c.Metadata, m, err = MetadataMUS.Unmarshal(bs[n:])
	return c, n + m, err
}

type indexRecordMUS struct{}

// IndexRecordMUS encodes core.IndexRecord values.
var IndexRecordMUS = indexRecordMUS{}

func (indexRecordMUS) Size(r core.IndexRecord) int {
	return IDMUS.Size(r.ID) + VectorMUS.Size(r.Vector) + ChunkMUS.Size(r.Chunk)
}

func (indexRecordMUS) Marshal(r core.IndexRecord, bs []byte) int {
	n := IDMUS.Marshal(r.ID, bs)
	n += VectorMUS.Marshal(r.Vector, bs[n:])
	n += ChunkMUS.Marshal(r.Chunk, bs[n:])
	return n
}

func (indexRecordMUS) Unmarshal(bs []byte) (r core.IndexRecord, n int, err error) {
	var m int
	if r.ID, m, err = IDMUS.Unmarshal(bs); err != nil {
		return r, m, err
	}
	n += m
	if r.Vector, m, err = VectorMUS.Unmarshal(bs[n:]); err != nil {
		return r, n + m, err
	}
	n += m
	r.Chunk, m, err = ChunkMUS.Unmarshal(bs[n:])
	return r, n + m, err
}

type documentMUS struct{}

// DocumentMUS encodes core.Document values.
var DocumentMUS = documentMUS{}

func (documentMUS) Size(d core.Document) int {
	return IDMUS.Size(d.Id) +
		ord.String.Size(d.Source) +
		ord.String.Size(d.Type) +
		IntMUS.Size(d.Pages) +
		IntMUS.Size(d.Texts) +
		IntMUS.Size(d.ChunkCount) +
		IDMUS.Size(d.FirstRecord) +
		IDMUS.Size(d.LastRecord) +
		IDMUS.Size(d.Digest) +
		varint.Int64.Size(d.IngestedAt.UnixNano())
}

func (documentMUS) Marshal(d core.Document, bs []byte) int {
	n := IDMUS.Marshal(d.Id, bs)
	n += ord.String.Marshal(d.Source, bs[n:])
	n += ord.String.Marshal(d.Type, bs[n:])
	n += IntMUS.Marshal(d.Pages, bs[n:])
	n += IntMUS.Marshal(d.Texts, bs[n:])
	n += IntMUS.Marshal(d.ChunkCount, bs[n:])
	n += IDMUS.Marshal(d.FirstRecord, bs[n:])
	n += IDMUS.Marshal(d.LastRecord, bs[n:])
	n += IDMUS.Marshal(d.Digest, bs[n:])
	n += varint.Int64.Marshal(d.IngestedAt.UnixNano(), bs[n:])
	return n
}

func (documentMUS) Unmarshal(bs []byte) (d core.Document, n int, err error) {
	var m int
	if d.Id, m, err = IDMUS.Unmarshal(bs); err != nil {
		return d, m, err
	}
	n += m
	if d.Source, m, err = StringMUS.Unmarshal(bs[n:]); err != nil {
		return d, n + m, err
	}
	n += m
	if d.Type, m, err = StringMUS.Unmarshal(bs[n:]); err != nil {
		return d, n + m, err
	}
	n += m
	counts := []*int{&d.Pages, &d.Texts, &d.ChunkCount}
	for _, dst := range counts {
		if *dst, m, err = IntMUS.Unmarshal(bs[n:]); err != nil {
			return d, n + m, err
		}
		n += m
	}
	if d.FirstRecord, m, err = IDMUS.Unmarshal(bs[n:]); err != nil {
		return d, n + m, err
	}
	n += m
	if d.LastRecord, m, err = IDMUS.Unmarshal(bs[n:]); err != nil {
		return d, n + m, err
	}
	n += m
	if d.Digest, m, err = IDMUS.Unmarshal(bs[n:]); err != nil {
		return d, n + m, err
	}
	n += m
	nanos, m, err := varint.Int64.Unmarshal(bs[n:])
	if err != nil {
		return d, n + m, err
	}
	d.IngestedAt = time.Unix(0, nanos).UTC()
	return d, n + m, nil
}

type indexStateMUS struct{}

// IndexStateMUS encodes core.IndexState values.
var IndexStateMUS = indexStateMUS{}

func (indexStateMUS) Size(st core.IndexState) int {
	return ord.String.Size(st.EmbeddingModel) +
		IntMUS.Size(st.Dimension) +
		IntMUS.Size(st.Records) +
		varint.Int64.Size(st.UpdatedAt.UnixNano())
}

func (indexStateMUS) Marshal(st core.IndexState, bs []byte) int {
	n := ord.String.Marshal(st.EmbeddingModel, bs)
	n += IntMUS.Marshal(st.Dimension, bs[n:])
	n += IntMUS.Marshal(st.Records, bs[n:])
	n += varint.Int64.Marshal(st.UpdatedAt.UnixNano(), bs[n:])
	return n
}

func (indexStateMUS) Unmarshal(bs []byte) (st core.IndexState, n int, err error) {
	var m int
	if st.EmbeddingModel, m, err = StringMUS.Unmarshal(bs); err != nil {
		return st, m, err
	}
	n += m
	if st.Dimension, m, err = IntMUS.Unmarshal(bs[n:]); err != nil {
		return st, n + m, err
	}
	n += m
	if st.Records, m, err = IntMUS.Unmarshal(bs[n:]); err != nil {
		return st, n + m, err
	}
	n += m
	nanos, m, err := varint.Int64.Unmarshal(bs[n:])
	if err != nil {
		return st, n + m, err
	}
	st.UpdatedAt = time.Unix(0, nanos).UTC()
	return st, n + m, nil
}

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, IDMUS.Size(id))
	IDMUS.Marshal(id, buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := IDMUS.Unmarshal(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return id, nil
}

// MarshalDocument serializes a Document to bytes.
func MarshalDocument(doc *core.Document) []byte {
	buf := make([]byte, DocumentMUS.Size(*doc))
	DocumentMUS.Marshal(*doc, buf)
	return buf
}

// UnmarshalDocument deserializes a Document from bytes.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	doc, _, err := DocumentMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &doc, nil
}

// MarshalIndexState serializes an IndexState to bytes.
func MarshalIndexState(state *core.IndexState) []byte {
	buf := make([]byte, IndexStateMUS.Size(*state))
	IndexStateMUS.Marshal(*state, buf)
	return buf
}

// UnmarshalIndexState deserializes an IndexState from bytes.
func UnmarshalIndexState(data []byte) (*core.IndexState, error) {
	state, _, err := IndexStateMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &state, nil
}
