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

package index

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-crypt/x/blake2b"

	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
)

// Snapshot layout, in order:
//
//	magic    "RCIX"
//	version  varint
//	D        varint
//	count    varint
//	nextID   varint
//	records  count x IndexRecordMUS
//	digest   BLAKE2b-256 of everything before it
const (
	snapshotMagic   = "RCIX"
	snapshotVersion = 1
	digestSize      = 32
)

// Save writes the index to path atomically: the snapshot goes to a temporary
// file in the same directory which is renamed over path once it is synced.
// On failure the file at path is left as it was.
func (x *Index) Save(path string) error {
	data, count := x.encode()
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("%w: save index: %w", core.ErrPersistence, err)
	}

	x.mu.Lock()
	x.dirty = len(x.records) != count
	x.mu.Unlock()
	return nil
}

// Load reads an index snapshot. A missing file yields core.ErrNotFound; a file
// that fails any integrity check yields core.ErrIndex.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", core.ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: read index: %w", core.ErrPersistence, err)
	}
	return decode(data)
}

func (x *Index) encode() ([]byte, int) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	count := len(x.records)
	size := len(snapshotMagic) +
		storage.IntMUS.Size(snapshotVersion) +
		storage.IntMUS.Size(x.dimension) +
		storage.IntMUS.Size(count) +
		storage.IDMUS.Size(x.nextID)
	for _, r := range x.records {
		size += storage.IndexRecordMUS.Size(r)
	}

	buf := make([]byte, size+digestSize)
	n := copy(buf, snapshotMagic)
	n += storage.IntMUS.Marshal(snapshotVersion, buf[n:])
	n += storage.IntMUS.Marshal(x.dimension, buf[n:])
	n += storage.IntMUS.Marshal(count, buf[n:])
	n += storage.IDMUS.Marshal(x.nextID, buf[n:])
	for _, r := range x.records {
		n += storage.IndexRecordMUS.Marshal(r, buf[n:])
	}
	copy(buf[n:], digest(buf[:n]))
	return buf, count
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", core.ErrIndex, core.ErrCorruptSnapshot, fmt.Sprintf(format, args...))
}

func decode(data []byte) (*Index, error) {
	if len(data) < len(snapshotMagic)+digestSize || string(data[:len(snapshotMagic)]) != snapshotMagic {
		return nil, corrupt("not an index snapshot")
	}

	n := len(snapshotMagic)
	version, m, err := storage.IntMUS.Unmarshal(data[n:])
	if err != nil {
		return nil, corrupt("version: %v", err)
	}
	if version != snapshotVersion {
		return nil, fmt.Errorf("%w: %w: %d", core.ErrIndex, core.ErrUnsupportedVersion, version)
	}
	n += m

	payload, sum := data[:len(data)-digestSize], data[len(data)-digestSize:]
	if !bytes.Equal(digest(payload), sum) {
		return nil, corrupt("checksum mismatch")
	}

	var dimension, count int
	var nextID core.ID
	if dimension, m, err = storage.IntMUS.Unmarshal(payload[n:]); err != nil {
		return nil, corrupt("dimension: %v", err)
	}
	n += m
	if count, m, err = storage.IntMUS.Unmarshal(payload[n:]); err != nil {
		return nil, corrupt("count: %v", err)
	}
	n += m
	if nextID, m, err = storage.IDMUS.Unmarshal(payload[n:]); err != nil {
		return nil, corrupt("next id: %v", err)
	}
	n += m

	if count > 0 && dimension == 0 {
		return nil, corrupt("%d records without a dimension", count)
	}
	// A record needs at least one byte per float, so this bounds the allocation.
	if count > len(payload)-n {
		return nil, corrupt("%d records in %d bytes", count, len(payload)-n)
	}

	x := &Index{
		dimension: dimension,
		records:   make([]core.IndexRecord, 0, count),
		norms:     make([]float64, 0, count),
		nextID:    nextID,
	}
	var last core.ID
	for i := range count {
		r, m, err := storage.IndexRecordMUS.Unmarshal(payload[n:])
		if err != nil {
			return nil, corrupt("record %d: %v", i, err)
		}
		n += m
		if len(r.Vector) != dimension {
			return nil, corrupt("record %d has dimension %d, want %d", i, len(r.Vector), dimension)
		}
		if r.ID <= last || r.ID >= nextID {
			return nil, corrupt("record %d has out of order id %d", i, r.ID)
		}
		last = r.ID
		x.records = append(x.records, r)
		x.norms = append(x.norms, norm(r.Vector))
	}
	if n != len(payload) {
		return nil, corrupt("%d trailing bytes", len(payload)-n)
	}
	if x.nextID == 0 {
		x.nextID = 1
	}
	return x, nil
}

func digest(data []byte) []byte {
	h, _ := blake2b.New(digestSize, nil)
	h.Write(data)
	return h.Sum(nil)
}

func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return err
	}

	// Persist the rename itself. Not every platform can sync a directory.
	if d, derr := os.Open(dir); derr == nil {
		d.Sync()
		d.Close()
	}
	return nil
}
