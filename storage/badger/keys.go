package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/poiesic/recall/core"
)

const (
	documentPrefix       = "docrec"
	documentSourcePrefix = "docsrc"
	documentIDSeq        = "docrecseq"
	indexStateKey        = "idxstate"
)

// makeDocumentKey generates a key for a document by ID.
// Format: prefix:id, id in BigEndian so iteration follows ingestion order
func makeDocumentKey(id core.ID) []byte {
	prefix := documentPrefix + ":"
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeDocumentSourceKey generates a composite key for the source index.
// Format: prefix:len(source):source:id
func makeDocumentSourceKey(source string, id core.ID) []byte {
	partial := makePartialDocumentSourceKey(source)
	buf := make([]byte, len(partial)+8)
	offset := copy(buf, partial)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makePartialDocumentSourceKey generates the prefix shared by all source index
// entries of one source. The length component keeps "a" from matching "ab".
func makePartialDocumentSourceKey(source string) []byte {
	return []byte(fmt.Sprintf("%s:%d:%s:", documentSourcePrefix, len(source), source))
}

// documentIDFromSourceKey extracts the trailing document ID from a source index key.
func documentIDFromSourceKey(key []byte) core.ID {
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}
