package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// Index records get sequential IDs; catalog documents use database sequences.
type ID uint64

// DigestTexts fingerprints an ordered sequence of texts with a 64-bit BLAKE2b.
// Each text is length-prefixed, so ["ab", "c"] and ["a", "bc"] differ.
func DigestTexts(texts ...string) ID {
	h, _ := blake2b.New(8, nil)
	var prefix [binary.MaxVarintLen64]byte
	for _, text := range texts {
		n := binary.PutUvarint(prefix[:], uint64(len(text)))
		h.Write(prefix[:n])
		h.Write([]byte(text))
	}
	return ID(binary.LittleEndian.Uint64(h.Sum(nil)))
}

// Metadata keys attached to every chunk by the ingestion pipeline.
const (
	MetaSource = "source"
	MetaType   = "type"
	MetaPages  = "pages"
)

// Chunk is a contiguous segment of an ingested text. Chunks are immutable once created.
type Chunk struct {
	Text     string
	Source   string
	Metadata map[string]string
	Index    int // Running sequence index within one ingestion call
	Offset   int // Rune offset of Text inside the text it was cut from
}

// IndexRecord pairs a chunk with its embedding vector.
type IndexRecord struct {
	ID     ID
	Vector []float32
	Chunk  Chunk
}

// QueryResult is a single ranked search hit.
type QueryResult struct {
	Chunk Chunk
	Score float32
}

// SourceMetadata is the metadata shared by every text of one ingestion call.
type SourceMetadata struct {
	Source string
	Type   string
	Pages  int
	Extra  map[string]string
}

// Document is the catalog entry describing one committed ingestion.
type Document struct {
	Id          ID
	Source      string
	Type        string
	Pages       int
	Texts       int
	ChunkCount  int
	FirstRecord ID
	LastRecord  ID
	Digest      ID // DigestTexts of the non-blank texts
	IngestedAt  time.Time
}

// IndexState describes the vector index last committed to a data directory.
type IndexState struct {
	EmbeddingModel string
	Dimension      int
	Records        int
	UpdatedAt      time.Time
}

// Stage identifies a step of the ingestion or query flow.
type Stage int

const (
	StageIdle Stage = iota
	StageChunking
	StageEmbedding
	StageIndexing
	StagePersisting
	StageSearching
	StageAssemblingContext
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageChunking:
		return "chunking"
	case StageEmbedding:
		return "embedding"
	case StageIndexing:
		return "indexing"
	case StagePersisting:
		return "persisting"
	case StageSearching:
		return "searching"
	case StageAssemblingContext:
		return "assembling_context"
	default:
		return "unknown"
	}
}
