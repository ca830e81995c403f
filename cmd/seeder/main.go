// Command seeder fills a data directory with sample passages, one ingestion
// per batch of lines, so the server has something to answer from.
package main

import (
	"bufio"
	"context"
	"flag"
	"iter"
	"log/slog"
	"os"
	"slices"

	"github.com/poiesic/recall"
	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/core"
)

var passages = []string{
	"The cat sat on the mat.",
	"Dogs bark at night.",
	"Badger is an embeddable key-value store written in Go.",
	"Cosine similarity compares the angle between two vectors and ignores their length.",
	"A chunk overlap keeps sentences that straddle a boundary retrievable from both sides.",
	"The index snapshot is replaced with an atomic rename, so readers never see a partial file.",
	"Retrieval-augmented generation grounds a model's answer in passages retrieved for the question.",
	"Embedding models map text to fixed-length vectors; similar meanings land close together.",
	"Ollama serves local models behind an OpenAI-compatible API on port 11434.",
	"A PDF upload is split into pages before chunking, and every chunk remembers its source file.",
	"Exact nearest-neighbour search scans every vector, which is fast enough for small corpora.",
	"The catalog records each ingestion with its source, chunk count and the range of record ids.",
}

var (
	seedFileName = flag.String("src", "", "file of seed data, one passage per line")
	dataDir      = flag.String("data", "data", "data directory")
	host         = flag.String("host", "http://localhost:11434/v1", "OpenAI-compatible API host")
	batchSize    = flag.Int("batch", 5, "passages per ingestion")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
}

// linesFromFile returns an iterator over lines in a file.
func linesFromFile(filename string) (iter.Seq[string], error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	return func(yield func(string) bool) {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if !yield(scanner.Text()) {
				return
			}
		}
	}, nil
}

// ingestBatched reads from a source iterator and ingests passages in batches.
func ingestBatched(ctx context.Context, engine *recall.Engine, source iter.Seq[string], batchSize int) (int, error) {
	meta := core.SourceMetadata{Source: "seeder", Type: "text"}
	batch := make([]string, 0, batchSize)
	chunks := 0

	flush := func() error {
		result, err := engine.Ingest(ctx, batch, meta)
		if err != nil {
			return err
		}
		chunks += result.ChunkCount
		batch = batch[:0]
		return nil
	}

	for line := range source {
		batch = append(batch, line)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return chunks, err
			}
		}
	}

	if len(batch) > 0 {
		if err := flush(); err != nil {
			return chunks, err
		}
	}

	return chunks, nil
}

func main() {
	flag.Parse()

	engine, err := recall.Open(*dataDir, recall.WithAIConfig(ai.NewConfig(ai.WithHost(*host))))
	if err != nil {
		panic(err)
	}
	defer engine.Close()

	source := slices.Values(passages)
	if *seedFileName != "" {
		source, err = linesFromFile(*seedFileName)
		if err != nil {
			panic(err)
		}
	}

	chunks, err := ingestBatched(context.Background(), engine, source, max(*batchSize, 1))
	if err != nil {
		panic(err)
	}
	slog.Info("seeding complete", "chunks", chunks, "data_dir", *dataDir)
}
