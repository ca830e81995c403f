package main

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/recall"
	"github.com/poiesic/recall/ai/mock"
)

func TestLinesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.txt")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o644))

	lines, err := linesFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, slices.Collect(lines))

	_, err = linesFromFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestIngestBatched(t *testing.T) {
	engine, err := recall.Open(t.TempDir(), recall.WithProvider(mock.NewMockProvider()))
	require.NoError(t, err)
	defer engine.Close()

	chunks, err := ingestBatched(context.Background(), engine, slices.Values(passages), 5)
	require.NoError(t, err)
	assert.Equal(t, len(passages), chunks)

	docs, err := engine.Documents(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 3, "12 passages in batches of 5")
}
