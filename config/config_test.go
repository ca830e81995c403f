package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":3000", cfg.Listen)
	assert.Equal(t, 3, cfg.TopK)
	assert.Equal(t, 60*time.Second, cfg.ChatTimeout)
	assert.Equal(t, 1000, cfg.Chunker.ChunkSize)
	assert.Equal(t, 200, cfg.Chunker.ChunkOverlap)
	assert.Equal(t, filepath.Join("data", "index.snap"), cfg.IndexPath())
	assert.Equal(t, filepath.Join("data", "catalog"), cfg.CatalogDir())
	assert.Equal(t, int64(32<<20), cfg.MaxUploadBytes())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file gives defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(dir, "missing.yaml"))
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("empty path gives defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("empty file gives defaults", func(t *testing.T) {
		path := filepath.Join(dir, "empty.yaml")
		require.NoError(t, os.WriteFile(path, nil, 0o644))
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("partial file keeps other defaults", func(t *testing.T) {
		path := filepath.Join(dir, "partial.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /var/lib/recall
chat_timeout: 90s
chunker:
  chunk_size: 500
  chunk_overlap: 50
ai:
  generation_model: llama3
`), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "/var/lib/recall", cfg.DataDir)
		assert.Equal(t, 90*time.Second, cfg.ChatTimeout)
		assert.Equal(t, 500, cfg.Chunker.ChunkSize)
		assert.Equal(t, 50, cfg.Chunker.ChunkOverlap)
		assert.Equal(t, "llama3", cfg.AI.GenerationModel)
		assert.Equal(t, "all-minilm", cfg.AI.EmbeddingModel)
		assert.Equal(t, ":3000", cfg.Listen)
		require.NoError(t, cfg.Validate())
	})

	t.Run("unknown key", func(t *testing.T) {
		path := filepath.Join(dir, "typo.yaml")
		require.NoError(t, os.WriteFile(path, []byte("top_kk: 4\n"), 0o644))
		_, err := Load(path)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("listen: [unclosed\n"), 0o644))
		_, err := Load(path)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.TopK = 5
	cfg.ChatTimeout = 2 * time.Minute
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PORT":            "8080",
		"RECALL_DATA_DIR": "/tmp/recall",
		"RECALL_AI_HOST":  "http://ollama:11434",
		"RECALL_AI_TOKEN": "secret",
	}
	cfg := Default()
	cfg.ApplyEnv(func(key string) string { return env[key] })

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "/tmp/recall", cfg.DataDir)
	assert.Equal(t, "http://ollama:11434", cfg.AI.EmbeddingHost)
	assert.Equal(t, "http://ollama:11434", cfg.AI.GenerationHost)
	assert.Equal(t, "secret", cfg.AI.Token)

	unchanged := Default()
	unchanged.ApplyEnv(func(string) string { return "" })
	assert.Equal(t, Default(), unchanged)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no data dir", func(c *Config) { c.DataDir = "" }},
		{"no listen address", func(c *Config) { c.Listen = "" }},
		{"zero top k", func(c *Config) { c.TopK = 0 }},
		{"zero timeout", func(c *Config) { c.ChatTimeout = 0 }},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }},
		{"zero batch size", func(c *Config) { c.Embedding.BatchSize = 0 }},
		{"zero workers", func(c *Config) { c.Embedding.Workers = 0 }},
		{"zero upload limit", func(c *Config) { c.MaxUploadMB = 0 }},
		{"overlap not below size", func(c *Config) { c.Chunker.ChunkOverlap = c.Chunker.ChunkSize }},
		{"no embedding model", func(c *Config) { c.AI.EmbeddingModel = "" }},
		{"temperature out of range", func(c *Config) { c.AI.Temperature = 3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
