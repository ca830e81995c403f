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

// Package config loads the service configuration from YAML, the environment
// and command line overrides, and validates the result.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/chunker"
)

// ErrInvalidConfig is returned when a configuration fails to load or validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root configuration.
type Config struct {
	// DataDir holds the index snapshot and the document catalog.
	DataDir string `yaml:"data_dir" validate:"required"`

	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" validate:"required"`

	// StaticDir is served at / when it exists.
	StaticDir string `yaml:"static_dir"`

	// UploadDir receives uploads while they are processed.
	UploadDir string `yaml:"upload_dir" validate:"required"`

	MaxUploadMB int64         `yaml:"max_upload_mb" validate:"gt=0"`
	TopK        int           `yaml:"top_k" validate:"gte=1"`
	ChatTimeout time.Duration `yaml:"chat_timeout" validate:"gt=0"`
	LogLevel    string        `yaml:"log_level" validate:"oneof=debug info warn error"`

	Chunker   chunker.Config  `yaml:"chunker"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	AI        ai.Config       `yaml:"ai"`
}

// EmbeddingConfig controls how chunk batches reach the embedding model.
type EmbeddingConfig struct {
	BatchSize int `yaml:"batch_size" validate:"gte=1"`
	Workers   int `yaml:"workers" validate:"gte=1"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:     "data",
		Listen:      ":3000",
		StaticDir:   "public",
		UploadDir:   "uploads",
		MaxUploadMB: 32,
		TopK:        3,
		ChatTimeout: 60 * time.Second,
		LogLevel:    "info",
		Chunker:     chunker.DefaultConfig(),
		Embedding: EmbeddingConfig{
			BatchSize: 32,
			Workers:   2,
		},
		AI: *ai.DefaultConfig(),
	}
}

// Load reads a YAML file over the defaults. Keys absent from the file keep
// their default values; unknown keys are an error. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if port := strings.TrimSpace(getenv("PORT")); port != "" {
		c.Listen = ":" + port
	}
	if dir := getenv("RECALL_DATA_DIR"); dir != "" {
		c.DataDir = dir
	}
	if host := getenv("RECALL_AI_HOST"); host != "" {
		c.AI.EmbeddingHost = host
		c.AI.GenerationHost = host
	}
	if token := getenv("RECALL_AI_TOKEN"); token != "" {
		c.AI.Token = token
	}
}

// Validate checks every section of the configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Chunker.Validate(); err != nil {
		return fmt.Errorf("%w: chunker: %w", ErrInvalidConfig, err)
	}
	if err := c.AI.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// IndexPath is the snapshot file inside the data directory.
func (c *Config) IndexPath() string {
	return filepath.Join(c.DataDir, "index.snap")
}

// CatalogDir is the BadgerDB directory inside the data directory.
func (c *Config) CatalogDir() string {
	return filepath.Join(c.DataDir, "catalog")
}

// MaxUploadBytes is the upload size limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}
