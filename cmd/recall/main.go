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

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/recall"
	"github.com/poiesic/recall/config"
)

const configKey = "config"

// engineOptions are appended to every engine the commands open.
var engineOptions []recall.Option

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "recall",
		Usage: "Retrieval-augmented question answering over your documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				Value:   "recall.yaml",
				EnvVars: []string{"RECALL_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Environment file loaded before the configuration",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Aliases: []string{"d"},
				Usage:   "Directory holding the index and the document catalog",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: before,
		Commands: []*cli.Command{
			serveCommand(),
			ingestCommand(),
			queryCommand(),
			documentsCommand(),
			reembedCommand(),
			initConfigCommand(),
		},
	}
}

// before loads the environment file and the configuration, then installs
// the logger. Flags override the file and the environment.
func before(c *cli.Context) error {
	if err := godotenv.Load(c.String("env-file")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", c.String("env-file"), err)
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	cfg.ApplyEnv(os.Getenv)
	if c.IsSet("data-dir") {
		cfg.DataDir = c.String("data-dir")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = strings.ToLower(c.String("log-level"))
	}

	if err := setupLogger(cfg.LogLevel); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]interface{}{}
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

func loadedConfig(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[configKey].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}

func setupLogger(levelStr string) error {
	levelStr = strings.ToLower(levelStr)

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

// openEngine opens the engine described by cfg.
func openEngine(cfg *config.Config, extra ...recall.Option) (*recall.Engine, error) {
	opts := []recall.Option{
		recall.WithAIConfig(&cfg.AI),
		recall.WithChunker(cfg.Chunker),
		recall.WithTopK(cfg.TopK),
		recall.WithEmbeddingBatch(cfg.Embedding.BatchSize, cfg.Embedding.Workers),
		recall.WithChatTimeout(cfg.ChatTimeout),
		recall.WithLogger(slog.Default()),
	}
	opts = append(opts, engineOptions...)
	opts = append(opts, extra...)
	engine, err := recall.Open(cfg.DataDir, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.DataDir, err)
	}
	return engine, nil
}
