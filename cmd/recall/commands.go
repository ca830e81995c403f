package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/recall"
	"github.com/poiesic/recall/config"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/extract"
	"github.com/poiesic/recall/metrics"
	"github.com/poiesic/recall/reembed"
	"github.com/poiesic/recall/server"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API and the static web client",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Listen address, overrides the configuration",
			},
		},
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cfg := loadedConfig(c)
	if c.IsSet("listen") {
		cfg.Listen = c.String("listen")
	}

	collector := metrics.New()
	engine, err := openEngine(cfg, recall.WithMetrics(collector))
	if err != nil {
		return err
	}
	defer engine.Close()

	staticDir := cfg.StaticDir
	if info, err := os.Stat(staticDir); err != nil || !info.IsDir() {
		staticDir = ""
	}

	srvConfig := server.DefaultConfig()
	srvConfig.Addr = cfg.Listen
	srvConfig.StaticDir = staticDir
	srvConfig.UploadDir = cfg.UploadDir
	srvConfig.MaxUploadBytes = cfg.MaxUploadBytes()

	srv, err := server.New(engine, srvConfig, server.WithMetrics(collector.Handler()))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return srv.ListenAndServe(ctx)
}

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "Index PDF and text files",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "text",
				Usage: "Index a literal text (repeatable)",
			},
		},
		Action: ingestAction,
	}
}

func ingestAction(c *cli.Context) error {
	texts := c.StringSlice("text")
	if c.NArg() == 0 && len(texts) == 0 {
		return errors.New("nothing to ingest: pass files or --text")
	}

	engine, err := openEngine(loadedConfig(c))
	if err != nil {
		return err
	}
	defer engine.Close()

	out := c.App.Writer
	if len(texts) > 0 {
		result, err := engine.Ingest(c.Context, texts, core.SourceMetadata{Source: "user", Type: extract.TypeText})
		if err != nil {
			return fmt.Errorf("failed to ingest texts: %w", err)
		}
		fmt.Fprintf(out, "texts: %d chunks\n", result.ChunkCount)
	}

	for _, path := range c.Args().Slice() {
		parts, meta, err := extract.File(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		result, err := engine.Ingest(c.Context, parts, meta)
		if err != nil {
			return fmt.Errorf("failed to ingest %s: %w", path, err)
		}
		fmt.Fprintf(out, "%s: %d chunks\n", path, result.ChunkCount)
	}
	return nil
}

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "Answer a question from the indexed documents",
		ArgsUsage: "MESSAGE...",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "context-only",
				Usage: "Print the retrieved context instead of asking the model",
			},
			&cli.BoolFlag{
				Name:  "results",
				Usage: "Print the ranked passages with their scores",
			},
			&cli.IntFlag{
				Name:  "top-k",
				Usage: "Passages to retrieve, overrides the configuration",
			},
		},
		Action: queryAction,
	}
}

func queryAction(c *cli.Context) error {
	message := strings.Join(c.Args().Slice(), " ")
	if err := core.ValidateQuery(message); err != nil {
		return errors.New("a message is required")
	}

	cfg := loadedConfig(c)
	if c.IsSet("top-k") {
		cfg.TopK = c.Int("top-k")
	}
	engine, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	out := c.App.Writer
	switch {
	case c.Bool("results"):
		results, err := engine.Search(c.Context, message)
		if err != nil {
			return err
		}
		for i, r := range results {
			fmt.Fprintf(out, "%d. [%.3f] (%s) %s\n", i+1, r.Score, r.Chunk.Source, oneLine(r.Chunk.Text))
		}
	case c.Bool("context-only"):
		contextText, err := engine.Retrieve(c.Context, message)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, contextText)
	default:
		answer, err := engine.Chat(c.Context, message)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, answer)
	}
	return nil
}

func oneLine(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func documentsCommand() *cli.Command {
	return &cli.Command{
		Name:   "documents",
		Usage:  "List ingested documents",
		Action: documentsAction,
	}
}

func documentsAction(c *cli.Context) error {
	engine, err := openEngine(loadedConfig(c))
	if err != nil {
		return err
	}
	defer engine.Close()

	docs, err := engine.Documents(c.Context)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSOURCE\tTYPE\tPAGES\tCHUNKS\tINGESTED")
	for _, doc := range docs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\n", doc.Id, doc.Source, doc.Type, doc.Pages, doc.ChunkCount,
			doc.IngestedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func reembedCommand() *cli.Command {
	return &cli.Command{
		Name:  "reembed",
		Usage: "Rebuild the index with the configured (or given) embedding model",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "embedding-host",
				Usage: "Embedding service host URL, overrides the configuration",
			},
			&cli.StringFlag{
				Name:  "embedding-model",
				Usage: "Embedding model name, overrides the configuration",
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Number of chunks to process in each batch",
				Value: reembed.DefaultBatchSize,
			},
			&cli.IntFlag{
				Name:  "report-interval",
				Usage: "Report progress every N chunks",
				Value: 100,
			},
			&cli.IntFlag{
				Name:  "max-retries",
				Usage: "Maximum attempts per batch",
				Value: 3,
			},
			&cli.DurationFlag{
				Name:  "retry-delay",
				Usage: "Base delay for exponential backoff",
				Value: 1 * time.Second,
			},
		},
		Action: reembedAction,
	}
}

func reembedAction(c *cli.Context) error {
	cfg := loadedConfig(c)
	if c.IsSet("embedding-host") {
		cfg.AI.EmbeddingHost = c.String("embedding-host")
	}
	if c.IsSet("embedding-model") {
		cfg.AI.EmbeddingModel = c.String("embedding-model")
	}

	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	engine, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	progress := c.App.ErrWriter
	fmt.Fprintf(progress, "Data directory: %s\n", cfg.DataDir)
	fmt.Fprintf(progress, "Embedding host: %s\n", cfg.AI.EmbeddingHost)
	fmt.Fprintf(progress, "Embedding model: %s\n", cfg.AI.EmbeddingModel)
	fmt.Fprintln(progress)

	reembedder, err := engine.NewReembedder(reembedConfig, progress)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if _, err := reembedder.Run(ctx); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}

func initConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "init-config",
		Usage: "Write the effective configuration to the --config path",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Overwrite an existing file",
			},
		},
		Action: func(c *cli.Context) error {
			path := c.String("config")
			if _, err := os.Stat(path); err == nil && !c.Bool("force") {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			}
			if err := config.Save(path, loadedConfig(c)); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "wrote %s\n", path)
			return nil
		},
	}
}

