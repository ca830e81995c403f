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

// Package server exposes a recall engine over HTTP.
//
// Endpoints:
//
//	POST /api/initialize  {"documents": ["..."]}   index raw texts
//	POST /api/chat        {"message": "..."}       answer from retrieved context
//	POST /api/upload      multipart "file" (.pdf)  extract and index a PDF
//	GET  /api/documents                            list ingested documents
//	GET  /healthz                                  index statistics
//	GET  /metrics                                  Prometheus metrics, when configured
//	GET  /                                         static assets, when configured
//
// Errors are JSON objects with a single "error" field.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/poiesic/recall"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/ingestion"
)

// Engine is the part of recall.Engine the gateway calls.
type Engine interface {
	Ingest(ctx context.Context, texts []string, meta core.SourceMetadata) (*ingestion.Result, error)
	Chat(ctx context.Context, message string) (string, error)
	Documents(ctx context.Context) ([]*core.Document, error)
	Stats(ctx context.Context) (*recall.Stats, error)
}

var _ Engine = (*recall.Engine)(nil)

// Config holds the HTTP server settings.
type Config struct {
	// Addr is the listen address, e.g. ":3000".
	Addr string `validate:"required"`

	// StaticDir is served at "/". Empty disables static files.
	StaticDir string

	// UploadDir holds uploads while they are processed.
	UploadDir string `validate:"required"`

	// MaxUploadBytes caps request bodies.
	MaxUploadBytes int64 `validate:"gt=0"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `validate:"gt=0"`
}

// DefaultConfig returns the default server settings.
func DefaultConfig() Config {
	return Config{
		Addr:            ":3000",
		StaticDir:       "public",
		UploadDir:       "uploads",
		MaxUploadBytes:  32 << 20,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Server is the HTTP gateway.
type Server struct {
	engine   Engine
	config   Config
	validate *validator.Validate
	metrics  http.Handler
	logger   *slog.Logger
	handler  http.Handler
}

// Option configures a Server.
type Option func(*Server) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			return fmt.Errorf("%w: logger cannot be nil", core.ErrConfig)
		}
		s.logger = logger.With("component", "server")
		return nil
	}
}

// WithMetrics serves handler at /metrics.
func WithMetrics(handler http.Handler) Option {
	return func(s *Server) error {
		s.metrics = handler
		return nil
	}
}

// New creates a server. The upload directory is created if missing.
func New(engine Engine, config Config, opts ...Option) (*Server, error) {
	if engine == nil {
		return nil, ErrEngineRequired
	}
	s := &Server{
		engine:   engine,
		config:   config,
		validate: validator.New(),
		logger:   slog.Default().With("component", "server"),
	}
	if err := s.validate.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfig, err)
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(config.UploadDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfig, err)
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/initialize", s.handleInitialize)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("GET /api/documents", s.handleDocuments)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	if s.config.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.config.StaticDir)))
	}
	return s.requestID(s.logRequests(mux))
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
// In-flight requests get ShutdownTimeout to finish.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.config.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
