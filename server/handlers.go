package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/extract"
)

type initializeRequest struct {
	Documents []string `json:"documents" validate:"required"`
}

type initializeResponse struct {
	Success bool `json:"success"`
	Chunks  int  `json:"chunks"`
}

type chatRequest struct {
	Message string `json:"message" validate:"required"`
}

type chatResponse struct {
	Response string `json:"response"`
}

type uploadResponse struct {
	Success bool `json:"success"`
	Pages   int  `json:"pages"`
	Chunks  int  `json:"chunks"`
}

type documentResponse struct {
	ID          uint64    `json:"id"`
	Source      string    `json:"source"`
	Type        string    `json:"type,omitempty"`
	Pages       int       `json:"pages,omitempty"`
	Texts       int       `json:"texts"`
	Chunks      int       `json:"chunks"`
	FirstRecord uint64    `json:"first_record"`
	LastRecord  uint64    `json:"last_record"`
	Digest      string    `json:"digest"`
	IngestedAt  time.Time `json:"ingested_at"`
}

type healthResponse struct {
	Status         string `json:"status"`
	Records        int    `json:"records"`
	Dimension      int    `json:"dimension"`
	Documents      int    `json:"documents"`
	EmbeddingModel string `json:"embedding_model,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// decode reads a JSON body into v and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return s.validate.Struct(v)
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r)

	var req initializeRequest
	if err := s.decode(w, r, &req); err != nil {
		logger.Debug("invalid initialize request", "err", err)
		writeError(w, http.StatusBadRequest, msgDocumentsRequired)
		return
	}

	// Ingestion runs to completion even if the client goes away.
	result, err := s.engine.Ingest(context.WithoutCancel(r.Context()), req.Documents,
		core.SourceMetadata{Source: "user", Type: extract.TypeText})
	if err != nil {
		logger.Error("initialization failed", "documents", len(req.Documents), "err", err)
		if errors.Is(err, core.ErrValidation) {
			writeError(w, http.StatusBadRequest, msgDocumentsRequired)
			return
		}
		writeError(w, http.StatusInternalServerError, msgInitializeFailed)
		return
	}

	logger.Info("documents initialized", "documents", len(req.Documents), "chunks", result.ChunkCount)
	writeJSON(w, http.StatusOK, initializeResponse{Success: true, Chunks: result.ChunkCount})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r)

	var req chatRequest
	if err := s.decode(w, r, &req); err != nil {
		logger.Debug("invalid chat request", "err", err)
		writeError(w, http.StatusBadRequest, msgMessageRequired)
		return
	}

	answer, err := s.engine.Chat(r.Context(), req.Message)
	if err != nil {
		if errors.Is(err, core.ErrValidation) {
			writeError(w, http.StatusBadRequest, msgMessageRequired)
			return
		}
		logger.Error("chat failed", "err", err)
		writeError(w, http.StatusInternalServerError, msgProcessFailed)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: answer})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r)

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, msgUploadTooLarge)
			return
		}
		logger.Debug("no file in upload", "err", err)
		writeError(w, http.StatusBadRequest, msgNoFile)
		return
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	path, err := s.spool(file)
	if path != "" {
		defer s.removeUpload(logger, path)
	}
	if err != nil {
		logger.Error("failed to store upload", "err", err)
		writeError(w, http.StatusInternalServerError, msgUploadFailed)
		return
	}

	if !extract.IsPDF(header.Filename) {
		writeError(w, http.StatusBadRequest, msgOnlyPDF)
		return
	}

	pages, err := extract.PDFFile(path)
	if err != nil {
		logger.Error("pdf extraction failed", "file", header.Filename, "err", err)
		writeError(w, http.StatusInternalServerError, msgUploadFailed)
		return
	}

	meta := core.SourceMetadata{
		Source: filepath.Base(header.Filename),
		Type:   extract.TypePDF,
		Pages:  len(pages),
	}
	result, err := s.engine.Ingest(context.WithoutCancel(r.Context()), pages, meta)
	if err != nil {
		logger.Error("pdf ingestion failed", "file", header.Filename, "err", err)
		writeError(w, http.StatusInternalServerError, msgUploadFailed)
		return
	}

	logger.Info("pdf ingested", "file", meta.Source, "pages", len(pages), "chunks", result.ChunkCount)
	writeJSON(w, http.StatusOK, uploadResponse{Success: true, Pages: len(pages), Chunks: result.ChunkCount})
}

// spool copies an upload into a temp file under the upload directory. The
// returned path is set whenever a file was created, even on error.
func (s *Server) spool(src io.Reader) (string, error) {
	tmp, err := os.CreateTemp(s.config.UploadDir, "upload-*")
	if err != nil {
		return "", err
	}
	path := tmp.Name()
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return path, err
	}
	return path, tmp.Close()
}

// removeUpload deletes a spooled upload. A file that is already gone is fine.
func (s *Server) removeUpload(logger *slog.Logger, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("failed to remove upload", "path", path, "err", err)
	}
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.engine.Documents(r.Context())
	if err != nil {
		s.requestLogger(r).Error("failed to list documents", "err", err)
		writeError(w, http.StatusInternalServerError, msgProcessFailed)
		return
	}

	out := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, documentResponse{
			ID:          uint64(doc.Id),
			Source:      doc.Source,
			Type:        doc.Type,
			Pages:       doc.Pages,
			Texts:       doc.Texts,
			Chunks:      doc.ChunkCount,
			FirstRecord: uint64(doc.FirstRecord),
			LastRecord:  uint64(doc.LastRecord),
			Digest:      fmt.Sprintf("%016x", uint64(doc.Digest)),
			IngestedAt:  doc.IngestedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context())
	if err != nil {
		s.requestLogger(r).Error("health check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "ok",
		Records:        stats.Records,
		Dimension:      stats.Dimension,
		Documents:      stats.Documents,
		EmbeddingModel: stats.EmbeddingModel,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to encode JSON response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
